// Package resolver decides whether the cached artifact of a directive
// subtree may be reused. A miss is an expected outcome, never an error: it
// carries a human-readable reason and tells the orchestrator to rebuild.
//
// Resolution of a BUILD directive walks its children recursively. Results
// are memoized per (module, region) in a Memo owned by one top-level call,
// so a sub-module shared by many parents is verified once.
package resolver
