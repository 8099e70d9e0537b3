// Package dag provides a small concurrency-safe directed graph with cycle
// detection. The directive loader uses it to track which documents pull in
// which nested documents through BUILD `source` attributes, so that a
// document including itself, directly or through others, is rejected
// instead of recursing forever.
package dag
