/*
Package builder is the Build Orchestrator. It walks a Directive Tree depth
first, asks the Cache Resolver whether each BUILD subtree can be reused, and
drives the Build Engine to assemble a fresh artifact when it cannot.

A run proceeds as follows for every sibling group:

 1. Module: the group's header must name the module being built; otherwise
    the run aborts with a FatalError.

 2. Accumulator: a design is started from the header's initial artifact, or
    from scratch (optionally seeded by the template).

 3. Directives: siblings are processed in declared order. MERGE places its
    artifact (or a wires-only placeholder), BUILD resolves or rebuilds its
    subtree and places the result, and WRITE emits the accumulator's current
    state. The active write target is the last WRITE seen; any other
    directive clears it.

 4. Persist: any stale artifact is removed, a fresh dependency manifest is
    written into the cache entry for (module, region), and the design is
    implemented and emitted next to it.

 5. Output: when a WRITE was the last directive, the canonical artifact and
    its secondary file are copied to that WRITE's output.

Each (module, region) pair is rebuilt at most once per Run, however many
parents reference it. Cache misses are never errors. Fatal errors abort the
whole run; cache entries finished earlier stay valid.
*/
package builder
