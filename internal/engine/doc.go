// Package engine defines the Build Engine collaborator: the component that
// turns a design description plus input artifacts into a physical artifact.
// The orchestrator only ever calls it as a black box and reasons about the
// artifacts it emits through their timestamps and declared inputs.
//
// Local is a reference implementation that records merged instances in a
// msgpack checkpoint and writes a human-readable HCL netlist next to it.
// It performs no placement or routing of its own.
package engine
