package engine

import (
	"context"
	"strings"
)

// Design is the accumulator a module is assembled into.
type Design interface {
	Module() string
}

// DesignSpec describes a fresh accumulator.
type DesignSpec struct {
	Module         string
	Template       string
	BufferedInputs bool
}

// MergeRequest places one artifact into an accumulator. With OnlyWires set
// the instance is registered as a logical placeholder and Artifact is
// ignored.
type MergeRequest struct {
	Artifact   string
	Instance   string
	Region     string
	HandPlacer bool
	OnlyWires  bool
}

// Engine is the Build Engine collaborator.
type Engine interface {
	// NewDesign starts an empty accumulator for a module.
	NewDesign(ctx context.Context, spec DesignSpec) (Design, error)
	// OpenDesign starts an accumulator from an existing artifact.
	OpenDesign(ctx context.Context, path string, spec DesignSpec) (Design, error)
	// Merge places an artifact (or a wires-only placeholder) into acc.
	Merge(ctx context.Context, acc Design, req MergeRequest) error
	// Implement places and routes acc within region.
	Implement(ctx context.Context, acc Design, region string) error
	// Emit writes acc's current state to path, plus any secondary file.
	Emit(ctx context.Context, acc Design, path string) error
}

// SecondaryExt is the extension of the netlist written beside an artifact.
// It is not ".hcl" so that a netlist is never taken for a directive
// document.
const SecondaryExt = ".netlist"

// SecondaryPath returns the co-located secondary file of an artifact.
func SecondaryPath(artifact string) string {
	if i := strings.LastIndexByte(artifact, '.'); i > strings.LastIndexAny(artifact, `/\`) {
		return artifact[:i] + SecondaryExt
	}
	return artifact + SecondaryExt
}
