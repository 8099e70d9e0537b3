package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/fsutil"
)

// checkpointSchema is bumped whenever the Checkpoint format changes.
const checkpointSchema uint16 = 1

// Checkpoint is the on-disk form of a design written by Local.
type Checkpoint struct {
	Schema         uint16 `msgpack:"schema"`
	Module         string `msgpack:"module"`
	Template       string `msgpack:"template,omitempty"`
	BufferedInputs bool   `msgpack:"buffered_inputs"`
	Region         string `msgpack:"region,omitempty"`
	Implemented    bool   `msgpack:"implemented"`
	Cells          []Cell `msgpack:"cells"`
}

// Cell is one merged instance.
type Cell struct {
	Instance   string `msgpack:"instance"`
	Source     string `msgpack:"source,omitempty"`
	Digest     string `msgpack:"digest,omitempty"`
	Module     string `msgpack:"module,omitempty"`
	Region     string `msgpack:"region,omitempty"`
	HandPlacer bool   `msgpack:"hand_placer,omitempty"`
	WiresOnly  bool   `msgpack:"wires_only,omitempty"`
	// Leaves counts the cells of a merged checkpoint; opaque artifacts
	// count as one.
	Leaves int `msgpack:"leaves"`
}

type localDesign struct {
	cp Checkpoint
}

func (d *localDesign) Module() string { return d.cp.Module }

// Checkpoint returns a copy of the design's current state.
func (d *localDesign) Checkpoint() Checkpoint {
	cp := d.cp
	cp.Cells = append([]Cell(nil), d.cp.Cells...)
	return cp
}

// Local is the reference Build Engine.
type Local struct{}

// NewLocal creates the reference engine.
func NewLocal() *Local {
	return &Local{}
}

var _ Engine = (*Local)(nil)

func asLocal(acc Design) (*localDesign, error) {
	d, ok := acc.(*localDesign)
	if !ok {
		return nil, fmt.Errorf("engine: design %T was not created by the local engine", acc)
	}
	return d, nil
}

// NewDesign starts an empty design, seeded with the template's cells when
// the template is itself a checkpoint.
func (l *Local) NewDesign(ctx context.Context, spec DesignSpec) (Design, error) {
	d := &localDesign{cp: Checkpoint{
		Schema:         checkpointSchema,
		Module:         spec.Module,
		Template:       spec.Template,
		BufferedInputs: spec.BufferedInputs,
	}}
	if spec.Template != "" {
		tmpl, err := ReadCheckpoint(spec.Template)
		switch {
		case err == nil:
			d.cp.Cells = append(d.cp.Cells, tmpl.Cells...)
		case os.IsNotExist(err):
			return nil, fmt.Errorf("template %s: %w", spec.Template, err)
		default:
			ctxlog.FromContext(ctx).Debug("Template is not a checkpoint; recorded by path only.", "template", spec.Template)
		}
	}
	return d, nil
}

// OpenDesign continues from an existing checkpoint, renamed to spec.Module.
func (l *Local) OpenDesign(ctx context.Context, path string, spec DesignSpec) (Design, error) {
	cp, err := ReadCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open initial design %s: %w", path, err)
	}
	cp.Module = spec.Module
	cp.Template = spec.Template
	cp.BufferedInputs = spec.BufferedInputs
	cp.Implemented = false
	cp.Region = ""
	return &localDesign{cp: *cp}, nil
}

// Merge records req as a cell of acc.
func (l *Local) Merge(ctx context.Context, acc Design, req MergeRequest) error {
	d, err := asLocal(acc)
	if err != nil {
		return err
	}
	cell := Cell{
		Instance:   req.Instance,
		Region:     req.Region,
		HandPlacer: req.HandPlacer,
		WiresOnly:  req.OnlyWires,
	}
	if !req.OnlyWires {
		data, err := os.ReadFile(req.Artifact)
		if err != nil {
			return fmt.Errorf("failed to merge %s: %w", req.Artifact, err)
		}
		sum := sha256.Sum256(data)
		cell.Source = req.Artifact
		cell.Digest = hex.EncodeToString(sum[:])
		cell.Leaves = 1
		if sub, err := decodeCheckpoint(bytes.NewReader(data)); err == nil {
			cell.Module = sub.Module
			cell.Leaves = leafCount(sub)
		}
	}
	d.cp.Cells = append(d.cp.Cells, cell)
	ctxlog.FromContext(ctx).Debug("Merged cell.", "design", d.cp.Module, "instance", req.Instance, "wires_only", req.OnlyWires)
	return nil
}

// Implement marks acc as placed and routed within region.
func (l *Local) Implement(ctx context.Context, acc Design, region string) error {
	d, err := asLocal(acc)
	if err != nil {
		return err
	}
	d.cp.Region = region
	d.cp.Implemented = true
	return nil
}

// Emit writes acc as a checkpoint to path and its netlist beside it.
func (l *Local) Emit(ctx context.Context, acc Design, path string) error {
	d, err := asLocal(acc)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		return msgpack.NewEncoder(w).Encode(&d.cp)
	}); err != nil {
		return fmt.Errorf("failed to emit %s: %w", path, err)
	}
	if err := writeNetlist(SecondaryPath(path), &d.cp); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Design emitted.", "design", d.cp.Module, "path", path, "cells", len(d.cp.Cells))
	return nil
}

// ReadCheckpoint decodes a checkpoint written by Local.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeCheckpoint(f)
}

func decodeCheckpoint(r io.Reader) (*Checkpoint, error) {
	var cp Checkpoint
	if err := msgpack.NewDecoder(r).Decode(&cp); err != nil {
		return nil, err
	}
	if cp.Schema != checkpointSchema {
		return nil, fmt.Errorf("checkpoint schema %d, want %d", cp.Schema, checkpointSchema)
	}
	return &cp, nil
}

func leafCount(cp *Checkpoint) int {
	n := 0
	for _, c := range cp.Cells {
		n += c.Leaves
	}
	return n
}
