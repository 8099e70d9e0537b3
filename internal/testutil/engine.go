package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/hiermerge/internal/engine"
)

// Call is one recorded Build Engine invocation.
type Call struct {
	Op       string // new, open, merge, implement, emit
	Module   string
	Instance string
	Path     string
	Region   string
}

// FakeDesign is the accumulator produced by FakeEngine.
type FakeDesign struct {
	module string
	cells  []string
	region string
}

// Module implements engine.Design.
func (d *FakeDesign) Module() string { return d.module }

// Cells returns the merged instance names in merge order.
func (d *FakeDesign) Cells() []string { return append([]string(nil), d.cells...) }

// FakeEngine is a recording engine.Engine. Emit writes a small text
// artifact and a secondary file. Failures can be injected per module.
type FakeEngine struct {
	mu    sync.Mutex
	calls []Call
	// FailEmit makes Emit fail for the named modules.
	FailEmit map[string]error
	// FailImplement makes Implement fail for the named modules.
	FailImplement map[string]error
}

var _ engine.Engine = (*FakeEngine)(nil)

// NewFakeEngine creates an engine with no recorded calls.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

func (e *FakeEngine) record(c Call) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, c)
}

// Calls returns every recorded call.
func (e *FakeEngine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (e *FakeEngine) CallsOf(op string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Built lists the modules emitted so far, in order.
func (e *FakeEngine) Built() []string {
	var out []string
	for _, c := range e.CallsOf("emit") {
		out = append(out, c.Module)
	}
	return out
}

// Reset forgets all recorded calls.
func (e *FakeEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

func asFake(acc engine.Design) (*FakeDesign, error) {
	d, ok := acc.(*FakeDesign)
	if !ok {
		return nil, fmt.Errorf("fake engine: foreign design %T", acc)
	}
	return d, nil
}

// NewDesign implements engine.Engine.
func (e *FakeEngine) NewDesign(_ context.Context, spec engine.DesignSpec) (engine.Design, error) {
	e.record(Call{Op: "new", Module: spec.Module, Path: spec.Template})
	return &FakeDesign{module: spec.Module}, nil
}

// OpenDesign implements engine.Engine.
func (e *FakeEngine) OpenDesign(_ context.Context, path string, spec engine.DesignSpec) (engine.Design, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	e.record(Call{Op: "open", Module: spec.Module, Path: path})
	return &FakeDesign{module: spec.Module}, nil
}

// Merge implements engine.Engine.
func (e *FakeEngine) Merge(_ context.Context, acc engine.Design, req engine.MergeRequest) error {
	d, err := asFake(acc)
	if err != nil {
		return err
	}
	if !req.OnlyWires {
		if _, err := os.Stat(req.Artifact); err != nil {
			return err
		}
	}
	d.cells = append(d.cells, req.Instance)
	e.record(Call{Op: "merge", Module: d.module, Instance: req.Instance, Path: req.Artifact, Region: req.Region})
	return nil
}

// Implement implements engine.Engine.
func (e *FakeEngine) Implement(_ context.Context, acc engine.Design, region string) error {
	d, err := asFake(acc)
	if err != nil {
		return err
	}
	if err := e.FailImplement[d.module]; err != nil {
		return err
	}
	d.region = region
	e.record(Call{Op: "implement", Module: d.module, Region: region})
	return nil
}

// Emit implements engine.Engine.
func (e *FakeEngine) Emit(_ context.Context, acc engine.Design, path string) error {
	d, err := asFake(acc)
	if err != nil {
		return err
	}
	if err := e.FailEmit[d.module]; err != nil {
		return err
	}
	body := fmt.Sprintf("module=%s\nregion=%s\ncells=%s\n", d.module, d.region, strings.Join(d.cells, ","))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(engine.SecondaryPath(path), []byte("design \""+d.module+"\" {}\n"), 0o644); err != nil {
		return err
	}
	e.record(Call{Op: "emit", Module: d.module, Path: path, Region: d.region})
	return nil
}
