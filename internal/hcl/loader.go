package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/dag"
	"github.com/vk/hiermerge/internal/schema"
)

// DefaultIntermediateDir is the intermediate root, relative to the
// document directory, used when neither the document nor the caller
// binds one.
const DefaultIntermediateDir = ".hiermerge"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL directive document loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// loadState is the per-Load bookkeeping: one parser so that every file is
// read at most once, and the include graph of nested documents.
type loadState struct {
	ctx      context.Context
	parser   *hclparse.Parser
	includes *dag.Graph
	defaults config.Roots
	count    int
}

// Load parses the document at path into a Directive Tree.
func (l *Loader) Load(ctx context.Context, path string, defaults config.Roots) (*config.Tree, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}

	st := &loadState{
		ctx:      ctx,
		parser:   hclparse.NewParser(),
		includes: dag.New(),
		defaults: defaults,
	}
	st.includes.AddNode(abs)

	tree, err := st.loadDocument(abs, nil)
	if err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "module", tree.ModuleName(), "documents", st.includes.Len(), "directives", st.count)
	return tree, nil
}

func (s *loadState) loadDocument(path string, parent *config.Header) (*config.Tree, error) {
	file, diags := s.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, &config.ConfigError{Subject: subjectOf(diags), Msg: fmt.Sprintf("failed to parse %s", path), Err: diags}
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, config.Errorf(nil, "%s is not a native HCL document", path)
	}
	for _, attr := range body.Attributes {
		rng := attr.SrcRange
		return nil, config.Errorf(&rng, "unexpected top-level attribute %q; attributes belong inside a block", attr.Name)
	}
	return s.loadGroup(body.Blocks, path, parent)
}

// loadGroup builds one sibling group: its header first, then every
// directive block in source order.
func (s *loadState) loadGroup(blocks hclsyntax.Blocks, docPath string, parent *config.Header) (*config.Tree, error) {
	var headerBlock *hclsyntax.Block
	for _, b := range blocks {
		if b.Type != "header" {
			continue
		}
		if headerBlock != nil {
			rng := b.DefRange()
			return nil, config.Errorf(&rng, "duplicate header block")
		}
		headerBlock = b
	}

	header, err := s.decodeHeader(headerBlock, docPath, parent)
	if err != nil {
		return nil, err
	}

	tree := &config.Tree{Header: header}
	evalCtx := evalContext(header.Roots(), filepath.Dir(docPath))
	names := make(map[string]hcl.Range)

	for _, b := range blocks {
		if b.Type == "header" {
			continue
		}
		rng := b.DefRange()
		kind, err := config.ParseNodeKind(b.Type)
		if err != nil {
			return nil, &config.ConfigError{Subject: &rng, Msg: "invalid directive", Err: err}
		}
		if len(b.Labels) > 1 {
			return nil, config.Errorf(&rng, "%s block takes at most one label (the instance name), got %d", b.Type, len(b.Labels))
		}
		name := ""
		if len(b.Labels) == 1 {
			name = b.Labels[0]
			if prev, dup := names[name]; dup {
				return nil, config.Errorf(&rng, "duplicate instance name %q (first declared at line %d)", name, prev.Start.Line)
			}
			names[name] = rng
		}

		d, err := s.decodeDirective(kind, b, name, header, evalCtx, docPath)
		if err != nil {
			return nil, err
		}
		tree.Directives = append(tree.Directives, d)
		s.count++
	}
	return tree, nil
}

func (s *loadState) decodeHeader(b *hclsyntax.Block, docPath string, parent *config.Header) (*config.Header, error) {
	docDir := filepath.Dir(docPath)
	spec := config.HeaderSpec{DocPath: docPath}

	var inherited config.Roots
	if parent == nil {
		spec.Roots = s.rootDefaults(docDir)
		inherited = spec.Roots
	} else {
		inherited = parent.Roots()
	}

	if b == nil {
		return config.NewHeader(parent, spec), nil
	}

	var hr schema.HeaderRoots
	if diags := gohcl.DecodeBody(b.Body, evalContext(inherited, docDir), &hr); diags.HasErrors() {
		return nil, diagError("invalid header block", diags)
	}
	if hr.Roots != nil {
		if v := deref(hr.Roots.Intermediate); v != "" {
			spec.Roots.Intermediate = resolvePath(docDir, v)
		}
		if v := deref(hr.Roots.OutOfContext); v != "" {
			spec.Roots.OutOfContext = resolvePath(docDir, v)
		}
		if v := deref(hr.Roots.Output); v != "" {
			spec.Roots.Output = resolvePath(docDir, v)
		}
	}

	effective := config.NewHeader(parent, config.HeaderSpec{Roots: spec.Roots}).Roots()
	var h schema.Header
	if diags := gohcl.DecodeBody(hr.Remain, evalContext(effective, docDir), &h); diags.HasErrors() {
		return nil, diagError("invalid header block", diags)
	}

	if h.Module != nil {
		if *h.Module == "" {
			rng := b.DefRange()
			return nil, config.Errorf(&rng, "header module must not be empty")
		}
		spec.ModuleName = *h.Module
	}
	spec.Refresh = h.Refresh
	spec.HandPlacer = h.HandPlacer
	spec.BufferedInputs = h.BufferedInputs
	if h.Initial != nil {
		p := resolvePath(docDir, *h.Initial)
		spec.InitialArtifact = &p
	}
	if h.Template != nil {
		p := resolvePath(docDir, *h.Template)
		spec.TemplateArtifact = &p
	}
	return config.NewHeader(parent, spec), nil
}

// rootDefaults binds the document root's roots from the caller's defaults,
// falling back to locations next to the document.
func (s *loadState) rootDefaults(docDir string) config.Roots {
	r := config.Roots{
		Intermediate: resolvePath(docDir, s.defaults.Intermediate),
		OutOfContext: resolvePath(docDir, s.defaults.OutOfContext),
		Output:       resolvePath(docDir, s.defaults.Output),
	}
	if r.Intermediate == "" {
		r.Intermediate = filepath.Join(docDir, DefaultIntermediateDir)
	}
	if r.OutOfContext == "" {
		r.OutOfContext = docDir
	}
	if r.Output == "" {
		r.Output = docDir
	}
	return r
}

func (s *loadState) decodeDirective(kind config.NodeKind, b *hclsyntax.Block, name string, header *config.Header, evalCtx *hcl.EvalContext, docPath string) (*config.Directive, error) {
	docDir := filepath.Dir(docPath)
	rng := b.DefRange()
	d := &config.Directive{
		Kind:         kind,
		InstanceName: name,
		Header:       header,
		DefRange:     rng,
	}

	switch kind {
	case config.KindMerge:
		var m schema.Merge
		if diags := gohcl.DecodeBody(b.Body, evalCtx, &m); diags.HasErrors() {
			return nil, diagError("invalid merge block", diags)
		}
		d.Region = deref(m.Region)
		d.ForceRebuild = derefBool(m.Refresh)
		d.HandPlacer = derefBool(m.HandPlacer)
		d.OnlyWires = derefBool(m.OnlyWires)
		d.ArtifactRef = resolvePath(docDir, deref(m.Artifact))
		if d.OnlyWires {
			break
		}
		if d.ArtifactRef == "" {
			return nil, config.Errorf(&rng, "merge %q: artifact is required unless only_wires is set", d.Name())
		}
		if _, err := os.Stat(d.ArtifactRef); err != nil {
			return nil, &config.ConfigError{Subject: &rng, Msg: fmt.Sprintf("merge %q: artifact %s cannot be resolved", d.Name(), d.ArtifactRef), Err: err}
		}

	case config.KindBuild:
		var bs schema.Build
		if diags := gohcl.DecodeBody(b.Body, evalCtx, &bs); diags.HasErrors() {
			return nil, diagError("invalid build block", diags)
		}
		d.Region = deref(bs.Region)
		d.ForceRebuild = derefBool(bs.Refresh)
		d.HandPlacer = derefBool(bs.HandPlacer)
		d.OnlyWires = derefBool(bs.OnlyWires)

		var (
			sub *config.Tree
			err error
		)
		if src := deref(bs.Source); src != "" {
			if len(b.Body.Blocks) > 0 {
				return nil, config.Errorf(&rng, "build %q: source and inline directives are mutually exclusive", name)
			}
			sub, err = s.include(docPath, resolvePath(docDir, src), header, rng)
		} else {
			sub, err = s.loadGroup(b.Body.Blocks, docPath, header)
		}
		if err != nil {
			return nil, err
		}
		d.Subtree = sub

	case config.KindWrite:
		var w schema.Write
		if diags := gohcl.DecodeBody(b.Body, evalCtx, &w); diags.HasErrors() {
			return nil, diagError("invalid write block", diags)
		}
		d.Output = resolvePath(docDir, deref(w.Output))
		d.Overwrite = derefBool(w.Force)
	}
	return d, nil
}

// include loads a nested document referenced by a BUILD source attribute,
// refusing include cycles.
func (s *loadState) include(from, to string, parent *config.Header, rng hcl.Range) (*config.Tree, error) {
	s.includes.AddNode(to)
	if err := s.includes.AddEdge(from, to); err != nil {
		return nil, &config.ConfigError{Subject: &rng, Msg: "invalid include", Err: err}
	}
	if err := s.includes.DetectCycles(); err != nil {
		return nil, &config.ConfigError{Subject: &rng, Msg: "invalid include", Err: err}
	}
	ctxlog.FromContext(s.ctx).Debug("Loading nested document.", "from", from, "source", to)
	return s.loadDocument(to, parent)
}

func diagError(msg string, diags hcl.Diagnostics) *config.ConfigError {
	return &config.ConfigError{Subject: subjectOf(diags), Msg: msg, Err: diags}
}

func subjectOf(diags hcl.Diagnostics) *hcl.Range {
	for _, d := range diags {
		if d.Severity == hcl.DiagError && d.Subject != nil {
			return d.Subject
		}
	}
	return nil
}

// resolvePath anchors a relative path at dir.
func resolvePath(dir, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefBool(p *bool) bool {
	return p != nil && *p
}
