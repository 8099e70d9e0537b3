package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// NodeKind is the closed set of directive kinds.
type NodeKind int

const (
	KindMerge NodeKind = iota
	KindBuild
	KindWrite
)

// KindNames maps document block names to node kinds.
var KindNames = map[string]NodeKind{
	"merge": KindMerge,
	"build": KindBuild,
	"write": KindWrite,
}

func (k NodeKind) String() string {
	switch k {
	case KindMerge:
		return "merge"
	case KindBuild:
		return "build"
	case KindWrite:
		return "write"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// ParseNodeKind maps a block name to its kind.
func ParseNodeKind(name string) (NodeKind, error) {
	if k, ok := KindNames[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown directive kind %q (expected merge, build or write)", name)
}

// Tree is one sibling group of directives together with its header.
type Tree struct {
	Header     *Header
	Directives []*Directive
}

// ModuleName is the module the tree builds, from its own header.
func (t *Tree) ModuleName() string {
	if t == nil || t.Header == nil {
		return ""
	}
	return t.Header.ModuleName()
}

// AsBuild wraps the tree in a BUILD directive, which is how a document root
// is resolved and built.
func (t *Tree) AsBuild() *Directive {
	return &Directive{Kind: KindBuild, Subtree: t, Header: t.Header}
}

// Directive is one build step of a Directive Tree.
type Directive struct {
	Kind         NodeKind
	InstanceName string
	// ArtifactRef is an absolute path. For BUILD directives it stays empty;
	// the built artifact is produced lazily by the orchestrator.
	ArtifactRef  string
	Region       string
	ForceRebuild bool
	HandPlacer   bool
	OnlyWires    bool

	// Output and Overwrite apply to WRITE directives.
	Output    string
	Overwrite bool

	// Subtree is set only for BUILD directives.
	Subtree *Tree
	// Header is the header of the sibling group containing the directive.
	Header *Header
	// DefRange locates the directive in its document.
	DefRange hcl.Range
}

// ModuleName derives the directive's module: the subtree's declared module
// for BUILD, the artifact's file name for MERGE.
func (d *Directive) ModuleName() string {
	switch d.Kind {
	case KindBuild:
		return d.Subtree.ModuleName()
	case KindMerge:
		return ArtifactModule(d.ArtifactRef)
	default:
		return ""
	}
}

// ScopeHeader is the header that governs the directive's own cache entry:
// the subtree header for BUILD, the sibling-group header otherwise.
func (d *Directive) ScopeHeader() *Header {
	if d.Kind == KindBuild && d.Subtree != nil && d.Subtree.Header != nil {
		return d.Subtree.Header
	}
	return d.Header
}

// EffectiveRefresh is the directive's own refresh flag or that of its
// header chain.
func (d *Directive) EffectiveRefresh() bool {
	if d.ForceRebuild {
		return true
	}
	if h := d.ScopeHeader(); h != nil {
		return h.Refresh()
	}
	return false
}

// EffectiveHandPlacer is the directive's own hand-placer flag or that of
// its sibling group.
func (d *Directive) EffectiveHandPlacer() bool {
	if d.HandPlacer {
		return true
	}
	if d.Header != nil {
		return d.Header.HandPlacer()
	}
	return false
}

// Name is a human-readable label for logs.
func (d *Directive) Name() string {
	if d.InstanceName != "" {
		return d.InstanceName
	}
	if m := d.ModuleName(); m != "" {
		return m
	}
	return d.Kind.String()
}

// ArtifactModule infers a module name from an artifact path: the leaf
// file name without its extension.
func ArtifactModule(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
