package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestHeader_InheritsFromNearestAncestor(t *testing.T) {
	root := NewHeader(nil, HeaderSpec{
		ModuleName:       "top",
		Roots:            Roots{Intermediate: "/int", OutOfContext: "/ooc", Output: "/out"},
		HandPlacer:       boolPtr(true),
		TemplateArtifact: strPtr("/ooc/shell.dcp"),
		DocPath:          "/doc/top.hcl",
	})
	mid := NewHeader(root, HeaderSpec{
		ModuleName: "mid",
		Roots:      Roots{Intermediate: "/int/mid"},
		HandPlacer: boolPtr(false),
	})
	leaf := NewHeader(mid, HeaderSpec{ModuleName: "leaf"})

	assert.Equal(t, "leaf", leaf.ModuleName())
	assert.Equal(t, "/int/mid", leaf.Intermediate())
	assert.Equal(t, "/ooc", leaf.OutOfContext())
	assert.Equal(t, "/out", leaf.Output())
	assert.False(t, leaf.HandPlacer(), "nearest ancestor wins")
	assert.True(t, root.HandPlacer())
	assert.Equal(t, "/ooc/shell.dcp", leaf.TemplateArtifact())
	assert.Equal(t, "", leaf.InitialArtifact())
	assert.Equal(t, "/doc/top.hcl", leaf.DocPath())
	require.Same(t, mid, leaf.Parent())
}

func TestHeader_ModuleNameIsLocal(t *testing.T) {
	root := NewHeader(nil, HeaderSpec{ModuleName: "top"})
	child := NewHeader(root, HeaderSpec{})
	assert.Equal(t, "", child.ModuleName())
}

func TestHeader_RefreshCascades(t *testing.T) {
	root := NewHeader(nil, HeaderSpec{Refresh: boolPtr(true)})
	child := NewHeader(root, HeaderSpec{})
	sibling := NewHeader(NewHeader(nil, HeaderSpec{}), HeaderSpec{})

	assert.True(t, child.Refresh())
	assert.False(t, sibling.Refresh())
}

func TestHeader_ExplicitEmptyStopsInheritance(t *testing.T) {
	root := NewHeader(nil, HeaderSpec{InitialArtifact: strPtr("/a.dcp")})
	child := NewHeader(root, HeaderSpec{InitialArtifact: strPtr("")})
	assert.Equal(t, "", child.InitialArtifact())
	assert.Equal(t, "/a.dcp", root.InitialArtifact())
}

func TestRoots_Named(t *testing.T) {
	named := Roots{Intermediate: "/i", Output: "/o"}.Named()
	assert.Equal(t, map[string]string{RootIntermediate: "/i", RootOutput: "/o"}, named)
}
