package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/engine"
	"github.com/vk/hiermerge/internal/hcl"
	"github.com/vk/hiermerge/internal/manifest"
	"github.com/vk/hiermerge/internal/modcache"
	"github.com/vk/hiermerge/internal/resolver"
	"github.com/vk/hiermerge/internal/testutil"
)

type fixture struct {
	ctx  context.Context
	root string
	eng  *testutil.FakeEngine
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	ctx, _ := testutil.Context(t)
	all := map[string]string{"A.bin": "a", "B.bin": "b", "C.bin": "c", "D.bin": "d"}
	for k, v := range files {
		all[k] = v
	}
	return &fixture{ctx: ctx, root: testutil.Workspace(t, all), eng: testutil.NewFakeEngine()}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(name))
}

func (f *fixture) load(t *testing.T) *config.Tree {
	t.Helper()
	tree, err := hcl.NewLoader().Load(f.ctx, f.path("main.hcl"), config.Roots{})
	require.NoError(t, err)
	return tree
}

// run loads the document afresh and builds it with a new orchestrator.
func (f *fixture) run(t *testing.T, opts Options) (string, *Report, error) {
	t.Helper()
	f.eng.Reset()
	return New(f.eng, resolver.New(nil), opts).Build(f.ctx, f.load(t))
}

func (f *fixture) entry(module, region string) modcache.Entry {
	return modcache.New(f.path(".hiermerge")).Entry(module, region)
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

const flatDoc = `
header {
  module = "top"
}
merge "a" {
  artifact = "A.bin"
}
merge "b" {
  artifact = "B.bin"
}
`

func TestBuild_FlatScenario(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": flatDoc})

	// First run: no cache directory, the engine builds top.
	artifact, report, err := f.run(t, Options{})
	require.NoError(t, err)
	top := f.entry("top", "")
	assert.Equal(t, top.Artifact, artifact)
	assert.Equal(t, []string{"top"}, f.eng.Built())
	assert.Equal(t, 1, report.Count(Built))
	assert.Contains(t, report.Entries()[0].Reason, "no module cache")
	assert.FileExists(t, engine.SecondaryPath(artifact))

	_, deps, err := manifest.Read(f.ctx, top.Manifest, f.load(t).Header.Roots())
	require.NoError(t, err)
	want := manifest.NewDepSet(modcache.Key{Module: "A"}, modcache.Key{Module: "B"})
	assert.True(t, want.Equal(deps), "deps: %v", deps.Keys())
	stamp := testutil.ModTime(t, artifact)

	// Second run, inputs untouched: cache hit, engine not invoked.
	artifact2, report, err := f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, artifact, artifact2)
	assert.Empty(t, f.eng.Calls())
	assert.Equal(t, 1, report.Count(Reused))
	assert.Equal(t, stamp, testutil.ModTime(t, artifact))

	// B replaced with newer content: rebuild with a new manifest.
	testutil.WriteFiles(t, f.root, map[string]string{"B.bin": "b2"})
	testutil.Touch(t, f.path("B.bin"))
	_, report, err = f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"top"}, f.eng.Built())
	require.Len(t, report.Entries(), 1)
	assert.Contains(t, report.Entries()[0].Reason, "outdated")
	assert.True(t, testutil.ModTime(t, artifact).After(testutil.ModTime(t, f.path("B.bin"))))

	_, _, err = f.run(t, Options{})
	require.NoError(t, err)
	assert.Empty(t, f.eng.Built(), "rebuilt entry is reused")
}

func TestBuild_WriteFollowedByMergeDoesNotCopy(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": `
header {
  module = "top"
}
merge "a" {
  artifact = "A.bin"
}
merge "b" {
  artifact = "B.bin"
}
write {
  output = "out/top.dcp"
}
merge "c" {
  artifact = "C.bin"
}
`})
	artifact, _, err := f.run(t, Options{})
	require.NoError(t, err)

	assert.Equal(t, "module=top\nregion=\ncells=a,b\n", read(t, f.path("out/top.dcp")), "only the intermediate emit reached the output")
	assert.Equal(t, "module=top\nregion=\ncells=a,b,c\n", read(t, artifact))
}

func TestBuild_TrailingWriteCopiesCanonicalArtifact(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": `
header {
  module = "top"
}
merge "a" {
  artifact = "A.bin"
}
write {
  output = "out/first.dcp"
}
write {
  output = "out/top.dcp"
}
`})
	artifact, _, err := f.run(t, Options{})
	require.NoError(t, err)

	assert.Equal(t, read(t, artifact), read(t, f.path("out/top.dcp")))
	assert.Equal(t, read(t, engine.SecondaryPath(artifact)), read(t, f.path("out/top.netlist")))
	assert.Equal(t, "module=top\nregion=\ncells=a\n", read(t, f.path("out/first.dcp")), "earlier write only emits")
}

const hierDoc = `
header {
  module      = "top"
  hand_placer = true
}
merge "a" {
  artifact = "A.bin"
}
merge "bus" {
  only_wires = true
}
build "u_sub" {
  region = "pb_0"
  header {
    module = "sub"
  }
  merge "c" {
    artifact = "C.bin"
  }
}
build "u_other" {
  header {
    module = "other"
  }
  merge "d" {
    artifact = "D.bin"
  }
}
`

func TestBuild_Hierarchy(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": hierDoc})

	_, report, err := f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", "other", "top"}, f.eng.Built())
	assert.Equal(t, 3, report.Count(Built))

	var merged []string
	for _, c := range f.eng.CallsOf("merge") {
		if c.Module == "top" {
			merged = append(merged, c.Instance)
		}
	}
	if diff := cmp.Diff([]string{"a", "bus", "u_sub", "u_other"}, merged); diff != "" {
		t.Errorf("merge order mismatch (-want +got):\n%s", diff)
	}
	impl := f.eng.CallsOf("implement")
	require.Len(t, impl, 3)
	assert.Equal(t, "pb_0", impl[0].Region)

	_, deps, err := manifest.Read(f.ctx, f.entry("top", "").Manifest, f.load(t).Header.Roots())
	require.NoError(t, err)
	assert.Equal(t, []modcache.Key{{Module: "A"}, {Module: "other"}, {Module: "sub", Region: "pb_u0"}}, deps.Keys())

	// Idempotence: every BUILD node hits.
	_, report, err = f.run(t, Options{})
	require.NoError(t, err)
	assert.Empty(t, f.eng.Calls())
	assert.Equal(t, 1, report.Count(Reused), "the root hit covers the whole tree")

	// Touching a leaf rebuilds only the path to the root.
	testutil.Touch(t, f.path("C.bin"))
	_, report, err = f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", "top"}, f.eng.Built())
	assert.Equal(t, 1, report.Count(Reused))
}

func TestBuild_RefreshLocality(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": hierDoc})
	_, _, err := f.run(t, Options{})
	require.NoError(t, err)

	testutil.WriteFiles(t, f.root, map[string]string{"main.hcl": hierDoc + `
build "u_third" {
  refresh = true
  header {
    module = "third"
  }
  merge "b" {
    artifact = "B.bin"
  }
}
`})
	_, _, err = f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "top"}, f.eng.Built())

	_, _, err = f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "top"}, f.eng.Built(), "refresh keeps rebuilding only its own path")

	_, report, err := f.run(t, Options{RefreshAll: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub", "other", "third", "top"}, f.eng.Built())
	assert.Equal(t, 0, report.Count(Reused))
}

func TestBuild_SharedModuleBuiltOnce(t *testing.T) {
	f := newFixture(t, map[string]string{
		"shared.hcl": `
header {
  module = "shared"
}
merge "c" {
  artifact = "${root.doc}/C.bin"
}
`,
		"main.hcl": `
header {
  module = "top"
}
build "u_left" {
  header {
    module = "left"
  }
  build "u_shared" {
    source = "shared.hcl"
  }
}
build "u_right" {
  header {
    module = "right"
  }
  build "u_shared" {
    source = "shared.hcl"
  }
}
`,
	})

	_, _, err := f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "left", "right", "top"}, f.eng.Built())

	testutil.Touch(t, f.path("C.bin"))
	for _, workers := range []int{1, 4} {
		_, _, err = f.run(t, Options{Workers: workers})
		require.NoError(t, err)
		if workers == 1 {
			assert.Equal(t, []string{"shared", "left", "right", "top"}, f.eng.Built())
		} else {
			assert.Empty(t, f.eng.Built())
		}
	}
}

func TestBuild_ConcurrentResolutionMatchesSequential(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": hierDoc})
	_, _, err := f.run(t, Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", "other", "top"}, f.eng.Built())

	testutil.Touch(t, f.path("D.bin"))
	_, report, err := f.run(t, Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "top"}, f.eng.Built())
	assert.Equal(t, 1, report.Count(Reused))
}

func TestBuild_InitialArtifactOpensDesign(t *testing.T) {
	f := newFixture(t, map[string]string{
		"init.dcp": "seed",
		"main.hcl": `
header {
  module   = "top"
  initial  = "init.dcp"
  template = "shell.dcp"
}
merge "a" {
  artifact = "A.bin"
}
`,
	})
	_, _, err := f.run(t, Options{})
	require.NoError(t, err)

	open := f.eng.CallsOf("open")
	require.Len(t, open, 1)
	assert.Equal(t, f.path("init.dcp"), open[0].Path)
	assert.Empty(t, f.eng.CallsOf("new"))

	m, _, err := manifest.Read(f.ctx, f.entry("top", "").Manifest, f.load(t).Header.Roots())
	require.NoError(t, err)
	assert.Equal(t, f.path("init.dcp"), m.Initial)
	assert.Equal(t, f.path("shell.dcp"), m.Template)
}

func TestBuild_FatalErrors(t *testing.T) {
	t.Run("missing module name", func(t *testing.T) {
		f := newFixture(t, map[string]string{"main.hcl": `
merge "a" {
  artifact = "A.bin"
}
`})
		_, _, err := f.run(t, Options{})
		var fatal *FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Contains(t, err.Error(), "module name cannot be determined")
	})

	t.Run("write without output", func(t *testing.T) {
		f := newFixture(t, map[string]string{"main.hcl": `
header {
  module = "top"
}
write {}
`})
		_, _, err := f.run(t, Options{})
		var fatal *FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Contains(t, err.Error(), "write has no output target")
		assert.NoFileExists(t, f.entry("top", "").Manifest, "no partial results for the failed module")
	})

	t.Run("artifact removed after loading", func(t *testing.T) {
		f := newFixture(t, map[string]string{"main.hcl": flatDoc})
		tree := f.load(t)
		require.NoError(t, os.Remove(f.path("B.bin")))
		_, _, err := New(f.eng, nil, Options{}).Build(f.ctx, tree)
		var fatal *FatalError
		require.ErrorAs(t, err, &fatal)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestBuild_OutputCollision(t *testing.T) {
	doc := func(force bool) string {
		s := `
header {
  module = "top"
}
merge "a" {
  artifact = "A.bin"
}
write {
  output = "out/top.dcp"
`
		if force {
			s += "  force = true\n"
		}
		return s + "}\n"
	}

	f := newFixture(t, map[string]string{"main.hcl": doc(false), "out/top.dcp": "precious"})
	_, _, err := f.run(t, Options{})
	var collision *OutputCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, f.path("out/top.dcp"), collision.Path)
	assert.Equal(t, "precious", read(t, f.path("out/top.dcp")))

	_, _, err = f.run(t, Options{Overwrite: true})
	require.NoError(t, err)
	assert.NotEqual(t, "precious", read(t, f.path("out/top.dcp")))

	testutil.WriteFiles(t, f.root, map[string]string{"main.hcl": doc(true)})
	_, _, err = f.run(t, Options{RefreshAll: true})
	assert.NoError(t, err)
}

func TestBuild_EngineFailureLeavesDetectableEntry(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": hierDoc})
	f.eng.FailImplement = map[string]error{"top": errors.New("router exploded")}

	_, _, err := f.run(t, Options{})
	require.ErrorContains(t, err, "router exploded")
	assert.FileExists(t, f.entry("sub", "pb_0").Artifact, "finished sub-builds stay committed")
	assert.NoFileExists(t, f.entry("top", "").Artifact)

	f.eng.FailImplement = nil
	_, report, err := f.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"top"}, f.eng.Built())
	assert.Equal(t, "no cached artifact", report.Entries()[len(report.Entries())-1].Reason)
}

func TestRunDirective_WiresOnlyMerge(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": hierDoc})
	tree := f.load(t)
	run := New(f.eng, nil, Options{}).NewRun()

	acc, err := f.eng.NewDesign(f.ctx, engine.DesignSpec{Module: "top"})
	require.NoError(t, err)
	bus := tree.Directives[1]
	require.True(t, bus.OnlyWires)
	require.NoError(t, run.RunDirective(f.ctx, bus, acc))
	assert.Equal(t, []string{"bus"}, acc.(*testutil.FakeDesign).Cells())
	assert.Empty(t, run.Report().Entries())
}

func TestBuild_ModuleLogsCarryTheirKey(t *testing.T) {
	f := newFixture(t, map[string]string{"main.hcl": `
header {
  module = "top"
}
build "u_sub" {
  region = "pb_0"
  header {
    module = "sub"
  }
  merge "b" {
    artifact = "B.bin"
  }
}
`})
	ctx, logs := testutil.Context(t)

	_, _, err := New(f.eng, resolver.New(nil), Options{}).Build(ctx, f.load(t))
	require.NoError(t, err)

	var written []string
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, "Manifest written.") {
			written = append(written, line)
		}
	}
	require.Len(t, written, 2)
	assert.Contains(t, written[0], "key=sub@pb_u0")
	assert.NotContains(t, written[0], "key=top")
	assert.Contains(t, written[1], "key=top")
	assert.NotContains(t, written[1], "key=sub")
}
