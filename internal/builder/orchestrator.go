package builder

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/engine"
	"github.com/vk/hiermerge/internal/fsutil"
	"github.com/vk/hiermerge/internal/manifest"
	"github.com/vk/hiermerge/internal/modcache"
	"github.com/vk/hiermerge/internal/resolver"
)

// Options tune a run.
type Options struct {
	// RefreshAll bypasses the cache for every BUILD directive.
	RefreshAll bool
	// Overwrite lets every WRITE replace existing outputs.
	Overwrite bool
	// Workers above one resolves sibling BUILD directives concurrently
	// before they are processed. Merges stay sequential.
	Workers int
}

// Orchestrator drives the Build Engine over Directive Trees.
type Orchestrator struct {
	eng  engine.Engine
	res  *resolver.Resolver
	opts Options
}

// New creates an orchestrator.
func New(eng engine.Engine, res *resolver.Resolver, opts Options) *Orchestrator {
	if res == nil {
		res = resolver.New(nil)
	}
	return &Orchestrator{eng: eng, res: res, opts: opts}
}

// Build resolves or rebuilds the tree's root module and returns its
// artifact together with the run report.
func (o *Orchestrator) Build(ctx context.Context, tree *config.Tree) (string, *Report, error) {
	run := o.NewRun()
	artifact, err := run.Resolve(ctx, tree.AsBuild())
	return artifact, run.Report(), err
}

// prewarmed is a resolution done ahead of processing; it is only trusted
// while no module has been built since.
type prewarmed struct {
	outcome resolver.Outcome
	builds  int
}

// Run is one orchestration pass. It remembers what it built so that every
// (module, region) is rebuilt at most once. A Run is not safe for
// concurrent use.
type Run struct {
	o         *Orchestrator
	built     map[modcache.Key]string
	resolved  map[*config.Directive]string
	prewarmed map[*config.Directive]prewarmed
	builds    int
	report    *Report
}

// NewRun starts a fresh pass.
func (o *Orchestrator) NewRun() *Run {
	return &Run{
		o:         o,
		built:     make(map[modcache.Key]string),
		resolved:  make(map[*config.Directive]string),
		prewarmed: make(map[*config.Directive]prewarmed),
		report:    &Report{},
	}
}

// Report returns the outcomes recorded so far.
func (r *Run) Report() *Report {
	return r.report
}

// Resolve returns the artifact of a BUILD directive: the one built earlier
// in this run, the cached one on a cache hit, or a fresh one.
func (r *Run) Resolve(ctx context.Context, d *config.Directive) (string, error) {
	logger := ctxlog.FromContext(ctx)
	if d.Kind != config.KindBuild {
		return "", fmt.Errorf("resolve %s: not a build directive", d.Name())
	}
	module := d.ModuleName()
	if module == "" {
		return "", fatalf(d.Name(), "module name cannot be determined (missing header module)")
	}
	key := modcache.KeyFor(module, d.Region)

	if artifact, ok := r.built[key]; ok {
		logger.Debug("Module already built in this run.", "key", key.String())
		return artifact, nil
	}

	var reason string
	switch {
	case r.o.opts.RefreshAll:
		reason = "refresh all"
	case d.EffectiveRefresh():
		reason = "refresh requested"
	default:
		start := time.Now()
		out, ok := r.takePrewarmed(d)
		if !ok {
			out = r.o.res.Explain(ctx, d, false)
		}
		if out.Hit {
			logger.Info("Reusing cached module.", "key", key.String(), "artifact", out.Artifact)
			r.report.add(Entry{Key: key, Instance: d.InstanceName, Action: Reused, Artifact: out.Artifact, Elapsed: time.Since(start)})
			return out.Artifact, nil
		}
		reason = out.Reason
	}

	logger.Info("Building module.", "key", key.String(), "reason", reason)
	start := time.Now()
	artifact, err := r.RunBuilder(ctx, d.Subtree, d.Region)
	if err != nil {
		return "", err
	}
	r.report.add(Entry{Key: key, Instance: d.InstanceName, Action: Built, Reason: reason, Artifact: artifact, Elapsed: time.Since(start)})
	return artifact, nil
}

func (r *Run) takePrewarmed(d *config.Directive) (resolver.Outcome, bool) {
	p, ok := r.prewarmed[d]
	if !ok {
		return resolver.Outcome{}, false
	}
	delete(r.prewarmed, d)
	if p.builds != r.builds {
		return resolver.Outcome{}, false
	}
	return p.outcome, true
}

// prewarm resolves the group's cacheable BUILD siblings concurrently.
func (r *Run) prewarm(ctx context.Context, tree *config.Tree) error {
	if r.o.opts.Workers <= 1 || r.o.opts.RefreshAll {
		return nil
	}
	var candidates []*config.Directive
	for _, d := range tree.Directives {
		if d.Kind != config.KindBuild || d.EffectiveRefresh() || d.ModuleName() == "" {
			continue
		}
		if _, done := r.built[modcache.KeyFor(d.ModuleName(), d.Region)]; done {
			continue
		}
		candidates = append(candidates, d)
	}
	if len(candidates) < 2 {
		return nil
	}
	outcomes, err := r.o.res.ResolveSiblings(ctx, candidates, false, r.o.opts.Workers)
	if err != nil {
		return err
	}
	for d, out := range outcomes {
		r.prewarmed[d] = prewarmed{outcome: out, builds: r.builds}
	}
	ctxlog.FromContext(ctx).Debug("Sibling builds resolved concurrently.", "module", tree.ModuleName(), "count", len(outcomes))
	return nil
}

// RunBuilder assembles the module of tree placed in region and returns the
// canonical cached artifact.
func (r *Run) RunBuilder(ctx context.Context, tree *config.Tree, region string) (string, error) {
	eng := r.o.eng

	// 1. Module name.
	module := tree.ModuleName()
	if module == "" {
		return "", fatalf("", "module name cannot be determined for group in %s", tree.Header.DocPath())
	}
	h := tree.Header
	entry := modcache.New(h.Intermediate()).Entry(module, region)
	// Engine and manifest calls of this module log with its key attached.
	// Nested directives keep the plain context; they log their own keys.
	mctx := ctxlog.With(ctx, "key", entry.Key.String())
	logger := ctxlog.FromContext(mctx)

	// 2. Accumulator.
	spec := engine.DesignSpec{Module: module, Template: h.TemplateArtifact(), BufferedInputs: h.BufferedInputs()}
	var (
		acc engine.Design
		err error
	)
	if initial := h.InitialArtifact(); initial != "" {
		acc, err = eng.OpenDesign(mctx, initial, spec)
	} else {
		acc, err = eng.NewDesign(mctx, spec)
	}
	if err != nil {
		return "", fmt.Errorf("module %s: %w", module, err)
	}

	// 3. Directives in declared order.
	if err := r.prewarm(ctx, tree); err != nil {
		return "", err
	}
	var activeWrite *config.Directive
	for _, d := range tree.Directives {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := r.RunDirective(ctx, d, acc); err != nil {
			return "", err
		}
		if d.Kind == config.KindWrite {
			activeWrite = d
		} else {
			activeWrite = nil
		}
	}

	// 4. Persist: manifest first, then the implemented design.
	if err := fsutil.RemoveIfExists(entry.Artifact); err != nil {
		return "", fmt.Errorf("module %s: removing stale artifact: %w", entry.Key, err)
	}
	if err := fsutil.RemoveIfExists(engine.SecondaryPath(entry.Artifact)); err != nil {
		return "", fmt.Errorf("module %s: removing stale secondary file: %w", entry.Key, err)
	}
	inputs := manifest.Sources(tree.Directives, r.resolved)
	if _, err := manifest.Write(mctx, entry.Dir, entry.Key, h, inputs); err != nil {
		return "", err
	}
	r.o.res.Forget(entry.Manifest)

	if err := eng.Implement(mctx, acc, region); err != nil {
		return "", fmt.Errorf("module %s: implement: %w", entry.Key, err)
	}
	if err := eng.Emit(mctx, acc, entry.Artifact); err != nil {
		return "", fmt.Errorf("module %s: emit: %w", entry.Key, err)
	}
	if err := fsutil.StampNewer(entry.Artifact, inputs...); err != nil {
		return "", err
	}
	r.built[entry.Key] = entry.Artifact
	r.builds++
	logger.Debug("Module persisted.", "artifact", entry.Artifact, "inputs", len(inputs))

	// 5. Final output copy.
	if activeWrite != nil {
		if err := copyOutput(entry.Artifact, activeWrite.Output); err != nil {
			return "", fmt.Errorf("module %s: %w", entry.Key, err)
		}
		logger.Info("Module written.", "output", activeWrite.Output)
	}
	return entry.Artifact, nil
}

// RunDirective applies one directive to acc.
func (r *Run) RunDirective(ctx context.Context, d *config.Directive, acc engine.Design) error {
	eng := r.o.eng
	logger := ctxlog.FromContext(ctx)

	switch d.Kind {
	case config.KindBuild:
		artifact, err := r.Resolve(ctx, d)
		if err != nil {
			return err
		}
		r.resolved[d] = artifact
		return r.merge(ctx, d, acc, artifact)

	case config.KindMerge:
		if !d.OnlyWires {
			if d.ArtifactRef == "" {
				return fatalf(d.Name(), "merge has no artifact")
			}
			if _, err := os.Stat(d.ArtifactRef); err != nil {
				return &FatalError{Directive: d.Name(), Msg: "missing required artifact", Err: err}
			}
		}
		return r.merge(ctx, d, acc, d.ArtifactRef)

	case config.KindWrite:
		if d.Output == "" {
			return fatalf(d.Name(), "write has no output target")
		}
		if fsutil.Exists(d.Output) && !d.Overwrite && !r.o.opts.Overwrite {
			return &OutputCollisionError{Path: d.Output}
		}
		if err := eng.Emit(ctx, acc, d.Output); err != nil {
			return fmt.Errorf("write %s: %w", d.Output, err)
		}
		logger.Debug("Accumulator emitted.", "module", acc.Module(), "output", d.Output)
		return nil

	default:
		return fatalf(d.Name(), "unknown directive kind %s", d.Kind)
	}
}

func (r *Run) merge(ctx context.Context, d *config.Directive, acc engine.Design, artifact string) error {
	req := engine.MergeRequest{
		Artifact:   artifact,
		Instance:   d.InstanceName,
		Region:     d.Region,
		HandPlacer: d.EffectiveHandPlacer(),
		OnlyWires:  d.OnlyWires,
	}
	if err := r.o.eng.Merge(ctx, acc, req); err != nil {
		return fmt.Errorf("merge %s into %s: %w", d.Name(), acc.Module(), err)
	}
	return nil
}

// copyOutput copies an artifact and its secondary file, if any, to output.
func copyOutput(artifact, output string) error {
	if err := fsutil.CopyFile(artifact, output); err != nil {
		return fmt.Errorf("copy to %s: %w", output, err)
	}
	secondary := engine.SecondaryPath(artifact)
	if !fsutil.Exists(secondary) {
		return nil
	}
	if err := fsutil.CopyFile(secondary, engine.SecondaryPath(output)); err != nil {
		return fmt.Errorf("copy secondary file to %s: %w", output, err)
	}
	return nil
}
