package resolver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/manifest"
	"github.com/vk/hiermerge/internal/modcache"
)

// Outcome is the verdict for one directive.
type Outcome struct {
	Hit bool
	// Artifact is the reusable artifact on a hit.
	Artifact string
	Key      modcache.Key
	// Reason explains a miss.
	Reason string
}

func hit(key modcache.Key, artifact string) Outcome {
	return Outcome{Hit: true, Artifact: artifact, Key: key}
}

func miss(key modcache.Key, format string, args ...any) Outcome {
	return Outcome{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Memo records the outcome of every BUILD directive verified during one
// resolution. It is not safe for concurrent use; give each goroutine its
// own.
type Memo map[modcache.Key]Outcome

// NewMemo returns an empty memo.
func NewMemo() Memo {
	return make(Memo)
}

// Resolver is the Cache Resolver. It only reads the cache.
type Resolver struct {
	store *manifest.Store
}

// New creates a resolver reading manifests through store. A nil store gets
// a private one.
func New(store *manifest.Store) *Resolver {
	if store == nil {
		store, _ = manifest.NewStore(manifest.DefaultStoreSize)
	}
	return &Resolver{store: store}
}

// Forget drops the memoized copy of a manifest that has been rewritten.
func (r *Resolver) Forget(manifestFile string) {
	r.store.Forget(manifestFile)
}

// Resolve returns the reusable artifact of d, if any.
func (r *Resolver) Resolve(ctx context.Context, d *config.Directive, ignoreRefresh bool) (string, bool) {
	o := r.Explain(ctx, d, ignoreRefresh)
	return o.Artifact, o.Hit
}

// Explain resolves d with a fresh memo and reports why it missed.
func (r *Resolver) Explain(ctx context.Context, d *config.Directive, ignoreRefresh bool) Outcome {
	return r.ResolveWith(ctx, d, ignoreRefresh, NewMemo())
}

// ResolveWith resolves d using the caller's memo.
func (r *Resolver) ResolveWith(ctx context.Context, d *config.Directive, ignoreRefresh bool, memo Memo) Outcome {
	o := r.resolve(ctx, d, ignoreRefresh, memo)
	logger := ctxlog.FromContext(ctx)
	if o.Hit {
		logger.Debug("Cache hit.", "directive", d.Name(), "key", o.Key.String(), "artifact", o.Artifact)
	} else {
		logger.Debug("Cache miss.", "directive", d.Name(), "key", o.Key.String(), "reason", o.Reason)
	}
	return o
}

// ResolveSiblings resolves the BUILD directives among ds concurrently, at
// most workers at a time. Each directive gets its own memo. Directives of
// other kinds are absent from the result.
func (r *Resolver) ResolveSiblings(ctx context.Context, ds []*config.Directive, ignoreRefresh bool, workers int) (map[*config.Directive]Outcome, error) {
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]Outcome, len(ds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range ds {
		if d.Kind != config.KindBuild {
			continue
		}
		i, d := i, d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.ResolveWith(gctx, d, ignoreRefresh, NewMemo())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := make(map[*config.Directive]Outcome)
	for i, d := range ds {
		if d.Kind == config.KindBuild {
			res[d] = outcomes[i]
		}
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, d *config.Directive, ignoreRefresh bool, memo Memo) Outcome {
	switch d.Kind {
	case config.KindMerge:
		return resolveMerge(d)
	case config.KindBuild:
	default:
		return miss(modcache.Key{}, "%s directives are not cacheable", d.Kind)
	}

	h := d.ScopeHeader()
	if h == nil {
		return miss(modcache.Key{}, "no header")
	}

	// 1. The module cache must exist under the intermediate root.
	layout := modcache.New(h.Intermediate())
	if h.Intermediate() == "" || !layout.Exists() {
		return miss(modcache.Key{}, "no module cache under %q", h.Intermediate())
	}

	// 2. The module name must be known.
	module := d.ModuleName()
	if module == "" {
		return miss(modcache.Key{}, "module name cannot be determined")
	}
	key := modcache.KeyFor(module, d.Region)
	if o, ok := memo[key]; ok {
		return o
	}
	o := r.verify(ctx, d, h, layout, key, ignoreRefresh, memo)
	memo[key] = o
	return o
}

// verify runs steps 3 to 8 for a BUILD directive whose cache key is known.
func (r *Resolver) verify(ctx context.Context, d *config.Directive, h *config.Header, layout modcache.Layout, key modcache.Key, ignoreRefresh bool, memo Memo) Outcome {
	// 3. Both the artifact and its manifest must be present.
	entry := layout.Entry(key.Module, d.Region)
	hasArtifact, hasManifest := entry.Present()
	if !hasArtifact {
		return miss(key, "no cached artifact")
	}
	if !hasManifest {
		return miss(key, "no manifest")
	}

	// 4. The recorded template and initial artifacts must match.
	m, deps, err := r.store.Load(ctx, entry.Manifest, h.Roots())
	if err != nil {
		return miss(key, "unreadable manifest: %v", err)
	}
	if m.Template != h.TemplateArtifact() {
		return miss(key, "template changed (%q, was %q)", h.TemplateArtifact(), m.Template)
	}
	if m.Initial != h.InitialArtifact() {
		return miss(key, "initial artifact changed (%q, was %q)", h.InitialArtifact(), m.Initial)
	}

	// 5. Refresh, then every child.
	if d.EffectiveRefresh() && !ignoreRefresh {
		return miss(key, "refresh requested")
	}
	info, err := os.Stat(entry.Artifact)
	if err != nil {
		return miss(key, "cached artifact vanished: %v", err)
	}
	built := info.ModTime()

	working := deps.Clone()
	for _, child := range d.Subtree.Directives {
		if child.Kind == config.KindWrite || child.OnlyWires {
			continue
		}
		if child.EffectiveRefresh() && !ignoreRefresh {
			return miss(key, "child %q requests refresh", child.Name())
		}
		co := r.resolve(ctx, child, ignoreRefresh, memo)
		if !co.Hit {
			return miss(key, "child %q: %s", child.Name(), co.Reason)
		}

		// 6. The manifest must account for the child, and the parent must
		// be strictly newer than what it was built from.
		childKey := layout.KeyForArtifact(co.Artifact)
		if !deps.Has(childKey) {
			return miss(key, "manifest does not record dependency %s", childKey)
		}
		working.Remove(childKey)

		cinfo, err := os.Stat(co.Artifact)
		if err != nil {
			return miss(key, "child %q artifact vanished: %v", child.Name(), err)
		}
		if !built.After(cinfo.ModTime()) {
			return miss(key, "outdated: %s is not newer than %s", entry.Artifact, co.Artifact)
		}
	}

	// 7. Every recorded dependency must still be declared.
	if working.Len() > 0 {
		return miss(key, "manifest records undeclared dependencies: %s", joinKeys(working.Keys()))
	}

	// 8.
	return hit(key, entry.Artifact)
}

// resolveMerge treats a MERGE artifact as reusable when it exists. Its
// freshness is judged by the BUILD that merges it.
func resolveMerge(d *config.Directive) Outcome {
	key := modcache.Key{Module: d.ModuleName()}
	if d.OnlyWires {
		return miss(key, "wires-only directives produce no artifact")
	}
	if d.ArtifactRef == "" {
		return miss(key, "no artifact")
	}
	info, err := os.Stat(d.ArtifactRef)
	if err != nil || info.IsDir() {
		return miss(key, "artifact %s is missing", d.ArtifactRef)
	}
	return hit(key, d.ArtifactRef)
}

func joinKeys(keys []modcache.Key) string {
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = k.String()
	}
	return strings.Join(s, ", ")
}
