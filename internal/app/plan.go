package app

import (
	"context"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/modcache"
	"github.com/vk/hiermerge/internal/resolver"
)

// PlanEntry is the cache verdict for one BUILD directive.
type PlanEntry struct {
	Depth    int
	Instance string
	Key      modcache.Key
	Outcome  resolver.Outcome
}

// Plan reports, without building anything, which BUILD directives of the
// loaded tree would be reused. Entries are in depth-first order, root first.
func (a *App) Plan(ctx context.Context) []PlanEntry {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	var entries []PlanEntry
	var walk func(d *config.Directive, depth int)
	walk = func(d *config.Directive, depth int) {
		entries = append(entries, PlanEntry{
			Depth:    depth,
			Instance: d.InstanceName,
			Key:      modcache.KeyFor(d.ModuleName(), d.Region),
			Outcome:  a.res.Explain(ctx, d, a.config.IgnoreRefresh),
		})
		for _, c := range d.Subtree.Directives {
			if c.Kind == config.KindBuild {
				walk(c, depth+1)
			}
		}
	}
	walk(a.tree.AsBuild(), 0)
	return entries
}
