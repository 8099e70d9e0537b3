package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/hiermerge/internal/builder"
	"github.com/vk/hiermerge/internal/ctxlog"
)

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	if err := a.Load(ctx); err != nil {
		return err
	}

	if a.config.Command == CommandPlan {
		entries := a.Plan(ctx)
		a.printPlan(entries)
		return nil
	}
	return a.Build(ctx)
}

// Build resolves or rebuilds the loaded tree and prints the run report.
func (a *App) Build(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	orch := builder.New(a.engine, a.res, builder.Options{
		RefreshAll: a.config.RefreshAll,
		Overwrite:  a.config.Overwrite,
		Workers:    a.config.Workers,
	})

	a.logger.Info("Build started.", "module", a.tree.ModuleName(), "workers", a.config.Workers, "refresh_all", a.config.RefreshAll)
	start := time.Now()
	artifact, report, err := orch.Build(ctx, a.tree)
	a.printReport(report, artifact, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	a.logger.Info("Build finished.", "artifact", artifact, "built", report.Count(builder.Built), "reused", report.Count(builder.Reused))
	return nil
}
