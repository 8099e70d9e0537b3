package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/hiermerge/internal/config"
	"github.com/vk/hiermerge/internal/ctxlog"
	"github.com/vk/hiermerge/internal/engine"
	"github.com/vk/hiermerge/internal/fsutil"
	"github.com/vk/hiermerge/internal/manifest"
	"github.com/vk/hiermerge/internal/resolver"
)

// DefaultDocument is looked up when the document path names a directory.
const DefaultDocument = "main.hcl"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader config.Loader
	engine engine.Engine
	res    *resolver.Resolver
	tree   *config.Tree
}

// NewApp is the constructor for the main application. The returned App has
// its own isolated logger writing to outW.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, eng engine.Engine) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, appConfig.LogSource, outW)
	logger.Debug("Logger configured successfully.")

	store, err := manifest.NewStore(manifest.DefaultStoreSize)
	if err != nil {
		// Only a non-positive size fails, and the default is positive.
		panic(err)
	}

	return &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		loader: loader,
		engine: eng,
		res:    resolver.New(store),
	}
}

// Tree returns the loaded Directive Tree. This is primarily for testing.
func (a *App) Tree() *config.Tree {
	return a.tree
}

// Load reads the directive document into a Directive Tree.
func (a *App) Load(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	doc, err := fsutil.ResolveDocument(a.config.DocPath, DefaultDocument, ".hcl")
	if err != nil {
		return fmt.Errorf("failed to locate directive document: %w", err)
	}
	tree, err := a.loader.Load(ctx, doc, a.config.Roots)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.tree = tree
	a.logger.Debug("Directive document loaded.", "path", doc, "module", tree.ModuleName())
	return nil
}
