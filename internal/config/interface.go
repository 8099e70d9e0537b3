package config

import (
	"context"
)

// Loader is the interface for a format-specific directive document loader.
type Loader interface {
	// Load reads the directive document at path, resolves every path it
	// mentions against the document directory and the given default roots,
	// and returns the validated Directive Tree. A malformed document yields
	// a *ConfigError.
	Load(ctx context.Context, path string, defaults Roots) (*Tree, error)
}
