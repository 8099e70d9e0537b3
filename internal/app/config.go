package app

import (
	"errors"
	"fmt"

	"github.com/vk/hiermerge/internal/config"
)

// Commands understood by App.Run.
const (
	CommandBuild = "build"
	CommandPlan  = "plan"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	DocPath    string // directive document, or a directory holding one
	Command    string
	ConfigPath string // explicit project file; found by walking up when empty

	RefreshAll    bool
	Overwrite     bool
	IgnoreRefresh bool // plan only

	LogFormat string
	LogLevel  string
	LogSource bool
	NoColor   bool
	Workers   int

	// Roots are the default root bindings of the document root.
	Roots config.Roots
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.DocPath == "" {
		return nil, errors.New("a directive document path is required")
	}
	switch cfg.Command {
	case CommandBuild, CommandPlan:
	case "":
		cfg.Command = CommandBuild
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	return &cfg, nil
}
