package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ProjectFileName is the optional project configuration file, looked up
// from the document directory towards the file system root.
const ProjectFileName = "hiermerge.toml"

// EnvPrefix prefixes every environment variable read by LoadSettings.
const EnvPrefix = "HIERMERGE_"

type projectFile struct {
	Roots struct {
		Intermediate string `toml:"intermediate"`
		OOC          string `toml:"ooc"`
		Output       string `toml:"output"`
	} `toml:"roots"`
	Run struct {
		Workers int `toml:"workers"`
	} `toml:"run"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

func findProjectFile(startDir string) (string, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

func loadProjectFile(path string) (projectFile, error) {
	var pf projectFile
	meta, err := toml.DecodeFile(path, &pf)
	if err != nil {
		return projectFile{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return projectFile{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return pf, nil
}

// LoadSettings completes cfg from the environment and the project file and
// validates the result. Values already set in cfg (explicit flags) win over
// HIERMERGE_* variables, which win over the project file. A .env file next
// to the document is loaded first without overriding the environment.
func LoadSettings(cfg Config) (*Config, error) {
	docDir, err := documentDir(cfg.DocPath)
	if err != nil {
		return nil, err
	}

	envFile := filepath.Join(docDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var (
		pf     projectFile
		pfDir  string
		pfPath = cfg.ConfigPath
	)
	if pfPath == "" {
		found, ok, err := findProjectFile(docDir)
		if err != nil {
			return nil, err
		}
		if ok {
			pfPath = found
		}
	}
	if pfPath != "" {
		if pf, err = loadProjectFile(pfPath); err != nil {
			return nil, err
		}
		pfDir = filepath.Dir(pfPath)
	}

	cfg.LogLevel = firstNonEmpty(cfg.LogLevel, env("LOG_LEVEL"), pf.Log.Level, "info")
	cfg.LogFormat = firstNonEmpty(cfg.LogFormat, env("LOG_FORMAT"), pf.Log.Format, "text")

	if cfg.Workers == 0 {
		if raw := env("WORKERS"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %sWORKERS %q: %w", EnvPrefix, raw, err)
			}
			cfg.Workers = n
		} else if pf.Run.Workers != 0 {
			cfg.Workers = pf.Run.Workers
		} else {
			cfg.Workers = 1
		}
	}

	roots := []struct {
		dst     *string
		envKey  string
		fileVal string
	}{
		{&cfg.Roots.Intermediate, "INTERMEDIATE", pf.Roots.Intermediate},
		{&cfg.Roots.OutOfContext, "OOC", pf.Roots.OOC},
		{&cfg.Roots.Output, "OUTPUT", pf.Roots.Output},
	}
	for _, r := range roots {
		switch {
		case *r.dst != "":
			*r.dst, err = filepath.Abs(*r.dst)
		case env(r.envKey) != "":
			*r.dst, err = filepath.Abs(env(r.envKey))
		case r.fileVal != "":
			*r.dst = anchor(pfDir, r.fileVal)
		}
		if err != nil {
			return nil, err
		}
	}

	return NewConfig(cfg)
}

func documentDir(path string) (string, error) {
	if path == "" {
		return "", errors.New("a directive document path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func anchor(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
