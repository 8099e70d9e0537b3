package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/hiermerge/internal/app"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "WORKERS", "INTERMEDIATE", "OOC", "OUTPUT"} {
		t.Setenv(app.EnvPrefix+k, "")
	}
}

func newDoc(t *testing.T) string {
	t.Helper()
	doc := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(doc, nil, 0o644))
	return doc
}

func TestParse_NoArgumentsPrintsHelp(t *testing.T) {
	clearEnv(t)
	var out bytes.Buffer

	cfg, shouldExit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "plan")
}

func TestParse_Help(t *testing.T) {
	clearEnv(t)
	var out bytes.Buffer

	_, shouldExit, err := Parse([]string{"plan", "-h"}, &out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), "--ignore-refresh")
}

func TestParse_Commands(t *testing.T) {
	clearEnv(t)
	doc := newDoc(t)

	testCases := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *app.Config)
	}{
		{
			name: "bare document builds",
			args: []string{doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.CommandBuild, cfg.Command)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "text", cfg.LogFormat)
				assert.Equal(t, 1, cfg.Workers)
			},
		},
		{
			name: "build flags",
			args: []string{"build", "--refresh-all", "--force", "-j", "4", "--no-color", doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.CommandBuild, cfg.Command)
				assert.True(t, cfg.RefreshAll)
				assert.True(t, cfg.Overwrite)
				assert.True(t, cfg.NoColor)
				assert.Equal(t, 4, cfg.Workers)
			},
		},
		{
			name: "plan",
			args: []string{"plan", "--ignore-refresh", doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.CommandPlan, cfg.Command)
				assert.True(t, cfg.IgnoreRefresh)
			},
		},
		{
			name: "quiet",
			args: []string{"-q", doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "warn", cfg.LogLevel)
			},
		},
		{
			name: "verbose json",
			args: []string{"--verbose", "--log-format", "json", doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "json", cfg.LogFormat)
				assert.False(t, cfg.LogSource)
			},
		},
		{
			name: "extra verbose",
			args: []string{"--extra-verbose", doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.True(t, cfg.LogSource)
			},
		},
		{
			name: "roots are absolute",
			args: []string{"--intermediate", "cache", "--ooc", "/srv/ooc", doc},
			check: func(t *testing.T, cfg *app.Config) {
				assert.True(t, filepath.IsAbs(cfg.Roots.Intermediate))
				assert.Equal(t, "cache", filepath.Base(cfg.Roots.Intermediate))
				assert.Equal(t, "/srv/ooc", cfg.Roots.OutOfContext)
				assert.Empty(t, cfg.Roots.Output)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, shouldExit, err := Parse(tc.args, &out)
			require.NoError(t, err)
			require.False(t, shouldExit)
			require.NotNil(t, cfg)
			assert.Equal(t, doc, cfg.DocPath)
			tc.check(t, cfg)
		})
	}
}

func TestParse_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(app.EnvPrefix+"WORKERS", "6")
	t.Setenv(app.EnvPrefix+"LOG_LEVEL", "error")
	doc := newDoc(t)

	cfg, _, err := Parse([]string{doc}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, "error", cfg.LogLevel)

	cfg, _, err = Parse([]string{"-j", "2", "-v", doc}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParse_Errors(t *testing.T) {
	clearEnv(t)
	doc := newDoc(t)

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--this-is-not-a-valid-flag", doc}, "unknown flag: --this-is-not-a-valid-flag"},
		{"too many arguments", []string{doc, doc}, "accepts at most 1 arg(s)"},
		{"plan without document", []string{"plan"}, "accepts 1 arg(s)"},
		{"exclusive verbosity", []string{"-q", "-v", doc}, "none of the others can be"},
		{"bad log format", []string{"--log-format", "xml", doc}, "invalid log format"},
		{"bad workers", []string{"-j", "0", doc}, "invalid workers"},
		{"missing project file", []string{"--config", filepath.Join(t.TempDir(), "none.toml"), doc}, "failed to parse TOML"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, shouldExit, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.False(t, shouldExit)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
