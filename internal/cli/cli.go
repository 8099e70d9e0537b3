package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vk/hiermerge/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type options struct {
	refreshAll    bool
	force         bool
	ignoreRefresh bool

	quiet        bool
	verbose      bool
	extraVerbose bool
	logFormat    string
	noColor      bool

	workers    int
	configPath string

	intermediate string
	ooc          string
	output       string
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly (help was shown),
// or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		opts   options
		result *app.Config
	)
	runAs := func(command string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cfg, err := opts.config(cmd, command, args[0])
			if err != nil {
				return err
			}
			result = cfg
			return nil
		}
	}

	root := &cobra.Command{
		Use:   "hiermerge [flags] [DOC]",
		Short: "Hierarchical design assembly with an incremental module cache",
		Long: `hiermerge assembles a design from a directive document. Every build block
becomes a module that is reused from the module cache when nothing it
depends on has changed, and rebuilt otherwise.

DOC is a .hcl directive document, or a directory holding main.hcl.
Running hiermerge with DOC is the same as "hiermerge build DOC".`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runAs(app.CommandBuild),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	buildCmd := &cobra.Command{
		Use:   "build DOC",
		Short: "Build the document's root module, reusing cached modules",
		Args:  cobra.ExactArgs(1),
		RunE:  runAs(app.CommandBuild),
	}
	planCmd := &cobra.Command{
		Use:   "plan DOC",
		Short: "Show which modules would be reused or rebuilt, without building",
		Args:  cobra.ExactArgs(1),
		RunE:  runAs(app.CommandPlan),
	}
	planCmd.Flags().BoolVar(&opts.ignoreRefresh, "ignore-refresh", false, "Judge cache validity as if no refresh flags were set.")
	root.AddCommand(buildCmd, planCmd)

	pf := root.PersistentFlags()
	pf.BoolVar(&opts.refreshAll, "refresh-all", false, "Rebuild every module, ignoring the module cache.")
	pf.BoolVar(&opts.force, "force", false, "Let every write block replace existing outputs.")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "Only log warnings and errors.")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug messages.")
	pf.BoolVar(&opts.extraVerbose, "extra-verbose", false, "Log debug messages with their source location.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored report output.")
	pf.IntVarP(&opts.workers, "workers", "j", 1, "Number of sibling modules resolved concurrently.")
	pf.StringVar(&opts.configPath, "config", "", "Project file to use instead of the nearest "+app.ProjectFileName+".")
	pf.StringVar(&opts.intermediate, "intermediate", "", "Intermediate root holding the module cache.")
	pf.StringVar(&opts.ooc, "ooc", "", "Out-of-context root.")
	pf.StringVar(&opts.output, "output-root", "", "Output root.")
	root.MarkFlagsMutuallyExclusive("quiet", "verbose", "extra-verbose")

	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	if err := root.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if result == nil {
		slog.Debug("No document given, help printed.")
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", result)
	return result, false, nil
}

// config turns the parsed flags into an app.Config. Only flags that were set
// explicitly are passed on, so that the environment and the project file can
// fill in the rest.
func (o *options) config(cmd *cobra.Command, command, doc string) (*app.Config, error) {
	flags := cmd.Flags()
	cfg := app.Config{
		DocPath:       doc,
		Command:       command,
		ConfigPath:    o.configPath,
		RefreshAll:    o.refreshAll,
		Overwrite:     o.force,
		IgnoreRefresh: o.ignoreRefresh,
		NoColor:       o.noColor,
	}

	switch {
	case o.quiet:
		cfg.LogLevel = "warn"
	case o.verbose:
		cfg.LogLevel = "debug"
	case o.extraVerbose:
		cfg.LogLevel = "debug"
		cfg.LogSource = true
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("workers") {
		if o.workers < 1 {
			return nil, &ExitError{Code: 2, Message: "invalid workers: must be at least 1"}
		}
		cfg.Workers = o.workers
	}
	cfg.Roots.Intermediate = o.intermediate
	cfg.Roots.OutOfContext = o.ooc
	cfg.Roots.Output = o.output

	settled, err := app.LoadSettings(cfg)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return settled, nil
}
