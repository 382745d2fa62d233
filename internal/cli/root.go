package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/swiftdriver/internal/config"
	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/incremental"
	"github.com/roach88/swiftdriver/internal/ir"
	"github.com/roach88/swiftdriver/internal/moduledeps"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Settings are resolved before any subcommand runs.
	Settings config.Settings

	// Launcher overrides the process launcher (for testing).
	// If nil, jobs run as child processes.
	Launcher executor.Launcher

	// Scanner overrides the dependency scanner (for testing).
	// If nil, the manifest's frontend is asked to scan.
	Scanner moduledeps.ScannerFactory

	// IDs overrides the build ID generator (for testing).
	IDs incremental.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the swiftdriver CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith creates the root command around opts, so callers can
// inject a launcher or scanner before executing.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "swiftdriver",
		Short:   "swiftdriver - Swift compiler driver",
		Long:    "Plans and runs the frontend, module and link jobs of a Swift module, rebuilding incrementally from recorded dependencies.",
		Version: ir.DriverVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return Exit(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return opts.loadSettings(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: ./swiftdriver.yaml if present)")
	flags.IntP(config.KeyJobs, "j", 0, "maximum parallel jobs (default: number of CPUs)")
	flags.Bool(config.KeyContinueAfterErrors, false, "keep scheduling independent jobs after a failure")
	flags.Int(config.KeyResponseFileThreshold, 0, "command line length above which arguments go to a response file")
	flags.String(config.KeyStateDB, "", "path of the build state database")
	flags.Bool(config.KeyShowIncremental, false, "print incremental scheduling decisions")
	flags.String(config.KeyLogLevel, "", "log level (debug|info|warn|error)")
	flags.String(config.KeyLogFormat, "", "log format (text|json)")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewPriorsCommand(opts))

	return cmd
}

// loadSettings resolves flags, environment and config file into
// opts.Settings and installs the default logger.
func (opts *RootOptions) loadSettings(cmd *cobra.Command) error {
	v := config.New()
	flags := cmd.Root().PersistentFlags()
	for _, key := range []string{
		config.KeyJobs,
		config.KeyContinueAfterErrors,
		config.KeyResponseFileThreshold,
		config.KeyStateDB,
		config.KeyShowIncremental,
		config.KeyLogLevel,
		config.KeyLogFormat,
	} {
		f := flags.Lookup(key)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return Exit(ExitCommandError, "bind flag", err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Exit(ExitCommandError, "working directory", err)
	}
	if err := config.ReadFile(v, opts.ConfigFile, cwd); err != nil {
		return Exit(ExitCommandError, "configuration", err)
	}
	settings, err := config.Load(v)
	if err != nil {
		return Exit(ExitCommandError, "configuration", err)
	}
	if opts.Verbose {
		settings.LogLevel = "debug"
	}

	opts.Settings = settings
	slog.SetDefault(settings.NewLogger(cmd.ErrOrStderr()))
	slog.Debug("configuration loaded", "config", v.ConfigFileUsed(), "jobs", settings.Jobs)
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
