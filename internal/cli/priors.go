package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/swiftdriver/internal/store"
)

// PriorsOptions holds flags for the priors command.
type PriorsOptions struct {
	*RootOptions
	Delete bool
}

// PriorsInput is one recorded input.
type PriorsInput struct {
	Path    string     `json:"path"`
	ModTime *time.Time `json:"mod_time,omitempty"` // nil when the input failed to compile
}

// PriorsReport describes recorded build state.
type PriorsReport struct {
	Records []PriorsRecord `json:"records"`
}

// PriorsRecord is one module's recorded build.
type PriorsRecord struct {
	Module        string        `json:"module"`
	FormatVersion int           `json:"format_version"`
	DriverVersion string        `json:"driver_version"`
	BuildID       string        `json:"build_id"`
	BuildEnd      time.Time     `json:"build_end"`
	InputCount    int           `json:"input_count"`
	Inputs        []PriorsInput `json:"inputs,omitempty"`
}

func (r PriorsReport) String() string {
	if len(r.Records) == 0 {
		return "No recorded builds"
	}
	var b strings.Builder
	for i, rec := range r.Records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: build %s, format %d, driver %s, %d inputs, finished %s",
			rec.Module, rec.BuildID, rec.FormatVersion, rec.DriverVersion, rec.InputCount,
			rec.BuildEnd.UTC().Format(time.RFC3339))
		for _, in := range rec.Inputs {
			if in.ModTime == nil {
				fmt.Fprintf(&b, "\n  %s (needs recompile)", in.Path)
				continue
			}
			fmt.Fprintf(&b, "\n  %s %s", in.Path, in.ModTime.UTC().Format(time.RFC3339Nano))
		}
	}
	return b.String()
}

// NewPriorsCommand creates the priors command.
func NewPriorsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriorsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "priors [module]",
		Short: "Inspect recorded incremental build state",
		Long: `List the modules with recorded build state, or show the inputs
recorded for one module. With --delete the module's state is removed and
its next build starts from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPriors(cmd, opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the recorded state of the module")
	return cmd
}

func runPriors(cmd *cobra.Command, opts *PriorsOptions, args []string) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Delete && len(args) == 0 {
		return Exit(ExitCommandError, "--delete needs a module name", nil)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Exit(ExitCommandError, "working directory", err)
	}
	path := resolveStatePath(opts.Settings.StateDB, cwd)
	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ExitCommandError, "open build state", fmt.Errorf("database not found: %s", path))
	}
	st, err := openStore(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, "open build state", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 0 {
		summaries, err := st.ListBuildRecords(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, "list build state", err)
		}
		report := PriorsReport{Records: make([]PriorsRecord, len(summaries))}
		for i, s := range summaries {
			report.Records[i] = PriorsRecord{
				Module:        s.Module,
				FormatVersion: s.FormatVersion,
				DriverVersion: s.DriverVersion,
				BuildID:       s.BuildID,
				BuildEnd:      s.BuildEnd,
				InputCount:    s.Inputs,
			}
		}
		return formatter.OK(report)
	}

	module := args[0]
	if opts.Delete {
		if err := st.DeleteBuildRecord(ctx, module); err != nil {
			return formatter.Fail(ExitCommandError, "delete build state", err)
		}
		return formatter.OK(fmt.Sprintf("Deleted build state of %s", module))
	}

	rec, err := st.ReadBuildRecord(ctx, module)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Report("NOT_FOUND", fmt.Sprintf("no build state recorded for %s", module), nil)
		return Exit(ExitFailure, fmt.Sprintf("no build state for %s", module), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, "read build state", err)
	}
	return formatter.OK(PriorsReport{Records: []PriorsRecord{recordReport(rec)}})
}

func recordReport(rec *store.BuildRecord) PriorsRecord {
	out := PriorsRecord{
		Module:        rec.Module,
		FormatVersion: rec.FormatVersion,
		DriverVersion: rec.DriverVersion,
		BuildID:       rec.BuildID,
		BuildEnd:      rec.BuildEnd,
		InputCount:    len(rec.Inputs),
		Inputs:        make([]PriorsInput, len(rec.Inputs)),
	}
	for i, in := range rec.Inputs {
		out.Inputs[i] = PriorsInput{Path: in.Path}
		if !in.ModTime.IsZero() {
			mt := in.ModTime
			out.Inputs[i].ModTime = &mt
		}
	}
	return out
}
