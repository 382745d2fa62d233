package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/swiftdriver/internal/moduledeps"
	"github.com/roach88/swiftdriver/internal/planner"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <manifest>",
		Short: "Print the module dependency graph of a manifest",
		Long: `Scan the main module with the frontend and print the finalized
dependency graph as canonical JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd, rootOpts)
			g, err := scanManifest(cmd, rootOpts, args[0])
			if err != nil {
				return formatter.Fail(ExitCommandError, "scan", err)
			}
			data, err := moduledeps.Encode(g)
			if err != nil {
				return formatter.Fail(ExitCommandError, "encode graph", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

// ExplainReport lists the paths from the main module to a dependency.
type ExplainReport struct {
	Target string     `json:"target"`
	Paths  [][]string `json:"paths"`
}

func (r ExplainReport) String() string {
	lines := make([]string, len(r.Paths))
	for i, p := range r.Paths {
		lines[i] = strings.Join(p, " -> ")
	}
	return strings.Join(lines, "\n")
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <manifest> <module>",
		Short: "Show why the main module depends on a module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd, rootOpts)
			g, err := scanManifest(cmd, rootOpts, args[0])
			if err != nil {
				return formatter.Fail(ExitCommandError, "scan", err)
			}
			target := args[1]
			found := g.ExplainDependency(target)
			if len(found) == 0 {
				_ = formatter.Report("NO_PATH", fmt.Sprintf("%s does not depend on %s", g.MainModuleName, target), nil)
				return Exit(ExitFailure, fmt.Sprintf("no dependency path to %s", target), nil)
			}

			report := ExplainReport{Target: target, Paths: make([][]string, len(found))}
			for i, path := range found {
				names := make([]string, len(path))
				for k, id := range path {
					names[k] = id.String()
				}
				report.Paths[i] = names
			}
			return formatter.OK(report)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

// scanManifest loads the manifest and returns its finalized module graph.
func scanManifest(cmd *cobra.Command, opts *RootOptions, manifestPath string) (*moduledeps.Graph, error) {
	sess, err := openSession(opts, manifestPath, false)
	if err != nil {
		return nil, err
	}
	oracle, err := sess.oracle()
	if err != nil {
		return nil, err
	}
	planned := planner.New(sess.manifest.Options, sess.manifest.Toolchain, sess.fs).Options()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	scanned, err := oracle.Scan(ctx, planned.WorkingDirectory, planned.ScanCommandLine())
	if err != nil {
		return nil, err
	}
	if err := oracle.Merge(scanned); err != nil {
		return nil, err
	}
	return oracle.Graph(planned.ModuleName)
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *Output {
	return &Output{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
