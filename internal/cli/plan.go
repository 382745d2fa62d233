package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/planner"
)

// PlannedJob is one job of a dry-run plan.
type PlannedJob struct {
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	Executable  string   `json:"executable"`
	Arguments   []string `json:"arguments"`
	Inputs      []string `json:"inputs"`
	Outputs     []string `json:"outputs"`

	// Schedule is "initial", "deferred" (waits on the incremental
	// fixpoint), "up-to-date" or "in-place".
	Schedule string `json:"schedule"`
}

// PlanReport is the result of the plan command.
type PlanReport struct {
	Module      string       `json:"module"`
	Incremental bool         `json:"incremental"`
	FromScratch string       `json:"from_scratch,omitempty"`
	Jobs        []PlannedJob `json:"jobs"`
}

func (r PlanReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for %s (%d jobs)", r.Module, len(r.Jobs))
	if r.FromScratch != "" {
		fmt.Fprintf(&b, ", building from scratch: %s", r.FromScratch)
	}
	for _, j := range r.Jobs {
		fmt.Fprintf(&b, "\n  [%s] %s\n    %s", j.Schedule, j.Description, j.Executable)
		for _, a := range j.Arguments {
			b.WriteString(" ")
			b.WriteString(a)
		}
	}
	return b.String()
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Print the jobs a build would run",
		Long: `Plan a build without running anything.

For incremental manifests the recorded state is read but never written;
each job is marked initial, deferred or up-to-date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, rootOpts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

func runPlan(cmd *cobra.Command, opts *RootOptions, manifestPath string) error {
	formatter := newFormatter(cmd, opts)

	sess, err := openSession(opts, manifestPath, true)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load manifest", err)
	}
	defer sess.close()

	driver, err := sess.driver(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, "configure planner", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	plan, err := driver.PlanBuild(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "plan build", err)
	}

	resolver := job.NewResolver(sess.manifest.Toolchain, sess.fs,
		job.WithWorkingDirectory(plan.Options.WorkingDirectory))
	report, err := describePlan(plan, sess.manifest.Toolchain, resolver)
	if err != nil {
		return formatter.Fail(ExitCommandError, "resolve jobs", err)
	}
	return formatter.OK(report)
}

// describePlan resolves every job of plan for display.
func describePlan(plan *planner.Plan, tools job.ToolLocator, resolver *job.Resolver) (PlanReport, error) {
	report := PlanReport{
		Module:      plan.Options.ModuleName,
		Incremental: plan.Incremental != nil,
		Jobs:        []PlannedJob{},
	}
	schedule := make(map[*job.Job]string)
	for _, j := range plan.AllJobs() {
		schedule[j] = "initial"
	}
	if plan.InPlace != nil {
		schedule[plan.InPlace] = "in-place"
	}
	if plan.Incremental != nil {
		if perr := plan.Incremental.PriorsError(); perr != nil {
			report.FromScratch = perr.Error()
		}
		for _, j := range plan.CompileJobs {
			schedule[j] = "up-to-date"
		}
		for _, j := range plan.Incremental.MandatoryJobs() {
			schedule[j] = "initial"
		}
		for _, j := range plan.PostCompileJobs {
			schedule[j] = "deferred"
		}
	}

	for _, j := range plan.AllJobs() {
		exe, err := tools.ToolPath(j.Tool)
		if err != nil {
			return report, err
		}
		args, err := resolver.ResolveArgs(j)
		if err != nil {
			return report, err
		}
		report.Jobs = append(report.Jobs, PlannedJob{
			Description: j.Description(),
			Kind:        string(j.Kind),
			Executable:  exe,
			Arguments:   args,
			Inputs:      paths(j.Inputs),
			Outputs:     paths(j.Outputs),
			Schedule:    schedule[j],
		})
	}
	return report, nil
}

func paths(ps []job.TypedPath) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.File
	}
	return out
}
