package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <manifest>",
		Short: "Plan and run the jobs of a manifest",
		Long: `Plan the jobs described by a CUE build manifest and run them.

Incremental manifests reuse the dependency graph recorded by the previous
build and recompile only the sources affected by what changed.

Exit codes:
  0 - build succeeded
  1 - a job failed or the build was interrupted
  2 - the manifest or options are invalid`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, rootOpts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

func runBuild(cmd *cobra.Command, opts *RootOptions, manifestPath string) error {
	formatter := newFormatter(cmd, opts)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess, err := openSession(opts, manifestPath, true)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load manifest", err)
	}
	defer sess.close()

	driver, err := sess.driver(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, "configure planner", err)
	}
	plan, err := driver.PlanBuild(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "plan build", err)
	}
	if plan.Incremental != nil {
		if perr := plan.Incremental.PriorsError(); perr != nil {
			slog.Info("building from scratch", "reason", perr)
		}
	}

	planned := plan.Options
	resolver := job.NewResolver(sess.manifest.Toolchain, sess.fs,
		job.WithResponseFileThreshold(opts.Settings.ResponseFileThreshold),
		job.WithWorkingDirectory(planned.WorkingDirectory),
	)
	launcher := opts.Launcher
	if launcher == nil {
		launcher = executor.ProcessLauncher{Dir: planned.WorkingDirectory}
	}
	if err := prepareOutputDirs(sess.fs, plan.AllJobs()); err != nil {
		return formatter.Fail(ExitCommandError, "create build directory", err)
	}

	ex := executor.New(executor.Config{
		Parallelism:         opts.Settings.Jobs,
		ContinueAfterErrors: opts.Settings.ContinueAfterErrors,
	}, launcher, resolver, sess.fs)

	prog := newProgress(formatter)
	slog.Debug("build starting", "module", planned.ModuleName, "jobs", len(plan.InitialJobs()))
	runErr := ex.Run(ctx, executor.FromPlan(plan), prog)

	if plan.Incremental != nil {
		if err := plan.Incremental.WritePriors(context.WithoutCancel(ctx), time.Now()); err != nil {
			slog.Warn("build state not saved", "error", err)
		}
	}

	summary := prog.summary(planned.ModuleName, runErr == nil)
	if runErr != nil {
		if formatter.IsJSON() {
			_ = formatter.Report(ErrorCode(runErr), runErr.Error(), summary)
		} else {
			_ = formatter.OK(summary)
		}
		return Exit(ExitFailure, "build failed", runErr)
	}
	return formatter.OK(summary)
}

// prepareOutputDirs creates the parent directory of every declared output.
func prepareOutputDirs(fs vfs.FileSystem, jobs []*job.Job) error {
	seen := make(map[string]bool)
	for _, j := range jobs {
		for _, out := range j.Outputs {
			dir := filepath.Dir(out.File)
			if seen[dir] {
				continue
			}
			seen[dir] = true
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}
	return nil
}
