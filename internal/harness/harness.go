package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/incremental"
	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/planner"
	"github.com/roach88/swiftdriver/internal/store"
	"github.com/roach88/swiftdriver/internal/testutil"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// Paths of the simulated project.
const (
	SourceDir = "/project"
	BuildDir  = "/project/.build"
)

// Toolchain is the simulated toolchain every scenario builds with.
var Toolchain = planner.StaticToolchain{
	Frontend: "/toolchain/bin/swift-frontend",
	Linker:   "/toolchain/bin/ld",
	Resource: "/toolchain/lib/swift",
}

// Harness holds the state shared by the builds of one scenario.
type Harness struct {
	scenario *Scenario
	fs       *vfs.MemFS
	store    *store.Store
	launcher *testutil.FakeLauncher
	logger   *slog.Logger

	sources       map[string]bool
	frontendFlags []string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory file system and database.
// Builds see the file system clock advance by one second between every
// edit and every build, so modification times are deterministic.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		fs:       vfs.NewMemFS(),
		store:    st,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sources:  make(map[string]bool),
	}
	h.launcher = testutil.NewFakeLauncher(h.fs)
	for name, record := range scenario.Files {
		h.write(name, record)
	}
	for _, ext := range scenario.Externals {
		h.fs.AddFile(ext, "")
	}

	ctx := context.Background()
	result := &Result{Builds: make([]BuildResult, 0, len(scenario.Builds))}
	for _, step := range scenario.Builds {
		br, err := h.build(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", step.Name, err)
		}
		result.Builds = append(result.Builds, br)
	}

	if *scenario.Incremental {
		needs, err := h.needsRecompile(ctx)
		if err != nil {
			return nil, err
		}
		result.NeedsRecompile = needs
	}

	result.Failures = EvaluateAssertions(result, scenario.Assertions)
	return result, nil
}

func (h *Harness) write(name, record string) {
	p := path.Join(SourceDir, name)
	h.fs.AddFile(p, "// "+name+"\n")
	h.launcher.SetRecord(p, record)
	h.sources[name] = true
}

// apply makes the changes of step, advancing the clock first.
func (h *Harness) apply(step BuildStep) error {
	h.fs.Advance(time.Second)
	for name, record := range step.Edit {
		h.write(name, record)
	}
	for _, name := range step.Remove {
		if !h.sources[name] {
			return fmt.Errorf("remove %s: not a source", name)
		}
		if err := h.fs.Remove(path.Join(SourceDir, name)); err != nil {
			return err
		}
		delete(h.sources, name)
	}
	for _, ext := range step.Touch {
		h.fs.Touch(ext)
	}
	for _, out := range step.DeleteOutputs {
		if err := h.fs.Remove(path.Join(BuildDir, out)); err != nil {
			return fmt.Errorf("delete output %s: %w", out, err)
		}
	}
	if step.FrontendFlags != nil {
		h.frontendFlags = step.FrontendFlags
	}
	for _, name := range step.Fail {
		h.launcher.FailWith(compileDescription(h.scenario.Module, name), 1)
	}
	h.fs.Advance(time.Second)
	return nil
}

func (h *Harness) options() planner.Options {
	names := make([]string, 0, len(h.sources))
	for name := range h.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	inputs := make([]string, len(names))
	for i, name := range names {
		inputs[i] = path.Join(SourceDir, name)
	}
	return planner.Options{
		ModuleName:       h.scenario.Module,
		Inputs:           inputs,
		OutputKind:       planner.OutputKind(h.scenario.OutputKind),
		EmitModule:       h.scenario.EmitModule,
		Incremental:      *h.scenario.Incremental,
		FrontendFlags:    h.frontendFlags,
		WorkingDirectory: SourceDir,
		BuildDirectory:   BuildDir,
	}
}

// build runs one build step. Planning errors are recorded in the result;
// only harness faults are returned.
func (h *Harness) build(ctx context.Context, step BuildStep) (BuildResult, error) {
	br := BuildResult{Name: step.Name, Events: []string{}}
	if err := h.apply(step); err != nil {
		return br, err
	}
	defer func() {
		for _, name := range step.Fail {
			h.launcher.FailWith(compileDescription(h.scenario.Module, name), 0)
		}
	}()

	driver := planner.New(h.options(), Toolchain, h.fs,
		planner.WithStore(h.store),
		planner.WithIDGenerator(incremental.NewFixedGenerator(step.Name)),
		planner.WithClock(h.fs.Now),
	)
	plan, err := driver.PlanBuild(ctx)
	if err != nil {
		br.Error = planningCode(err)
		h.logger.Info("planning failed", "build", step.Name, "error", err)
		return br, nil
	}

	ex := executor.New(executor.Config{
		Parallelism:         h.scenario.Parallelism,
		ContinueAfterErrors: h.scenario.ContinueAfterErrors,
	}, h.launcher, job.NewResolver(Toolchain, h.fs), h.fs)

	delegate := &testutil.RecordingDelegate{}
	runErr := ex.Run(ctx, executor.FromPlan(plan), delegate)
	h.launcher.Launched()

	if plan.Incremental != nil {
		if err := plan.Incremental.WritePriors(ctx, h.fs.Now()); err != nil {
			return br, fmt.Errorf("write priors: %w", err)
		}
	}

	br.Succeeded = runErr == nil
	if runErr != nil {
		br.Error = runErr.Error()
	}
	br.Events = delegate.Events()
	prefix := "Compiling " + h.scenario.Module + " "
	for _, started := range delegate.Filter("started") {
		if name, ok := strings.CutPrefix(started, prefix); ok {
			br.Compiled = append(br.Compiled, name)
		}
	}
	h.logger.Info("build finished", "build", step.Name, "succeeded", br.Succeeded, "compiled", len(br.Compiled))
	return br, nil
}

// needsRecompile returns the sources the stored record marks as not
// compiled.
func (h *Harness) needsRecompile(ctx context.Context) ([]string, error) {
	rec, err := h.store.ReadBuildRecord(ctx, h.scenario.Module)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read final build record: %w", err)
	}
	out := []string{}
	for _, in := range rec.Inputs {
		if in.ModTime.IsZero() {
			out = append(out, strings.TrimPrefix(in.Path, SourceDir+"/"))
		}
	}
	slices.Sort(out)
	return out, nil
}

func compileDescription(module, source string) string {
	return "Compiling " + module + " " + path.Base(source)
}

func planningCode(err error) string {
	for _, code := range []planner.ErrorCode{
		planner.ErrCodeDuplicateOutput,
		planner.ErrCodeInvalidOptions,
		planner.ErrCodeUnresolvedPlaceholder,
		planner.ErrCodeModuleCycle,
		planner.ErrCodeInPlaceConflict,
	} {
		if planner.HasCode(err, code) {
			return string(code)
		}
	}
	return err.Error()
}
