package executor_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swiftdriver/internal/executor"
	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/planner"
	"github.com/roach88/swiftdriver/internal/testutil"
	"github.com/roach88/swiftdriver/internal/vfs"
)

var tools = planner.StaticToolchain{
	Frontend: "/usr/bin/swift-frontend",
	Linker:   "/usr/bin/ld",
	Resource: "/usr/lib/swift",
}

func compile(src string) *job.Job {
	in := job.TypedPath{File: "/src/" + src, Type: job.TypeSwift}
	base := "/build/" + src[:len(src)-len(".swift")]
	return &job.Job{
		ModuleName:    "App",
		Kind:          job.KindCompile,
		Tool:          job.ToolFrontend,
		CommandLine:   []job.Arg{job.Flag("-c"), job.Path(in.File)},
		DisplayInputs: []job.TypedPath{in},
		Inputs:        []job.TypedPath{in},
		PrimaryInputs: []job.TypedPath{in},
		Outputs: []job.TypedPath{
			{File: base + ".o", Type: job.TypeObject},
			{File: base + ".swiftdeps", Type: job.TypeSwiftDeps},
		},
	}
}

func link(compiles ...*job.Job) *job.Job {
	j := &job.Job{
		ModuleName: "App",
		Kind:       job.KindLink,
		Tool:       job.ToolLinker,
		Outputs:    []job.TypedPath{{File: "/build/App", Type: job.TypeImage}},
	}
	for _, c := range compiles {
		j.Inputs = append(j.Inputs, c.OutputsOfType(job.TypeObject)...)
	}
	return j
}

type fixture struct {
	fs       *vfs.MemFS
	launcher *testutil.FakeLauncher
	delegate *testutil.RecordingDelegate
}

func newFixture(sources ...string) *fixture {
	fs := vfs.NewMemFS()
	for _, s := range sources {
		fs.AddFile("/src/"+s, "")
	}
	return &fixture{
		fs:       fs,
		launcher: testutil.NewFakeLauncher(fs),
		delegate: &testutil.RecordingDelegate{},
	}
}

func (f *fixture) run(t *testing.T, cfg executor.Config, w executor.Workload) error {
	t.Helper()
	e := executor.New(cfg, f.launcher, job.NewResolver(tools, f.fs), f.fs)
	return e.Run(context.Background(), w, f.delegate)
}

func TestRun_RespectsParallelism(t *testing.T) {
	f := newFixture("a.swift", "b.swift", "c.swift", "d.swift", "e.swift")
	f.launcher.Delay = 20 * time.Millisecond

	var jobs []*job.Job
	for _, s := range []string{"a.swift", "b.swift", "c.swift", "d.swift", "e.swift"} {
		jobs = append(jobs, compile(s))
	}
	require.NoError(t, f.run(t, executor.Config{Parallelism: 2}, executor.Workload{Jobs: jobs}))

	assert.Equal(t, 2, f.launcher.Peak())
	assert.Len(t, f.delegate.Filter("finished"), 5)
}

func TestRun_ProducersFinishBeforeConsumers(t *testing.T) {
	f := newFixture("a.swift", "b.swift")
	a, b := compile("a.swift"), compile("b.swift")
	l := link(a, b)

	require.NoError(t, f.run(t, executor.Config{Parallelism: 4}, executor.Workload{Jobs: []*job.Job{l, a, b}}))

	events := f.delegate.Events()
	linkStart := slices.Index(events, "started Linking App")
	require.NotEqual(t, -1, linkStart)
	assert.Less(t, slices.Index(events, "finished Compiling App a.swift"), linkStart)
	assert.Less(t, slices.Index(events, "finished Compiling App b.swift"), linkStart)
	assert.True(t, f.fs.Exists("/build/App"))
}

func TestRun_StartedPrecedesFinished(t *testing.T) {
	f := newFixture("a.swift", "b.swift", "c.swift")
	f.launcher.Delay = time.Millisecond
	jobs := []*job.Job{compile("a.swift"), compile("b.swift"), compile("c.swift")}

	require.NoError(t, f.run(t, executor.Config{Parallelism: 3}, executor.Workload{Jobs: jobs}))

	events := f.delegate.Events()
	for _, j := range jobs {
		started := slices.Index(events, "started "+j.Description())
		finished := slices.Index(events, "finished "+j.Description())
		require.NotEqual(t, -1, started)
		assert.Less(t, started, finished)
	}
}

func TestRun_FailureCancelsRemainingJobs(t *testing.T) {
	f := newFixture("a.swift", "b.swift", "c.swift")
	f.launcher.FailWith("Compiling App a.swift", 1)
	a, b, c := compile("a.swift"), compile("b.swift"), compile("c.swift")

	err := f.run(t, executor.Config{Parallelism: 1}, executor.Workload{Jobs: []*job.Job{a, b, c}})
	require.Error(t, err)

	var failed *executor.JobFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, job.KindCompile, failed.Kind)
	assert.Equal(t, 1, failed.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 1")

	assert.Equal(t, []string{"Compiling App a.swift"}, f.launcher.Launched())
	assert.Equal(t, []string{"Compiling App b.swift", "Compiling App c.swift"}, f.delegate.Filter("skipped"))
}

func TestRun_ContinueAfterErrors(t *testing.T) {
	f := newFixture("a.swift", "b.swift", "c.swift")
	f.launcher.FailWith("Compiling App a.swift", 2)
	a, b, c := compile("a.swift"), compile("b.swift"), compile("c.swift")
	l := link(a, b, c)

	err := f.run(t, executor.Config{Parallelism: 1, ContinueAfterErrors: true},
		executor.Workload{Jobs: []*job.Job{a, b, c, l}})
	require.Error(t, err)
	assert.True(t, executor.IsJobFailedError(err))

	assert.Equal(t, []string{
		"Compiling App a.swift",
		"Compiling App b.swift",
		"Compiling App c.swift",
	}, f.launcher.Launched())
	assert.Equal(t, []string{"Linking App"}, f.delegate.Filter("skipped"))
	assert.Contains(t, f.delegate.Events(), "finished Compiling App a.swift (exit 2)")
}

func TestRun_InputModifiedDuringBuild(t *testing.T) {
	f := newFixture("a.swift")
	recorded, err := f.fs.ModTime("/src/a.swift")
	require.NoError(t, err)
	f.fs.Advance(time.Second)
	f.fs.Touch("/src/a.swift")

	err = f.run(t, executor.Config{}, executor.Workload{
		Jobs:     []*job.Job{compile("a.swift")},
		ModTimes: map[string]time.Time{"/src/a.swift": recorded},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrInputModified)
	assert.Empty(t, f.launcher.Launched())
	assert.Equal(t, []string{"Compiling App a.swift"}, f.delegate.Filter("skipped"))
}

func TestRun_UnchangedInputsPass(t *testing.T) {
	f := newFixture("a.swift")
	recorded, err := f.fs.ModTime("/src/a.swift")
	require.NoError(t, err)

	require.NoError(t, f.run(t, executor.Config{}, executor.Workload{
		Jobs:     []*job.Job{compile("a.swift")},
		ModTimes: map[string]time.Time{"/src/a.swift": recorded},
	}))
}

func TestRun_DuplicateOutputRejected(t *testing.T) {
	f := newFixture("a.swift")
	err := f.run(t, executor.Config{}, executor.Workload{Jobs: []*job.Job{compile("a.swift"), compile("a.swift")}})

	var dup *job.DuplicateOutputError
	require.True(t, errors.As(err, &dup))
	assert.Empty(t, f.launcher.Launched())
}

func TestRun_ContextCancelledBeforeDispatch(t *testing.T) {
	f := newFixture("a.swift")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := executor.New(executor.Config{}, f.launcher, job.NewResolver(tools, f.fs), f.fs)
	err := e.Run(ctx, executor.Workload{Jobs: []*job.Job{compile("a.swift")}}, f.delegate)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.launcher.Launched())
	assert.Equal(t, []string{"Compiling App a.swift"}, f.delegate.Filter("skipped"))
}

func TestRun_ResolveFailureFailsJob(t *testing.T) {
	f := newFixture("a.swift")
	j := compile("a.swift")
	j.Tool = job.ToolLLDB

	err := f.run(t, executor.Config{}, executor.Workload{Jobs: []*job.Job{j}})
	require.Error(t, err)
	assert.True(t, executor.IsJobFailedError(err))
	assert.Empty(t, f.launcher.Launched())
}

func TestRun_ResponseFileRemoved(t *testing.T) {
	f := newFixture("a.swift")
	j := compile("a.swift")
	j.SupportsResponseFiles = true
	resolver := job.NewResolver(tools, f.fs, job.WithResponseFileThreshold(8))

	e := executor.New(executor.Config{}, f.launcher, resolver, f.fs)
	require.NoError(t, e.Run(context.Background(), executor.Workload{Jobs: []*job.Job{j}}, nil))

	for _, p := range f.fs.ListFiles() {
		assert.NotContains(t, p, ".resp")
	}
}

func TestRun_InPlace(t *testing.T) {
	f := newFixture("script.swift")
	in := job.TypedPath{File: "/src/script.swift", Type: job.TypeSwift}
	j := &job.Job{
		ModuleName:               "App",
		Kind:                     job.KindInterpret,
		Tool:                     job.ToolFrontend,
		CommandLine:              []job.Arg{job.Flag("-interpret"), job.Path(in.File)},
		Inputs:                   []job.TypedPath{in},
		RequiresInPlaceExecution: true,
	}

	require.NoError(t, f.run(t, executor.Config{}, executor.Workload{InPlace: j}))

	execed := f.launcher.Execed()
	require.Len(t, execed, 1)
	assert.Equal(t, "/usr/bin/swift-frontend", execed[0].Executable)
	assert.Equal(t, []string{"-interpret", "/src/script.swift"}, execed[0].Args)
	assert.Equal(t, []string{"started Interpreting App"}, f.delegate.Events())
}

// scriptedPlanner discovers follow-up jobs for named compiles.
type scriptedPlanner struct {
	mu        sync.Mutex
	discovers map[*job.Job][]*job.Job
	scheduled map[*job.Job]bool
	finished  map[*job.Job]bool
	post      []*job.Job
	skipped   []*job.Job
}

func newScriptedPlanner(initial ...*job.Job) *scriptedPlanner {
	p := &scriptedPlanner{
		discovers: make(map[*job.Job][]*job.Job),
		scheduled: make(map[*job.Job]bool),
		finished:  make(map[*job.Job]bool),
	}
	for _, j := range initial {
		p.scheduled[j] = true
	}
	return p
}

func (p *scriptedPlanner) CollectJobsDiscoveredByCompletion(j *job.Job, succeeded bool) ([]*job.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished[j] {
		return nil, errors.New("finished twice")
	}
	p.finished[j] = true
	if !succeeded {
		return nil, nil
	}
	var out []*job.Job
	for _, d := range p.discovers[j] {
		if !p.scheduled[d] {
			p.scheduled[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *scriptedPlanner) FixpointReached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for j := range p.scheduled {
		if !p.finished[j] {
			return false
		}
	}
	return true
}

func (p *scriptedPlanner) PostCompileJobs() []*job.Job { return p.post }
func (p *scriptedPlanner) SkippedJobs() []*job.Job     { return p.skipped }

func TestRun_DynamicInsertionAndFixpoint(t *testing.T) {
	f := newFixture("a.swift", "b.swift", "c.swift", "d.swift")
	a, b, c, d := compile("a.swift"), compile("b.swift"), compile("c.swift"), compile("d.swift")
	l := link(a, b, c, d)

	p := newScriptedPlanner(a)
	p.discovers[a] = []*job.Job{b, c}
	p.discovers[b] = []*job.Job{c}
	p.post = []*job.Job{l}
	p.skipped = []*job.Job{d}

	require.NoError(t, f.run(t, executor.Config{Parallelism: 2}, executor.Workload{
		Jobs:        []*job.Job{a},
		Incremental: p,
	}))

	launched := f.launcher.Launched()
	require.Len(t, launched, 4)
	assert.Equal(t, "Compiling App a.swift", launched[0])
	assert.ElementsMatch(t, []string{"Compiling App b.swift", "Compiling App c.swift"}, launched[1:3])
	assert.Equal(t, "Linking App", launched[3])
	assert.Equal(t, []string{"Compiling App d.swift"}, f.delegate.Filter("skipped"))
}

func TestRun_JobsDiscoveredAfterCancellationAreSkipped(t *testing.T) {
	f := newFixture("a.swift", "b.swift", "c.swift")
	f.launcher.FailWith("Compiling App a.swift", 1)
	f.launcher.SlowDown("Compiling App b.swift", 50*time.Millisecond)
	a, b, c := compile("a.swift"), compile("b.swift"), compile("c.swift")

	p := newScriptedPlanner(a, b)
	p.discovers[b] = []*job.Job{c}
	p.post = []*job.Job{link(a, b, c)}

	err := f.run(t, executor.Config{Parallelism: 2}, executor.Workload{
		Jobs:        []*job.Job{a, b},
		Incremental: p,
	})
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"Compiling App a.swift", "Compiling App b.swift"}, f.launcher.Launched())
	assert.Equal(t, []string{"Compiling App c.swift", "Linking App"}, f.delegate.Filter("skipped"))
}

func TestRun_PostCompileSkippedAfterFailure(t *testing.T) {
	f := newFixture("a.swift")
	f.launcher.FailWith("Compiling App a.swift", 1)
	a := compile("a.swift")
	p := newScriptedPlanner(a)
	p.post = []*job.Job{link(a)}

	err := f.run(t, executor.Config{ContinueAfterErrors: true}, executor.Workload{Jobs: []*job.Job{a}, Incremental: p})
	require.Error(t, err)
	assert.Equal(t, []string{"Linking App"}, f.delegate.Filter("skipped"))
}

func TestRun_PostCompileSkippedWhenUpToDate(t *testing.T) {
	f := newFixture("a.swift")
	f.fs.AddFile("/build/App", "")
	a := compile("a.swift")
	p := newScriptedPlanner()
	p.post = []*job.Job{link(a)}
	p.skipped = []*job.Job{a}

	require.NoError(t, f.run(t, executor.Config{}, executor.Workload{Incremental: p}))
	assert.Empty(t, f.launcher.Launched())
	assert.Equal(t, []string{"Compiling App a.swift", "Linking App"}, f.delegate.Filter("skipped"))
}

func TestRun_PostCompileRunsWhenOutputMissing(t *testing.T) {
	f := newFixture("a.swift")
	a := compile("a.swift")
	p := newScriptedPlanner()
	p.post = []*job.Job{link(a)}
	p.skipped = []*job.Job{a}

	require.NoError(t, f.run(t, executor.Config{}, executor.Workload{Incremental: p}))
	assert.Equal(t, []string{"Linking App"}, f.launcher.Launched())
}
