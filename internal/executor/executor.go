package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// Config controls how a build runs.
type Config struct {
	// Parallelism bounds concurrently running jobs. Zero or less means
	// runtime.NumCPU().
	Parallelism int

	// ContinueAfterErrors keeps dispatching independent jobs after a
	// failure.
	ContinueAfterErrors bool
}

// Resolver expands a job into a concrete invocation.
type Resolver interface {
	Resolve(j *job.Job) (*job.Invocation, error)
}

// Executor runs workloads.
type Executor struct {
	cfg      Config
	launcher Launcher
	resolver Resolver
	fs       vfs.FileSystem
}

// New returns an Executor.
func New(cfg Config, launcher Launcher, resolver Resolver, fs vfs.FileSystem) *Executor {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	return &Executor{cfg: cfg, launcher: launcher, resolver: resolver, fs: fs}
}

type nodeState int

const (
	statePending nodeState = iota
	stateRunning
	stateSucceeded
	stateFailed
)

type node struct {
	job        *job.Job
	state      nodeState
	waiting    int
	dependents []int
}

// run is the bookkeeping of one Run call. It is only touched by the
// dispatch loop.
type run struct {
	e         *Executor
	w         Workload
	producers *job.ProducerMap
	nodes     []*node
	ready     []int
	running   int

	cancelled   bool
	postAdded   bool
	dropped     []*job.Job // discovered after cancellation
	compilesRun int
	failures    []error
	abort       error
	interrupted error

	queue  *completionQueue
	notify *notifier
	group  errgroup.Group
	ctx    context.Context
}

// Run executes w, reporting lifecycle events to delegate. It returns nil
// when every job succeeded. Failed jobs are reported as JobFailedErrors
// joined together; an input modified during the build aborts it with
// ErrInputModified.
func (e *Executor) Run(ctx context.Context, w Workload, delegate Delegate) error {
	notify := newNotifier(delegate)

	if w.InPlace != nil {
		return e.runInPlace(w, notify)
	}

	producers, err := job.NewProducerMap(nil)
	if err != nil {
		notify.close()
		return err
	}
	r := &run{
		e:         e,
		w:         w,
		producers: producers,
		queue:     newCompletionQueue(),
		notify:    notify,
		ctx:       context.WithoutCancel(ctx),
	}
	r.group.SetLimit(e.cfg.Parallelism)

	slog.Debug("executor starting", "jobs", len(w.Jobs), "parallelism", e.cfg.Parallelism)
	if err := r.add(w.Jobs...); err != nil {
		notify.close()
		return err
	}

	r.loop(ctx)

	_ = r.group.Wait()
	r.reportSkipped()
	notify.close()

	switch {
	case r.abort != nil:
		return r.abort
	case r.interrupted != nil:
		return fmt.Errorf("build interrupted: %w", r.interrupted)
	case len(r.failures) > 0:
		return errors.Join(r.failures...)
	}
	return nil
}

func (e *Executor) runInPlace(w Workload, notify *notifier) error {
	j := w.InPlace
	if err := e.checkInputs(j, w); err != nil {
		notify.close()
		return err
	}
	inv, err := e.resolver.Resolve(j)
	if err != nil {
		notify.close()
		return &JobFailedError{Kind: j.Kind, Description: j.Description(), Err: err}
	}
	notify.started(j, inv)
	notify.close()

	slog.Debug("replacing process", "job", j.Description(), "executable", inv.Executable)
	if err := e.launcher.Exec(inv); err != nil {
		return &JobFailedError{Kind: j.Kind, Description: j.Description(), Err: err}
	}
	return nil
}

// loop dispatches eligible jobs and applies completions until nothing is
// running and nothing more can become eligible.
func (r *run) loop(ctx context.Context) {
	done := ctx.Done()
	for {
		if done != nil && ctx.Err() != nil {
			done = nil
			r.interrupted = ctx.Err()
			r.cancel("interrupted")
		}
		r.dispatchReady()

		if r.running == 0 && (r.cancelled || len(r.ready) == 0) {
			if r.addPostCompile() {
				continue
			}
			return
		}

		select {
		case <-done:
			done = nil
			r.interrupted = ctx.Err()
			r.cancel("interrupted")
		case <-r.queue.Wait():
		}

		for {
			c, ok := r.queue.TryDequeue()
			if !ok {
				break
			}
			r.finish(c.node, c.result)
		}
	}
}

// add registers jobs and wires each to the producers of its inputs. The
// whole batch is registered before wiring, so jobs may depend on each
// other regardless of order.
func (r *run) add(jobs ...*job.Job) error {
	first := len(r.nodes)
	for _, j := range jobs {
		if _, err := r.producers.Add(j); err != nil {
			return fmt.Errorf("schedule %s: %w", j.Description(), err)
		}
		r.nodes = append(r.nodes, &node{job: j})
	}

	for idx := first; idx < len(r.nodes); idx++ {
		n := r.nodes[idx]
		for _, dep := range r.producers.Dependencies(n.job) {
			producer := r.nodes[dep]
			if producer.state == stateSucceeded {
				continue
			}
			n.waiting++
			producer.dependents = append(producer.dependents, idx)
		}
		if n.waiting == 0 {
			r.ready = append(r.ready, idx)
		}
	}
	return nil
}

func (r *run) dispatchReady() {
	for !r.cancelled && len(r.ready) > 0 && r.running < r.e.cfg.Parallelism {
		idx := r.ready[0]
		r.ready = r.ready[1:]
		r.dispatch(idx)
	}
}

func (r *run) dispatch(idx int) {
	n := r.nodes[idx]
	j := n.job

	if err := r.e.checkInputs(j, r.w); err != nil {
		r.abort = err
		r.cancel("input modified")
		return
	}
	inv, err := r.e.resolver.Resolve(j)
	if err != nil {
		r.running++
		n.state = stateRunning
		r.finish(idx, Result{ExitCode: -1, Err: err})
		return
	}

	n.state = stateRunning
	r.running++
	r.notify.started(j, inv)
	slog.Debug("job started", "job", j.Description())

	r.group.Go(func() error {
		res, err := r.e.launcher.Launch(r.ctx, j, inv)
		if err != nil {
			res.Err = err
			if res.ExitCode == 0 {
				res.ExitCode = -1
			}
		}
		if inv.ResponseFile != "" {
			_ = r.e.fs.Remove(inv.ResponseFile)
		}
		r.queue.Enqueue(completion{node: idx, result: res})
		return nil
	})
}

func (r *run) finish(idx int, res Result) {
	n := r.nodes[idx]
	j := n.job
	r.running--
	r.notify.finished(j, res)

	ok := res.Succeeded()
	if ok {
		n.state = stateSucceeded
		slog.Debug("job finished", "job", j.Description(), "duration", res.Duration)
	} else {
		n.state = stateFailed
		failure := &JobFailedError{
			Kind:        j.Kind,
			Description: j.Description(),
			ExitCode:    res.ExitCode,
			Signal:      res.Signal,
			Err:         res.Err,
		}
		r.failures = append(r.failures, failure)
		slog.Error("job failed", "job", j.Description(), "exit_code", res.ExitCode, "signal", res.Signal, "error", res.Err)
		if !r.e.cfg.ContinueAfterErrors {
			r.cancel("job failed")
		}
	}

	if j.Kind.IsCompile() {
		r.compilesRun++
	}
	if r.w.Incremental != nil && j.Kind.IsCompile() {
		discovered, err := r.w.Incremental.CollectJobsDiscoveredByCompletion(j, ok)
		if err != nil {
			r.abort = err
			r.cancel("incremental state inconsistent")
		} else if r.cancelled {
			r.dropped = append(r.dropped, discovered...)
		} else {
			if err := r.add(discovered...); err != nil {
				r.abort = err
				r.cancel("invalid discovered job")
			}
		}
	}

	if !ok {
		return
	}
	for _, dep := range n.dependents {
		d := r.nodes[dep]
		d.waiting--
		if d.waiting == 0 && d.state == statePending {
			r.ready = append(r.ready, dep)
		}
	}
}

// addPostCompile schedules the post-compile jobs of an incremental build
// once compiles have reached fixpoint without failures. When no compile
// ran and every post-compile output exists, they are skipped.
func (r *run) addPostCompile() bool {
	inc := r.w.Incremental
	if inc == nil || r.postAdded || r.cancelled || len(r.failures) > 0 || !inc.FixpointReached() {
		return false
	}
	post := inc.PostCompileJobs()
	if r.compilesRun == 0 && r.e.outputsExist(post) {
		slog.Debug("post-compile outputs up to date", "jobs", len(post))
		return false
	}
	r.postAdded = true
	slog.Debug("compiles reached fixpoint", "post_compile_jobs", len(post))
	if err := r.add(post...); err != nil {
		r.abort = err
		r.cancel("invalid post-compile job")
		return false
	}
	return len(post) > 0
}

func (r *run) cancel(reason string) {
	if r.cancelled {
		return
	}
	r.cancelled = true
	slog.Warn("cancelling build", "reason", reason, "running", r.running)
}

// reportSkipped reports every job that never started.
func (r *run) reportSkipped() {
	for _, n := range r.nodes {
		if n.state == statePending {
			r.notify.skipped(n.job)
		}
	}
	for _, j := range r.dropped {
		r.notify.skipped(j)
	}
	inc := r.w.Incremental
	if inc == nil {
		return
	}
	for _, j := range inc.SkippedJobs() {
		r.notify.skipped(j)
	}
	if !r.postAdded {
		for _, j := range inc.PostCompileJobs() {
			r.notify.skipped(j)
		}
	}
}

func (e *Executor) outputsExist(jobs []*job.Job) bool {
	for _, j := range jobs {
		for _, out := range j.Outputs {
			if !e.fs.Exists(out.File) {
				return false
			}
		}
	}
	return true
}

// checkInputs verifies that no input recorded at planning time has been
// modified since.
func (e *Executor) checkInputs(j *job.Job, w Workload) error {
	for _, in := range j.Inputs {
		recorded, ok := w.ModTimes[in.File]
		if !ok {
			continue
		}
		current, err := e.fs.ModTime(in.File)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInputModified, in.File, err)
		}
		if !current.Equal(recorded) {
			return fmt.Errorf("%w: %s", ErrInputModified, in.File)
		}
	}
	return nil
}
