package incremental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/swiftdriver/internal/depgraph"
	"github.com/roach88/swiftdriver/internal/ir"
	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/store"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// ErrPriorsUnavailable means the prior build state could not be used and
// the build falls back to compiling everything.
var ErrPriorsUnavailable = errors.New("prior build state unavailable")

// PriorsStore reads and writes build records.
type PriorsStore interface {
	ReadBuildRecord(ctx context.Context, module string) (*store.BuildRecord, error)
	WriteBuildRecord(ctx context.Context, rec store.BuildRecord) error
}

// Config holds everything a State needs.
type Config struct {
	Module string

	// CompileJobs has one job per source file, each declaring its
	// swiftdeps output. PostCompileJobs run once compiles reach fixpoint.
	CompileJobs     []*job.Job
	PostCompileJobs []*job.Job

	// ModTimes are the input modification times recorded at build start.
	ModTimes   map[string]time.Time
	BuildStart time.Time

	// OptionsHash fingerprints the build options. Priors written with a
	// different hash are discarded.
	OptionsHash string

	FS       vfs.FileSystem
	Store    PriorsStore
	Reporter *Reporter
	IDs      IDGenerator
}

// State is the incremental compilation state of one build.
//
// All methods are safe for concurrent use. Mutations are serialized by a
// single lock so that completions racing from several workers integrate
// one at a time.
type State struct {
	mu sync.Mutex

	cfg      Config
	graph    *depgraph.Graph
	tracker  *depgraph.FileTracker
	reporter *Reporter

	sources      []string
	order        map[string]int
	jobsBySource map[string]*job.Job

	scheduled map[*job.Job]struct{}
	finished  map[*job.Job]struct{}
	succeeded map[string]struct{}

	mandatory []*job.Job
	priorsErr error
}

// New builds the state for one build and computes its first wave.
//
// Unusable priors are not an error: PriorsError reports why incremental
// mode was disabled. The returned error is reserved for broken invariants
// in cfg, such as two sources sharing a swiftdeps path.
func New(ctx context.Context, cfg Config) (*State, error) {
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	s := &State{
		cfg:          cfg,
		tracker:      depgraph.NewFileTracker(),
		reporter:     cfg.Reporter,
		order:        make(map[string]int),
		jobsBySource: make(map[string]*job.Job),
		scheduled:    make(map[*job.Job]struct{}),
		finished:     make(map[*job.Job]struct{}),
		succeeded:    make(map[string]struct{}),
	}

	for _, j := range cfg.CompileJobs {
		srcs := j.PrimarySwiftSources()
		deps := j.OutputsOfType(job.TypeSwiftDeps)
		if len(srcs) != 1 || len(deps) != 1 {
			return nil, &depgraph.ConsistencyError{
				Message: fmt.Sprintf("compile job %q must have one primary source and one swiftdeps output", j.Description()),
			}
		}
		src := srcs[0]
		if err := s.tracker.Register(src, deps[0].File); err != nil {
			return nil, err
		}
		if _, dup := s.jobsBySource[src]; dup {
			return nil, &depgraph.ConsistencyError{Message: fmt.Sprintf("%s is compiled by two jobs", src)}
		}
		s.order[src] = len(s.sources)
		s.sources = append(s.sources, src)
		s.jobsBySource[src] = j
	}

	prior, err := s.readPriors(ctx)
	if err != nil {
		s.priorsErr = err
		s.reporter.disabled(err.Error())
		slog.Info("incremental build disabled", "module", cfg.Module, "reason", err)
		s.graph = depgraph.NewGraph()
		for _, src := range s.sources {
			s.schedule(src)
		}
		return s, nil
	}

	first, reasons := s.computeFirstWave(prior)
	for _, src := range first {
		s.schedule(src)
		s.reporter.queuedInitial(src, reasons[src])
	}
	for _, src := range s.sources {
		if _, ok := s.scheduled[s.jobsBySource[src]]; !ok {
			s.reporter.skipped(src)
		}
	}
	slog.Debug("incremental first wave",
		"module", cfg.Module,
		"scheduled", len(s.mandatory),
		"skipped", len(s.sources)-len(s.mandatory),
	)
	return s, nil
}

func (s *State) readPriors(ctx context.Context) (*store.BuildRecord, error) {
	if s.cfg.Store == nil {
		return nil, fmt.Errorf("%w: no build state store", ErrPriorsUnavailable)
	}
	rec, err := s.cfg.Store.ReadBuildRecord(ctx, s.cfg.Module)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriorsUnavailable, err)
	}
	if rec.FormatVersion != ir.GraphFormatVersion {
		return nil, fmt.Errorf("%w: graph format %d, expected %d", ErrPriorsUnavailable, rec.FormatVersion, ir.GraphFormatVersion)
	}
	if rec.OptionsHash != s.cfg.OptionsHash {
		return nil, fmt.Errorf("%w: build options changed", ErrPriorsUnavailable)
	}
	snap, err := depgraph.DecodeSnapshot(rec.Graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriorsUnavailable, err)
	}
	g, err := depgraph.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriorsUnavailable, err)
	}
	s.graph = g
	return rec, nil
}

// computeFirstWave returns the sources to compile before anything new is
// known, in input order, with the reason each was chosen.
func (s *State) computeFirstWave(prior *store.BuildRecord) ([]string, map[string]string) {
	reasons := make(map[string]string)
	mark := func(src, reason string) {
		if _, ok := s.jobsBySource[src]; !ok {
			return
		}
		if _, ok := reasons[src]; !ok {
			reasons[src] = reason
		}
	}

	priorTimes := make(map[string]time.Time, len(prior.Inputs))
	for _, in := range prior.Inputs {
		priorTimes[in.Path] = in.ModTime
	}

	for _, src := range s.sources {
		was, known := priorTimes[src]
		switch {
		case !known:
			mark(src, "added")
		case was.IsZero():
			mark(src, "did not compile last time")
		case !was.Equal(s.cfg.ModTimes[src]):
			mark(src, "modified")
		case !s.graph.Contains(src):
			mark(src, "no dependency record")
		case s.outputsMissing(src):
			mark(src, "output missing")
		}
	}

	for _, removed := range s.graph.Files() {
		if _, ok := s.jobsBySource[removed]; !ok {
			keys := s.graph.Remove(removed)
			for _, user := range s.graph.FilesAffectedBy(keys, removed) {
				mark(user, "uses a removed file")
			}
		}
	}

	for _, ext := range s.graph.ExternalDependencies() {
		if !s.externalChanged(ext, prior.BuildStart) {
			continue
		}
		for _, user := range s.graph.FilesAffectedBy([]depgraph.Key{depgraph.External(ext)}, "") {
			mark(user, "external dependency changed: "+ext)
		}
	}

	first := make([]string, 0, len(reasons))
	for src := range reasons {
		first = append(first, src)
	}
	s.sortByInputOrder(first)
	return first, reasons
}

func (s *State) outputsMissing(src string) bool {
	for _, out := range s.jobsBySource[src].Outputs {
		if !s.cfg.FS.Exists(out.File) {
			return true
		}
	}
	return false
}

// externalChanged treats a dependency that cannot be stat'ed as changed.
func (s *State) externalChanged(path string, since time.Time) bool {
	mod, err := s.cfg.FS.ModTime(path)
	if err != nil {
		return true
	}
	return mod.After(since)
}

func (s *State) schedule(src string) {
	j := s.jobsBySource[src]
	s.scheduled[j] = struct{}{}
	s.mandatory = append(s.mandatory, j)
}

func (s *State) sortByInputOrder(srcs []string) {
	slices.SortFunc(srcs, func(a, b string) int { return s.order[a] - s.order[b] })
}

// PriorsError reports why incremental mode was disabled, or nil.
func (s *State) PriorsError() error {
	return s.priorsErr
}

// Graph returns the dependency graph. Callers must not mutate it while a
// build is running.
func (s *State) Graph() *depgraph.Graph {
	return s.graph
}

// MandatoryJobs returns the first-wave compile jobs in input order.
func (s *State) MandatoryJobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.mandatory)
}

// PostCompileJobs returns the jobs that wait for fixpoint.
func (s *State) PostCompileJobs() []*job.Job {
	return slices.Clone(s.cfg.PostCompileJobs)
}

// SkippedJobs returns the compile jobs not scheduled so far, in input
// order. After fixpoint this is the final skipped set.
func (s *State) SkippedJobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, src := range s.sources {
		j := s.jobsBySource[src]
		if _, ok := s.scheduled[j]; !ok {
			out = append(out, j)
		}
	}
	return out
}

// CollectJobsDiscoveredByCompletion integrates the result of a finished
// compile and returns the compile jobs it newly implicates.
//
// A failed compile discovers nothing. A compile whose dependency record
// cannot be read is assumed to have changed everything it provided.
func (s *State) CollectJobsDiscoveredByCompletion(finished *job.Job, succeeded bool) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finished[finished]; ok {
		return nil, &depgraph.ConsistencyError{Message: fmt.Sprintf("%q finished twice", finished.Description())}
	}
	s.finished[finished] = struct{}{}
	if !succeeded {
		return nil, nil
	}

	var discovered []string
	seen := make(map[string]struct{})
	for _, out := range finished.OutputsOfType(job.TypeSwiftDeps) {
		src, err := s.tracker.SourceFor(out.File)
		if err != nil {
			return nil, err
		}
		changed, err := s.integrate(src)
		if err != nil {
			return nil, err
		}
		for _, user := range s.graph.FilesAffectedBy(changed, src) {
			j, ok := s.jobsBySource[user]
			if !ok {
				continue
			}
			if _, ok := s.scheduled[j]; ok {
				continue
			}
			if _, ok := seen[user]; ok {
				continue
			}
			seen[user] = struct{}{}
			discovered = append(discovered, user)
			s.reporter.queuedDiscovered(user, src)
		}
	}

	s.sortByInputOrder(discovered)
	jobs := make([]*job.Job, len(discovered))
	for i, src := range discovered {
		jobs[i] = s.jobsBySource[src]
		s.scheduled[jobs[i]] = struct{}{}
	}
	return jobs, nil
}

// integrate reads the fresh record of src and merges it into the graph,
// returning the provided keys that changed.
func (s *State) integrate(src string) ([]depgraph.Key, error) {
	depsPath, err := s.tracker.SwiftDepsFor(src)
	if err != nil {
		return nil, err
	}

	rec, err := s.readRecord(depsPath)
	if err != nil {
		s.reporter.unreadableRecord(src, err)
		slog.Warn("unreadable dependency record", "file", src, "swiftdeps", depsPath, "error", err)
		return s.graph.Remove(src), nil
	}

	s.succeeded[src] = struct{}{}
	return s.graph.Integrate(src, rec), nil
}

func (s *State) readRecord(path string) (*depgraph.Record, error) {
	data, err := s.cfg.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return depgraph.ParseRecord(data)
}

// FixpointReached reports whether every scheduled compile has finished.
func (s *State) FixpointReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for j := range s.scheduled {
		if _, ok := s.finished[j]; !ok {
			return false
		}
	}
	return true
}

// WritePriors persists the graph and input timestamps. Inputs that were
// scheduled but did not compile successfully are stored with a zero
// timestamp so the next build recompiles them.
func (s *State) WritePriors(ctx context.Context, buildEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Store == nil {
		return nil
	}

	data, err := depgraph.EncodeSnapshot(s.graph.Snapshot())
	if err != nil {
		return fmt.Errorf("write priors: %w", err)
	}

	inputs := make([]store.Input, 0, len(s.sources))
	for _, src := range s.sources {
		in := store.Input{Path: src, ModTime: s.cfg.ModTimes[src]}
		if _, ok := s.scheduled[s.jobsBySource[src]]; ok {
			if _, ok := s.succeeded[src]; !ok {
				in.ModTime = time.Time{}
			}
		}
		inputs = append(inputs, in)
	}

	rec := store.BuildRecord{
		Module:        s.cfg.Module,
		FormatVersion: ir.GraphFormatVersion,
		DriverVersion: ir.DriverVersion,
		BuildID:       s.cfg.IDs.Generate(),
		OptionsHash:   s.cfg.OptionsHash,
		BuildStart:    s.cfg.BuildStart,
		BuildEnd:      buildEnd,
		Graph:         data,
		Inputs:        inputs,
	}
	if err := s.cfg.Store.WriteBuildRecord(ctx, rec); err != nil {
		return fmt.Errorf("write priors: %w", err)
	}
	slog.Info("wrote build record", "module", s.cfg.Module, "build_id", rec.BuildID, "inputs", len(inputs))
	return nil
}
