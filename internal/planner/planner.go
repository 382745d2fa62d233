package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/swiftdriver/internal/incremental"
	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/moduledeps"
	"github.com/roach88/swiftdriver/internal/vfs"
)

// Toolchain locates the tools jobs run.
type Toolchain interface {
	job.ToolLocator
}

// Plan is the output of PlanBuild.
type Plan struct {
	Options Options

	// ModuleJobs build explicit module dependencies. They run before any
	// compile that consumes their outputs.
	ModuleJobs []*job.Job

	// CompileJobs has one job per source in input order.
	CompileJobs []*job.Job

	// PostCompileJobs consume the outputs of every compile.
	PostCompileJobs []*job.Job

	// InPlace is set for interpret and REPL builds; it is the only job.
	InPlace *job.Job

	// Incremental is nil for non-incremental builds.
	Incremental *incremental.State

	// ModuleGraph is the finalized dependency graph of explicit builds.
	ModuleGraph *moduledeps.Graph

	InputModTimes map[string]time.Time
	BuildStart    time.Time
	OptionsHash   string
}

// AllJobs returns every job the plan knows about.
func (p *Plan) AllJobs() []*job.Job {
	if p.InPlace != nil {
		return []*job.Job{p.InPlace}
	}
	all := make([]*job.Job, 0, len(p.ModuleJobs)+len(p.CompileJobs)+len(p.PostCompileJobs))
	all = append(all, p.ModuleJobs...)
	all = append(all, p.CompileJobs...)
	all = append(all, p.PostCompileJobs...)
	return all
}

// InitialJobs returns the jobs to schedule before anything completes.
// Incremental builds start with the first wave and leave post-compile
// jobs to the fixpoint; other builds start with everything.
func (p *Plan) InitialJobs() []*job.Job {
	if p.Incremental == nil {
		return p.AllJobs()
	}
	initial := make([]*job.Job, 0, len(p.ModuleJobs)+len(p.CompileJobs))
	initial = append(initial, p.ModuleJobs...)
	initial = append(initial, p.Incremental.MandatoryJobs()...)
	return initial
}

// Driver plans builds for one option set.
type Driver struct {
	opts      Options
	toolchain Toolchain
	fs        vfs.FileSystem

	store    incremental.PriorsStore
	oracle   *moduledeps.Oracle
	reporter *incremental.Reporter
	ids      incremental.IDGenerator
	now      func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithStore sets where incremental priors are read and written.
func WithStore(s incremental.PriorsStore) Option {
	return func(d *Driver) { d.store = s }
}

// WithOracle sets the dependency oracle used by explicit module builds.
func WithOracle(o *moduledeps.Oracle) Option {
	return func(d *Driver) { d.oracle = o }
}

// WithReporter enables incremental remarks.
func WithReporter(r *incremental.Reporter) Option {
	return func(d *Driver) { d.reporter = r }
}

// WithIDGenerator sets the build ID source.
func WithIDGenerator(ids incremental.IDGenerator) Option {
	return func(d *Driver) { d.ids = ids }
}

// WithClock sets the clock used for the build start time.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New returns a Driver for opts.
func New(opts Options, toolchain Toolchain, fs vfs.FileSystem, options ...Option) *Driver {
	d := &Driver{
		opts:      opts.normalize(),
		toolchain: toolchain,
		fs:        fs,
		now:       time.Now,
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Options returns the normalized option set.
func (d *Driver) Options() Options {
	return d.opts
}

// PlanBuild forms the jobs of one build. Any error is fatal and nothing
// should run.
func (d *Driver) PlanBuild(ctx context.Context) (*Plan, error) {
	opts := d.opts
	if err := opts.validate(); err != nil {
		return nil, err
	}

	hash, err := opts.Hash()
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Options:       opts,
		BuildStart:    d.now(),
		OptionsHash:   hash,
		InputModTimes: make(map[string]time.Time, len(opts.Inputs)),
	}
	for _, in := range opts.Inputs {
		mt, err := d.fs.ModTime(in)
		if err != nil {
			return nil, &PlanningError{Code: ErrCodeInvalidOptions, Message: "input " + in + " is unreadable", Err: err}
		}
		plan.InputModTimes[in] = mt
	}

	if opts.Mode != ModeCompile {
		j, err := inPlaceJob(opts)
		if err != nil {
			return nil, err
		}
		plan.InPlace = j
		return plan, nil
	}

	var artifacts []moduleArtifact
	if opts.ExplicitModules {
		if artifacts, err = d.planModules(ctx, plan); err != nil {
			return nil, err
		}
	}

	for _, src := range opts.Inputs {
		plan.CompileJobs = append(plan.CompileJobs, compileJob(opts, src, artifacts))
	}
	plan.PostCompileJobs = postCompileJobs(opts, plan.CompileJobs)

	if _, err := job.NewProducerMap(plan.AllJobs()); err != nil {
		var dup *job.DuplicateOutputError
		if errors.As(err, &dup) {
			return nil, &PlanningError{Code: ErrCodeDuplicateOutput, Message: dup.Path, Err: err}
		}
		return nil, err
	}

	if opts.Incremental {
		state, err := incremental.New(ctx, incremental.Config{
			Module:          opts.ModuleName,
			CompileJobs:     plan.CompileJobs,
			PostCompileJobs: plan.PostCompileJobs,
			ModTimes:        plan.InputModTimes,
			BuildStart:      plan.BuildStart,
			OptionsHash:     hash,
			FS:              d.fs,
			Store:           d.store,
			Reporter:        d.reporter,
			IDs:             d.ids,
		})
		if err != nil {
			return nil, fmt.Errorf("incremental state: %w", err)
		}
		plan.Incremental = state
	}

	slog.Debug("planned build",
		"module", opts.ModuleName,
		"module_jobs", len(plan.ModuleJobs),
		"compile_jobs", len(plan.CompileJobs),
		"post_compile_jobs", len(plan.PostCompileJobs),
		"incremental", opts.Incremental)
	return plan, nil
}

func inPlaceJob(opts Options) (*job.Job, error) {
	switch {
	case opts.Incremental:
		return nil, &PlanningError{Code: ErrCodeInPlaceConflict, Message: "incremental builds cannot run in place"}
	case opts.EmitModule:
		return nil, &PlanningError{Code: ErrCodeInPlaceConflict, Message: "emitting a module cannot be combined with running in place"}
	case opts.ExplicitModules:
		return nil, &PlanningError{Code: ErrCodeInPlaceConflict, Message: "explicit module builds cannot run in place"}
	}

	j := &job.Job{
		ModuleName:               opts.ModuleName,
		RequiresInPlaceExecution: true,
	}
	for _, in := range opts.Inputs {
		j.Inputs = append(j.Inputs, job.TypedPath{File: in, Type: job.TypeSwift})
	}
	j.DisplayInputs = j.Inputs

	if opts.Mode == ModeREPL {
		j.Kind = job.KindREPL
		j.Tool = job.ToolLLDB
		j.CommandLine = job.Flags("--repl=-module-name " + opts.ModuleName)
		return j, nil
	}

	j.Kind = job.KindInterpret
	j.Tool = job.ToolFrontend
	j.CommandLine = job.Flags("-frontend", "-interpret")
	for _, in := range opts.Inputs {
		j.CommandLine = append(j.CommandLine, job.Path(in))
	}
	j.CommandLine = append(j.CommandLine, job.Flags("-module-name", opts.ModuleName, "-resource-dir")...)
	j.CommandLine = append(j.CommandLine, job.Resource(""))
	j.CommandLine = append(j.CommandLine, job.Flags(opts.FrontendFlags...)...)
	return j, nil
}

func compileJob(opts Options, src string, artifacts []moduleArtifact) *job.Job {
	base := filepath.Join(opts.BuildDirectory, objectBase(src))
	obj := job.TypedPath{File: base + ".o", Type: job.TypeObject}
	deps := job.TypedPath{File: base + ".swiftdeps", Type: job.TypeSwiftDeps}
	primary := job.TypedPath{File: src, Type: job.TypeSwift}

	j := &job.Job{
		ModuleName:            opts.ModuleName,
		Kind:                  job.KindCompile,
		Tool:                  job.ToolFrontend,
		DisplayInputs:         []job.TypedPath{primary},
		PrimaryInputs:         []job.TypedPath{primary},
		Outputs:               []job.TypedPath{obj, deps},
		SupportsResponseFiles: true,
	}

	args := job.Flags("-frontend", "-c")
	for _, in := range opts.Inputs {
		if in == src {
			args = append(args, job.Flag("-primary-file"))
		}
		args = append(args, job.Path(in))
		j.Inputs = append(j.Inputs, job.TypedPath{File: in, Type: job.TypeSwift})
	}
	args = append(args, job.Flags("-module-name", opts.ModuleName, "-resource-dir")...)
	args = append(args, job.Resource(""))
	args = append(args, job.Flags(opts.FrontendFlags...)...)

	if len(artifacts) > 0 {
		args = append(args, job.Flag("-disable-implicit-swift-modules"))
		for _, a := range artifacts {
			args = append(args, a.arg())
			j.Inputs = append(j.Inputs, a.path)
		}
	}

	args = append(args, job.Flag("-emit-reference-dependencies-path"), job.Path(deps.File))
	if opts.EmitModule {
		partial := job.TypedPath{File: base + "~partial.swiftmodule", Type: job.TypeSwiftModule}
		j.Outputs = append(j.Outputs, partial)
		args = append(args, job.Flag("-emit-module-path"), job.Path(partial.File))
	}
	args = append(args, job.Flag("-o"), job.Path(obj.File))
	j.CommandLine = args
	return j
}

func postCompileJobs(opts Options, compiles []*job.Job) []*job.Job {
	var post []*job.Job

	if opts.EmitModule {
		merge := &job.Job{
			ModuleName:            opts.ModuleName,
			Kind:                  job.KindMergeModule,
			Tool:                  job.ToolFrontend,
			SupportsResponseFiles: true,
		}
		args := job.Flags("-frontend", "-merge-modules", "-emit-module")
		for _, c := range compiles {
			for _, p := range c.OutputsOfType(job.TypeSwiftModule) {
				merge.Inputs = append(merge.Inputs, p)
				args = append(args, job.Path(p.File))
			}
		}
		doc := trimExt(opts.ModuleOutputPath) + ".swiftdoc"
		merge.Outputs = []job.TypedPath{
			{File: opts.ModuleOutputPath, Type: job.TypeSwiftModule},
			{File: doc, Type: job.TypeSwiftDoc},
		}
		args = append(args, job.Flags("-module-name", opts.ModuleName)...)
		args = append(args, job.Flag("-emit-module-doc-path"), job.Path(doc))
		args = append(args, job.Flag("-o"), job.Path(opts.ModuleOutputPath))
		merge.CommandLine = args
		post = append(post, merge)
	}

	if opts.OutputKind != OutputNone {
		link := &job.Job{
			ModuleName:            opts.ModuleName,
			Kind:                  job.KindLink,
			Tool:                  job.ToolLinker,
			Outputs:               []job.TypedPath{{File: opts.OutputPath, Type: job.TypeImage}},
			SupportsResponseFiles: true,
		}
		var args []job.Arg
		switch opts.OutputKind {
		case OutputLibrary:
			args = append(args, job.Flag("-shared"))
		case OutputStaticLibrary:
			args = append(args, job.Flag("-static"))
		}
		for _, c := range compiles {
			for _, p := range c.OutputsOfType(job.TypeObject) {
				link.Inputs = append(link.Inputs, p)
				args = append(args, job.Path(p.File))
			}
		}
		args = append(args, job.Flags(opts.LinkerFlags...)...)
		args = append(args, job.Flag("-o"), job.Path(opts.OutputPath))
		link.CommandLine = args
		post = append(post, link)
	}
	return post
}

func trimExt(p string) string {
	return p[:len(p)-len(filepath.Ext(p))]
}
