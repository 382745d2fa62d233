package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/roach88/swiftdriver/internal/job"
	"github.com/roach88/swiftdriver/internal/moduledeps"
)

// moduleArtifact is the compiled form of one module dependency.
type moduleArtifact struct {
	id   moduledeps.ID
	path job.TypedPath
}

// arg returns the frontend argument that hands the artifact to a compile.
func (a moduleArtifact) arg() job.Arg {
	if a.id.Kind == moduledeps.KindClang {
		return job.JoinedPath{Prefix: "-fmodule-file=" + a.id.Name + "=", Path: a.path.File}
	}
	return job.JoinedPath{Prefix: "-swift-module-file=" + a.id.Name + "=", Path: a.path.File}
}

// ScanCommandLine returns the arguments used to scan the main module.
func (o Options) ScanCommandLine() []string {
	args := []string{"-module-name", o.ModuleName}
	args = append(args, o.FrontendFlags...)
	return append(args, o.Inputs...)
}

// planModules scans the main module, forms one job per module that must be
// built, and returns the artifacts the main module's compiles consume.
func (d *Driver) planModules(ctx context.Context, plan *Plan) ([]moduleArtifact, error) {
	if d.oracle == nil {
		return nil, invalidOptions("explicit module builds need a dependency scanner")
	}
	opts := plan.Options

	scanned, err := d.oracle.Scan(ctx, opts.WorkingDirectory, opts.ScanCommandLine())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", opts.ModuleName, err)
	}
	if err := d.oracle.Merge(scanned); err != nil {
		return nil, fmt.Errorf("merge %s: %w", opts.ModuleName, err)
	}
	g, err := d.oracle.Graph(opts.ModuleName)
	if err != nil {
		return nil, moduleGraphError(err)
	}

	order, err := moduledeps.TopologicalOrder(g)
	if err != nil {
		return nil, moduleGraphError(err)
	}
	closure, err := moduledeps.TransitiveClosure(g)
	if err != nil {
		return nil, moduleGraphError(err)
	}
	plan.ModuleGraph = g

	moduleDir := filepath.Join(opts.BuildDirectory, "modules")
	built := make(map[moduledeps.ID]moduleArtifact, len(order))
	main := g.MainModuleID()

	// The shared map also holds modules merged for other targets.
	needed := closure[main]
	for _, id := range order {
		if id == main || !needed.Has(id) {
			continue
		}
		info := g.Modules[id]
		var deps []moduleArtifact
		for _, dep := range closure[id].Sorted() {
			deps = append(deps, built[dep])
		}

		switch det := info.Details.(type) {
		case *moduledeps.SwiftPrebuiltDetails:
			built[id] = moduleArtifact{id: id, path: job.TypedPath{File: det.CompiledModulePath, Type: job.TypeSwiftModule}}
		case *moduledeps.SwiftTextualDetails:
			out := filepath.Join(moduleDir, moduleFileName(id.Name, det.ContextHash, ".swiftmodule"))
			a := moduleArtifact{id: id, path: job.TypedPath{File: out, Type: job.TypeSwiftModule}}
			plan.ModuleJobs = append(plan.ModuleJobs, interfaceJob(id, det, a, deps))
			built[id] = a
		case *moduledeps.ClangDetails:
			out := filepath.Join(moduleDir, moduleFileName(id.Name, det.ContextHash, ".pcm"))
			a := moduleArtifact{id: id, path: job.TypedPath{File: out, Type: job.TypePCM}}
			plan.ModuleJobs = append(plan.ModuleJobs, pcmJob(id, det, a, deps))
			built[id] = a
		default:
			return nil, &PlanningError{
				Code:    ErrCodeUnresolvedPlaceholder,
				Message: id.String(),
				Err:     moduledeps.ErrUnresolvedPlaceholder,
			}
		}
	}

	var artifacts []moduleArtifact
	for _, dep := range closure[main].Sorted() {
		artifacts = append(artifacts, built[dep])
	}
	return artifacts, nil
}

func moduleGraphError(err error) error {
	switch {
	case errors.Is(err, moduledeps.ErrUnresolvedPlaceholder):
		return &PlanningError{Code: ErrCodeUnresolvedPlaceholder, Message: "module graph has unresolved placeholders", Err: err}
	case errors.Is(err, moduledeps.ErrCycle):
		return &PlanningError{Code: ErrCodeModuleCycle, Message: "module graph is cyclic", Err: err}
	}
	return fmt.Errorf("module graph: %w", err)
}

func moduleFileName(name, contextHash, ext string) string {
	if contextHash == "" {
		return name + ext
	}
	return name + "-" + contextHash + ext
}

func interfaceJob(id moduledeps.ID, det *moduledeps.SwiftTextualDetails, out moduleArtifact, deps []moduleArtifact) *job.Job {
	iface := job.TypedPath{File: det.ModuleInterfacePath, Type: job.TypeSwiftInterface}
	j := &job.Job{
		ModuleName:            id.Name,
		Kind:                  job.KindCompileModuleFromInterface,
		Tool:                  job.ToolFrontend,
		DisplayInputs:         []job.TypedPath{iface},
		Inputs:                []job.TypedPath{iface},
		Outputs:               []job.TypedPath{out.path},
		SupportsResponseFiles: true,
	}
	args := job.Flags("-frontend", "-compile-module-from-interface", "-disable-implicit-swift-modules")
	args = append(args, job.Path(iface.File))
	args = append(args, job.Flags("-module-name", id.Name)...)
	args = append(args, job.Flags(det.CommandLine...)...)
	for _, d := range deps {
		args = append(args, d.arg())
		j.Inputs = append(j.Inputs, d.path)
	}
	args = append(args, job.Flag("-o"), job.Path(out.path.File))
	j.CommandLine = args
	return j
}

func pcmJob(id moduledeps.ID, det *moduledeps.ClangDetails, out moduleArtifact, deps []moduleArtifact) *job.Job {
	modmap := job.TypedPath{File: det.ModuleMapPath, Type: job.TypeClangModuleMap}
	j := &job.Job{
		ModuleName:            id.Name,
		Kind:                  job.KindGeneratePCM,
		Tool:                  job.ToolFrontend,
		DisplayInputs:         []job.TypedPath{modmap},
		Inputs:                []job.TypedPath{modmap},
		Outputs:               []job.TypedPath{out.path},
		SupportsResponseFiles: true,
	}
	args := job.Flags("-frontend", "-emit-pcm", "-module-name", id.Name)
	args = append(args, job.Path(modmap.File))
	args = append(args, job.Flags(det.CommandLine...)...)
	for _, d := range deps {
		args = append(args, d.arg())
		j.Inputs = append(j.Inputs, d.path)
	}
	args = append(args, job.Flag("-o"), job.Path(out.path.File))
	j.CommandLine = args
	return j
}
