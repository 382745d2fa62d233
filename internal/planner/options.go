package planner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/swiftdriver/internal/ir"
	"github.com/roach88/swiftdriver/internal/job"
)

// OutputKind is the linked product of a build.
type OutputKind string

const (
	OutputExecutable    OutputKind = "executable"
	OutputLibrary       OutputKind = "library"
	OutputStaticLibrary OutputKind = "static"
	OutputNone          OutputKind = "none"
)

// Mode selects between compiling and running in place.
type Mode string

const (
	ModeCompile   Mode = "compile"
	ModeImmediate Mode = "immediate"
	ModeREPL      Mode = "repl"
)

// Options is the resolved, validated option set of one build. Paths may
// be relative to WorkingDirectory.
type Options struct {
	ModuleName string
	Inputs     []string

	OutputKind OutputKind
	OutputPath string

	EmitModule       bool
	ModuleOutputPath string

	Incremental     bool
	ExplicitModules bool
	Mode            Mode

	FrontendFlags []string
	LinkerFlags   []string

	WorkingDirectory string
	BuildDirectory   string
}

// normalize fills defaults and makes every path absolute.
func (o Options) normalize() Options {
	if o.Mode == "" {
		o.Mode = ModeCompile
	}
	if o.OutputKind == "" {
		o.OutputKind = OutputExecutable
	}
	if o.BuildDirectory == "" {
		o.BuildDirectory = ".build"
	}
	o.BuildDirectory = o.abs(o.BuildDirectory)

	inputs := make([]string, len(o.Inputs))
	for i, in := range o.Inputs {
		inputs[i] = o.abs(in)
	}
	o.Inputs = inputs

	if o.OutputPath == "" {
		o.OutputPath = filepath.Join(o.BuildDirectory, defaultProductName(o.ModuleName, o.OutputKind))
	}
	o.OutputPath = o.abs(o.OutputPath)
	if o.ModuleOutputPath == "" {
		o.ModuleOutputPath = filepath.Join(o.BuildDirectory, o.ModuleName+".swiftmodule")
	}
	o.ModuleOutputPath = o.abs(o.ModuleOutputPath)
	return o
}

func (o Options) abs(p string) string {
	if filepath.IsAbs(p) || o.WorkingDirectory == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(o.WorkingDirectory, p)
}

func defaultProductName(module string, kind OutputKind) string {
	switch kind {
	case OutputLibrary:
		return "lib" + module + ".so"
	case OutputStaticLibrary:
		return "lib" + module + ".a"
	}
	return module
}

func (o Options) validate() error {
	if !isIdentifier(o.ModuleName) {
		return invalidOptions("module name %q is not a valid identifier", o.ModuleName)
	}
	switch o.Mode {
	case ModeCompile, ModeImmediate, ModeREPL:
	default:
		return invalidOptions("unknown mode %q", o.Mode)
	}
	switch o.OutputKind {
	case OutputExecutable, OutputLibrary, OutputStaticLibrary, OutputNone:
	default:
		return invalidOptions("unknown output kind %q", o.OutputKind)
	}
	if len(o.Inputs) == 0 && o.Mode != ModeREPL {
		return invalidOptions("no input files")
	}

	seen := make(map[string]struct{}, len(o.Inputs))
	for _, in := range o.Inputs {
		if filepath.Ext(in) != ".swift" {
			return invalidOptions("input %s is not a Swift source file", in)
		}
		if _, dup := seen[in]; dup {
			return invalidOptions("input %s given twice", in)
		}
		seen[in] = struct{}{}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Hash fingerprints the options that change what the compiler produces.
// Priors written under a different hash are not reused.
func (o Options) Hash() (string, error) {
	h, err := ir.Fingerprint(ir.DomainOptions, struct {
		Module          string   `json:"module"`
		OutputKind      string   `json:"outputKind"`
		EmitModule      bool     `json:"emitModule"`
		ExplicitModules bool     `json:"explicitModules"`
		FrontendFlags   []string `json:"frontendFlags"`
	}{o.ModuleName, string(o.OutputKind), o.EmitModule, o.ExplicitModules, o.FrontendFlags})
	if err != nil {
		return "", fmt.Errorf("hash options: %w", err)
	}
	return h, nil
}

// StaticToolchain is a Toolchain with fixed paths.
type StaticToolchain struct {
	Frontend string
	Linker   string
	Clang    string
	LLDB     string
	Resource string
}

// ToolPath implements job.ToolLocator.
func (t StaticToolchain) ToolPath(tool job.Tool) (string, error) {
	var p string
	switch tool {
	case job.ToolFrontend:
		p = t.Frontend
	case job.ToolLinker:
		p = t.Linker
	case job.ToolClang:
		p = t.Clang
	case job.ToolLLDB:
		p = t.LLDB
	}
	if p == "" {
		return "", fmt.Errorf("toolchain has no %s", tool)
	}
	return p, nil
}

// ResourceDir implements job.ToolLocator.
func (t StaticToolchain) ResourceDir() string {
	return t.Resource
}

// objectBase returns the stem used for a source's per-file outputs.
func objectBase(src string) string {
	return strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
}
