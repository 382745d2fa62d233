package job

import (
	"fmt"
	"strings"
)

// Kind identifies what a job does.
type Kind string

const (
	KindCompile                    Kind = "compile"
	KindMergeModule                Kind = "merge-module"
	KindEmitModule                 Kind = "emit-module"
	KindLink                       Kind = "link"
	KindGeneratePCM                Kind = "generate-pcm"
	KindCompileModuleFromInterface Kind = "compile-module-from-interface"
	KindInterpret                  Kind = "interpret"
	KindREPL                       Kind = "repl"
)

// IsCompile reports whether jobs of this kind feed the incremental planner.
func (k Kind) IsCompile() bool {
	return k == KindCompile
}

// IsPostCompile reports whether jobs of this kind must wait for every
// compile job of the build to finish.
func (k Kind) IsPostCompile() bool {
	switch k {
	case KindMergeModule, KindLink:
		return true
	}
	return false
}

// verb is used in human-readable job descriptions.
func (k Kind) verb() string {
	switch k {
	case KindCompile:
		return "Compiling"
	case KindMergeModule:
		return "Merging module"
	case KindEmitModule:
		return "Emitting module"
	case KindLink:
		return "Linking"
	case KindGeneratePCM:
		return "Compiling Clang module"
	case KindCompileModuleFromInterface:
		return "Compiling Swift module"
	case KindInterpret:
		return "Interpreting"
	case KindREPL:
		return "Starting REPL"
	}
	return string(k)
}

// Tool names the executable a job runs. Tools are resolved to absolute
// paths through the toolchain when the job is launched.
type Tool string

const (
	ToolFrontend Tool = "swift-frontend"
	ToolLinker   Tool = "ld"
	ToolClang    Tool = "clang"
	ToolLLDB     Tool = "lldb"
)

// FileType tags a path with the role it plays for the tool.
type FileType string

const (
	TypeSwift           FileType = "swift"
	TypeObject          FileType = "object"
	TypeSwiftModule     FileType = "swiftmodule"
	TypeSwiftDoc        FileType = "swiftdoc"
	TypeSwiftSourceInfo FileType = "swiftsourceinfo"
	TypeSwiftDeps       FileType = "swiftdeps"
	TypeSwiftInterface  FileType = "swiftinterface"
	TypePCM             FileType = "pcm"
	TypeClangModuleMap  FileType = "modulemap"
	TypeImage           FileType = "image"
	TypeDiagnostics     FileType = "diagnostics"
	TypeResponseFile    FileType = "resp"
)

// TypedPath is a path together with its file type.
type TypedPath struct {
	File string   `json:"file"`
	Type FileType `json:"type"`
}

func (p TypedPath) String() string {
	return fmt.Sprintf("%s(%s)", p.Type, p.File)
}

// Job is one subprocess invocation. Jobs are never mutated after planning.
type Job struct {
	ModuleName string
	Kind       Kind
	Tool       Tool

	// CommandLine is the argument template, resolved at launch time.
	CommandLine []Arg

	// DisplayInputs are the inputs shown to users. For a compile job it is
	// the primary source file.
	DisplayInputs []TypedPath

	Inputs        []TypedPath
	PrimaryInputs []TypedPath
	Outputs       []TypedPath

	// RequiresInPlaceExecution means the job replaces the driver process
	// instead of running as a child. Nothing runs after such a job.
	RequiresInPlaceExecution bool

	SupportsResponseFiles bool
	ExtraEnvironment      map[string]string
}

// Description returns a short human-readable summary such as
// "Compiling App main.swift".
func (j *Job) Description() string {
	var b strings.Builder
	b.WriteString(j.Kind.verb())
	if j.ModuleName != "" {
		b.WriteString(" ")
		b.WriteString(j.ModuleName)
	}
	for _, in := range j.DisplayInputs {
		b.WriteString(" ")
		b.WriteString(baseName(in.File))
	}
	return b.String()
}

// OutputsOfType returns the outputs of the given type, in declaration order.
func (j *Job) OutputsOfType(t FileType) []TypedPath {
	var out []TypedPath
	for _, o := range j.Outputs {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return out
}

// PrimarySwiftSources returns the primary source paths of a compile job.
func (j *Job) PrimarySwiftSources() []string {
	var out []string
	for _, p := range j.PrimaryInputs {
		if p.Type == TypeSwift {
			out = append(out, p.File)
		}
	}
	return out
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
