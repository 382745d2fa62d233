package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/swiftdriver/internal/planner"
)

//go:embed schema.cue
var schemaSource string

// Error code constants.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeSchema     = "E201" // Manifest does not satisfy the schema
	ErrCodeBadPattern = "E202" // Malformed source glob
	ErrCodeNoSources  = "E203" // Source glob matched nothing
	ErrCodeBadMode    = "E204" // Mode incompatible with the manifest
)

// LoadError is a manifest error, positioned when CUE knows where.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// IsLoadError returns true if err is a LoadError with the given code.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// Manifest is a compiled build manifest.
type Manifest struct {
	// Dir is the directory the manifest was loaded from. Relative paths in
	// the manifest are resolved against it.
	Dir string

	Options   planner.Options
	Toolchain planner.StaticToolchain
}

// Load reads the manifest at path, which is either a .cue file or a
// directory whose .cue files form one package.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}

	ctx := cuecontext.New()
	var value cue.Value
	dir := abs

	if info.IsDir() {
		files, err := doublestar.Glob(os.DirFS(abs), "*.cue", doublestar.WithFilesOnly())
		if err != nil || len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		if inst := instances[0]; inst.Err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		value = ctx.CompileBytes(data, cue.Filename(abs))
		dir = filepath.Dir(abs)
	}
	if err := value.Err(); err != nil {
		return nil, positioned(ErrCodeBuildFailed, err)
	}
	return Compile(value, dir)
}

// Compile turns a CUE value into a Manifest. Relative paths resolve
// against dir, which must exist for source globs to expand.
func Compile(v cue.Value, dir string) (*Manifest, error) {
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, positioned(ErrCodeGeneric, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, positioned(ErrCodeSchema, err)
	}

	var raw struct {
		Module           string   `json:"module"`
		Sources          []string `json:"sources"`
		Kind             string   `json:"kind"`
		Mode             string   `json:"mode"`
		Output           string   `json:"output"`
		ModuleOutput     string   `json:"moduleOutput"`
		EmitModule       bool     `json:"emitModule"`
		Incremental      bool     `json:"incremental"`
		ExplicitModules  bool     `json:"explicitModules"`
		FrontendFlags    []string `json:"frontendFlags"`
		LinkerFlags      []string `json:"linkerFlags"`
		WorkingDirectory string   `json:"workingDirectory"`
		BuildDirectory   string   `json:"buildDirectory"`
		Toolchain        struct {
			Frontend    string `json:"frontend"`
			Linker      string `json:"linker"`
			Clang       string `json:"clang"`
			LLDB        string `json:"lldb"`
			ResourceDir string `json:"resourceDir"`
		} `json:"toolchain"`
	}
	if err := unified.Decode(&raw); err != nil {
		return nil, positioned(ErrCodeSchema, err)
	}

	wd := raw.WorkingDirectory
	if !filepath.IsAbs(wd) {
		wd = filepath.Join(dir, wd)
	}

	mode := planner.Mode(raw.Mode)
	if mode == planner.ModeCompile && raw.Toolchain.Linker == "" && raw.Kind != string(planner.OutputNone) {
		return nil, &LoadError{
			Code:    ErrCodeSchema,
			Field:   "toolchain.linker",
			Message: "a linker is required to build a " + raw.Kind,
			Pos:     unified.LookupPath(cue.ParsePath("toolchain")).Pos(),
		}
	}
	if mode == planner.ModeREPL && raw.Toolchain.LLDB == "" {
		return nil, &LoadError{
			Code:    ErrCodeBadMode,
			Field:   "toolchain.lldb",
			Message: "repl mode needs lldb",
			Pos:     unified.LookupPath(cue.ParsePath("mode")).Pos(),
		}
	}

	resourceDir := raw.Toolchain.ResourceDir
	if resourceDir == "" {
		resourceDir = defaultResourceDir(raw.Toolchain.Frontend)
	}

	sources, err := ExpandSources(wd, raw.Sources)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && !le.Pos.IsValid() {
			le.Pos = unified.LookupPath(cue.ParsePath("sources")).Pos()
		}
		return nil, err
	}

	return &Manifest{
		Dir: dir,
		Options: planner.Options{
			ModuleName:       raw.Module,
			Inputs:           sources,
			OutputKind:       planner.OutputKind(raw.Kind),
			OutputPath:       raw.Output,
			EmitModule:       raw.EmitModule,
			ModuleOutputPath: raw.ModuleOutput,
			Incremental:      raw.Incremental,
			ExplicitModules:  raw.ExplicitModules,
			Mode:             mode,
			FrontendFlags:    raw.FrontendFlags,
			LinkerFlags:      raw.LinkerFlags,
			WorkingDirectory: wd,
			BuildDirectory:   raw.BuildDirectory,
		},
		Toolchain: planner.StaticToolchain{
			Frontend: raw.Toolchain.Frontend,
			Linker:   raw.Toolchain.Linker,
			Clang:    raw.Toolchain.Clang,
			LLDB:     raw.Toolchain.LLDB,
			Resource: resourceDir,
		},
	}, nil
}

// defaultResourceDir is lib/swift next to the frontend's bin directory.
func defaultResourceDir(frontend string) string {
	if !filepath.IsAbs(frontend) {
		return ""
	}
	return filepath.Join(filepath.Dir(filepath.Dir(frontend)), "lib", "swift")
}

// ExpandSources expands doublestar patterns relative to dir into a sorted,
// duplicate-free list of absolute paths. Every pattern must match at least
// one file.
func ExpandSources(dir string, patterns []string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		if filepath.IsAbs(pattern) || !doublestar.ValidatePattern(pattern) {
			return nil, &LoadError{Code: ErrCodeBadPattern, Field: "sources", Message: fmt.Sprintf("invalid pattern %q", pattern)}
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadPattern, Field: "sources", Message: fmt.Sprintf("pattern %q: %v", pattern, err)}
		}
		if len(matches) == 0 {
			return nil, &LoadError{Code: ErrCodeNoSources, Field: "sources", Message: fmt.Sprintf("pattern %q matched no files", pattern)}
		}
		for _, m := range matches {
			p := filepath.Join(dir, filepath.FromSlash(m))
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out, nil
}

// positioned converts a CUE error into a LoadError carrying the position
// of its first error.
func positioned(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
