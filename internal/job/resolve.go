package job

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/swiftdriver/internal/vfs"
)

// DefaultResponseFileThreshold is the joined argument size, in bytes,
// above which a job that supports response files gets one.
const DefaultResponseFileThreshold = 32 * 1024

// ToolLocator resolves tools and toolchain resources to absolute paths.
type ToolLocator interface {
	ToolPath(tool Tool) (string, error)
	ResourceDir() string
}

// Invocation is a fully resolved command line.
type Invocation struct {
	Executable string
	Args       []string
	Env        []string

	// ResponseFile is set when the arguments were spilled to a file. Args
	// then holds the single "@path" argument.
	ResponseFile string
}

// Resolver turns argument templates into concrete command lines.
type Resolver struct {
	tools      ToolLocator
	fs         vfs.FileSystem
	workingDir string
	threshold  int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResponseFileThreshold sets the spill threshold in bytes. A value of
// zero or less disables response files.
func WithResponseFileThreshold(n int) ResolverOption {
	return func(r *Resolver) {
		r.threshold = n
	}
}

// WithWorkingDirectory makes relative paths absolute against dir.
func WithWorkingDirectory(dir string) ResolverOption {
	return func(r *Resolver) {
		r.workingDir = dir
	}
}

// NewResolver creates a resolver backed by tools for executable and
// resource lookup and fs for response files.
func NewResolver(tools ToolLocator, fs vfs.FileSystem, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tools:     tools,
		fs:        fs,
		threshold: DefaultResponseFileThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve expands the job's argument template.
func (r *Resolver) Resolve(j *Job) (*Invocation, error) {
	exe, err := r.tools.ToolPath(j.Tool)
	if err != nil {
		return nil, fmt.Errorf("resolve tool %s: %w", j.Tool, err)
	}

	args, err := r.ResolveArgs(j)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{Executable: exe, Args: args, Env: environment(j.ExtraEnvironment)}

	if j.SupportsResponseFiles && r.threshold > 0 && joinedLength(args) > r.threshold {
		path, err := r.fs.CreateTemp("arguments-*.resp", []byte(responseFileContents(args)))
		if err != nil {
			return nil, fmt.Errorf("write response file: %w", err)
		}
		inv.Args = []string{"@" + path}
		inv.ResponseFile = path
	}
	return inv, nil
}

// ResolveArgs expands the argument template without a response file.
func (r *Resolver) ResolveArgs(j *Job) ([]string, error) {
	args := make([]string, 0, len(j.CommandLine))
	for _, a := range j.CommandLine {
		switch a := a.(type) {
		case Flag:
			args = append(args, string(a))
		case Path:
			args = append(args, r.absolute(string(a)))
		case JoinedPath:
			args = append(args, a.Prefix+r.absolute(a.Path))
		case Resource:
			dir := r.tools.ResourceDir()
			if dir == "" {
				return nil, fmt.Errorf("resolve resource %q: toolchain has no resource directory", string(a))
			}
			args = append(args, filepath.Join(dir, string(a)))
		default:
			return nil, fmt.Errorf("unknown argument type %T", a)
		}
	}
	return args, nil
}

func (r *Resolver) absolute(p string) string {
	if r.workingDir == "" || filepath.IsAbs(p) || p == "-" {
		return p
	}
	return filepath.Join(r.workingDir, p)
}

func joinedLength(args []string) int {
	n := 0
	for _, a := range args {
		n += len(a) + 1
	}
	return n
}

// responseFileContents writes one argument per line, quoting arguments
// that contain whitespace, quotes or backslashes.
func responseFileContents(args []string) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(quoteArg(a))
		b.WriteByte('\n')
	}
	return b.String()
}

func quoteArg(a string) string {
	if a != "" && !strings.ContainsAny(a, " \t\n\"'\\") {
		return a
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range a {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func environment(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
