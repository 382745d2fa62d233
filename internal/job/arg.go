package job

// Arg is one element of a job's argument template.
//
// The set of implementations is closed: Flag, Path, JoinedPath and
// Resource. Resolver switches over them exhaustively.
type Arg interface {
	isArg()
}

// Flag is passed through verbatim.
type Flag string

// Path is a file path, passed through after resolution against the
// working directory.
type Path string

// JoinedPath is a flag immediately followed by a path in the same
// argument, e.g. "-fmodule-file=" + path.
type JoinedPath struct {
	Prefix string
	Path   string
}

// Resource is a path relative to the toolchain's resource directory,
// resolved when the job is launched.
type Resource string

func (Flag) isArg()       {}
func (Path) isArg()       {}
func (JoinedPath) isArg() {}
func (Resource) isArg()   {}

// Flags is a convenience for building templates from plain strings.
func Flags(flags ...string) []Arg {
	args := make([]Arg, len(flags))
	for i, f := range flags {
		args[i] = Flag(f)
	}
	return args
}
