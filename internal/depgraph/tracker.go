package depgraph

import (
	"fmt"
)

// ConsistencyError reports a broken FileTracker invariant. It is never
// caused by user input and always aborts the build.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return "dependency tracking is inconsistent: " + e.Message
}

// FileTracker maps source files to their swiftdeps paths and back.
type FileTracker struct {
	toDeps   map[string]string
	toSource map[string]string
}

// NewFileTracker returns an empty tracker.
func NewFileTracker() *FileTracker {
	return &FileTracker{
		toDeps:   make(map[string]string),
		toSource: make(map[string]string),
	}
}

// Register pairs source with swiftdeps. Re-registering the same pair is a
// no-op; pairing either side with something else is an error.
func (t *FileTracker) Register(source, swiftdeps string) error {
	if prev, ok := t.toDeps[source]; ok && prev != swiftdeps {
		return &ConsistencyError{Message: fmt.Sprintf("%s already tracked by %s, not %s", source, prev, swiftdeps)}
	}
	if prev, ok := t.toSource[swiftdeps]; ok && prev != source {
		return &ConsistencyError{Message: fmt.Sprintf("%s already belongs to %s, not %s", swiftdeps, prev, source)}
	}
	t.toDeps[source] = swiftdeps
	t.toSource[swiftdeps] = source
	return nil
}

// SwiftDepsFor returns the swiftdeps path registered for source.
func (t *FileTracker) SwiftDepsFor(source string) (string, error) {
	deps, ok := t.toDeps[source]
	if !ok {
		return "", &ConsistencyError{Message: fmt.Sprintf("no dependency record registered for %s", source)}
	}
	return deps, nil
}

// SourceFor returns the source registered for a swiftdeps path.
func (t *FileTracker) SourceFor(swiftdeps string) (string, error) {
	src, ok := t.toSource[swiftdeps]
	if !ok {
		return "", &ConsistencyError{Message: fmt.Sprintf("no source registered for %s", swiftdeps)}
	}
	return src, nil
}
