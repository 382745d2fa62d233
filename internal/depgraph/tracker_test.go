package depgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTracker(t *testing.T) {
	tr := NewFileTracker()
	require.NoError(t, tr.Register("a.swift", "a.swiftdeps"))
	require.NoError(t, tr.Register("a.swift", "a.swiftdeps"))

	deps, err := tr.SwiftDepsFor("a.swift")
	require.NoError(t, err)
	assert.Equal(t, "a.swiftdeps", deps)

	src, err := tr.SourceFor("a.swiftdeps")
	require.NoError(t, err)
	assert.Equal(t, "a.swift", src)
}

func TestFileTracker_Conflicts(t *testing.T) {
	tr := NewFileTracker()
	require.NoError(t, tr.Register("a.swift", "a.swiftdeps"))

	var ce *ConsistencyError
	assert.True(t, errors.As(tr.Register("a.swift", "other.swiftdeps"), &ce))
	assert.True(t, errors.As(tr.Register("b.swift", "a.swiftdeps"), &ce))
}

func TestFileTracker_MissIsConsistencyError(t *testing.T) {
	tr := NewFileTracker()
	_, err := tr.SwiftDepsFor("nope.swift")
	var ce *ConsistencyError
	assert.True(t, errors.As(err, &ce))

	_, err = tr.SourceFor("nope.swiftdeps")
	assert.True(t, errors.As(err, &ce))
}
