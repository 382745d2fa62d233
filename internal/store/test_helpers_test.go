package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a build record with two inputs.
func createTestRecord(module string) BuildRecord {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return BuildRecord{
		Module:        module,
		FormatVersion: 3,
		DriverVersion: "0.4.0",
		BuildID:       "0195f0c2-0000-7000-8000-000000000001",
		OptionsHash:   "opts",
		BuildStart:    start,
		BuildEnd:      start.Add(2 * time.Second),
		Graph:         []byte(`{"files":[],"version":3}`),
		Inputs: []Input{
			{Path: "/src/b.swift", ModTime: start.Add(-time.Hour)},
			{Path: "/src/a.swift", ModTime: start.Add(-2 * time.Hour)},
		},
	}
}
