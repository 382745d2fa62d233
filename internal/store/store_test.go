package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, path)

	// Reopening an up-to-date database runs no migrations and keeps data.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.WriteBuildRecord(context.Background(), createTestRecord("App")))

	assert.ElementsMatch(t, []string{"build_records", "build_inputs"}, tableNames(t, s.db))
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/records.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "2",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, value, got, "PRAGMA %s", name)
	}
}

func TestOpen_MemoryDatabase(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	mode, err := s.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "memory", mode)
	assert.Equal(t, 2, SchemaVersion())
}

func TestOpen_MigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")

	// A version 0 database predates the options hash and the path index.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO build_records
		(module, format_version, driver_version, build_id, build_start_ns, build_end_ns, graph)
		VALUES ('Old', 1, '0.1.0', 'id', 0, 0, x'7b7d')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
	assert.Contains(t, tableColumns(t, s.db, "build_records"), "options_hash")
	assert.Contains(t, indexNames(t, s.db, "build_inputs"), "idx_build_inputs_path")

	var hash string
	require.NoError(t, s.db.QueryRow(`SELECT options_hash FROM build_records WHERE module = 'Old'`).Scan(&hash))
	assert.Empty(t, hash)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Subset(t, tableColumns(t, s.db, "build_records"), []string{
		"module", "format_version", "driver_version", "build_id",
		"options_hash", "build_start_ns", "build_end_ns", "graph",
	})
	assert.Subset(t, tableColumns(t, s.db, "build_inputs"), []string{"module", "path", "mtime_ns"})
	assert.Contains(t, indexNames(t, s.db, "build_inputs"), "idx_build_inputs_path")
}

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	return queryStrings(t, db, "SELECT name FROM sqlite_master WHERE type='table'")
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return queryStrings(t, db, "SELECT name FROM pragma_table_info(?)", table)
}

func indexNames(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return queryStrings(t, db, "SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
}

func queryStrings(t *testing.T, db *sql.DB, query string, args ...any) []string {
	t.Helper()

	rows, err := db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}
