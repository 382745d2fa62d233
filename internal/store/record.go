package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no build record exists for a module.
var ErrNotFound = errors.New("build record not found")

// BuildRecord is everything persisted about one module's last build.
type BuildRecord struct {
	Module        string
	FormatVersion int
	DriverVersion string
	BuildID       string

	// OptionsHash fingerprints the options the build ran with. A change
	// means the priors describe a different build.
	OptionsHash string

	BuildStart time.Time
	BuildEnd   time.Time

	// Graph is the encoded dependency graph snapshot.
	Graph []byte

	Inputs []Input
}

// Input is one source file with the modification time it had when the
// build started. A zero ModTime marks an input that did not compile.
type Input struct {
	Path    string
	ModTime time.Time
}

// Summary describes a stored record without its graph.
type Summary struct {
	Module        string
	FormatVersion int
	DriverVersion string
	BuildID       string
	BuildEnd      time.Time
	Inputs        int
}

// WriteBuildRecord replaces the stored record for rec.Module.
func (s *Store) WriteBuildRecord(ctx context.Context, rec BuildRecord) error {
	if rec.Module == "" {
		return fmt.Errorf("write build record: module name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM build_inputs WHERE module = ?`,
		`DELETE FROM build_records WHERE module = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, rec.Module); err != nil {
			return fmt.Errorf("write build record: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO build_records
		(module, format_version, driver_version, build_id, options_hash, build_start_ns, build_end_ns, graph)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Module,
		rec.FormatVersion,
		rec.DriverVersion,
		rec.BuildID,
		rec.OptionsHash,
		toNanos(rec.BuildStart),
		toNanos(rec.BuildEnd),
		rec.Graph,
	)
	if err != nil {
		return fmt.Errorf("write build record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO build_inputs (module, path, mtime_ns) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("write build inputs: %w", err)
	}
	defer stmt.Close()

	for _, in := range rec.Inputs {
		if _, err := stmt.ExecContext(ctx, rec.Module, in.Path, toNanos(in.ModTime)); err != nil {
			return fmt.Errorf("write build input %s: %w", in.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	return nil
}

// ReadBuildRecord returns the stored record for module, or ErrNotFound.
// Inputs are ordered by path.
func (s *Store) ReadBuildRecord(ctx context.Context, module string) (*BuildRecord, error) {
	rec := &BuildRecord{Module: module}
	var startNs, endNs int64

	err := s.db.QueryRowContext(ctx, `
		SELECT format_version, driver_version, build_id, options_hash, build_start_ns, build_end_ns, graph
		FROM build_records
		WHERE module = ?
	`, module).Scan(
		&rec.FormatVersion,
		&rec.DriverVersion,
		&rec.BuildID,
		&rec.OptionsHash,
		&startNs,
		&endNs,
		&rec.Graph,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, module)
	}
	if err != nil {
		return nil, fmt.Errorf("read build record: %w", err)
	}
	rec.BuildStart = fromNanos(startNs)
	rec.BuildEnd = fromNanos(endNs)

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, mtime_ns
		FROM build_inputs
		WHERE module = ?
		ORDER BY path COLLATE BINARY ASC
	`, module)
	if err != nil {
		return nil, fmt.Errorf("query build inputs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var in Input
		var ns int64
		if err := rows.Scan(&in.Path, &ns); err != nil {
			return nil, fmt.Errorf("scan build input: %w", err)
		}
		in.ModTime = fromNanos(ns)
		rec.Inputs = append(rec.Inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build inputs: %w", err)
	}

	return rec, nil
}

// ListBuildRecords summarizes every stored record, ordered by module.
func (s *Store) ListBuildRecords(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.module, r.format_version, r.driver_version, r.build_id, r.build_end_ns,
		       (SELECT COUNT(*) FROM build_inputs i WHERE i.module = r.module)
		FROM build_records r
		ORDER BY r.module COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query build records: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var endNs int64
		if err := rows.Scan(&sum.Module, &sum.FormatVersion, &sum.DriverVersion, &sum.BuildID, &endNs, &sum.Inputs); err != nil {
			return nil, fmt.Errorf("scan build record: %w", err)
		}
		sum.BuildEnd = fromNanos(endNs)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build records: %w", err)
	}
	return summaries, nil
}

// DeleteBuildRecord removes the record for module. Deleting a missing
// record is not an error.
func (s *Store) DeleteBuildRecord(ctx context.Context, module string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete build record: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM build_inputs WHERE module = ?`,
		`DELETE FROM build_records WHERE module = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, module); err != nil {
			return fmt.Errorf("delete build record: %w", err)
		}
	}
	return tx.Commit()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
