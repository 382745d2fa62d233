package depgraph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/swiftdriver/internal/ir"
)

// ErrFormatMismatch is returned when a snapshot was written by an
// incompatible version of the graph format.
var ErrFormatMismatch = errors.New("dependency graph format mismatch")

// Snapshot is the persisted form of a Graph.
type Snapshot struct {
	Version int            `json:"version"`
	Files   []FileSnapshot `json:"files"`
}

// FileSnapshot is one source file's record inside a Snapshot.
type FileSnapshot struct {
	Source string  `json:"source"`
	Record *Record `json:"record"`
}

// Snapshot captures the live records, sorted by source.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{Version: ir.GraphFormatVersion}
	for _, f := range g.Files() {
		s.Files = append(s.Files, FileSnapshot{Source: f, Record: g.files[f].record})
	}
	return s
}

// FromSnapshot rebuilds a graph. It fails with ErrFormatMismatch when the
// snapshot version is not the current one.
func FromSnapshot(s Snapshot) (*Graph, error) {
	if s.Version != ir.GraphFormatVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrFormatMismatch, s.Version, ir.GraphFormatVersion)
	}
	g := NewGraph()
	for _, f := range s.Files {
		if f.Record == nil {
			return nil, fmt.Errorf("snapshot entry %s has no record", f.Source)
		}
		g.Integrate(f.Source, f.Record)
	}
	return g, nil
}

// EncodeSnapshot renders s as canonical JSON.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return ir.MarshalCanonical(s)
}

// DecodeSnapshot parses the output of EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode dependency graph: %w", err)
	}
	return s, nil
}
