package incremental

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces the identifier stamped on each build record.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-ordered UUIDv7 ids. The zero value is ready
// to use from any goroutine.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 fails only when the system random source does.
		panic(fmt.Sprintf("generate build id: %v", err))
	}
	return id.String()
}

// FixedGenerator hands out a fixed list of ids in order, for tests.
type FixedGenerator struct {
	ids  []string
	next atomic.Int64
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate panics once every id has been handed out.
func (g *FixedGenerator) Generate() string {
	n := g.next.Add(1) - 1
	if n >= int64(len(g.ids)) {
		panic(fmt.Sprintf("FixedGenerator: all %d ids used", len(g.ids)))
	}
	return g.ids[n]
}
