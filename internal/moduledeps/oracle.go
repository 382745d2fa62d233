package moduledeps

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/swiftdriver/internal/ir"
)

// DefaultCacheSize is the number of scan results an Oracle keeps.
const DefaultCacheSize = 256

// Scanner computes the module dependency graph of one compilation.
type Scanner interface {
	Scan(ctx context.Context, workingDir string, commandLine []string) (*Graph, error)
}

// ScannerFactory creates the scanner on first use.
type ScannerFactory func() (Scanner, error)

// BatchEntry is one module to scan in a batch.
type BatchEntry struct {
	ModuleName  string
	CommandLine []string
}

// Oracle is the shared module dependency service of a process. Every
// planning operation passes the same Oracle; scanning and merging are
// serialized by one lock so that a scan for one target never interleaves
// with a merge for another.
type Oracle struct {
	mu      sync.Mutex
	factory ScannerFactory
	scanner Scanner
	cache   *lru.Cache[string, *Graph]
	modules Modules
}

// OracleOption configures an Oracle.
type OracleOption func(*oracleConfig)

type oracleConfig struct {
	cacheSize int
}

// WithCacheSize sets the number of cached scan results.
func WithCacheSize(n int) OracleOption {
	return func(c *oracleConfig) {
		c.cacheSize = n
	}
}

// NewOracle returns an oracle whose scanner is created by factory the
// first time it is needed.
func NewOracle(factory ScannerFactory, opts ...OracleOption) (*Oracle, error) {
	cfg := oracleConfig{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[string, *Graph](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create scan cache: %w", err)
	}
	return &Oracle{factory: factory, cache: cache, modules: make(Modules)}, nil
}

// Scan returns the dependency graph for one compilation. Results are
// cached by working directory and command line.
func (o *Oracle) Scan(ctx context.Context, workingDir string, commandLine []string) (*Graph, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scanLocked(ctx, workingDir, commandLine)
}

func (o *Oracle) scanLocked(ctx context.Context, workingDir string, commandLine []string) (*Graph, error) {
	key, err := ir.Fingerprint(ir.DomainScanRequest, struct {
		WorkingDir  string   `json:"workingDir"`
		CommandLine []string `json:"commandLine"`
	}{workingDir, commandLine})
	if err != nil {
		return nil, fmt.Errorf("scan request key: %w", err)
	}
	if g, ok := o.cache.Get(key); ok {
		slog.Debug("module scan cache hit", "main", g.MainModuleName)
		return g.Clone(), nil
	}

	if o.scanner == nil {
		s, err := o.factory()
		if err != nil {
			return nil, fmt.Errorf("create dependency scanner: %w", err)
		}
		o.scanner = s
	}

	g, err := o.scanner.Scan(ctx, workingDir, commandLine)
	if err != nil {
		return nil, fmt.Errorf("scan dependencies: %w", err)
	}
	slog.Debug("scanned module dependencies", "main", g.MainModuleName, "modules", len(g.Modules))
	o.cache.Add(key, g.Clone())
	return g, nil
}

// ScanBatch scans every entry and merges each result into the shared
// module map. It stops at the first failure.
func (o *Oracle) ScanBatch(ctx context.Context, workingDir string, entries []BatchEntry) ([]*Graph, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	graphs := make([]*Graph, 0, len(entries))
	for _, e := range entries {
		g, err := o.scanLocked(ctx, workingDir, e.CommandLine)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.ModuleName, err)
		}
		if err := MergeInto(o.modules, g); err != nil {
			return nil, fmt.Errorf("merge %s: %w", e.ModuleName, err)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// Merge folds g into the shared module map.
func (o *Oracle) Merge(g *Graph) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return MergeInto(o.modules, g)
}

// Graph returns the finalized shared map as the graph of main. It fails
// if a placeholder is unresolved or an edge is dangling.
func (o *Oracle) Graph(main string) (*Graph, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	modules := o.modules.Clone()
	if err := Finalize(modules); err != nil {
		return nil, err
	}
	if _, ok := modules[Swift(main)]; !ok {
		return nil, fmt.Errorf("%w: main module %s", ErrMissingDependency, main)
	}
	return &Graph{MainModuleName: main, Modules: modules}, nil
}
