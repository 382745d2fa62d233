package moduledeps

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScanner returns a graph whose main module is named by the last
// command-line argument. "-placeholder=X" adds a placeholder dependency.
type fakeScanner struct {
	calls atomic.Int32
}

func (f *fakeScanner) Scan(_ context.Context, _ string, commandLine []string) (*Graph, error) {
	f.calls.Add(1)
	if len(commandLine) == 0 {
		return nil, errors.New("empty command line")
	}
	main := commandLine[len(commandLine)-1]
	g := NewGraph(main)
	deps := []ID{Clang("SwiftShims")}
	for _, arg := range commandLine {
		if name, ok := strings.CutPrefix(arg, "-placeholder="); ok {
			deps = append(deps, Placeholder(name))
			g.Modules[Placeholder(name)] = placeholder()
		}
	}
	g.Modules[Swift(main)] = textual(deps...)
	g.Modules[Clang("SwiftShims")] = clang(nil, []string{"-m", main})
	return g, nil
}

func newTestOracle(t *testing.T) (*Oracle, *fakeScanner, *atomic.Int32) {
	t.Helper()
	scanner := &fakeScanner{}
	var created atomic.Int32
	o, err := NewOracle(func() (Scanner, error) {
		created.Add(1)
		return scanner, nil
	}, WithCacheSize(8))
	require.NoError(t, err)
	return o, scanner, &created
}

func TestOracle_LazyScannerAndCache(t *testing.T) {
	o, scanner, created := newTestOracle(t)
	assert.Zero(t, created.Load())

	ctx := context.Background()
	g1, err := o.Scan(ctx, "/work", []string{"App"})
	require.NoError(t, err)
	g2, err := o.Scan(ctx, "/work", []string{"App"})
	require.NoError(t, err)
	_, err = o.Scan(ctx, "/other", []string{"App"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(2), scanner.calls.Load())
	assert.Equal(t, g1.Modules, g2.Modules)
	assert.NotSame(t, g1.Modules[Swift("App")], g2.Modules[Swift("App")], "cached graphs are copies")
}

func TestOracle_FactoryError(t *testing.T) {
	o, err := NewOracle(func() (Scanner, error) { return nil, errors.New("no frontend") })
	require.NoError(t, err)
	_, err = o.Scan(context.Background(), "/", []string{"App"})
	assert.ErrorContains(t, err, "no frontend")
}

func TestOracle_ScanBatchResolvesPlaceholders(t *testing.T) {
	o, _, _ := newTestOracle(t)
	ctx := context.Background()

	graphs, err := o.ScanBatch(ctx, "/work", []BatchEntry{
		{ModuleName: "App", CommandLine: []string{"-placeholder=Lib", "App"}},
		{ModuleName: "Lib", CommandLine: []string{"Lib"}},
	})
	require.NoError(t, err)
	assert.Len(t, graphs, 2)

	g, err := o.Graph("App")
	require.NoError(t, err)
	assert.Equal(t, []ID{Clang("SwiftShims"), Swift("Lib")}, g.Modules[Swift("App")].DirectDependencies)
	assert.Len(t, g.Modules[Clang("SwiftShims")].Details.(*ClangDetails).CapturedPCMArgs, 2)
}

func TestOracle_GraphFailsOnUnresolvedPlaceholder(t *testing.T) {
	o, _, _ := newTestOracle(t)
	g, err := o.Scan(context.Background(), "/work", []string{"-placeholder=Lib", "App"})
	require.NoError(t, err)
	require.NoError(t, o.Merge(g))

	_, err = o.Graph("App")
	assert.ErrorIs(t, err, ErrUnresolvedPlaceholder)
}

func TestOracle_GraphRequiresMainModule(t *testing.T) {
	o, _, _ := newTestOracle(t)
	_, err := o.Graph("App")
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestOracle_BatchStopsOnError(t *testing.T) {
	o, _, _ := newTestOracle(t)
	_, err := o.ScanBatch(context.Background(), "/work", []BatchEntry{
		{ModuleName: "Bad"},
	})
	assert.ErrorContains(t, err, "scan Bad")
}

func TestOracle_ConcurrentUse(t *testing.T) {
	o, _, created := newTestOracle(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := []string{"A", "B", "C", "D"}[i%4]
			g, err := o.Scan(ctx, "/work", []string{name})
			assert.NoError(t, err)
			assert.NoError(t, o.Merge(g))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	g, err := o.Graph("A")
	require.NoError(t, err)
	assert.Len(t, g.Modules, 5)
}
