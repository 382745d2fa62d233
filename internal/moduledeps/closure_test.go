package moduledeps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamond() *Graph {
	appDetails := &SwiftTextualDetails{
		SwiftOverlayDependencies:   []ID{Swift("Overlay")},
		BridgingHeaderDependencies: []ID{Clang("Bridged")},
	}
	return graphOf("App", Modules{
		Swift("App"): {
			ModulePath:         "App.swiftmodule",
			DirectDependencies: []ID{Swift("Left"), Swift("Right")},
			Details:            appDetails,
		},
		Swift("Left"):    textual(Swift("Base")),
		Swift("Right"):   textual(Swift("Base"), Clang("CBase")),
		Swift("Base"):    textual(Clang("CBase")),
		Swift("Overlay"): textual(Swift("Base")),
		Clang("CBase"):   clang(nil, nil),
		Clang("Bridged"): clang(nil, nil),
	})
}

func TestTransitiveClosure(t *testing.T) {
	closure, err := TransitiveClosure(diamond())
	require.NoError(t, err)

	assert.Equal(t, []ID{
		Swift("Base"), Clang("Bridged"), Clang("CBase"),
		Swift("Left"), Swift("Overlay"), Swift("Right"),
	}, closure[Swift("App")].Sorted())
	assert.Equal(t, []ID{Swift("Base"), Clang("CBase")}, closure[Swift("Left")].Sorted())
	assert.Empty(t, closure[Clang("CBase")])

	for id, set := range closure {
		assert.False(t, set.Has(id), "%s must not be in its own closure", id)
	}
}

func TestTransitiveClosure_Cycle(t *testing.T) {
	g := graphOf("A", Modules{
		Swift("A"): textual(Swift("B")),
		Swift("B"): textual(Swift("C")),
		Swift("C"): textual(Swift("A")),
	})
	_, err := TransitiveClosure(g)
	require.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "swift:A -> swift:B -> swift:C -> swift:A")
}

func TestTopologicalOrder(t *testing.T) {
	order, err := TopologicalOrder(diamond())
	require.NoError(t, err)

	pos := make(map[ID]int)
	for i, id := range order {
		pos[id] = i
	}
	g := diamond()
	for id, info := range g.Modules {
		for _, dep := range info.edges() {
			assert.Less(t, pos[dep], pos[id], "%s must come before %s", dep, id)
		}
	}
}

func TestExplainDependency(t *testing.T) {
	paths := diamond().ExplainDependency("Base")
	assert.Equal(t, [][]ID{
		{Swift("App"), Swift("Left"), Swift("Base")},
		{Swift("App"), Swift("Overlay"), Swift("Base")},
		{Swift("App"), Swift("Right"), Swift("Base")},
	}, paths)

	assert.Equal(t, [][]ID{
		{Swift("App"), Swift("Left"), Swift("Base"), Clang("CBase")},
		{Swift("App"), Swift("Overlay"), Swift("Base"), Clang("CBase")},
		{Swift("App"), Swift("Right"), Swift("Base"), Clang("CBase")},
		{Swift("App"), Swift("Right"), Clang("CBase")},
	}, diamond().ExplainDependency("CBase"))

	assert.Empty(t, diamond().ExplainDependency("Bridged"), "bridging edges are not followed")
	assert.Empty(t, diamond().ExplainDependency("Missing"))
}

func TestFormatPath(t *testing.T) {
	assert.Equal(t, "swift:A -> clang:B", FormatPath([]ID{Swift("A"), Clang("B")}))
}
