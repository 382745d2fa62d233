package moduledeps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeInto_IdempotentMerge(t *testing.T) {
	g := graphOf("App", Modules{
		Swift("App"):   textual(Swift("Core"), Clang("CFoo")),
		Swift("Core"):  textual(Clang("CFoo")),
		Clang("CFoo"):  clang([]string{"/inc/foo.h"}, []string{"-target", "arm64"}),
		Prebuilt("Sw"): prebuilt("/sdk/Sw.swiftmodule"),
	})

	once := make(Modules)
	require.NoError(t, MergeInto(once, g))

	twice := make(Modules)
	require.NoError(t, MergeInto(twice, g))
	require.NoError(t, MergeInto(twice, g))

	assert.Equal(t, once, twice)
	assert.Len(t, twice, 4)
}

func TestMergeInto_ConcreteReplacesPlaceholder(t *testing.T) {
	acc := make(Modules)
	require.NoError(t, MergeInto(acc, graphOf("App", Modules{
		Swift("App"):       textual(Placeholder("Lib"), Clang("C")),
		Swift("Tool"):      textual(Placeholder("Lib")),
		Placeholder("Lib"): placeholder(),
		Clang("C"):         clang(nil, nil),
	})))

	require.NoError(t, MergeInto(acc, graphOf("Lib", Modules{
		Swift("Lib"): textual(Clang("C")),
		Clang("C"):   clang(nil, nil),
	})))

	assert.NotContains(t, acc, Placeholder("Lib"))
	assert.Contains(t, acc, Swift("Lib"))
	assert.Equal(t, []ID{Swift("Lib"), Clang("C")}, acc[Swift("App")].DirectDependencies)
	assert.Equal(t, []ID{Swift("Lib")}, acc[Swift("Tool")].DirectDependencies)
	require.NoError(t, Finalize(acc), "no edge may be left dangling")
}

func TestMergeInto_PlaceholderAfterConcreteIsIgnored(t *testing.T) {
	acc := make(Modules)
	require.NoError(t, MergeInto(acc, graphOf("Lib", Modules{Swift("Lib"): textual()})))
	require.NoError(t, MergeInto(acc, graphOf("App", Modules{
		Swift("App"):       textual(Placeholder("Lib")),
		Placeholder("Lib"): placeholder(),
	})))

	assert.NotContains(t, acc, Placeholder("Lib"))
	assert.Equal(t, []ID{Swift("Lib")}, acc[Swift("App")].DirectDependencies)
	require.NoError(t, Finalize(acc))
}

func TestMergeInto_FirstTextualWins(t *testing.T) {
	acc := make(Modules)
	first := textual()
	first.ModulePath = "first.swiftmodule"
	second := textual()
	second.ModulePath = "second.swiftmodule"

	require.NoError(t, MergeInto(acc, graphOf("A", Modules{Swift("A"): first})))
	require.NoError(t, MergeInto(acc, graphOf("A", Modules{Swift("A"): second})))
	assert.Equal(t, "first.swiftmodule", acc[Swift("A")].ModulePath)
}

func TestMergeInto_PrebuiltReplacesTextual(t *testing.T) {
	acc := make(Modules)
	require.NoError(t, MergeInto(acc, graphOf("App", Modules{
		Swift("App"): textual(Swift("Dep")),
		Swift("Dep"): textual(),
	})))
	require.NoError(t, MergeInto(acc, graphOf("Other", Modules{
		Prebuilt("Dep"): prebuilt("/prebuilt/Dep.swiftmodule"),
	})))

	assert.NotContains(t, acc, Swift("Dep"))
	assert.Equal(t, []ID{Prebuilt("Dep")}, acc[Swift("App")].DirectDependencies)
	require.NoError(t, Finalize(acc))
}

func TestMergeInto_TextualAfterPrebuiltKeepsPrebuilt(t *testing.T) {
	acc := make(Modules)
	require.NoError(t, MergeInto(acc, graphOf("X", Modules{
		Prebuilt("Dep"): prebuilt("/prebuilt/Dep.swiftmodule"),
	})))
	require.NoError(t, MergeInto(acc, graphOf("App", Modules{
		Swift("App"): textual(Swift("Dep")),
		Swift("Dep"): textual(),
	})))

	assert.NotContains(t, acc, Swift("Dep"))
	assert.Equal(t, []ID{Prebuilt("Dep")}, acc[Swift("App")].DirectDependencies)
	require.NoError(t, Finalize(acc))
}

func TestMergeInto_ClangCombine(t *testing.T) {
	acc := make(Modules)
	require.NoError(t, MergeInto(acc, graphOf("A", Modules{
		Clang("C"): clang([]string{"/inc/a.h"}, []string{"-target", "x86_64"}, Clang("D")),
		Clang("D"): clang(nil, nil),
	})))
	require.NoError(t, MergeInto(acc, graphOf("B", Modules{
		Clang("C"): clang([]string{"/inc/a.h", "/inc/b.h"}, []string{"-target", "arm64"}, Clang("E")),
		Clang("E"): clang(nil, nil),
	})))

	c := acc[Clang("C")]
	assert.Equal(t, []string{"/inc/a.h", "/inc/b.h"}, c.SourceFiles)
	assert.Equal(t, []ID{Clang("D"), Clang("E")}, c.DirectDependencies)
	assert.Equal(t, [][]string{{"-target", "x86_64"}, {"-target", "arm64"}}, c.Details.(*ClangDetails).CapturedPCMArgs)
}

func TestMergeInto_DoesNotAliasIncoming(t *testing.T) {
	incoming := graphOf("A", Modules{Clang("C"): clang([]string{"/a.h"}, []string{"-x"})})
	acc := make(Modules)
	require.NoError(t, MergeInto(acc, incoming))
	require.NoError(t, MergeInto(acc, graphOf("B", Modules{Clang("C"): clang([]string{"/b.h"}, nil)})))

	assert.Equal(t, []string{"/a.h"}, incoming.Modules[Clang("C")].SourceFiles)
}

func TestMergeInto_RejectsMismatchedDetails(t *testing.T) {
	acc := make(Modules)
	err := MergeInto(acc, graphOf("A", Modules{Swift("A"): clang(nil, nil)}))
	assert.Error(t, err)
}

func TestMergeInto_RejectedGraphLeavesAccUntouched(t *testing.T) {
	acc := Modules{Swift("Core"): textual()}
	before := acc.Clone()

	// Swift("A") sorts before the malformed Clang node.
	err := MergeInto(acc, graphOf("A", Modules{
		Swift("A"):       textual(Swift("Core")),
		Placeholder("P"): placeholder(),
		Clang("Z"):       textual(),
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clang:Z")
	assert.Equal(t, before, acc)
}

func TestFinalize(t *testing.T) {
	acc := Modules{
		Swift("App"):       textual(Placeholder("Lib")),
		Placeholder("Lib"): placeholder(),
	}
	assert.ErrorIs(t, Finalize(acc), ErrUnresolvedPlaceholder)

	dangling := Modules{Swift("App"): textual(Swift("Nowhere"))}
	assert.ErrorIs(t, Finalize(dangling), ErrMissingDependency)
}
