package job

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileJob(src, obj string) *Job {
	return &Job{
		ModuleName:    "App",
		Kind:          KindCompile,
		Tool:          ToolFrontend,
		Inputs:        []TypedPath{{File: src, Type: TypeSwift}},
		PrimaryInputs: []TypedPath{{File: src, Type: TypeSwift}},
		DisplayInputs: []TypedPath{{File: src, Type: TypeSwift}},
		Outputs:       []TypedPath{{File: obj, Type: TypeObject}},
	}
}

func TestProducerMap_IndexesOutputs(t *testing.T) {
	a := compileJob("a.swift", "a.o")
	b := compileJob("b.swift", "b.o")
	link := &Job{
		Kind:    KindLink,
		Tool:    ToolLinker,
		Inputs:  []TypedPath{{File: "a.o", Type: TypeObject}, {File: "b.o", Type: TypeObject}, {File: "a.o", Type: TypeObject}},
		Outputs: []TypedPath{{File: "App", Type: TypeImage}},
	}

	m, err := NewProducerMap([]*Job{a, b, link})
	require.NoError(t, err)

	idx, ok := m.Producer("b.o")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	idx, ok = m.Producer("App")
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = m.Producer("a.swift")
	assert.False(t, ok, "sources have no producer")

	assert.Equal(t, []int{0, 1}, m.Dependencies(link))
	assert.Empty(t, m.Dependencies(a))
}

func TestProducerMap_DuplicateOutput(t *testing.T) {
	a := compileJob("a.swift", "shared.o")
	b := compileJob("b.swift", "shared.o")

	_, err := NewProducerMap([]*Job{a, b})
	require.Error(t, err)

	var dup *DuplicateOutputError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "shared.o", dup.Path)
	assert.Same(t, a, dup.First)
	assert.Same(t, b, dup.Second)
}

func TestProducerMap_AddRejectsWithoutPartialRegistration(t *testing.T) {
	m, err := NewProducerMap([]*Job{compileJob("a.swift", "a.o")})
	require.NoError(t, err)

	bad := &Job{
		Kind: KindCompile,
		Outputs: []TypedPath{
			{File: "c.o", Type: TypeObject},
			{File: "a.o", Type: TypeObject},
		},
	}
	_, err = m.Add(bad)
	require.Error(t, err)

	_, ok := m.Producer("c.o")
	assert.False(t, ok)

	idx, err := m.Add(compileJob("c.swift", "c.o"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "the rejected job took no index")
}

func TestProducerMap_SameJobListingOutputTwice(t *testing.T) {
	j := &Job{
		Kind: KindCompile,
		Outputs: []TypedPath{
			{File: "x.o", Type: TypeObject},
			{File: "x.o", Type: TypeObject},
		},
	}
	_, err := NewProducerMap([]*Job{j})
	var dup *DuplicateOutputError
	assert.True(t, errors.As(err, &dup))
}

func TestJobDescription(t *testing.T) {
	j := compileJob("Sources/App/main.swift", "main.o")
	assert.Equal(t, "Compiling App main.swift", j.Description())

	link := &Job{Kind: KindLink, ModuleName: "App"}
	assert.Equal(t, "Linking App", link.Description())
}

func TestKindClassification(t *testing.T) {
	assert.True(t, KindCompile.IsCompile())
	assert.False(t, KindLink.IsCompile())
	assert.True(t, KindLink.IsPostCompile())
	assert.True(t, KindMergeModule.IsPostCompile())
	assert.False(t, KindGeneratePCM.IsPostCompile())
}
