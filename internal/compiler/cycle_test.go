package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/ir"
)

func chain(ids ...string) []ir.TaskSpec {
	tasks := make([]ir.TaskSpec, len(ids))
	for i, id := range ids {
		tasks[i] = ir.TaskSpec{ID: id, Component: "c"}
		if i > 0 {
			tasks[i].Args = map[string]ir.ArgSpec{"in": ir.Ref(ids[i-1], ir.DefaultOutput)}
		}
	}
	return tasks
}

func TestAnalyzeCyclesDAG(t *testing.T) {
	p := ir.PipelineSpec{Name: "p", Tasks: chain("a", "b", "c")}
	assert.Empty(t, AnalyzeCycles(p))
}

func TestAnalyzeCyclesSelfLoop(t *testing.T) {
	p := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
		{ID: "a", Component: "c", Args: map[string]ir.ArgSpec{"in": ir.Ref("a", ir.DefaultOutput)}},
	}}

	cycles := AnalyzeCycles(p)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "a"}, cycles[0].Path)
	assert.Contains(t, cycles[0].Message, "consumes its own output")
}

func TestAnalyzeCyclesThreeNodes(t *testing.T) {
	tasks := chain("a", "b", "c")
	tasks[0].Args = map[string]ir.ArgSpec{"in": ir.Ref("c", ir.DefaultOutput)}
	p := ir.PipelineSpec{Name: "p", Tasks: tasks}

	cycles := AnalyzeCycles(p)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycles[0].Path)
	assert.Equal(t, "dependency cycle: a → b → c → a", cycles[0].Message)
}

func TestAnalyzeCyclesIgnoresUnknownRefs(t *testing.T) {
	p := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
		{ID: "a", Component: "c", Args: map[string]ir.ArgSpec{"in": ir.Ref("ghost", ir.DefaultOutput)}},
	}}
	assert.Empty(t, AnalyzeCycles(p))
}

func TestTopoOrderFollowsDependencies(t *testing.T) {
	// Declared out of order: c consumes b, b consumes a.
	p := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
		{ID: "c", Component: "x", Args: map[string]ir.ArgSpec{"in": ir.Ref("b", ir.DefaultOutput)}},
		{ID: "b", Component: "x", Args: map[string]ir.ArgSpec{"in": ir.Ref("a", ir.DefaultOutput)}},
		{ID: "a", Component: "x"},
	}}

	order, err := TopoOrder(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoOrderTiesUseDeclarationOrder(t *testing.T) {
	p := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
		{ID: "z", Component: "x"},
		{ID: "m", Component: "x"},
		{ID: "join", Component: "x", Args: map[string]ir.ArgSpec{
			"l": ir.Ref("z", ir.DefaultOutput),
			"r": ir.Ref("m", ir.DefaultOutput),
		}},
		{ID: "a", Component: "x"},
	}}

	order, err := TopoOrder(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "m", "join", "a"}, order)
}

func TestTopoOrderExcludesExitHandler(t *testing.T) {
	p := ir.PipelineSpec{
		Name:        "p",
		Tasks:       chain("a", "b"),
		ExitHandler: &ir.TaskSpec{ID: "exit", Component: "x"},
	}
	order, err := TopoOrder(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestTopoOrderCycle(t *testing.T) {
	tasks := chain("a", "b")
	tasks[0].Args = map[string]ir.ArgSpec{"in": ir.Ref("b", ir.DefaultOutput)}

	_, err := TopoOrder(ir.PipelineSpec{Name: "p", Tasks: tasks})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a → b → a")
}
