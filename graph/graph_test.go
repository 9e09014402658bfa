package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/test-orchestrator/types"
)

func tc(id string, deps ...string) types.TestCase {
	return types.TestCase{ID: id, DependsOn: deps}
}

func TestBuild_LinearChain(t *testing.T) {
	g, err := Build([]types.TestCase{tc("a"), tc("b", "a"), tc("c", "b")})
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	order := g.TopoOrder()
	pos := make(map[string]int)
	for p, i := range order {
		pos[g.Node(i).Case.ID] = p
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])

	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, 1, g.MaxParallelism())
}

func TestBuild_Diamond(t *testing.T) {
	g, err := Build([]types.TestCase{
		tc("root"),
		tc("left", "root"),
		tc("right", "root"),
		tc("sink", "left", "right"),
	})
	require.NoError(t, err)

	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.Len(t, levels[1], 2, "left and right share a level")
	assert.Equal(t, 2, g.MaxParallelism())

	sink, ok := g.IndexOf("sink")
	require.True(t, ok)
	assert.Len(t, g.Node(sink).Deps, 2)

	root, ok := g.IndexOf("root")
	require.True(t, ok)
	assert.Len(t, g.Node(root).Dependents, 2)
}

func TestBuild_TwoNodeCycleFailsFast(t *testing.T) {
	g, err := Build([]types.TestCase{tc("a", "b"), tc("b", "a")})
	require.Error(t, err)
	assert.Nil(t, g, "no partial graph on failure")

	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	assert.GreaterOrEqual(t, len(cycErr.Cycle), 3)
	assert.Equal(t, cycErr.Cycle[0], cycErr.Cycle[len(cycErr.Cycle)-1], "cycle path must close on itself")
}

func TestBuild_SelfDependency(t *testing.T) {
	_, err := Build([]types.TestCase{tc("a", "a")})
	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	assert.Equal(t, []string{"a", "a"}, cycErr.Cycle)
}

func TestBuild_LargerCycleReported(t *testing.T) {
	_, err := Build([]types.TestCase{
		tc("standalone"),
		tc("a", "c"),
		tc("b", "a"),
		tc("c", "b"),
	})
	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	// The reported cycle contains only the three cyclic nodes.
	assert.NotContains(t, cycErr.Cycle, "standalone")
	assert.Len(t, cycErr.Cycle, 4)
}

func TestBuild_UnknownDependency(t *testing.T) {
	g, err := Build([]types.TestCase{tc("a"), tc("b", "missing")})
	require.Error(t, err)
	assert.Nil(t, g)

	var unkErr *UnknownDependencyError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, "b", unkErr.NodeID)
	assert.Equal(t, "missing", unkErr.Dependency)
}

func TestBuild_DuplicateID(t *testing.T) {
	_, err := Build([]types.TestCase{tc("a"), tc("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuild_EmptyID(t *testing.T) {
	_, err := Build([]types.TestCase{{ID: ""}})
	require.Error(t, err)
}

func TestBuild_EmptySuite(t *testing.T) {
	g, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Levels())
}
