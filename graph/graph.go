// Package graph compiles flat test descriptors plus dependency hints into a
// validated acyclic execution graph. Nodes live in a flat arena indexed by
// position; edges are index lists, so the structure cannot form accidental
// reference cycles and the coordinator can key per-run state by index.
package graph

import (
	"fmt"
	"strings"

	"github.com/testforge/test-orchestrator/types"
)

// Node is a single test in the execution graph. Edge lists hold arena
// indices, not pointers.
type Node struct {
	Case       types.TestCase
	Deps       []int // indices of nodes this node depends on
	Dependents []int // indices of nodes that depend on this node
}

// Graph is a validated DAG of test nodes. Immutable after Build; per-run
// mutable state (statuses, attempt counts) is owned by the coordinator and
// keyed by node index.
type Graph struct {
	nodes  []Node
	index  map[string]int
	topo   []int   // one valid topological order, computed at build time
	levels [][]int // nodes grouped by dependency depth; level 0 has no deps
}

// CyclicDependencyError reports a dependency cycle. Cycle holds the ids along
// the cycle, first id repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// UnknownDependencyError reports an edge referencing a test id that does not
// exist in the suite.
type UnknownDependencyError struct {
	NodeID     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("test %q depends on unknown test %q", e.NodeID, e.Dependency)
}

// Build validates the descriptors and compiles them into a Graph. It fails
// with UnknownDependencyError or CyclicDependencyError and never returns a
// partial graph.
func Build(cases []types.TestCase) (*Graph, error) {
	index := make(map[string]int, len(cases))
	for i, tc := range cases {
		if tc.ID == "" {
			return nil, fmt.Errorf("test descriptor at position %d has an empty id", i)
		}
		if _, dup := index[tc.ID]; dup {
			return nil, fmt.Errorf("duplicate test id %q", tc.ID)
		}
		index[tc.ID] = i
	}

	nodes := make([]Node, len(cases))
	for i, tc := range cases {
		nodes[i].Case = tc
		for _, dep := range tc.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, &UnknownDependencyError{NodeID: tc.ID, Dependency: dep}
			}
			if j == i {
				return nil, &CyclicDependencyError{Cycle: []string{tc.ID, tc.ID}}
			}
			nodes[i].Deps = append(nodes[i].Deps, j)
			nodes[j].Dependents = append(nodes[j].Dependents, i)
		}
	}

	g := &Graph{nodes: nodes, index: index}
	if err := g.computeOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// computeOrder runs Kahn's algorithm, recording both a topological order and
// the parallel levels. Residual nodes after the sort form a cycle, which is
// then located for the error message.
func (g *Graph) computeOrder() error {
	n := len(g.nodes)
	indegree := make([]int, n)
	for i := range g.nodes {
		indegree[i] = len(g.nodes[i].Deps)
	}

	var frontier []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}

	g.topo = make([]int, 0, n)
	for len(frontier) > 0 {
		level := frontier
		frontier = nil
		g.levels = append(g.levels, level)
		for _, i := range level {
			g.topo = append(g.topo, i)
			for _, j := range g.nodes[i].Dependents {
				indegree[j]--
				if indegree[j] == 0 {
					frontier = append(frontier, j)
				}
			}
		}
	}

	if len(g.topo) != n {
		return &CyclicDependencyError{Cycle: g.findCycle(indegree)}
	}
	return nil
}

// findCycle walks the residual subgraph (nodes with positive indegree) until
// a node repeats.
func (g *Graph) findCycle(indegree []int) []string {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	seen := make(map[int]int) // node index -> position in path
	var path []int
	cur := start
	for {
		if pos, ok := seen[cur]; ok {
			cycle := path[pos:]
			ids := make([]string, 0, len(cycle)+1)
			for _, i := range cycle {
				ids = append(ids, g.nodes[i].Case.ID)
			}
			ids = append(ids, g.nodes[cycle[0]].Case.ID)
			return ids
		}
		seen[cur] = len(path)
		path = append(path, cur)

		// Follow any dependency that is still inside the residual subgraph.
		next := -1
		for _, j := range g.nodes[cur].Deps {
			if indegree[j] > 0 {
				next = j
				break
			}
		}
		if next < 0 {
			// All residual deps resolved; restart from the first dep.
			next = g.nodes[cur].Deps[0]
		}
		cur = next
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node at index i.
func (g *Graph) Node(i int) *Node { return &g.nodes[i] }

// IndexOf returns the arena index of a test id.
func (g *Graph) IndexOf(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// TopoOrder returns one valid topological order as node indices.
func (g *Graph) TopoOrder() []int { return g.topo }

// Levels groups node indices by dependency depth: every node in level k has
// all its dependencies in levels < k, so a level could execute as one
// parallel batch.
func (g *Graph) Levels() [][]int { return g.levels }

// MaxParallelism returns the size of the widest level, the theoretical upper
// bound on useful concurrency for this graph.
func (g *Graph) MaxParallelism() int {
	max := 0
	for _, level := range g.levels {
		if len(level) > max {
			max = len(level)
		}
	}
	return max
}
