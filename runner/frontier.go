package runner

import (
	"container/heap"

	"github.com/testforge/test-orchestrator/graph"
)

// readyQueue orders the frontier: highest estimated complexity first, which
// starts likely long poles early and reduces scheduling skew. Ties fall back
// to suite insertion order, which the graph arena preserves as node index.
type readyQueue struct {
	g     *graph.Graph
	items []int
}

func newReadyQueue(g *graph.Graph) *readyQueue {
	return &readyQueue{g: g}
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(a, b int) bool {
	ca := q.g.Node(q.items[a]).Case.Complexity
	cb := q.g.Node(q.items[b]).Case.Complexity
	if ca != cb {
		return ca > cb
	}
	return q.items[a] < q.items[b]
}

func (q *readyQueue) Swap(a, b int) { q.items[a], q.items[b] = q.items[b], q.items[a] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(int)) }

func (q *readyQueue) Pop() any {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}

func (q *readyQueue) push(i int) { heap.Push(q, i) }

func (q *readyQueue) pop() int { return heap.Pop(q).(int) }
