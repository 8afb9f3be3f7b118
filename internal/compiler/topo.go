package compiler

import (
	"container/heap"
	"fmt"

	"github.com/roach88/pipekit/internal/ir"
)

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopoOrder returns the task IDs of p in execution order: every task comes
// after the tasks it references, and ties are broken by declaration order.
// The exit handler is not included.
//
// Returns an error naming the first cycle when the graph is not a DAG.
func TopoOrder(p ir.PipelineSpec) ([]string, error) {
	graph, order := buildDependencyGraph(p)

	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	indegree := make([]int, len(order))
	for _, consumers := range graph {
		for _, c := range consumers {
			indegree[index[c]]++
		}
	}

	h := &intMinHeap{}
	for i, d := range indegree {
		if d == 0 {
			heap.Push(h, i)
		}
	}

	out := make([]string, 0, len(order))
	for h.Len() > 0 {
		i := heap.Pop(h).(int)
		id := order[i]
		out = append(out, id)
		for _, c := range graph[id] {
			ci := index[c]
			indegree[ci]--
			if indegree[ci] == 0 {
				heap.Push(h, ci)
			}
		}
	}

	if len(out) != len(order) {
		if cycles := AnalyzeCycles(p); len(cycles) > 0 {
			return nil, fmt.Errorf("pipeline %q: %s", p.Name, cycles[0].Message)
		}
		return nil, fmt.Errorf("pipeline %q: dependency cycle", p.Name)
	}
	return out, nil
}
