package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pipekit/internal/ir"
)

// Cycle describes a dependency cycle between tasks of a pipeline.
type Cycle struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeCycles finds dependency cycles between the tasks of a pipeline.
//
// The algorithm:
//  1. Build the task dependency graph from artifact references
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// A DAG returns an empty list. References to unknown tasks are ignored
// here; Validate reports them separately.
func AnalyzeCycles(p ir.PipelineSpec) []Cycle {
	graph, order := buildDependencyGraph(p)

	var cycles []Cycle
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph, order))
		}
	}
	return cycles
}

// dependencyGraph maps task ID to the IDs of tasks that consume its outputs.
type dependencyGraph map[string][]string

// buildDependencyGraph returns the graph and the declaration order of its
// nodes. The exit handler is not part of the graph.
func buildDependencyGraph(p ir.PipelineSpec) (dependencyGraph, []string) {
	graph := make(dependencyGraph, len(p.Tasks))
	order := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		if _, seen := graph[t.ID]; seen {
			continue
		}
		graph[t.ID] = []string{}
		order = append(order, t.ID)
	}

	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies() {
			if _, known := graph[dep]; !known {
				continue
			}
			if !slices.Contains(graph[dep], t.ID) {
				graph[dep] = append(graph[dep], t.ID)
			}
		}
	}
	return graph, order
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in declaration order so the result is deterministic.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack to form an SCC.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// sccToCycle converts an SCC to a Cycle whose path starts at the member
// declared first.
func sccToCycle(scc []string, graph dependencyGraph, order []string) Cycle {
	start := scc[0]
	for _, id := range order {
		if slices.Contains(scc, id) {
			start = id
			break
		}
	}

	if len(scc) == 1 {
		return Cycle{
			Path:    []string{start, start},
			Message: fmt.Sprintf("task %s consumes its own output", start),
		}
	}

	path := reconstructCyclePath(start, scc, graph)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath follows edges within the SCC from start until it
// returns to start.
func reconstructCyclePath(start string, scc []string, graph dependencyGraph) []string {
	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
