package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// ViewCycle is a set of views whose bodies reference each other. Expanding
// any of them would never terminate, so a cycle is always an error.
type ViewCycle struct {
	Path    []string `json:"path"` // ["A", "B", "A"]
	Message string   `json:"message"`
}

// FindViewCycles reports every cycle among the spec's views.
//
// The algorithm:
//  1. Build a view -> view graph from each view's from clause
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each component with more than one view, or a self-loop
//
// Results are sorted by path so reports are stable.
func FindViewCycles(spec *APISpec) []ViewCycle {
	graph := viewGraph(spec)
	var cycles []ViewCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || slices.Contains(graph[scc[0]], scc[0]) {
			cycles = append(cycles, toCycle(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b ViewCycle) int {
		return strings.Compare(strings.Join(a.Path, ","), strings.Join(b.Path, ","))
	})
	return cycles
}

// dependencyGraph maps a view to the views its body references.
type dependencyGraph map[string][]string

func viewGraph(spec *APISpec) dependencyGraph {
	graph := make(dependencyGraph, len(spec.Views))
	isView := make(map[string]bool, len(spec.Views))
	for _, v := range spec.Views {
		isView[v.Name] = true
	}
	for _, v := range spec.Views {
		if graph[v.Name] == nil {
			graph[v.Name] = []string{}
		}
		if isView[v.From] {
			graph[v.Name] = append(graph[v.Name], v.From)
		}
	}
	return graph
}

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in sorted order.
func tarjanSCC(graph dependencyGraph) [][]string {
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

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// toCycle walks a component from its smallest member back to itself.
// Every view has at most one outgoing edge, so the walk is the cycle.
func toCycle(scc []string, graph dependencyGraph) ViewCycle {
	start := slices.Min(scc)
	path := []string{start}
	for cur := start; ; {
		next := graph[cur][0]
		path = append(path, next)
		if next == start {
			break
		}
		cur = next
	}
	return ViewCycle{
		Path:    path,
		Message: fmt.Sprintf("view cycle: %s", strings.Join(path, " → ")),
	}
}
