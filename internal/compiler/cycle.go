package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/attrflow/internal/ir"
)

// CycleWarning represents a potential propagation cycle between enrichers.
//
// Cycles are warnings, not errors, because they may converge: duplicate
// suppression or an Unchanged result stops a loop once values settle.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["enricher-a", "enricher-b", "enricher-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a topology's enrichers.
//
// Enricher X feeds enricher Y when X writes the sensor Y observes on the
// entity Y observes it on: X.entity == Y.producer and X.target is one of
// Y's sources. The algorithm:
//  1. Build the enricher → enricher feed graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// A DAG (no cycles) returns an empty warning list. Output order is
// deterministic.
func AnalyzeCycles(topo *ir.Topology) []CycleWarning {
	warnings := []CycleWarning{}
	if topo == nil || len(topo.Enrichers) == 0 {
		return warnings
	}

	graph := buildFeedGraph(topo.Enrichers)

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// feedGraph maps enricher name → names of enrichers its writes can trigger.
// Neighbor lists are sorted.
type feedGraph map[string][]string

type observation struct {
	entity string
	sensor string
}

func buildFeedGraph(enrichers []ir.EnricherSpec) feedGraph {
	observers := make(map[observation][]string)
	for _, e := range enrichers {
		for _, src := range e.SourceNames() {
			key := observation{entity: e.ProducerName(), sensor: src}
			observers[key] = append(observers[key], e.Name)
		}
	}

	graph := make(feedGraph, len(enrichers))
	for _, e := range enrichers {
		fed := slices.Clone(observers[observation{entity: e.Entity, sensor: e.Target}])
		slices.Sort(fed)
		graph[e.Name] = slices.Compact(fed)
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph feedGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in sorted order so results are reproducible.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph feedGraph) [][]string {
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

		// v is a root node: pop the stack into an SCC
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
			slices.Sort(scc)
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

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph feedGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-triggering enricher detected: %s → %s", name, name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential propagation cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the smallest name, follow edges to unvisited SCC
// members, and close the loop when start is reachable again.
func reconstructCyclePath(scc []string, graph feedGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := map[string]bool{start: true}

	for {
		next := ""
		for _, neighbor := range graph[current] {
			if members[neighbor] && !visited[neighbor] {
				next = neighbor
				break
			}
		}
		if next == "" {
			if slices.Contains(graph[current], start) {
				path = append(path, start)
			}
			break
		}
		path = append(path, next)
		visited[next] = true
		current = next
	}

	return path
}
