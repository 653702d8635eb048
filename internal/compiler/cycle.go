package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kabuki/internal/pipeline"
)

// CycleError reports nodes that reference each other in a cycle.
//
// Unlike a feedback loop in a control system, a reference cycle cannot be
// evaluated: a node's value would depend on itself within one cycle.
type CycleError struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// Error implements the error interface.
func (e CycleError) Error() string {
	return fmt.Sprintf("[%s] %s", ErrReferenceCycle, e.Message)
}

// AnalyzeCycles performs static cycle analysis on node references.
//
// The algorithm:
//  1. Build node → referenced node graph from arguments
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-reference as a cycle
//
// Sources cannot reference anything, so only nodes take part. A DAG
// returns an empty list.
func AnalyzeCycles(def *pipeline.Definition) []CycleError {
	if len(def.Nodes) == 0 {
		return []CycleError{}
	}

	graph := buildDependencyGraph(def)
	sccs := tarjanSCC(graph, nodeOrder(def))

	cycles := []CycleError{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, cycleSCCToError(scc, graph))
		}
	}

	return cycles
}

// dependencyGraph maps node name → node names it references.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the reference graph. Edges to sources or
// unknown names are dropped; Validate reports the latter.
func buildDependencyGraph(def *pipeline.Definition) dependencyGraph {
	graph := make(dependencyGraph)

	isNode := make(map[string]bool)
	for _, n := range def.Nodes {
		isNode[n.Name] = true
	}

	for _, n := range def.Nodes {
		// Initialize with empty slice (ensures node exists in graph)
		if graph[n.Name] == nil {
			graph[n.Name] = []string{}
		}
		for _, arg := range n.Args {
			if arg.IsRef() && isNode[arg.Ref] {
				graph[n.Name] = append(graph[n.Name], arg.Ref)
			}
		}
	}

	return graph
}

// nodeOrder returns node names in declaration order so the analysis is
// deterministic.
func nodeOrder(def *pipeline.Definition) []string {
	order := make([]string, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		order = append(order, n.Name)
	}
	return order
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of node names.
// Single-node SCCs without self-loops are NOT cycles.
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

		// v is a root node: pop the stack and create an SCC
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

// cycleSCCToError converts an SCC to a CycleError.
func cycleSCCToError(scc []string, graph dependencyGraph) CycleError {
	if len(scc) == 1 {
		name := scc[0]
		return CycleError{
			Path:    []string{name, name},
			Message: fmt.Sprintf("node references itself: %s → %s", name, name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleError{
		Path:    path,
		Message: fmt.Sprintf("reference cycle: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Starts at the first node of the SCC and follows edges to other SCC
// members until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
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
