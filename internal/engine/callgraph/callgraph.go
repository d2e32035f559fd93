// # internal/engine/callgraph/callgraph.go
package callgraph

import (
	"sort"
	"sync"
)

// Graph records which methods call which during inference. Nodes are method
// names such as "RTI4.bar" or "RTI18#foo".
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]bool
	calls map[string]map[string]int
}

// New returns an empty call graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		calls: make(map[string]map[string]int),
	}
}

// AddCall records one call site from -> to.
func (g *Graph) AddCall(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[from] = true
	g.nodes[to] = true
	if g.calls[from] == nil {
		g.calls[from] = make(map[string]int)
	}
	g.calls[from][to]++
}

// Callees returns the methods name was seen calling, sorted.
func (g *Graph) Callees(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.calls[name]))
	for to := range g.calls[name] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// DetectCycles returns the recursive call groups. Each cycle starts at its
// lexically smallest method so results are stable.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	for _, name := range sortedKeys(g.nodes) {
		if !visited[name] {
			g.findCycles(name, visited, onStack, []string{}, &cycles)
		}
	}
	return cycles
}

func (g *Graph) findCycles(curr string, visited, onStack map[string]bool, path []string, cycles *[][]string) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	next := make([]string, 0, len(g.calls[curr]))
	for to := range g.calls[curr] {
		next = append(next, to)
	}
	sort.Strings(next)

	for _, to := range next {
		if onStack[to] {
			start := -1
			for i, name := range path {
				if name == to {
					start = i
					break
				}
			}
			if start != -1 {
				cycle := make([]string, len(path)-start)
				copy(cycle, path[start:])
				*cycles = append(*cycles, rotate(cycle))
			}
		} else if !visited[to] {
			g.findCycles(to, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}

func rotate(cycle []string) []string {
	min := 0
	for i, name := range cycle {
		if name < cycle[min] {
			min = i
		}
	}
	return append(append([]string(nil), cycle[min:]...), cycle[:min]...)
}

// CyclePath returns the shortest call path leading from name back to itself,
// starting and ending with name. ok is false when name is not recursive.
func (g *Graph) CyclePath(name string) ([]string, bool) {
	var best []string
	for _, callee := range g.Callees(name) {
		chain, ok := g.FindCallChain(callee, name)
		if ok && (best == nil || len(chain) < len(best)) {
			best = chain
		}
	}
	if best == nil {
		return nil, false
	}
	if len(best) == 1 {
		// direct self call
		return []string{name, name}, true
	}
	return append([]string{name}, best...), true
}

// FindCallChain returns the shortest call path from -> to.
func (g *Graph) FindCallChain(from, to string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.nodes[from] || !g.nodes[to] {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	queue := []string{from}
	visited := map[string]bool{from: true}
	prev := make(map[string]string)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		neighbors := make([]string, 0, len(g.calls[curr]))
		for next := range g.calls[curr] {
			neighbors = append(neighbors, next)
		}
		sort.Strings(neighbors)

		for _, next := range neighbors {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []string{to}
				for node := to; node != from; {
					p := prev[node]
					path = append(path, p)
					node = p
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
