package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Graph is a directed dependency graph. An edge a -> b means a depends on b,
// so b must load before a.
type Graph struct {
	order []string
	edges map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// AddNode adds id if it is not already present.
func (g *Graph) AddNode(id string) {
	if _, ok := g.edges[id]; ok {
		return
	}
	g.order = append(g.order, id)
	g.edges[id] = nil
}

// AddEdge records that from depends on to. Both nodes are added.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
}

// Has reports whether id is a node.
func (g *Graph) Has(id string) bool {
	_, ok := g.edges[id]
	return ok
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.order)
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id string) []string {
	return slices.Clone(g.edges[id])
}

// Adjacency returns a copy of the edge map.
func (g *Graph) Adjacency() map[string][]string {
	out := make(map[string][]string, len(g.edges))
	for k, v := range g.edges {
		out[k] = slices.Clone(v)
	}
	return out
}

// FindCycle runs a depth-first search keeping the current path on an
// explicit stack. It returns the first cycle found as a closed path
// (a, b, a) or nil.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool, len(g.order))
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range g.edges[id] {
			if onStack[dep] {
				start := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[start:]), dep)
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && visit(id) {
			return cycle
		}
	}
	return nil
}

// LoadOrder returns a topological order using Kahn's algorithm with a FIFO
// queue. Nodes that become ready together are enqueued in lexical order so
// the result is reproducible regardless of map iteration or insertion order.
func (g *Graph) LoadOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.edges[id])
		for _, dep := range g.edges[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	order := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		var ready []string
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		slices.Sort(ready)
		queue = append(queue, ready...)
	}

	if len(order) != len(g.order) {
		return nil, fmt.Errorf("%w: %d of %d modules could not be ordered", modular.ErrCircularDependency, len(g.order)-len(order), len(g.order))
	}
	return order, nil
}

// Hash is a digest of the node and edge structure, independent of
// insertion order.
func (g *Graph) Hash() string {
	ids := slices.Sorted(maps.Keys(g.edges))
	h := sha256.New()
	for _, id := range ids {
		deps := slices.Clone(g.edges[id])
		slices.Sort(deps)
		fmt.Fprintf(h, "%s->%s\n", id, strings.Join(deps, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}
