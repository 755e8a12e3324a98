// Package graph builds and orders the stage dependency graph.
//
// Every declared dependency, output-consuming or ordering-only, becomes a
// directed edge. The graph is validated acyclic before any stage executes
// and yields a deterministic topological order: independent stages are
// tie-broken by id so repeated runs order identically.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyvedata/stacker/internal/catalog"
)

// Edge is a directed dependency: To depends on From. ConsumesOutputs
// distinguishes value-carrying edges from ordering-only ones.
type Edge struct {
	From            string
	To              string
	ConsumesOutputs bool
}

// CycleError reports a dependency cycle, with the full path for the
// operator to untangle. Fatal to the whole run.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

type node struct {
	id         string
	consuming  map[string]bool // predecessors whose outputs this stage consumes
	ordering   map[string]bool // ordering-only predecessors
	dependents map[string]bool // direct successors, either edge kind
}

func (n *node) isPredecessor(id string) bool {
	return n.consuming[id] || n.ordering[id]
}

// Graph is the validated, ordered dependency graph for one catalog.
type Graph struct {
	nodes map[string]*node
	order []string
}

// Build constructs the graph from a loaded catalog, rejects cycles and
// computes the deterministic execution order.
func Build(c *catalog.Catalog) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(c.Stages))}

	for _, d := range c.Stages {
		g.nodes[d.ID] = &node{
			id:         d.ID,
			consuming:  make(map[string]bool),
			ordering:   make(map[string]bool),
			dependents: make(map[string]bool),
		}
	}

	for _, d := range c.Stages {
		n := g.nodes[d.ID]
		for _, dep := range d.DependsOn {
			n.consuming[dep] = true
			g.nodes[dep].dependents[d.ID] = true
		}
		for _, dep := range d.After {
			if n.consuming[dep] {
				continue // consuming edge already orders the pair
			}
			n.ordering[dep] = true
			g.nodes[dep].dependents[d.ID] = true
		}
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	g.order = g.topoSort()

	return g, nil
}

// Order returns the execution order, stable across runs.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// ReverseOrder returns the destroy order: the exact reverse of Order.
func (g *Graph) ReverseOrder() []string {
	out := make([]string, len(g.order))
	for i, id := range g.order {
		out[len(out)-1-i] = id
	}
	return out
}

// Predecessors returns all immediate predecessors of a stage, consuming
// and ordering-only alike, sorted by id.
func (g *Graph) Predecessors(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.consuming)+len(n.ordering))
	for dep := range n.consuming {
		out = append(out, dep)
	}
	for dep := range n.ordering {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// ConsumingPredecessors returns the predecessors whose outputs the stage
// binds as inputs, sorted by id.
func (g *Graph) ConsumingPredecessors(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return sortedKeys(n.consuming)
}

// OrderingPredecessors returns the ordering-only predecessors, sorted by
// id. They influence scheduling but never input resolution.
func (g *Graph) OrderingPredecessors(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return sortedKeys(n.ordering)
}

// Dependents returns the direct successors of a stage, sorted by id.
func (g *Graph) Dependents(id string) []string {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return sortedKeys(n.dependents)
}

// TransitiveDependents returns every stage reachable downstream of id,
// sorted by id. Used for failure propagation.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	g.walkDependents(id, seen)
	delete(seen, id)
	return sortedKeys(seen)
}

func (g *Graph) walkDependents(id string, seen map[string]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	for dep := range g.nodes[id].dependents {
		g.walkDependents(dep, seen)
	}
}

// PrerequisiteClosure returns the targets plus every transitive
// predecessor, the set a targeted plan/apply must cover.
func (g *Graph) PrerequisiteClosure(targets []string) (map[string]bool, error) {
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		n := g.nodes[id]
		for dep := range n.consuming {
			walk(dep)
		}
		for dep := range n.ordering {
			walk(dep)
		}
	}
	for _, t := range targets {
		if _, ok := g.nodes[t]; !ok {
			return nil, fmt.Errorf("unknown target stage %q", t)
		}
		walk(t)
	}
	return seen, nil
}

// DependentClosure returns the targets plus every transitive dependent,
// the set a targeted destroy must cover.
func (g *Graph) DependentClosure(targets []string) (map[string]bool, error) {
	seen := make(map[string]bool)
	for _, t := range targets {
		if _, ok := g.nodes[t]; !ok {
			return nil, fmt.Errorf("unknown target stage %q", t)
		}
		g.walkDependents(t, seen)
	}
	return seen, nil
}

// Edges returns every edge, sorted (From, To), mostly for diagnostics.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.nodes {
		for dep := range n.consuming {
			out = append(out, Edge{From: dep, To: n.id, ConsumesOutputs: true})
		}
		for dep := range n.ordering {
			out = append(out, Edge{From: dep, To: n.id})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
