package graph

import "sort"

// detectCycle runs a three-color depth-first search over dependency edges.
// On finding a back edge it reconstructs the full cycle path from the
// recursion stack.
func (g *Graph) detectCycle() error {
	const (
		white = iota // unvisited
		gray         // on the current recursion stack
		black        // fully explored
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = gray
		stack = append(stack, id)

		n := g.nodes[id]
		for _, dep := range sortedKeys(n.dependents) {
			switch color[dep] {
			case gray:
				// Back edge: the cycle is the stack suffix starting at dep.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), dep)
				return &CycleError{Path: path}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range sortedKeys(nodeSet(g.nodes)) {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// topoSort is Kahn's algorithm with a sorted frontier: among stages whose
// predecessors are all placed, the smallest id goes first, so the order is
// identical run to run regardless of map iteration.
func (g *Graph) topoSort() []string {
	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.consuming) + len(n.ordering)
	}

	var frontier []string
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(g.nodes))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		released := false
		for dep := range g.nodes[id].dependents {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
				released = true
			}
		}
		if released {
			sort.Strings(frontier)
		}
	}
	return order
}

func nodeSet(nodes map[string]*node) map[string]bool {
	out := make(map[string]bool, len(nodes))
	for id := range nodes {
		out[id] = true
	}
	return out
}
