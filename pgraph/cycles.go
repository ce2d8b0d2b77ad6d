package pgraph

import (
	"strings"
)

// CycleReport is the result of one DetectCycles pass.
type CycleReport struct {
	// Edges holds every edge lying on at least one directed cycle.
	Edges map[EdgeID]struct{}

	// Components lists the node sets forming cycles, in the order the search
	// completed them. Members are in traversal order.
	Components [][]NodeID
}

// Found reports whether any cycle exists.
func (r CycleReport) Found() bool {
	return len(r.Edges) > 0
}

// Contains reports whether the edge lies on a cycle.
func (r CycleReport) Contains(id EdgeID) bool {
	_, ok := r.Edges[id]
	return ok
}

func (r CycleReport) String() string {
	parts := make([]string, len(r.Components))
	for i, c := range r.Components {
		ids := make([]string, len(c)+1)
		for j, id := range c {
			ids[j] = string(id)
		}
		ids[len(c)] = string(c[0])
		parts[i] = strings.Join(ids, " -> ")
	}
	return strings.Join(parts, "; ")
}

// frame is one entry of the explicit DFS stack.
type frame struct {
	node   NodeID
	parent NodeID
	next   int // index of the next child to explore
}

// DetectCycles finds every edge that lies on a directed cycle.
//
// The search is an iterative DFS over strongly connected components: a node
// stays on the path set until the component rooted at it is complete. An
// edge u -> v is cyclic iff u and v end up in the same component, which also
// covers self-loops.
func (g *Graph) DetectCycles() CycleReport {
	n := len(g.Nodes)
	index := make(map[NodeID]int, n)
	low := make(map[NodeID]int, n)
	onPath := make(map[NodeID]bool, n)
	component := make(map[NodeID]int, n)

	var (
		path       []NodeID
		components [][]NodeID
		counter    int
	)

	visit := func(id NodeID) {
		index[id] = counter
		low[id] = counter
		counter++
		path = append(path, id)
		onPath[id] = true
	}

	for _, root := range g.NodeOrder {
		if _, seen := index[root]; seen {
			continue
		}

		visit(root)
		stack := []frame{{node: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := g.Nodes[top.node].Children

			if top.next < len(children) {
				child := children[top.next]
				top.next++

				if _, seen := index[child]; !seen {
					visit(child)
					stack = append(stack, frame{node: child, parent: top.node})
				} else if onPath[child] {
					// Back edge: child is an ancestor on the current path.
					low[top.node] = min(low[top.node], index[child])
				}
				continue
			}

			// All children explored.
			done := *top
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				low[done.parent] = min(low[done.parent], low[done.node])
			}

			if low[done.node] != index[done.node] {
				continue
			}

			var members []NodeID
			for {
				last := path[len(path)-1]
				path = path[:len(path)-1]
				onPath[last] = false
				component[last] = len(components)
				members = append(members, last)
				if last == done.node {
					break
				}
			}
			// Popped in reverse traversal order.
			for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
				members[i], members[j] = members[j], members[i]
			}
			components = append(components, members)
		}
	}

	report := CycleReport{Edges: make(map[EdgeID]struct{})}
	cyclic := make(map[int]bool)
	for _, id := range g.edgeOrder {
		e := g.byID[id]
		c := component[e.From]
		if c == component[e.To] {
			report.Edges[id] = struct{}{}
			cyclic[c] = true
		}
	}

	for i, members := range components {
		if cyclic[i] {
			report.Components = append(report.Components, members)
		}
	}
	return report
}
