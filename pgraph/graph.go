package pgraph

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

var (
	ErrInvalidNodeID = errors.New("invalid node ID")
	ErrInvalidEdgeID = errors.New("invalid edge ID")
	ErrEdgeExists    = errors.New("edge already exists")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrDuplicateEdge = errors.New("endpoints already connected")
)

// NodeID identifies a machine in the graph.
// NodeIDs must be non-empty and cannot contain whitespace.
type NodeID string

// Validate checks if the NodeID is valid.
func (id NodeID) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: NodeID cannot be empty", ErrInvalidNodeID)
	}
	if strings.ContainsAny(string(id), " \t\n\r") {
		return fmt.Errorf("%w: NodeID %q cannot contain whitespace", ErrInvalidNodeID, id)
	}
	return nil
}

// EdgeID identifies one link.
type EdgeID string

// Edge is one directed wire from an output channel to an input channel.
type Edge struct {
	ID          EdgeID
	From        NodeID
	FromChannel int
	To          NodeID
	ToChannel   int
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", e.From, e.FromChannel, e.To, e.ToChannel)
}

// Node tracks the distinct neighbours of a node, in the order they were first
// connected. Parallel edges on different channels appear once.
type Node struct {
	ID       NodeID
	Parents  []NodeID
	Children []NodeID
}

type pair struct {
	from, to NodeID
}

// Graph is the edge index: (from, to) -> edges, plus adjacency for traversal.
type Graph struct {
	Nodes map[NodeID]*Node

	// Deterministic node ordering (insertion order)
	NodeOrder []NodeID

	edges     map[pair][]*Edge
	byID      map[EdgeID]*Edge
	edgeOrder []EdgeID
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[NodeID]*Node),
		NodeOrder: make([]NodeID, 0),
		edges:     make(map[pair][]*Edge),
		byID:      make(map[EdgeID]*Edge),
		edgeOrder: make([]EdgeID, 0),
	}
}

// AddEdge registers e, creating its endpoints on first use.
func (g *Graph) AddEdge(e *Edge) error {
	if e.ID == "" {
		return fmt.Errorf("%w: EdgeID cannot be empty", ErrInvalidEdgeID)
	}
	if err := e.From.Validate(); err != nil {
		return err
	}
	if err := e.To.Validate(); err != nil {
		return err
	}
	if _, exists := g.byID[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrEdgeExists, e.ID)
	}
	if g.Connected(e.From, e.FromChannel, e.To, e.ToChannel) {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
	}

	from := g.ensureNode(e.From)
	to := g.ensureNode(e.To)

	key := pair{e.From, e.To}
	if len(g.edges[key]) == 0 {
		from.Children = append(from.Children, e.To)
		to.Parents = append(to.Parents, e.From)
	}
	g.edges[key] = append(g.edges[key], e)
	g.byID[e.ID] = e
	g.edgeOrder = append(g.edgeOrder, e.ID)
	return nil
}

// RemoveEdge unregisters an edge. Nodes left without edges are dropped.
func (g *Graph) RemoveEdge(id EdgeID) (*Edge, error) {
	e, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}

	key := pair{e.From, e.To}
	remaining := slices.DeleteFunc(g.edges[key], func(candidate *Edge) bool {
		return candidate.ID == id
	})
	if len(remaining) == 0 {
		delete(g.edges, key)
		from := g.Nodes[e.From]
		to := g.Nodes[e.To]
		from.Children = removeID(from.Children, e.To)
		to.Parents = removeID(to.Parents, e.From)
	} else {
		g.edges[key] = remaining
	}

	delete(g.byID, id)
	if idx := slices.Index(g.edgeOrder, id); idx >= 0 {
		g.edgeOrder = slices.Delete(g.edgeOrder, idx, idx+1)
	}

	g.dropIfIsolated(e.From)
	g.dropIfIsolated(e.To)
	return e, nil
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id EdgeID) (*Edge, bool) {
	e, ok := g.byID[id]
	return e, ok
}

// Edges returns all edges in registration order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.byID[id])
	}
	return out
}

// EdgesBetween returns the edges from -> to in registration order.
func (g *Graph) EdgesBetween(from, to NodeID) []*Edge {
	return slices.Clone(g.edges[pair{from, to}])
}

// EdgesOf returns every edge touching node, in registration order.
func (g *Graph) EdgesOf(node NodeID) []*Edge {
	var out []*Edge
	for _, id := range g.edgeOrder {
		e := g.byID[id]
		if e.From == node || e.To == node {
			out = append(out, e)
		}
	}
	return out
}

// Connected reports whether an edge joins the two endpoints.
func (g *Graph) Connected(from NodeID, fromChannel int, to NodeID, toChannel int) bool {
	for _, e := range g.edges[pair{from, to}] {
		if e.FromChannel == fromChannel && e.ToChannel == toChannel {
			return true
		}
	}
	return false
}

// Children returns the distinct successors of node.
func (g *Graph) Children(node NodeID) []NodeID {
	n, ok := g.Nodes[node]
	if !ok {
		return nil
	}
	return slices.Clone(n.Children)
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	return len(g.byID)
}

func (g *Graph) ensureNode(id NodeID) *Node {
	if n, ok := g.Nodes[id]; ok {
		return n
	}
	n := &Node{ID: id}
	g.Nodes[id] = n
	g.NodeOrder = append(g.NodeOrder, id)
	return n
}

func (g *Graph) dropIfIsolated(id NodeID) {
	n, ok := g.Nodes[id]
	if !ok || len(n.Parents) > 0 || len(n.Children) > 0 {
		return
	}
	delete(g.Nodes, id)
	g.NodeOrder = removeID(g.NodeOrder, id)
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	if idx := slices.Index(ids, id); idx >= 0 {
		return slices.Delete(ids, idx, idx+1)
	}
	return ids
}
