package graph

import (
	"sync"
)

// Graph is an in-memory directed hierarchy of subject, topic, subtopic and
// chunk nodes.
//
// Nodes are unique by ID and edges are unique by (source, target). Both keep
// insertion order so encoding is deterministic. Secondary indexes on kind and
// adjacency keep lookups proportional to the result size.
type Graph struct {
	mu sync.RWMutex

	nodes     map[string]*Node
	nodeOrder []string

	edges     map[Edge]struct{}
	edgeOrder []Edge

	byKind   map[NodeKind]map[string]*Node
	outgoing map[string][]string
	incoming map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edges:    make(map[Edge]struct{}),
		byKind:   make(map[NodeKind]map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edgeOrder)
}

// AddNode inserts n unless a node with the same ID exists. It reports whether
// the node was inserted. The graph keeps its own copy of n.
func (g *Graph) AddNode(n Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(n)
}

func (g *Graph) addNodeLocked(n Node) bool {
	if _, ok := g.nodes[n.ID]; ok {
		return false
	}
	node := n
	g.nodes[n.ID] = &node
	g.nodeOrder = append(g.nodeOrder, n.ID)

	if g.byKind[n.Kind] == nil {
		g.byKind[n.Kind] = make(map[string]*Node)
	}
	g.byKind[n.Kind][n.ID] = &node
	return true
}

// AddEdge inserts source→target unless that ordered pair is present. It
// reports whether the edge was inserted.
func (g *Graph) AddEdge(source, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(Edge{Source: source, Target: target})
}

func (g *Graph) addEdgeLocked(e Edge) bool {
	if _, ok := g.edges[e]; ok {
		return false
	}
	g.edges[e] = struct{}{}
	g.edgeOrder = append(g.edgeOrder, e)
	g.outgoing[e.Source] = append(g.outgoing[e.Source], e.Target)
	g.incoming[e.Target] = append(g.incoming[e.Target], e.Source)
	return true
}

// Node returns a copy of the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// HasEdge reports whether source→target exists.
func (g *Graph) HasEdge(source, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[Edge{Source: source, Target: target}]
	return ok
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edgeOrder))
	copy(out, g.edgeOrder)
	return out
}

// NodesByKind returns the IDs of every node of the given kind, in insertion
// order.
func (g *Graph) NodesByKind(kind NodeKind) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.byKind[kind]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for _, id := range g.nodeOrder {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Children returns the targets of edges leaving id, in insertion order.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.outgoing[id]...)
}

// Parents returns the sources of edges entering id. For a well-formed
// hierarchy this has exactly one entry for every non-subject node.
func (g *Graph) Parents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.incoming[id]...)
}

// Stats returns a summary of graph size.
func (g *Graph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := map[string]int{
		"nodes": len(g.nodes),
		"edges": len(g.edgeOrder),
	}
	for kind, set := range g.byKind {
		stats[string(kind)] = len(set)
	}
	return stats
}
