package graph

import "strings"

// Outline renders the hierarchy as one line per node, indented two spaces
// per level. Roots are nodes without parents, visited in insertion order. A
// self-edge from colliding ids does not count as a parent, and each node is
// listed once.
func Outline(g *Graph) []string {
	var lines []string
	seen := make(map[string]bool)

	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if seen[id] {
			return
		}
		seen[id] = true
		lines = append(lines, strings.Repeat("  ", depth)+id)
		for _, child := range g.Children(id) {
			walk(child, depth+1)
		}
	}

	for _, n := range g.Nodes() {
		if isRoot(g, n.ID) {
			walk(n.ID, 0)
		}
	}
	return lines
}

// isRoot reports whether id has no parent besides itself.
func isRoot(g *Graph, id string) bool {
	for _, p := range g.Parents(id) {
		if p != id {
			return false
		}
	}
	return true
}
