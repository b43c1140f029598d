// Package graph provides the knowledge graph data model for mindgraph.
//
// Two views of the same corpus live here. The hierarchical view is a
// subject → topic → subtopic → chunk tree built from labeled chunks. The flat
// view is an append-only topic chain maintained incrementally in a single
// file.
package graph

// NodeKind tags the level a node occupies in the hierarchy.
type NodeKind string

const (
	KindSubject  NodeKind = "subject"
	KindTopic    NodeKind = "topic"
	KindSubtopic NodeKind = "subtopic"
	KindChunk    NodeKind = "chunk"
)

// Valid reports whether k is one of the four known kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindSubject, KindTopic, KindSubtopic, KindChunk:
		return true
	}
	return false
}

// Node is a vertex of the hierarchical graph.
//
// IDs are the label text itself and are unique across all kinds, so a
// subject and a topic sharing a name are the same node.
type Node struct {
	// ID is the subject, topic or subtopic name, or the chunk title.
	ID string

	Kind NodeKind

	// ParentID is the id one level up; empty for subjects.
	ParentID string

	// Summary and Text are only set on chunk nodes.
	Summary string
	Text    string
}

// Edge is a directed "is parent of" relation.
type Edge struct {
	Source string
	Target string
}
