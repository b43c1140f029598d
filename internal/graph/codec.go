package graph

import (
	"encoding/json"
	"fmt"
)

// nodeLinkDocument is the node-link JSON shape for the hierarchical view.
type nodeLinkDocument struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Graph      map[string]any `json:"graph"`
	Nodes      []nodeRecord   `json:"nodes"`
	Links      []linkRecord   `json:"links"`
}

type nodeRecord struct {
	Type    NodeKind `json:"type"`
	Parent  string   `json:"parent,omitempty"`
	Summary *string  `json:"summary,omitempty"`
	Text    *string  `json:"text,omitempty"`
	ID      string   `json:"id"`
}

type linkRecord struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Encode serializes g as an indented node-link document. Nodes and links are
// written in insertion order.
func Encode(g *Graph) ([]byte, error) {
	nodes := g.Nodes()
	edges := g.Edges()

	doc := nodeLinkDocument{
		Directed: true,
		Graph:    map[string]any{},
		Nodes:    make([]nodeRecord, 0, len(nodes)),
		Links:    make([]linkRecord, 0, len(edges)),
	}
	for _, n := range nodes {
		rec := nodeRecord{Type: n.Kind, Parent: n.ParentID, ID: n.ID}
		if n.Kind == KindChunk || n.Summary != "" || n.Text != "" {
			summary, text := n.Summary, n.Text
			rec.Summary = &summary
			rec.Text = &text
		}
		doc.Nodes = append(doc.Nodes, rec)
	}
	for _, e := range edges {
		doc.Links = append(doc.Links, linkRecord{Source: e.Source, Target: e.Target})
	}

	return json.MarshalIndent(doc, "", "    ")
}

// Decode parses a node-link document produced by Encode. Links must reference
// declared nodes; repeated links collapse into one edge.
func Decode(data []byte) (*Graph, error) {
	var doc nodeLinkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	g := New()
	for i, rec := range doc.Nodes {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidDocument, i)
		}
		if !rec.Type.Valid() {
			return nil, fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidDocument, rec.ID, rec.Type)
		}
		n := Node{ID: rec.ID, Kind: rec.Type, ParentID: rec.Parent}
		if rec.Summary != nil {
			n.Summary = *rec.Summary
		}
		if rec.Text != nil {
			n.Text = *rec.Text
		}
		if !g.AddNode(n) {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrInvalidDocument, rec.ID)
		}
	}
	for _, l := range doc.Links {
		if _, ok := g.Node(l.Source); !ok {
			return nil, fmt.Errorf("%w: link source %q is not a node", ErrInvalidDocument, l.Source)
		}
		if _, ok := g.Node(l.Target); !ok {
			return nil, fmt.Errorf("%w: link target %q is not a node", ErrInvalidDocument, l.Target)
		}
		g.AddEdge(l.Source, l.Target)
	}
	return g, nil
}
