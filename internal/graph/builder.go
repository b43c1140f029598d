package graph

import (
	"fmt"

	"github.com/Benny93/mindgraph/internal/chunk"
	"github.com/Benny93/mindgraph/internal/logger"
)

// BuildGraph builds the hierarchical graph for a batch of chunks.
func BuildGraph(chunks []chunk.LabeledChunk) *Graph {
	g := New()
	for _, c := range chunks {
		g.Apply(c)
	}
	return g
}

// Apply upserts the four nodes and three hierarchy edges for one chunk.
//
// Existing subject, topic and subtopic nodes keep their first-seen
// attributes. The chunk node always ends up carrying this record's summary
// and text, even when the title already existed.
func (g *Graph) Apply(c chunk.LabeledChunk) {
	subject, topic, subtopic, title := c.Hierarchy()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNodeLocked(Node{ID: subject, Kind: KindSubject})
	g.addNodeLocked(Node{ID: topic, Kind: KindTopic, ParentID: subject})
	g.addNodeLocked(Node{ID: subtopic, Kind: KindSubtopic, ParentID: topic})
	if !g.addNodeLocked(Node{ID: title, Kind: KindChunk, ParentID: subtopic, Summary: c.Summary, Text: c.Text}) {
		n := g.nodes[title]
		n.Summary = c.Summary
		n.Text = c.Text
	}

	g.addEdgeLocked(Edge{Source: subject, Target: topic})
	g.addEdgeLocked(Edge{Source: topic, Target: subtopic})
	g.addEdgeLocked(Edge{Source: subtopic, Target: title})
}

// BuildGraphFromFile streams a labeled chunk file into a new graph. Malformed
// lines are skipped and logged. A missing or empty file yields an empty graph.
func BuildGraphFromFile(path string, log *logger.Logger) (*Graph, chunk.Report, error) {
	log = logger.OrNop(log)

	chunks, report, err := chunk.ReadFile(path)
	if err != nil {
		return nil, report, &IOError{Op: "read", Path: path, Err: err}
	}
	for _, w := range report.Warnings {
		log.Warn("skipping labeled chunk", "path", path, "error", w)
	}

	g := BuildGraph(chunks)
	if g.NodeCount() == 0 {
		log.Info("graph is empty", "path", path)
	} else {
		log.Info("built graph", "path", path, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	}
	return g, report, nil
}

// ExportGraph writes g to path in node-link form without ever leaving a
// partially written file behind.
func ExportGraph(g *Graph, path string) error {
	data, err := Encode(g)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return writeAtomic(path, data)
}

// LoadGraph reads a node-link document written by ExportGraph.
func LoadGraph(path string) (*Graph, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	g, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return g, nil
}
