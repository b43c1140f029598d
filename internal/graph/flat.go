package graph

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// SummaryLimit is the number of characters of chunk text kept as a flat
// node's summary.
const SummaryLimit = 200

// TruncationMarker is appended to summaries cut at SummaryLimit.
const TruncationMarker = "..."

// FlatGraph is the topic-chain view: nodes keyed by label and links that
// chain the nodes added by each merge.
type FlatGraph struct {
	Nodes []FlatNode `json:"nodes"`
	Links []Link     `json:"links"`
}

// FlatNode is one label in the topic-chain view.
type FlatNode struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Link connects two flat nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NodeIDs returns the set of node ids.
func (f *FlatGraph) NodeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(f.Nodes))
	for _, n := range f.Nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}

// EncodeFlat serializes the topic-chain view.
func EncodeFlat(f *FlatGraph) ([]byte, error) {
	out := FlatGraph{Nodes: f.Nodes, Links: f.Links}
	if out.Nodes == nil {
		out.Nodes = []FlatNode{}
	}
	if out.Links == nil {
		out.Links = []Link{}
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecodeFlat parses a topic-chain document. Missing arrays decode as empty.
func DecodeFlat(data []byte) (*FlatGraph, error) {
	var f FlatGraph
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for i, n := range f.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidDocument, i)
		}
	}
	if f.Nodes == nil {
		f.Nodes = []FlatNode{}
	}
	if f.Links == nil {
		f.Links = []Link{}
	}
	return &f, nil
}

// LoadFlat reads the topic-chain view at path.
func LoadFlat(path string) (*FlatGraph, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	f, err := DecodeFlat(data)
	if err != nil {
		return nil, &IOError{Op: "decode", Path: path, Err: err}
	}
	return f, nil
}

// summarize keeps the first SummaryLimit characters of text, marking the cut.
func summarize(text string) string {
	if utf8.RuneCountInString(text) <= SummaryLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:SummaryLimit]) + TruncationMarker
}
