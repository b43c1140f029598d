// Package chunk defines the labeled chunk record produced by the external
// labeling step and validates it at the ingestion boundary.
//
// A labeled chunk file is JSON Lines: one object per line, carrying either
// the hierarchical fields (subject, topic, subtopic, title, summary, text)
// or the flat fields (label, text). Both shapes decode into LabeledChunk.
package chunk

import (
	"encoding/json"
	"strings"
)

// Fallback labels applied when the labeling step leaves a level blank.
const (
	DefaultSubject  = "General"
	DefaultTopic    = "Miscellaneous"
	DefaultSubtopic = "N/A"
	DefaultTitle    = "Untitled"
)

// LabeledChunk is one labeled span of source text. Values are never mutated
// after decoding; re-ingesting a title is a new record, not an edit.
type LabeledChunk struct {
	Subject  string `json:"subject,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Subtopic string `json:"subtopic,omitempty"`
	Title    string `json:"title,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Text     string `json:"text,omitempty"`

	// Label is the flat topic id used by the topic-chain view.
	Label string `json:"label,omitempty"`

	// HasLabel records whether the source object carried a label key at all,
	// which topic listing distinguishes from an empty label.
	HasLabel bool `json:"-"`
}

// Hierarchy returns the four node ids for this chunk with fallbacks applied.
func (c LabeledChunk) Hierarchy() (subject, topic, subtopic, title string) {
	return orDefault(c.Subject, DefaultSubject),
		orDefault(c.Topic, DefaultTopic),
		orDefault(c.Subtopic, DefaultSubtopic),
		orDefault(c.Title, DefaultTitle)
}

// EmbeddingText is the text handed to the embedder for this chunk.
func (c LabeledChunk) EmbeddingText() string {
	return strings.TrimSpace(c.Summary + " " + c.Title)
}

// MarshalJSON keeps an empty label when the record carried one, so a copied
// batch lists the same topics as its source.
func (c LabeledChunk) MarshalJSON() ([]byte, error) {
	type plain LabeledChunk
	if !c.HasLabel || c.Label != "" {
		return json.Marshal(plain(c))
	}
	return json.Marshal(struct {
		plain
		Label string `json:"label"`
	}{plain(c), c.Label})
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
