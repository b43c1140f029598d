package graph

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mindgraph/internal/chunk"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	many := make([]chunk.LabeledChunk, 0, 30)
	for i := 0; i < 30; i++ {
		many = append(many, chunk.LabeledChunk{
			Subject:  fmt.Sprintf("S%d", i%2),
			Topic:    fmt.Sprintf("T%d", i%4),
			Subtopic: fmt.Sprintf("U%d", i%8),
			Title:    fmt.Sprintf("Chunk %d", i),
			Summary:  fmt.Sprintf("Summary %d.", i),
			Text:     fmt.Sprintf("Text %d", i),
		})
	}

	single := New()
	single.AddNode(Node{ID: "Lonely", Kind: KindSubject})

	collided := BuildGraph([]chunk.LabeledChunk{{Title: "General", Summary: "odd", Text: "case"}})

	tests := []struct {
		name string
		g    *Graph
	}{
		{"Empty", New()},
		{"Single", single},
		{"Many", BuildGraph(many)},
		{"ContentOnNonChunkNode", collided},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := Encode(tt.g)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.g.Nodes(), got.Nodes())
			assert.ElementsMatch(t, tt.g.Edges(), got.Edges())
		})
	}
}

func TestEncode_NodeLinkShape(t *testing.T) {
	t.Parallel()

	g := BuildGraph([]chunk.LabeledChunk{
		{Subject: "S", Topic: "T", Subtopic: "U", Title: "X", Summary: "sum", Text: "body"},
	})
	data, err := Encode(g)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["directed"])
	assert.Equal(t, false, doc["multigraph"])

	nodes := doc["nodes"].([]any)
	require.Len(t, nodes, 4)

	subject := nodes[0].(map[string]any)
	assert.Equal(t, "S", subject["id"])
	assert.Equal(t, "subject", subject["type"])
	assert.NotContains(t, subject, "parent")
	assert.NotContains(t, subject, "summary")

	leaf := nodes[3].(map[string]any)
	assert.Equal(t, "X", leaf["id"])
	assert.Equal(t, "chunk", leaf["type"])
	assert.Equal(t, "U", leaf["parent"])
	assert.Equal(t, "sum", leaf["summary"])
	assert.Equal(t, "body", leaf["text"])

	links := doc["links"].([]any)
	require.Len(t, links, 3)
	assert.Equal(t, map[string]any{"source": "S", "target": "T"}, links[0])
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"NotJSON", `{nodes`},
		{"NodeWithoutID", `{"nodes":[{"type":"subject"}],"links":[]}`},
		{"UnknownType", `{"nodes":[{"id":"a","type":"file"}],"links":[]}`},
		{"DanglingLink", `{"nodes":[{"id":"a","type":"subject"}],"links":[{"source":"a","target":"b"}]}`},
		{"DuplicateNode", `{"nodes":[{"id":"a","type":"subject"},{"id":"a","type":"topic"}],"links":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestDecode_DuplicateLinksCollapse(t *testing.T) {
	t.Parallel()

	doc := `{"nodes":[{"id":"a","type":"subject"},{"id":"b","type":"topic","parent":"a"}],
		"links":[{"source":"a","target":"b"},{"source":"a","target":"b"}]}`
	g, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, g.EdgeCount())
}

func TestFlatCodec(t *testing.T) {
	t.Parallel()

	t.Run("EmptyArraysNotNull", func(t *testing.T) {
		t.Parallel()
		data, err := EncodeFlat(&FlatGraph{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes":[],"links":[]}`, string(data))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		in := &FlatGraph{
			Nodes: []FlatNode{{ID: "A", Title: "A", Summary: "a"}, {ID: "B", Title: "B", Summary: "b"}},
			Links: []Link{{Source: "A", Target: "B"}},
		}
		data, err := EncodeFlat(in)
		require.NoError(t, err)
		out, err := DecodeFlat(data)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("MissingArrays", func(t *testing.T) {
		t.Parallel()
		out, err := DecodeFlat([]byte(`{}`))
		require.NoError(t, err)
		assert.Empty(t, out.Nodes)
		assert.NotNil(t, out.Links)
	})

	t.Run("NodeWithoutID", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeFlat([]byte(`{"nodes":[{"title":"x"}]}`))
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})
}
