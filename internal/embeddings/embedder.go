// Package embeddings turns chunk text into fixed-length vectors.
//
// The production embedding model is an external collaborator; Embedder is
// its boundary. HashingEmbedder is the in-process implementation used by the
// CLI and tests.
package embeddings

import (
	"context"
	"fmt"

	"github.com/Benny93/mindgraph/internal/chunk"
)

// Embedder produces one vector of length Dim() per input text.
type Embedder interface {
	Dim() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedChunks embeds the title+summary representation of every chunk.
func EmbedChunks(ctx context.Context, e Embedder, chunks []chunk.LabeledChunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}

	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return vectors, nil
}
