package embeddings

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// HashingEmbedder maps terms into a fixed number of buckets with the hashing
// trick and weights them by sublinear term frequency. It needs no vocabulary,
// so vectors from different batches live in the same space.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder producing vectors of length dim.
func NewHashingEmbedder(dim int) (*HashingEmbedder, error) {
	if dim <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	return &HashingEmbedder{dim: dim}, nil
}

// Dim implements Embedder.
func (e *HashingEmbedder) Dim() int { return e.dim }

// Embed implements Embedder.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embedOne(text string) []float32 {
	embedding := make([]float32, e.dim)

	// Terms are weighted in first-seen order so bucket sums are reproducible.
	var order []string
	tf := make(map[string]int)
	for _, term := range tokenize(text) {
		if tf[term] == 0 {
			order = append(order, term)
		}
		tf[term]++
	}

	for _, term := range order {
		h := xxhash.Sum64String(term)
		idx := int(h % uint64(e.dim))
		weight := 1 + math.Log(float64(tf[term]))
		// The top bit picks a sign so colliding terms tend to cancel.
		if h>>63 == 1 {
			weight = -weight
		}
		embedding[idx] += float32(weight)
	}

	normalize(embedding)
	return embedding
}

// normalize scales v to unit L2 length in place; zero vectors are left alone.
func normalize(v []float32) {
	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 || math.IsNaN(norm) {
		return
	}
	for i := range v {
		val := float64(v[i]) / norm
		if math.IsNaN(val) || math.IsInf(val, 0) {
			v[i] = 0
		} else {
			v[i] = float32(val)
		}
	}
}

// tokenize splits text into lowercase terms of letters and digits, two or
// more characters long.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	filtered := make([]string, 0, len(terms))
	for _, term := range terms {
		if utf8.RuneCountInString(term) >= 2 {
			filtered = append(filtered, term)
		}
	}
	return filtered
}
