// Package index is the semantic retrieval index: an exact flat index over
// squared Euclidean distance that maps stored vectors back to their chunks.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Benny93/mindgraph/internal/chunk"
	"github.com/Benny93/mindgraph/internal/storage"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// index dimension. Nothing is inserted when it occurs.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConsistency signals that the vector and metadata stores diverged.
	// It indicates a programming defect and is never recoverable.
	ErrConsistency = errors.New("index vectors and metadata out of step")
)

// Record pairs a vector with the chunk it represents.
type Record = storage.Record

// Hit is a search result with its distance and insertion position.
type Hit struct {
	Chunk    chunk.LabeledChunk
	Distance float64
	Position int
}

// Index holds vectors and metadata in lock-step: position i of one always
// describes position i of the other. It is safe for concurrent use; Insert
// excludes Search.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	chunks  []chunk.LabeledChunk
	store   storage.RecordStore
}

// New creates an empty in-memory index of the given dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Open creates an index backed by store, replaying every persisted record.
// Subsequent inserts are written to the store before they become visible.
func Open(ctx context.Context, dim int, store storage.RecordStore) (*Index, error) {
	idx, err := New(dim)
	if err != nil {
		return nil, err
	}
	records, err := store.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading index records: %w", err)
	}
	if err := idx.Insert(ctx, records); err != nil {
		return nil, fmt.Errorf("replaying index records: %w", err)
	}
	idx.store = store
	return idx, nil
}

// Attach makes subsequent inserts write-through to store. Records already in
// the index are not copied; use Open to start from a persisted store.
func (x *Index) Attach(store storage.RecordStore) {
	x.mu.Lock()
	x.store = store
	x.mu.Unlock()
}

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of stored records.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Insert appends records as a single step. Every vector is validated first;
// on a dimension mismatch or a store failure nothing is appended.
func (x *Index) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i, r := range records {
		if len(r.Vector) != x.dim {
			return fmt.Errorf("record %d has %d dimensions, index has %d: %w", i, len(r.Vector), x.dim, ErrDimensionMismatch)
		}
	}

	vectors := make([][]float32, len(records))
	chunks := make([]chunk.LabeledChunk, len(records))
	for i, r := range records {
		vectors[i] = append([]float32(nil), r.Vector...)
		chunks[i] = r.Chunk
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(x.vectors) != len(x.chunks) {
		return fmt.Errorf("%d vectors vs %d chunks: %w", len(x.vectors), len(x.chunks), ErrConsistency)
	}
	if x.store != nil {
		if err := x.store.AppendRecords(ctx, records); err != nil {
			return fmt.Errorf("persisting records: %w", err)
		}
	}
	x.vectors = append(x.vectors, vectors...)
	x.chunks = append(x.chunks, chunks...)
	return nil
}

// Search returns up to k chunks closest to query, nearest first. Ties keep
// insertion order. An empty index or k <= 0 yields an empty result.
func (x *Index) Search(query []float32, k int) ([]chunk.LabeledChunk, error) {
	hits, err := x.SearchScored(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]chunk.LabeledChunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk
	}
	return out, nil
}

// SearchScored is Search with distances and positions.
func (x *Index) SearchScored(query []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.vectors) != len(x.chunks) {
		return nil, fmt.Errorf("%d vectors vs %d chunks: %w", len(x.vectors), len(x.chunks), ErrConsistency)
	}
	if len(x.vectors) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), x.dim, ErrDimensionMismatch)
	}

	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{Chunk: x.chunks[i], Distance: squaredL2(query, v), Position: i}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
