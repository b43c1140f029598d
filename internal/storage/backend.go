// Package storage persists semantic index records.
//
// A RecordStore is an append-only log of (vector, chunk) pairs kept in
// insertion order, so an index replayed from it assigns every record the
// same position it had before.
package storage

import (
	"context"
	"errors"

	"github.com/Benny93/mindgraph/internal/chunk"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("record store is closed")

// Record pairs a vector with the chunk it represents.
type Record struct {
	Vector []float32
	Chunk  chunk.LabeledChunk
}

// RecordStore defines the interface for record persistence.
//
// Implementations must be safe for concurrent use. AppendRecords is
// all-or-nothing: either every record of the batch is persisted or none is.
type RecordStore interface {
	// AppendRecords persists records after all previously appended ones.
	AppendRecords(ctx context.Context, records []Record) error

	// LoadRecords returns every persisted record in insertion order.
	LoadRecords(ctx context.Context) ([]Record, error)

	// Count returns the number of persisted records.
	Count() int

	// Close releases all resources held by the store.
	Close() error
}

// storedRecord is the persisted encoding of a Record. The label presence flag
// is kept explicitly; plain JSON decoding of a chunk never sets it.
type storedRecord struct {
	Vector   []float32          `json:"vector"`
	Chunk    chunk.LabeledChunk `json:"chunk"`
	HasLabel bool               `json:"has_label,omitempty"`
}

func toStored(r Record) storedRecord {
	return storedRecord{Vector: r.Vector, Chunk: r.Chunk, HasLabel: r.Chunk.HasLabel}
}

func (s storedRecord) record() Record {
	c := s.Chunk
	c.HasLabel = s.HasLabel
	return Record{Vector: s.Vector, Chunk: c}
}
