package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend is an in-memory RecordStore for tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []Record
	closed  bool

	// FailAppend, when set, is returned by AppendRecords without storing
	// anything.
	FailAppend error
}

// NewMemoryBackend creates an empty in-memory store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// AppendRecords implements RecordStore.
func (m *MemoryBackend) AppendRecords(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailAppend != nil {
		return fmt.Errorf("appending records: %w", m.FailAppend)
	}
	for _, r := range records {
		m.records = append(m.records, cloneRecord(r))
	}
	return nil
}

// LoadRecords implements RecordStore.
func (m *MemoryBackend) LoadRecords(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Record, len(m.records))
	for i, r := range m.records {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

// Count implements RecordStore.
func (m *MemoryBackend) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close implements RecordStore.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}

func cloneRecord(r Record) Record {
	return Record{Vector: append([]float32(nil), r.Vector...), Chunk: r.Chunk}
}
