package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mindgraph/internal/chunk"
)

func sampleRecords(labels ...string) []Record {
	out := make([]Record, len(labels))
	for i, l := range labels {
		out[i] = Record{
			Vector: []float32{float32(i), float32(i) + 0.5},
			Chunk:  chunk.LabeledChunk{Label: l, HasLabel: true, Summary: l + " summary"},
		}
	}
	return out
}

func setupTestBadgerBackend(t *testing.T, dim int) (*BadgerBackend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "badger")
	backend := NewBadgerBackend(dim)
	require.NoError(t, backend.Initialize(dbPath, false))
	t.Cleanup(func() { _ = backend.Close() })
	return backend, dbPath
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	t.Run("AppendAndLoad", func(t *testing.T) {
		t.Parallel()
		m := NewMemoryBackend()
		require.NoError(t, m.AppendRecords(t.Context(), sampleRecords("a", "b")))
		require.NoError(t, m.AppendRecords(t.Context(), sampleRecords("c")))

		got, err := m.LoadRecords(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a", got[0].Chunk.Label)
		assert.Equal(t, "c", got[2].Chunk.Label)
		assert.Equal(t, 3, m.Count())
	})

	t.Run("FailAppendStoresNothing", func(t *testing.T) {
		t.Parallel()
		m := NewMemoryBackend()
		m.FailAppend = errors.New("disk full")

		err := m.AppendRecords(t.Context(), sampleRecords("a"))
		assert.ErrorIs(t, err, m.FailAppend)
		assert.Zero(t, m.Count())
	})

	t.Run("LoadedRecordsAreCopies", func(t *testing.T) {
		t.Parallel()
		m := NewMemoryBackend()
		require.NoError(t, m.AppendRecords(t.Context(), sampleRecords("a")))

		got, err := m.LoadRecords(t.Context())
		require.NoError(t, err)
		got[0].Vector[0] = 99

		again, err := m.LoadRecords(t.Context())
		require.NoError(t, err)
		assert.Equal(t, float32(0), again[0].Vector[0])
	})

	t.Run("Closed", func(t *testing.T) {
		t.Parallel()
		m := NewMemoryBackend()
		require.NoError(t, m.Close())

		assert.ErrorIs(t, m.AppendRecords(t.Context(), sampleRecords("a")), ErrClosed)
		_, err := m.LoadRecords(t.Context())
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		m := NewMemoryBackend()
		assert.ErrorIs(t, m.AppendRecords(ctx, sampleRecords("a")), context.Canceled)
	})
}

func TestBadgerBackend_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		backend, _ := setupTestBadgerBackend(t, 2)
		assert.NotNil(t, backend.db)
		assert.Equal(t, 2, backend.Dim())
		assert.Zero(t, backend.Count())
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		t.Parallel()
		backend := NewBadgerBackend(0)
		assert.Error(t, backend.Initialize(filepath.Join(t.TempDir(), "badger"), false))
	})

	t.Run("DimensionMismatchOnReopen", func(t *testing.T) {
		t.Parallel()
		dbPath := filepath.Join(t.TempDir(), "badger")

		first := NewBadgerBackend(2)
		require.NoError(t, first.Initialize(dbPath, false))
		require.NoError(t, first.Close())

		second := NewBadgerBackend(3)
		err := second.Initialize(dbPath, false)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestBadgerBackend_AppendRecords(t *testing.T) {
	t.Parallel()

	t.Run("PreservesOrderAcrossBatches", func(t *testing.T) {
		t.Parallel()
		backend, _ := setupTestBadgerBackend(t, 2)

		require.NoError(t, backend.AppendRecords(t.Context(), sampleRecords("a", "b")))
		require.NoError(t, backend.AppendRecords(t.Context(), sampleRecords("c")))

		got, err := backend.LoadRecords(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Chunk.Label, got[1].Chunk.Label, got[2].Chunk.Label})
		assert.Equal(t, []float32{1, 1.5}, got[1].Vector)
		assert.True(t, got[0].Chunk.HasLabel)
		assert.Equal(t, 3, backend.Count())
	})

	t.Run("WrongDimensionStoresNothing", func(t *testing.T) {
		t.Parallel()
		backend, _ := setupTestBadgerBackend(t, 2)

		records := sampleRecords("a", "b")
		records[1].Vector = []float32{1}

		err := backend.AppendRecords(t.Context(), records)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Zero(t, backend.Count())

		got, err := backend.LoadRecords(t.Context())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		t.Parallel()
		dbPath := filepath.Join(t.TempDir(), "badger")

		first := NewBadgerBackend(2)
		require.NoError(t, first.Initialize(dbPath, false))
		require.NoError(t, first.AppendRecords(t.Context(), sampleRecords("a", "b")))
		require.NoError(t, first.Close())

		second := NewBadgerBackend(2)
		require.NoError(t, second.Initialize(dbPath, false))
		defer second.Close()

		assert.Equal(t, 2, second.Count())
		require.NoError(t, second.AppendRecords(t.Context(), sampleRecords("c")))

		got, err := second.LoadRecords(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "c", got[2].Chunk.Label)
	})

	t.Run("BatchLargerThanOneTransaction", func(t *testing.T) {
		t.Parallel()
		backend, dbPath := setupTestBadgerBackend(t, 2)

		// 200 records of 64 KiB text is well past badger's per-transaction cap.
		text := strings.Repeat("x", 64<<10)
		records := make([]Record, 200)
		for i := range records {
			records[i] = Record{
				Vector: []float32{float32(i), 0},
				Chunk:  chunk.LabeledChunk{Title: fmt.Sprintf("c%03d", i), Text: text},
			}
		}
		require.NoError(t, backend.AppendRecords(t.Context(), records))
		assert.Equal(t, 200, backend.Count())
		require.NoError(t, backend.Close())

		reopened := NewBadgerBackend(2)
		require.NoError(t, reopened.Initialize(dbPath, true))
		defer reopened.Close()

		got, err := reopened.LoadRecords(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 200)
		assert.Equal(t, "c000", got[0].Chunk.Title)
		assert.Equal(t, "c199", got[199].Chunk.Title)
		assert.Len(t, got[199].Chunk.Text, 64<<10)
	})

	t.Run("IgnoresRecordsPastCount", func(t *testing.T) {
		t.Parallel()
		backend, _ := setupTestBadgerBackend(t, 2)
		require.NoError(t, backend.AppendRecords(t.Context(), sampleRecords("a", "b")))

		// A record written without its count, as an interrupted append leaves.
		require.NoError(t, backend.db.Update(func(txn *badger.Txn) error {
			return txn.Set(recordKey(2), []byte(`{"vector":[9,9],"chunk":{"label":"orphan"}}`))
		}))

		got, err := backend.LoadRecords(t.Context())
		require.NoError(t, err)
		assert.Len(t, got, 2)

		require.NoError(t, backend.AppendRecords(t.Context(), sampleRecords("c")))
		got, err = backend.LoadRecords(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "c", got[2].Chunk.Label)
	})

	t.Run("Closed", func(t *testing.T) {
		t.Parallel()
		backend, _ := setupTestBadgerBackend(t, 2)
		require.NoError(t, backend.Close())

		assert.ErrorIs(t, backend.AppendRecords(t.Context(), sampleRecords("a")), ErrClosed)
		_, err := backend.LoadRecords(t.Context())
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestRecordKeyOrdering(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rec:00000000000000000007", string(recordKey(7)))
	assert.Less(t, string(recordKey(9)), string(recordKey(10)))
}
