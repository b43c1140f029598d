package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key layout. Positions are zero-padded so lexical key order is insertion
// order.
const (
	prefixRecord = "rec:"
	keyCount     = "meta:count"
	keyDim       = "meta:dim"
)

// ErrDimensionMismatch is returned when a store created for one vector
// dimension is opened for another.
var ErrDimensionMismatch = errors.New("stored dimension does not match")

// BadgerBackend is a BadgerDB-backed RecordStore.
type BadgerBackend struct {
	mu       sync.RWMutex
	db       *badger.DB
	dim      int
	count    int
	readOnly bool
}

// NewBadgerBackend creates a backend for vectors of the given dimension.
func NewBadgerBackend(dim int) *BadgerBackend {
	return &BadgerBackend{dim: dim}
}

// Initialize opens or creates the BadgerDB database at the given path. A
// database that was created for a different dimension is rejected.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dim <= 0 {
		return fmt.Errorf("record store dimension must be positive, got %d", b.dim)
	}

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithLoggingLevel(badger.ERROR)
	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	var storedDim, count int
	var hasDim bool
	err = db.View(func(txn *badger.Txn) error {
		var err error
		if storedDim, hasDim, err = readInt(txn, keyDim); err != nil {
			return err
		}
		count, _, err = readInt(txn, keyCount)
		return err
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("reading store metadata: %w", err)
	}

	if hasDim && storedDim != b.dim {
		_ = db.Close()
		return fmt.Errorf("store at %s has dimension %d, want %d: %w", path, storedDim, b.dim, ErrDimensionMismatch)
	}
	if !hasDim && !readOnly {
		err = db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(keyDim), []byte(strconv.Itoa(b.dim)))
		})
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("writing store dimension: %w", err)
		}
	}

	b.db = db
	b.count = count
	b.readOnly = readOnly
	return nil
}

// Close implements RecordStore.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Count implements RecordStore.
func (b *BadgerBackend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Dim returns the vector dimension the store was opened with.
func (b *BadgerBackend) Dim() int { return b.dim }

// AppendRecords implements RecordStore. Records may span several
// transactions; the batch becomes visible when the updated count commits.
func (b *BadgerBackend) AppendRecords(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return ErrClosed
	}
	if b.readOnly {
		return errors.New("record store opened read-only")
	}

	values := make([][]byte, len(records))
	for i, r := range records {
		if len(r.Vector) != b.dim {
			return fmt.Errorf("record %d has %d dimensions, store has %d: %w", i, len(r.Vector), b.dim, ErrDimensionMismatch)
		}
		data, err := json.Marshal(toStored(r))
		if err != nil {
			return fmt.Errorf("marshaling record %d: %w", i, err)
		}
		values[i] = data
	}

	next := b.count
	if err := b.writeRecords(next, values); err != nil {
		return fmt.Errorf("appending %d records: %w", len(records), err)
	}
	// The count is committed last; records past it are invisible until then.
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyCount), []byte(strconv.Itoa(next+len(values))))
	})
	if err != nil {
		return fmt.Errorf("committing record count: %w", err)
	}

	b.count = next + len(values)
	return nil
}

// writeRecords stores values at positions from onwards, splitting the writes
// into as many transactions as badger's size limit requires.
func (b *BadgerBackend) writeRecords(from int, values [][]byte) error {
	txn := b.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for i, v := range values {
		key := recordKey(from + i)
		err := txn.Set(key, v)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err = txn.Commit(); err != nil {
				return err
			}
			txn = b.db.NewTransaction(true)
			err = txn.Set(key, v)
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", from+i, err)
		}
	}
	return txn.Commit()
}

// LoadRecords implements RecordStore.
func (b *BadgerBackend) LoadRecords(ctx context.Context) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrClosed
	}

	// Only positions below the committed count are read; leftovers from an
	// interrupted append are skipped and overwritten by the next one.
	records := make([]Record, 0, b.count)
	err := b.db.View(func(txn *badger.Txn) error {
		for pos := range b.count {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := txn.Get(recordKey(pos))
			if err != nil {
				return fmt.Errorf("record %d: %w", pos, err)
			}
			var s storedRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			}); err != nil {
				return fmt.Errorf("decoding record %d: %w", pos, err)
			}
			records = append(records, s.record())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	return records, nil
}

func recordKey(pos int) []byte {
	return fmt.Appendf(nil, "%s%020d", prefixRecord, pos)
}

func readInt(txn *badger.Txn, key string) (int, bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var n int
	err = item.Value(func(val []byte) error {
		v, perr := strconv.Atoi(string(val))
		n = v
		return perr
	})
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, true, nil
}
