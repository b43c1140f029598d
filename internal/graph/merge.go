package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Benny93/mindgraph/internal/chunk"
	"github.com/Benny93/mindgraph/internal/logger"
)

// lockRetryDelay is how often a blocked merge re-polls the file lock.
const lockRetryDelay = 20 * time.Millisecond

// MergeResult describes one incremental merge.
type MergeResult struct {
	Graph *FlatGraph

	// Added is the number of nodes this call created.
	Added int

	// LinksAdded is the number of links this call created; always
	// max(Added-1, 0).
	LinksAdded int

	// Skipped counts lines that failed to parse.
	Skipped int
}

// Merger folds labeled chunk batches into a persisted topic-chain graph.
//
// Merges against the same graph path are serialized inside the process by a
// per-path semaphore and across processes by an advisory lock on
// "<path>.lock", so the read-modify-write is atomic as seen from outside.
type Merger struct {
	log *logger.Logger
}

// NewMerger creates a Merger. A nil logger discards output.
func NewMerger(log *logger.Logger) *Merger {
	return &Merger{log: logger.OrNop(log)}
}

// MergeGraph merges the batch at newChunksPath into the graph stored at
// existingGraphPath and returns the merged graph.
func MergeGraph(existingGraphPath, newChunksPath string) (*FlatGraph, error) {
	res, err := NewMerger(nil).Merge(context.Background(), existingGraphPath, newChunksPath)
	if err != nil {
		return nil, err
	}
	return res.Graph, nil
}

// Merge loads the existing graph (or starts empty), appends a node for every
// unseen non-blank label with non-blank text, chains only the nodes added by
// this call, and writes the result back over existingGraphPath.
//
// Running the same batch twice is not idempotent in links: the second run
// finds every label present, adds no nodes and therefore no links.
func (m *Merger) Merge(ctx context.Context, existingGraphPath, newChunksPath string) (*MergeResult, error) {
	unlock, err := lockPath(ctx, existingGraphPath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	g, err := loadFlatOrEmpty(existingGraphPath)
	if err != nil {
		return nil, err
	}

	batch, err := os.Open(newChunksPath)
	if err != nil {
		return nil, &IOError{Op: "open", Path: newChunksPath, Err: err}
	}
	defer batch.Close()

	existing := g.NodeIDs()
	var added []FlatNode

	report, err := chunk.Read(batch, func(c chunk.LabeledChunk) error {
		label := strings.TrimSpace(c.Label)
		text := strings.TrimSpace(c.Text)
		if label == "" || text == "" {
			return nil
		}
		if _, ok := existing[label]; ok {
			return nil
		}
		node := FlatNode{ID: label, Title: label, Summary: summarize(text)}
		g.Nodes = append(g.Nodes, node)
		added = append(added, node)
		existing[label] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, &IOError{Op: "read", Path: newChunksPath, Err: err}
	}
	for _, w := range report.Warnings {
		m.log.Warn("failed to parse line", "path", newChunksPath, "error", w)
	}

	for i := 1; i < len(added); i++ {
		g.Links = append(g.Links, Link{Source: added[i-1].ID, Target: added[i].ID})
	}

	data, err := EncodeFlat(g)
	if err != nil {
		return nil, fmt.Errorf("encoding flat graph: %w", err)
	}
	if err := writeAtomic(existingGraphPath, data); err != nil {
		return nil, err
	}

	res := &MergeResult{
		Graph:      g,
		Added:      len(added),
		LinksAdded: max(len(added)-1, 0),
		Skipped:    report.Skipped,
	}
	m.log.Info("saved graph",
		"path", existingGraphPath,
		"nodes", len(g.Nodes),
		"links", len(g.Links),
		"added", res.Added,
	)
	return res, nil
}

func loadFlatOrEmpty(path string) (*FlatGraph, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &FlatGraph{Nodes: []FlatNode{}, Links: []Link{}}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	g, err := DecodeFlat(data)
	if err != nil {
		return nil, &IOError{Op: "decode", Path: path, Err: err}
	}
	return g, nil
}

// pathLocks holds one single-slot semaphore per cleaned absolute graph path.
var pathLocks sync.Map

func lockPath(ctx context.Context, path string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &IOError{Op: "lock", Path: path, Err: err}
	}
	abs = filepath.Clean(abs)

	v, _ := pathLocks.LoadOrStore(abs, make(chan struct{}, 1))
	sem := v.(chan struct{})
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-sem }

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		release()
		return nil, &IOError{Op: "lock", Path: path, Err: err}
	}
	fl := flock.New(abs + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		release()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &IOError{Op: "lock", Path: path, Err: err}
	}
	if !locked {
		release()
		return nil, &IOError{Op: "lock", Path: path, Err: errors.New("lock not acquired")}
	}

	return func() {
		_ = fl.Unlock()
		release()
	}, nil
}
