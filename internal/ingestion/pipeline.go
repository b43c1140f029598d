// Package ingestion turns labeled batches into persisted graphs and index
// entries.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Benny93/mindgraph/internal/chunk"
	"github.com/Benny93/mindgraph/internal/embeddings"
	"github.com/Benny93/mindgraph/internal/graph"
	"github.com/Benny93/mindgraph/internal/index"
	"github.com/Benny93/mindgraph/internal/logger"
)

const (
	labeledSuffix = "_labeled.jsonl"
	mindmapSuffix = "_mindmap.json"
)

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Options wires a Pipeline to its directories and services. Index and
// Embedder may both be nil to skip indexing.
type Options struct {
	LabeledDir    string
	ProcessedDir  string
	FlatGraphPath string
	Index         *index.Index
	Embedder      embeddings.Embedder
	Logger        *logger.Logger
	Progress      ProgressCallback
}

// Result summarizes one ingested batch.
type Result struct {
	Name         string
	LabeledPath  string
	GraphPath    string
	Chunks       int
	Skipped      int
	Nodes        int
	Edges        int
	TopicsAdded  int
	LinksAdded   int
	Indexed      int
	DurationSecs float64
}

// Pipeline runs batches through the hierarchical build, the flat merge and
// the semantic index.
type Pipeline struct {
	opts   Options
	log    *logger.Logger
	merger *graph.Merger
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts Options) *Pipeline {
	log := logger.OrNop(opts.Logger)
	return &Pipeline{opts: opts, log: log, merger: graph.NewMerger(log)}
}

// BatchName derives a batch name from a file path by dropping the directory,
// the extension and a trailing "_labeled".
func BatchName(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, labeledSuffix) {
		return strings.TrimSuffix(base, labeledSuffix)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LabeledPath is where a batch named name is stored.
func (p *Pipeline) LabeledPath(name string) string {
	return filepath.Join(p.opts.LabeledDir, name+labeledSuffix)
}

// GraphPath is where the hierarchical graph of batch name is exported.
func (p *Pipeline) GraphPath(name string) string {
	return filepath.Join(p.opts.ProcessedDir, name+mindmapSuffix)
}

// IngestFile copies the valid records of src into the labeled directory as
// batch name (derived from src when empty) and processes it.
func (p *Pipeline) IngestFile(ctx context.Context, src, name string) (*Result, error) {
	if name == "" {
		name = BatchName(src)
	}
	dst := p.LabeledPath(name)

	same, err := samePath(src, dst)
	if err != nil {
		return nil, err
	}
	if !same {
		if _, err := os.Stat(src); err != nil {
			return nil, &graph.IOError{Op: "open", Path: src, Err: err}
		}
		chunks, report, err := chunk.ReadFile(src)
		if err != nil {
			return nil, err
		}
		for _, w := range report.Warnings {
			p.log.Warn("skipping invalid record", "path", src, "error", w)
		}
		if err := chunk.WriteFile(dst, chunks); err != nil {
			return nil, err
		}
	}
	return p.Process(ctx, dst, true)
}

// IngestChunks stores chunks as batch name and processes it.
func (p *Pipeline) IngestChunks(ctx context.Context, name string, chunks []chunk.LabeledChunk) (*Result, error) {
	dst := p.LabeledPath(name)
	if err := chunk.WriteFile(dst, chunks); err != nil {
		return nil, err
	}
	return p.Process(ctx, dst, true)
}

// Process builds and exports the hierarchical graph of the batch at path,
// merges it into the flat graph and, when withIndex is set and an index is
// configured, embeds and indexes its records.
func (p *Pipeline) Process(ctx context.Context, path string, withIndex bool) (*Result, error) {
	start := time.Now()
	name := BatchName(path)
	result := &Result{Name: name, LabeledPath: path, GraphPath: p.GraphPath(name)}
	log := p.log.With("batch", name)

	p.progress("Building graph", 0.0)
	chunks, report, err := chunk.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, w := range report.Warnings {
		log.Warn("skipping invalid record", "error", w)
	}
	g := graph.BuildGraph(chunks)
	result.Chunks = report.Valid
	result.Skipped = report.Skipped
	result.Nodes = g.NodeCount()
	result.Edges = g.EdgeCount()
	if err := graph.ExportGraph(g, result.GraphPath); err != nil {
		return nil, fmt.Errorf("exporting graph: %w", err)
	}
	p.progress("Building graph", 1.0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.progress("Merging topics", 0.0)
	merged, err := p.merger.Merge(ctx, p.opts.FlatGraphPath, path)
	if err != nil {
		return nil, fmt.Errorf("merging topics: %w", err)
	}
	result.TopicsAdded = merged.Added
	result.LinksAdded = merged.LinksAdded
	p.progress("Merging topics", 1.0)

	if withIndex && p.indexing() {
		p.progress("Indexing chunks", 0.0)
		n, err := p.indexChunks(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("indexing: %w", err)
		}
		result.Indexed = n
		p.progress("Indexing chunks", 1.0)
	}

	result.DurationSecs = time.Since(start).Seconds()
	log.Info("batch ingested",
		"chunks", result.Chunks,
		"skipped", result.Skipped,
		"nodes", result.Nodes,
		"topics_added", result.TopicsAdded,
		"indexed", result.Indexed)
	return result, nil
}

// IndexAll embeds every record of every labeled batch into the index, in
// file name order. It returns the number of records indexed.
func (p *Pipeline) IndexAll(ctx context.Context) (int, error) {
	if !p.indexing() {
		return 0, fmt.Errorf("no index configured")
	}
	paths, err := filepath.Glob(filepath.Join(p.opts.LabeledDir, "*.jsonl"))
	if err != nil {
		return 0, err
	}

	total := 0
	for i, path := range paths {
		p.progress("Indexing batches", float64(i)/float64(len(paths)))
		chunks, _, err := chunk.ReadFile(path)
		if err != nil {
			return total, err
		}
		n, err := p.indexChunks(ctx, chunks)
		if err != nil {
			return total, fmt.Errorf("indexing %s: %w", path, err)
		}
		total += n
	}
	p.progress("Indexing batches", 1.0)
	p.log.Info("index rebuilt", "batches", len(paths), "records", total)
	return total, nil
}

func (p *Pipeline) indexing() bool {
	return p.opts.Index != nil && p.opts.Embedder != nil
}

func (p *Pipeline) indexChunks(ctx context.Context, chunks []chunk.LabeledChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	vecs, err := embeddings.EmbedChunks(ctx, p.opts.Embedder, chunks)
	if err != nil {
		return 0, err
	}
	records := make([]index.Record, len(chunks))
	for i, c := range chunks {
		records[i] = index.Record{Vector: vecs[i], Chunk: c}
	}
	if err := p.opts.Index.Insert(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (p *Pipeline) progress(phase string, v float64) {
	if p.opts.Progress != nil {
		p.opts.Progress(phase, v)
	}
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
