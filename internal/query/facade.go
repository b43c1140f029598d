// Package query answers read-only questions about the labeled corpus: which
// topics exist, what a topic says, which raw resources match a name, and
// which chunks are semantically close to a text.
package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/mindgraph/internal/chunk"
	"github.com/Benny93/mindgraph/internal/embeddings"
	"github.com/Benny93/mindgraph/internal/graph"
	"github.com/Benny93/mindgraph/internal/ignore"
	"github.com/Benny93/mindgraph/internal/index"
)

const (
	// DefaultSimilarLimit is the result count used when Similar gets k <= 0.
	DefaultSimilarLimit = 5

	maxKeyPointSources = 5
	maxKeyPoints       = 3
	maxParallelReads   = 8
)

// ErrNotFound is returned by GetTopic when no record carries the label.
var ErrNotFound = errors.New("topic not found")

// ErrNoIndex is returned by Similar when the facade has no index or embedder.
var ErrNoIndex = errors.New("semantic index not configured")

// resourceTypes are the extensions reported verbatim as a resource type.
var resourceTypes = map[string]bool{
	"pdf": true, "txt": true, "docx": true, "mp4": true, "jpg": true, "png": true,
}

// Config wires a Facade to its data.
type Config struct {
	LabeledDir string
	RawDir     string
	Index      *index.Index
	Embedder   embeddings.Embedder
}

// Topic is the consolidated view of one label.
type Topic struct {
	Label     string   `json:"label"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
}

// Resource is a raw file whose name matched a query.
type Resource struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Facade is safe for concurrent use; every call reads the directories anew.
type Facade struct {
	cfg Config
}

// New creates a Facade.
func New(cfg Config) *Facade {
	return &Facade{cfg: cfg}
}

// ListTopics returns every distinct label found in the labeled batches,
// sorted ascending. Lines that do not decode are ignored.
func (f *Facade) ListTopics(ctx context.Context) ([]string, error) {
	batches, err := f.readLabeled(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, batch := range batches {
		for _, c := range batch {
			if c.HasLabel {
				seen[c.Label] = struct{}{}
			}
		}
	}

	topics := make([]string, 0, len(seen))
	for l := range seen {
		topics = append(topics, l)
	}
	sort.Strings(topics)
	return topics, nil
}

// GetTopic joins the summaries of every record labeled label, in file name
// then line order, and extracts up to three key points from them.
func (f *Facade) GetTopic(ctx context.Context, label string) (Topic, error) {
	label = strings.TrimSpace(label)

	batches, err := f.readLabeled(ctx)
	if err != nil {
		return Topic{}, err
	}

	var summaries []string
	for _, batch := range batches {
		for _, c := range batch {
			if c.HasLabel && c.Label == label && c.Summary != "" {
				summaries = append(summaries, c.Summary)
			}
		}
	}
	if len(summaries) == 0 {
		return Topic{}, fmt.Errorf("%q: %w", label, ErrNotFound)
	}

	return Topic{
		Label:     label,
		Summary:   strings.Join(summaries, " "),
		KeyPoints: keyPoints(summaries),
	}, nil
}

// keyPoints takes the first sentence of each of the first summaries that
// contain a period.
func keyPoints(summaries []string) []string {
	points := []string{}
	for i, s := range summaries {
		if i == maxKeyPointSources || len(points) == maxKeyPoints {
			break
		}
		if !strings.Contains(s, ".") {
			continue
		}
		first, _, _ := strings.Cut(strings.TrimSpace(s), ".")
		points = append(points, first)
	}
	return points
}

// FindResources lists raw files whose name contains query, ignoring case.
// An empty query matches nothing. Files excluded by the raw directory's
// ignore file are skipped.
func (f *Facade) FindResources(ctx context.Context, query string) ([]Resource, error) {
	query = strings.ToLower(query)
	if query == "" {
		return []Resource{}, nil
	}

	entries, err := os.ReadDir(f.cfg.RawDir)
	if err != nil {
		return nil, &graph.IOError{Op: "list", Path: f.cfg.RawDir, Err: err}
	}
	matcher, err := ignore.Load(f.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ignore.FileName, err)
	}

	found := []Resource{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || name == ignore.FileName || matcher.Match(name, false) {
			continue
		}
		if strings.Contains(strings.ToLower(name), query) {
			found = append(found, Resource{Name: name, Type: resourceType(name)})
		}
	}
	return found, nil
}

func resourceType(name string) string {
	ext := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	if resourceTypes[ext] {
		return ext
	}
	return "file"
}

// Similar returns up to k chunks whose embedding is nearest to text.
func (f *Facade) Similar(ctx context.Context, text string, k int) ([]index.Hit, error) {
	if f.cfg.Index == nil || f.cfg.Embedder == nil {
		return nil, ErrNoIndex
	}
	if k <= 0 {
		k = DefaultSimilarLimit
	}
	vecs, err := f.cfg.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return f.cfg.Index.SearchScored(vecs[0], k)
}

// Graph loads a persisted hierarchical graph.
func (f *Facade) Graph(path string) (*graph.Graph, error) {
	return graph.LoadGraph(path)
}

// FlatGraph loads the persisted topic-chain graph.
func (f *Facade) FlatGraph(path string) (*graph.FlatGraph, error) {
	return graph.LoadFlat(path)
}

// readLabeled decodes every *.jsonl batch in the labeled directory. Batches
// are read in parallel and returned in file name order.
func (f *Facade) readLabeled(ctx context.Context) ([][]chunk.LabeledChunk, error) {
	entries, err := os.ReadDir(f.cfg.LabeledDir)
	if err != nil {
		return nil, &graph.IOError{Op: "list", Path: f.cfg.LabeledDir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, filepath.Join(f.cfg.LabeledDir, e.Name()))
		}
	}

	batches := make([][]chunk.LabeledChunk, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunks, _, err := chunk.ReadFile(path)
			if err != nil {
				return &graph.IOError{Op: "read", Path: path, Err: err}
			}
			batches[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}
