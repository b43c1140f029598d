package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/mindgraph/internal/ignore"
)

// DefaultDebounce is how long the watcher waits for a batch of changes to
// settle before processing it.
const DefaultDebounce = 2 * time.Second

// WatchOptions tunes Watch. The zero value is usable.
type WatchOptions struct {
	Debounce time.Duration

	// OnReady is called once the directory is being watched.
	OnReady func()

	// OnBatch is called after each processed file.
	OnBatch func(path string, result *Result, err error)
}

// Watch monitors the pipeline's labeled directory and processes every
// .jsonl batch that is created or changed. Files present when Watch starts
// count as already indexed; a changed known file has its graphs rebuilt but
// is not indexed again. Blocks until the context is cancelled.
func Watch(ctx context.Context, p *Pipeline, opts WatchOptions) error {
	dir := p.opts.LabeledDir
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	matcher, err := ignore.Load(dir)
	if err != nil {
		p.log.Warn("ignoring unreadable ignore file", "dir", dir, "error", err)
		matcher = nil
	}

	indexed, err := existingBatches(dir)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	p.log.Info("watching for labeled batches", "dir", dir)
	if opts.OnReady != nil {
		opts.OnReady()
	}

	changed := make(map[string]bool)
	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !shouldWatchFile(event.Name, matcher) {
				continue
			}
			changed[event.Name] = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.log.Error("watch error", "error", err)

		case <-batchTimer.C:
			processChangedFiles(ctx, p, changed, indexed, opts.OnBatch)
			changed = make(map[string]bool)
		}
	}
}

// processChangedFiles runs each changed batch through the pipeline in name
// order. Failures are logged and reported; they never stop the watcher.
func processChangedFiles(ctx context.Context, p *Pipeline, changed, indexed map[string]bool, onBatch func(string, *Result, error)) {
	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		withIndex := !indexed[path]
		result, err := p.Process(ctx, path, withIndex)
		if err != nil {
			p.log.Error("processing batch failed", "path", path, "error", err)
		} else if withIndex {
			indexed[path] = true
		}
		if onBatch != nil {
			onBatch(path, result, err)
		}
	}
}

// shouldWatchFile reports whether path is a labeled batch not excluded by
// the ignore file.
func shouldWatchFile(path string, matcher *ignore.Matcher) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".jsonl") || strings.HasPrefix(base, ".") {
		return false
	}
	return !matcher.Match(base, false)
}

func existingBatches(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	out := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			out[filepath.Join(dir, e.Name())] = true
		}
	}
	return out, nil
}
