// Package cmd provides CLI command implementations for mindgraph.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/mindgraph/internal/config"
	"github.com/Benny93/mindgraph/internal/embeddings"
	"github.com/Benny93/mindgraph/internal/graph"
	"github.com/Benny93/mindgraph/internal/index"
	"github.com/Benny93/mindgraph/internal/ingestion"
	"github.com/Benny93/mindgraph/internal/logger"
	"github.com/Benny93/mindgraph/internal/query"
	"github.com/Benny93/mindgraph/internal/storage"
	"github.com/Benny93/mindgraph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Env carries what every command needs.
type Env struct {
	Cfg *config.Config
	Log *logger.Logger
	Out io.Writer
}

func (e *Env) success(format string, a ...any) {
	color.New(color.FgGreen).Fprintf(e.Out, format+"\n", a...)
}

func (e *Env) heading(format string, a ...any) {
	color.New(color.Bold).Fprintf(e.Out, format+"\n", a...)
}

func (e *Env) embedder() (*embeddings.HashingEmbedder, error) {
	return embeddings.NewHashingEmbedder(e.Cfg.Embedding.Dim)
}

// openIndex opens the persisted index. A read-only open of a missing index
// is an error; a writable open creates it.
func (e *Env) openIndex(ctx context.Context, readOnly bool) (*index.Index, *storage.BadgerBackend, error) {
	dir := e.Cfg.IndexDir()
	if readOnly {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("no index found at %s. Run 'mindgraph index' first", dir)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating index directory: %w", err)
	}

	store := storage.NewBadgerBackend(e.Cfg.Embedding.Dim)
	if err := store.Initialize(dir, readOnly); err != nil {
		if !readOnly {
			// Badger locks the directory per process, e.g. while `mcp --watch` runs.
			return nil, nil, fmt.Errorf("initializing storage (if another mindgraph process holds the index, "+
				"rerun with --no-index or drop the batch into %s for its watcher): %w", e.Cfg.LabeledDir(), err)
		}
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}
	idx, err := index.Open(ctx, e.Cfg.Embedding.Dim, store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return idx, store, nil
}

func (e *Env) facade(idx *index.Index, emb embeddings.Embedder) *query.Facade {
	return query.New(query.Config{
		LabeledDir: e.Cfg.LabeledDir(),
		RawDir:     e.Cfg.RawDir(),
		Index:      idx,
		Embedder:   emb,
	})
}

func (e *Env) pipeline(idx *index.Index, emb embeddings.Embedder, progress ingestion.ProgressCallback) *ingestion.Pipeline {
	return ingestion.NewPipeline(ingestion.Options{
		LabeledDir:    e.Cfg.LabeledDir(),
		ProcessedDir:  e.Cfg.ProcessedDir(),
		FlatGraphPath: e.Cfg.FlatGraphPath(),
		Index:         idx,
		Embedder:      emb,
		Logger:        e.Log,
		Progress:      progress,
	})
}

// InitCmd writes a default config file and creates the data directories.
type InitCmd struct {
	Force bool `short:"f" help:"Overwrite an existing config file"`
}

// Run executes the init command.
func (c *InitCmd) Run(env *Env, cli *CLI) error {
	if _, err := os.Stat(cli.Config); err == nil && !c.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", cli.Config)
	}
	if err := config.Save(cli.Config, env.Cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := env.Cfg.EnsureDirs(); err != nil {
		return err
	}
	env.success("✓ Wrote %s", cli.Config)
	fmt.Fprintf(env.Out, "  Data directory: %s\n", env.Cfg.DataDir)
	return nil
}

// BuildCmd builds the hierarchical graph of one labeled batch.
type BuildCmd struct {
	Input   string `arg:"" help:"Labeled chunk JSONL file" type:"path"`
	Output  string `short:"o" help:"Output graph file (default <processed>/<name>_mindmap.json)" type:"path"`
	Outline bool   `help:"Print the subject/topic/subtopic/chunk tree"`
}

// Run executes the build command.
func (c *BuildCmd) Run(env *Env) error {
	g, report, err := graph.BuildGraphFromFile(c.Input, env.Log)
	if err != nil {
		return err
	}

	out := c.Output
	if out == "" {
		out = filepath.Join(env.Cfg.ProcessedDir(), ingestion.BatchName(c.Input)+"_mindmap.json")
	}
	if err := graph.ExportGraph(g, out); err != nil {
		return err
	}

	env.success("✓ Graph written to %s", out)
	fmt.Fprintf(env.Out, "  Chunks:   %d\n", report.Valid)
	fmt.Fprintf(env.Out, "  Skipped:  %d\n", report.Skipped)
	fmt.Fprintf(env.Out, "  Nodes:    %d\n", g.NodeCount())
	fmt.Fprintf(env.Out, "  Edges:    %d\n", g.EdgeCount())

	if c.Outline {
		fmt.Fprintln(env.Out)
		for _, line := range graph.Outline(g) {
			fmt.Fprintln(env.Out, line)
		}
	}
	return nil
}

// MergeCmd merges one labeled batch into the topic graph.
type MergeCmd struct {
	Input string `arg:"" help:"Labeled chunk JSONL file" type:"path"`
	Graph string `help:"Topic graph file (default <processed>/mindmap_graph.json)" type:"path"`
}

// Run executes the merge command.
func (c *MergeCmd) Run(ctx context.Context, env *Env) error {
	path := c.Graph
	if path == "" {
		path = env.Cfg.FlatGraphPath()
	}

	res, err := graph.NewMerger(env.Log).Merge(ctx, path, c.Input)
	if err != nil {
		return err
	}

	env.success("✓ Merged into %s", path)
	fmt.Fprintf(env.Out, "  Topics added:  %d\n", res.Added)
	fmt.Fprintf(env.Out, "  Links added:   %d\n", res.LinksAdded)
	fmt.Fprintf(env.Out, "  Total topics:  %d\n", len(res.Graph.Nodes))
	return nil
}

// IngestCmd runs a labeled batch through the full pipeline.
type IngestCmd struct {
	Input   string `arg:"" help:"Labeled chunk JSONL file" type:"path"`
	Name    string `help:"Batch name (default derived from the file name)"`
	NoIndex bool   `help:"Skip semantic indexing"`
}

// Run executes the ingest command.
func (c *IngestCmd) Run(ctx context.Context, env *Env) error {
	if err := env.Cfg.EnsureDirs(); err != nil {
		return err
	}

	var idx *index.Index
	var emb embeddings.Embedder
	if !c.NoIndex {
		var store *storage.BadgerBackend
		var err error
		idx, store, err = env.openIndex(ctx, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if emb, err = env.embedder(); err != nil {
			return err
		}
	}

	result, err := env.pipeline(idx, emb, nil).IngestFile(ctx, c.Input, c.Name)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	env.success("✓ Ingested %s", result.Name)
	fmt.Fprintf(env.Out, "  Chunks:        %d\n", result.Chunks)
	fmt.Fprintf(env.Out, "  Skipped:       %d\n", result.Skipped)
	fmt.Fprintf(env.Out, "  Graph:         %s (%d nodes, %d edges)\n", result.GraphPath, result.Nodes, result.Edges)
	fmt.Fprintf(env.Out, "  Topics added:  %d\n", result.TopicsAdded)
	fmt.Fprintf(env.Out, "  Indexed:       %d\n", result.Indexed)
	fmt.Fprintf(env.Out, "  Duration:      %.2fs\n", result.DurationSecs)
	return nil
}

// IndexCmd embeds every labeled chunk into the persistent index.
type IndexCmd struct {
	Rebuild bool `help:"Discard the existing index first"`
}

// Run executes the index command.
func (c *IndexCmd) Run(ctx context.Context, env *Env) error {
	if c.Rebuild {
		if err := os.RemoveAll(env.Cfg.IndexDir()); err != nil {
			return fmt.Errorf("removing index: %w", err)
		}
	}

	idx, store, err := env.openIndex(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if n := idx.Len(); n > 0 {
		return fmt.Errorf("index already holds %d records. Use --rebuild to recreate it", n)
	}

	emb, err := env.embedder()
	if err != nil {
		return err
	}
	progress := func(phase string, pct float64) {
		fmt.Fprintf(env.Out, "\r\033[K%s (%.0f%%)", phase, pct*100)
	}
	n, err := env.pipeline(idx, emb, progress).IndexAll(ctx)
	fmt.Fprintln(env.Out)
	if err != nil {
		return err
	}

	env.success("✓ Indexed %d chunks", n)
	return nil
}

// SearchCmd finds the chunks closest in meaning to a text.
type SearchCmd struct {
	Query string `arg:"" help:"Search text"`
	Limit int    `short:"n" default:"5" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(ctx context.Context, env *Env) error {
	idx, store, err := env.openIndex(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	emb, err := env.embedder()
	if err != nil {
		return err
	}
	hits, err := env.facade(idx, emb).Similar(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(hits) == 0 {
		fmt.Fprintln(env.Out, "No results found")
		return nil
	}
	for i, h := range hits {
		subject, topic, subtopic, title := h.Chunk.Hierarchy()
		fmt.Fprintf(env.Out, "\n%d. %s (%s)\n", i+1, title, h.Chunk.Label)
		fmt.Fprintf(env.Out, "   Path: %s > %s > %s\n", subject, topic, subtopic)
		fmt.Fprintf(env.Out, "   Distance: %.4f\n", h.Distance)
		if h.Chunk.Summary != "" {
			fmt.Fprintf(env.Out, "   %s\n", h.Chunk.Summary)
		}
	}
	return nil
}

// TopicsCmd lists every topic label.
type TopicsCmd struct {
	JSON bool `help:"Print as a JSON array"`
}

// Run executes the topics command.
func (c *TopicsCmd) Run(ctx context.Context, env *Env) error {
	topics, err := env.facade(nil, nil).ListTopics(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(env.Out, topics)
	}
	if len(topics) == 0 {
		fmt.Fprintln(env.Out, "No topics found")
		return nil
	}
	for _, t := range topics {
		fmt.Fprintln(env.Out, t)
	}
	return nil
}

// TopicCmd shows the consolidated summary of one topic.
type TopicCmd struct {
	Label string `arg:"" help:"Topic label"`
	JSON  bool   `help:"Print as JSON"`
}

// Run executes the topic command.
func (c *TopicCmd) Run(ctx context.Context, env *Env) error {
	topic, err := env.facade(nil, nil).GetTopic(ctx, c.Label)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(env.Out, topic)
	}

	env.heading("## %s", topic.Label)
	fmt.Fprintf(env.Out, "\n%s\n", topic.Summary)
	if len(topic.KeyPoints) > 0 {
		fmt.Fprintln(env.Out, "\nKey points:")
		for _, p := range topic.KeyPoints {
			fmt.Fprintf(env.Out, "- %s\n", p)
		}
	}
	return nil
}

// ResourcesCmd finds raw files by name.
type ResourcesCmd struct {
	Query string `arg:"" help:"Substring of the file name"`
	JSON  bool   `help:"Print as JSON"`
}

// Run executes the resources command.
func (c *ResourcesCmd) Run(ctx context.Context, env *Env) error {
	found, err := env.facade(nil, nil).FindResources(ctx, c.Query)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(env.Out, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(env.Out, "No resources found")
		return nil
	}
	for _, r := range found {
		fmt.Fprintf(env.Out, "%-6s %s\n", r.Type, r.Name)
	}
	return nil
}

// WatchCmd ingests labeled batches as they appear.
type WatchCmd struct{}

// Run executes the watch command.
func (c *WatchCmd) Run(ctx context.Context, env *Env) error {
	if err := env.Cfg.EnsureDirs(); err != nil {
		return err
	}
	idx, store, err := env.openIndex(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	emb, err := env.embedder()
	if err != nil {
		return err
	}

	env.heading("## Watch Mode")
	fmt.Fprintf(env.Out, "Watching %s for labeled batches (Ctrl+C to stop)\n\n", env.Cfg.LabeledDir())

	err = ingestion.Watch(ctx, env.pipeline(idx, emb, nil), ingestion.WatchOptions{
		OnBatch: func(path string, r *ingestion.Result, err error) {
			if err == nil {
				fmt.Fprintf(env.Out, "  Ingested %s: %d chunks, %d new topics\n", r.Name, r.Chunks, r.TopicsAdded)
			}
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(env.Out, "Watch mode stopped.")
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct {
	Watch bool `short:"w" help:"Ingest new labeled batches while serving"`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(ctx context.Context, env *Env) error {
	if err := env.Cfg.EnsureDirs(); err != nil {
		return err
	}
	idx, store, err := env.openIndex(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	emb, err := env.embedder()
	if err != nil {
		return err
	}

	if c.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			err := ingestion.Watch(watchCtx, env.pipeline(idx, emb, nil), ingestion.WatchOptions{})
			if err != nil && !errors.Is(err, context.Canceled) {
				env.Log.Error("watch stopped", "error", err)
			}
		}()
	}

	// stdout carries JSON-RPC only.
	server := mcp.NewServer(env.facade(idx, emb), env.Cfg.FlatGraphPath(), Version)
	return server.Run(ctx, os.Stdin, os.Stdout)
}

// StatusCmd shows counts for the configured data directory.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(ctx context.Context, env *Env) error {
	if _, err := os.Stat(env.Cfg.DataDir); os.IsNotExist(err) {
		return fmt.Errorf("no data directory at %s. Run 'mindgraph init' first", env.Cfg.DataDir)
	}

	batches, _ := filepath.Glob(filepath.Join(env.Cfg.LabeledDir(), "*.jsonl"))
	graphs, _ := filepath.Glob(filepath.Join(env.Cfg.ProcessedDir(), "*_mindmap.json"))

	env.heading("Status for %s", env.Cfg.DataDir)
	fmt.Fprintf(env.Out, "  Labeled batches:  %d\n", len(batches))
	fmt.Fprintf(env.Out, "  Batch graphs:     %d\n", len(graphs))

	totals := make(map[string]int)
	facade := env.facade(nil, nil)
	for _, path := range graphs {
		g, err := facade.Graph(path)
		if err != nil {
			env.Log.Warn("skipping unreadable batch graph", "path", path, "error", err)
			continue
		}
		for k, v := range g.Stats() {
			totals[k] += v
		}
	}
	fmt.Fprintf(env.Out, "  Hierarchy:        %d subjects, %d topics, %d subtopics, %d chunks\n",
		totals[string(graph.KindSubject)], totals[string(graph.KindTopic)],
		totals[string(graph.KindSubtopic)], totals[string(graph.KindChunk)])

	fg, err := graph.LoadFlat(env.Cfg.FlatGraphPath())
	if err == nil {
		fmt.Fprintf(env.Out, "  Topics:           %d\n", len(fg.Nodes))
		fmt.Fprintf(env.Out, "  Topic links:      %d\n", len(fg.Links))
	} else {
		fmt.Fprintln(env.Out, "  Topics:           none")
	}

	if _, err := os.Stat(env.Cfg.IndexDir()); err == nil {
		store := storage.NewBadgerBackend(env.Cfg.Embedding.Dim)
		if err := store.Initialize(env.Cfg.IndexDir(), true); err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		defer func() { _ = store.Close() }()
		fmt.Fprintf(env.Out, "  Indexed chunks:   %d (dim %d)\n", store.Count(), store.Dim())
	} else {
		fmt.Fprintln(env.Out, "  Indexed chunks:   none")
	}
	return nil
}

// CleanCmd deletes the semantic index.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(env *Env) error {
	dir := env.Cfg.IndexDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Nothing to clean", dir)
	}

	if !c.Force {
		fmt.Fprintf(env.Out, "Delete index at %s? [y/N] ", dir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(env.Out, "Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}
	env.success("Deleted %s", dir)
	return nil
}

// SetupCmd prints or writes an MCP client configuration.
type SetupCmd struct {
	File string `help:"Write the configuration to this file instead of stdout" type:"path"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(env *Env, cli *CLI) error {
	cfg := generateMCPConfig(cli.Config)
	if c.File == "" {
		return writeJSON(env.Out, cfg)
	}

	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if err := os.WriteFile(c.File, append(content, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	env.success("✓ Created MCP config at %s", c.File)
	return nil
}

func generateMCPConfig(configPath string) map[string]any {
	args := []string{"mcp", "--watch"}
	if abs, err := filepath.Abs(configPath); err == nil {
		args = append([]string{"--config", abs}, args...)
	}
	return map[string]any{
		"mcpServers": map[string]any{
			"mindgraph": map[string]any{
				"command": "mindgraph",
				"args":    args,
			},
		},
	}
}

// Helper functions

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Config  string           `short:"c" default:"${config}" help:"Config file" type:"path"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Quiet   bool             `short:"q" help:"Only log errors"`

	// Commands
	Init      InitCmd      `cmd:"" help:"Write a default config and create data directories"`
	Build     BuildCmd     `cmd:"" help:"Build the hierarchical graph of a labeled batch"`
	Merge     MergeCmd     `cmd:"" help:"Merge a labeled batch into the topic graph"`
	Ingest    IngestCmd    `cmd:"" help:"Store, graph, merge and index a labeled batch"`
	Index     IndexCmd     `cmd:"" help:"Embed every labeled chunk into the semantic index"`
	Search    SearchCmd    `cmd:"" help:"Find chunks by meaning"`
	Topics    TopicsCmd    `cmd:"" help:"List topic labels"`
	Topic     TopicCmd     `cmd:"" help:"Summarize one topic"`
	Resources ResourcesCmd `cmd:"" help:"Find raw resources by name"`
	Watch     WatchCmd     `cmd:"" help:"Ingest labeled batches as they appear"`
	MCP       MCPCmd       `cmd:"" help:"Start MCP server (stdio transport)"`
	Status    StatusCmd    `cmd:"" help:"Show data directory status"`
	Clean     CleanCmd     `cmd:"" help:"Delete the semantic index"`
	Setup     SetupCmd     `cmd:"" help:"Print MCP client configuration"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("mindgraph"),
		kong.Description("Knowledge graphs and semantic search over labeled study material"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
			"config":  config.DefaultPath,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	env, err := c.newEnv(os.Stdout)
	if err != nil {
		return err
	}
	defer env.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kongCtx.BindTo(ctx, (*context.Context)(nil))
	kongCtx.Bind(env, c)
	return kongCtx.Run()
}

func (c *CLI) newEnv(out io.Writer) (*Env, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	switch {
	case c.Verbose:
		level = "debug"
	case c.Quiet:
		level = "error"
	}
	log, err := logger.New(cfg.Log.Mode, level)
	if err != nil {
		return nil, err
	}
	return &Env{Cfg: cfg, Log: log, Out: out}, nil
}
