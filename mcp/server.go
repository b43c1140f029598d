// Package mcp provides the MCP (Model Context Protocol) server for mindgraph.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/mindgraph/internal/graph"
	"github.com/Benny93/mindgraph/internal/index"
	"github.com/Benny93/mindgraph/internal/query"
)

const (
	protocolVersion    = "2024-11-05"
	defaultSearchLimit = 5
	snippetLimit       = 200
)

// Querier is the read side the server exposes. *query.Facade implements it.
type Querier interface {
	ListTopics(ctx context.Context) ([]string, error)
	GetTopic(ctx context.Context, label string) (query.Topic, error)
	FindResources(ctx context.Context, q string) ([]query.Resource, error)
	Similar(ctx context.Context, text string, k int) ([]index.Hit, error)
	FlatGraph(path string) (*graph.FlatGraph, error)
}

// Server represents the MCP server.
type Server struct {
	querier       Querier
	flatGraphPath string
	impl          *mcp.Implementation
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server answering from q. flatGraphPath backs
// the mindgraph://graph resource.
func NewServer(q Querier, flatGraphPath, version string) *Server {
	return &Server{
		querier:       q,
		flatGraphPath: flatGraphPath,
		impl:          &mcp.Implementation{Name: "mindgraph", Version: version},
	}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "mindgraph_topics",
			Description: "List every topic label found in the labeled study material.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "mindgraph_topic",
			Description: "Summarize one topic: all of its chunk summaries joined, plus up to three key points.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"label": {Type: "string", Description: "Topic label as listed by mindgraph_topics"},
				},
				Required: []string{"label"},
			},
		},
		{
			Name:        "mindgraph_resources",
			Description: "Find raw source files whose name contains the query, ignoring case.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Substring of the file name"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "mindgraph_search",
			Description: "Semantic search: return the labeled chunks closest in meaning to the query.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Free text to match"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "mindgraph://graph",
			Name:        "Topic Graph",
			Description: "The merged topic-chain graph in node-link JSON",
			MimeType:    "application/json",
		},
		{
			URI:         "mindgraph://schema",
			Name:        "Graph Schema",
			Description: "Description of the mindgraph data model",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "mindgraph_topics":
		return s.handleTopics(ctx)
	case "mindgraph_topic":
		label, _ := args["label"].(string)
		return s.handleTopic(ctx, label)
	case "mindgraph_resources":
		q, _ := args["query"].(string)
		return s.handleResources(ctx, q)
	case "mindgraph_search":
		q, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		return s.handleSearch(ctx, q, int(limit))
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "mindgraph://graph":
		return s.getGraph()
	case "mindgraph://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves JSON-RPC requests read line by line from stdin until EOF or
// cancellation. Notifications (requests without an id) get no response.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// MCP requires compact JSON, one message per line.

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var req map[string]any
			if jerr := json.Unmarshal(line, &req); jerr != nil {
				if eerr := encoder.Encode(errorResponse(nil, -32700, "Parse error")); eerr != nil {
					return eerr
				}
			} else if _, hasID := req["id"]; hasID {
				if eerr := encoder.Encode(s.handleRequest(ctx, req)); eerr != nil {
					return eerr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return resultResponse(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return resultResponse(id, map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    s.impl.Name,
			"version": s.impl.Version,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}
	return resultResponse(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return resultResponse(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": result},
		},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}
	return resultResponse(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)
	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	mimeType := "text/plain"
	for _, r := range s.ListResources() {
		if r.URI == uri {
			mimeType = r.MimeType
		}
	}

	return resultResponse(id, map[string]any{
		"contents": []map[string]any{
			{"uri": uri, "mimeType": mimeType, "text": content},
		},
	})
}

// Tool Handlers

func (s *Server) handleTopics(ctx context.Context) (string, error) {
	topics, err := s.querier.ListTopics(ctx)
	if err != nil {
		return "", err
	}
	if len(topics) == 0 {
		return "No topics found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d topics:\n\n", len(topics))
	for _, t := range topics {
		fmt.Fprintf(&sb, "- %s\n", t)
	}
	return sb.String(), nil
}

func (s *Server) handleTopic(ctx context.Context, label string) (string, error) {
	if strings.TrimSpace(label) == "" {
		return "No label provided", nil
	}

	topic, err := s.querier.GetTopic(ctx, label)
	if errors.Is(err, query.ErrNotFound) {
		return fmt.Sprintf("Topic '%s' not found", strings.TrimSpace(label)), nil
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n%s\n", topic.Label, topic.Summary)
	if len(topic.KeyPoints) > 0 {
		sb.WriteString("\n### Key Points\n\n")
		for _, p := range topic.KeyPoints {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	return sb.String(), nil
}

func (s *Server) handleResources(ctx context.Context, q string) (string, error) {
	if q == "" {
		return "No query provided", nil
	}

	found, err := s.querier.FindResources(ctx, q)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "No resources found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d resources for '%s':\n\n", len(found), q)
	for _, r := range found {
		fmt.Fprintf(&sb, "- %s (%s)\n", r.Name, r.Type)
	}
	return sb.String(), nil
}

func (s *Server) handleSearch(ctx context.Context, q string, limit int) (string, error) {
	if q == "" {
		return "No query provided", nil
	}

	hits, err := s.querier.Similar(ctx, q, limit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", len(hits), q)
	for i, h := range hits {
		subject, topic, subtopic, title := h.Chunk.Hierarchy()
		fmt.Fprintf(&sb, "%d. **%s** (%s)\n", i+1, title, h.Chunk.Label)
		fmt.Fprintf(&sb, "   Path: %s > %s > %s\n", subject, topic, subtopic)
		fmt.Fprintf(&sb, "   Distance: %.4f\n", h.Distance)
		if h.Chunk.Summary != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(h.Chunk.Summary, snippetLimit))
		}
	}
	return sb.String(), nil
}

// Resource Handlers

func (s *Server) getGraph() (string, error) {
	fg, err := s.querier.FlatGraph(s.flatGraphPath)
	if errors.Is(err, fs.ErrNotExist) {
		fg = &graph.FlatGraph{}
	} else if err != nil {
		return "", err
	}
	data, err := graph.EncodeFlat(fg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# mindgraph Schema\n\n")
	sb.WriteString("## Hierarchical graph (<name>_mindmap.json)\n\n")
	sb.WriteString("| Type | Parent | Properties |\n")
	sb.WriteString("|------|--------|------------|\n")
	sb.WriteString("| `subject` | - | - |\n")
	sb.WriteString("| `topic` | subject | parent |\n")
	sb.WriteString("| `subtopic` | topic | parent |\n")
	sb.WriteString("| `chunk` | subtopic | parent, summary, text |\n")
	sb.WriteString("\nEdges point from parent to child.\n")
	sb.WriteString("\n## Topic graph (mindmap_graph.json)\n\n")
	sb.WriteString("One node per distinct label with `title` and a summary of at most 200 characters.\n")
	sb.WriteString("Each merged batch links its new labels in arrival order.\n")
	return sb.String()
}

// Helper functions

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func resultResponse(id any, result map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
