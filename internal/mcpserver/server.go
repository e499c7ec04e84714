// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the content database to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/content"
)

const queryLanguageURI = "ansuz://query-language"

// Server wraps the MCP server with ansuz tools.
type Server struct {
	mcp *server.MCPServer
	svc *content.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *content.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ansuz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_records",
		mcp.WithDescription("Run a declarative query over the content records. "+
			"Read the query language first via the "+queryLanguageURI+" resource."),
		mcp.WithString("path", mcp.Description("Optional logical path; a directory lists its records, anything else selects one record")),
		mcp.WithString("where", mcp.Description("Filter as a JSON object, e.g. {\"dir\":\"/posts\",\"order\":{\"$gt\":1}}")),
		mcp.WithString("sort", mcp.Description("Comma separated sort keys; prefix a key with - for descending, e.g. -createdAt,title")),
		mcp.WithString("only", mcp.Description("Comma separated fields to keep")),
		mcp.WithString("without", mcp.Description("Comma separated fields to drop")),
		mcp.WithNumber("skip", mcp.Description("Number of results to skip")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	), s.queryRecords)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Fetch the record stored at a logical path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical path of the record (e.g. /posts/hello)")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("list_dirs",
		mcp.WithDescription("List every directory of the content tree."),
	), s.listDirs)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Fuzzy search records by slug, name and title."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search term")),
		mcp.WithString("path", mcp.Description("Optional directory to search in")),
		mcp.WithString("keys", mcp.Description("Comma separated fields to match against")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchRecords)

	s.mcp.AddResource(
		mcp.NewResource(queryLanguageURI, "Query Language",
			mcp.WithResourceDescription("Filter operators and query pipeline of the content database."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQueryLanguage,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) queryRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := content.Request{
		Path:    req.GetString("path", ""),
		Only:    splitList(req.GetString("only", "")),
		Without: splitList(req.GetString("without", "")),
		Skip:    req.GetInt("skip", 0),
		Limit:   req.GetInt("limit", 0),
	}
	if where := req.GetString("where", ""); where != "" {
		if err := json.Unmarshal([]byte(where), &q.Where); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("where: invalid JSON: %v", err)), nil
		}
	}
	for _, key := range splitList(req.GetString("sort", "")) {
		spec := content.SortSpec{Key: key, Dir: "asc"}
		if k, ok := strings.CutPrefix(key, "-"); ok {
			spec = content.SortSpec{Key: k, Dir: "desc"}
		}
		q.Sort = append(q.Sort, spec)
	}
	return s.run(q)
}

func (s *Server) getRecord(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Get(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) listDirs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(strings.Join(s.svc.Dirs(), "\n")), nil
}

func (s *Server) searchRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := content.Request{
		Mode: content.ModeMany,
		Search: &content.SearchSpec{
			Term:  term,
			Keys:  splitList(req.GetString("keys", "")),
			Limit: req.GetInt("limit", 20),
		},
		Without: []string{"body", "excerpt"},
	}
	if dir := req.GetString("path", ""); dir != "" {
		q.Where = map[string]any{"dir": dir}
	}
	return s.run(q)
}

func (s *Server) run(q content.Request) (*mcp.CallToolResult, error) {
	out, err := s.svc.Run(q)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidFilter) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return jsonResult(out)
}

func (s *Server) readQueryLanguage(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      queryLanguageURI,
			MIMEType: "text/markdown",
			Text:     QueryLanguage,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
