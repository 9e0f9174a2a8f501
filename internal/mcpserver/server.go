// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes ansuz reconciliation tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/sync"
)

// Server wraps the MCP server with ansuz tools.
type Server struct {
	mcp    *server.MCPServer
	runner *sync.Runner
	db     *store.DB
}

// New creates a new MCP server with all ansuz tools registered.
func New(runner *sync.Runner, db *store.DB) *Server {
	s := &Server{runner: runner, db: db}

	s.mcp = server.NewMCPServer(
		"ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Returns the report of the most recent reconciliation run: "+
			"mutation counts plus unresolved question ids and missing content files."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("trigger_sync",
		mcp.WithDescription("Runs a reconciliation. Mode 'incremental' diffs the manifest against "+
			"a git base revision; 'full' replays the whole manifest."),
		mcp.WithString("mode", mcp.Description("'incremental' (default) or 'full'")),
		mcp.WithString("base", mcp.Description("Git base revision for incremental mode (default HEAD)")),
	), s.triggerSync)

	s.mcp.AddTool(mcp.NewTool("read_explanation",
		mcp.WithDescription("Read a stored explanation by its content path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Content path as declared in the manifest (e.g. algebra/quadratic.md)")),
	), s.readExplanation)

	s.mcp.AddTool(mcp.NewTool("list_unresolved",
		mcp.WithDescription("List question identifiers the last run could not resolve in the store."),
	), s.listUnresolved)

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

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.runner.LastReport()
	if report == nil {
		return mcp.NewToolResultText("no reconciliation has run yet"), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) triggerSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := "incremental"
	if m, err := req.RequireString("mode"); err == nil && m != "" {
		mode = m
	}
	base := "HEAD"
	if b, err := req.RequireString("base"); err == nil && b != "" {
		base = b
	}

	var (
		report *sync.Report
		err    error
	)
	switch mode {
	case "full":
		report, err = s.runner.Rebuild()
	case "incremental":
		report, err = s.runner.Reconcile(base)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode: %s", mode)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(report.Summary()), nil
}

func (s *Server) readExplanation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	row, err := s.db.GetExplanation(identity.Derive(path))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(row.Content), nil
}

func (s *Server) listUnresolved(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.runner.LastReport()
	if report == nil {
		return mcp.NewToolResultText("no reconciliation has run yet"), nil
	}
	if len(report.UnresolvedQuestions) == 0 {
		return mcp.NewToolResultText("no unresolved questions"), nil
	}
	return mcp.NewToolResultText(strings.Join(report.UnresolvedQuestions, "\n")), nil
}
