// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes canvas archiving tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/canvasarchive/internal/apperr"
	"github.com/starford/canvasarchive/internal/archiveservice"
	"github.com/starford/canvasarchive/internal/storage"
)

// FormatURI identifies the archive format resource.
const FormatURI = "canvasarchive://archive-format"

// Server wraps the MCP server with archive tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *archiveservice.Service
	store storage.Provider
}

// New creates a new MCP server with all archive tools registered.
func New(svc *archiveservice.Service, store storage.Provider) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"canvasarchive",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("archive_canvas",
		mcp.WithDescription("Move every card with the archive color from a canvas into its "+
			"sibling \"<name> Archive.md\" file, grouped by the enclosing group label. "+
			"The canvas is rewritten without those cards."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the canvas (must end with .canvas)")),
	), s.archiveCanvas)

	s.mcp.AddTool(mcp.NewTool("preview_canvas",
		mcp.WithDescription("Show what archive_canvas would write, without touching any file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the canvas (must end with .canvas)")),
	), s.previewCanvas)

	s.mcp.AddTool(mcp.NewTool("read_outline",
		mcp.WithDescription("List the sections of an archive with open and done card counts. "+
			"A canvas path is resolved to its archive."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Archive or canvas path")),
	), s.readOutline)

	s.mcp.AddTool(mcp.NewTool("search_archive",
		mcp.WithDescription("Full-text search through previously archived cards."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchArchive)

	s.mcp.AddTool(mcp.NewTool("list_canvases",
		mcp.WithDescription("List all canvases or canvases in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listCanvases)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Archive Format",
			mcp.WithResourceDescription("Layout of the Markdown archives written next to canvases."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func (s *Server) archiveCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Archive(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(toolError(path, err)), nil
	}
	if !res.Changed {
		return mcp.NewToolResultText(fmt.Sprintf("nothing to archive in %s", path)), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) previewCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Preview(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(toolError(path, err)), nil
	}
	if !res.Changed {
		return mcp.NewToolResultText(fmt.Sprintf("nothing to archive in %s", path)), nil
	}
	return mcp.NewToolResultText(res.Document), nil
}

func (s *Server) readOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	o, err := s.svc.Outline(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(toolError(path, err)), nil
	}
	var b strings.Builder
	for _, sec := range o.Sections {
		fmt.Fprintf(&b, "%s: %d open, %d done\n", sec.Name, sec.Open, sec.Done)
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("no sections"), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) searchArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCanvases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil {
		folder = f
	}

	metas, err := s.store.List(folder, archiveservice.CanvasExt)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no canvases found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     ArchiveFormatContract,
		},
	}, nil
}

func toolError(path string, err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("not found: %s", path)
	case errors.Is(err, apperr.ErrNotCanvas):
		return fmt.Sprintf("not a canvas: %s", path)
	default:
		return err.Error()
	}
}
