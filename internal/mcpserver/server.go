// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the blog's posts to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/reblog/internal/catalog"
	"github.com/starford/reblog/internal/post"
)

// FrontMatterURI is the resource describing the accepted front-matter lines.
const FrontMatterURI = "reblog://front-matter-format"

// Server wraps the MCP server with the post tools.
type Server struct {
	mcp     *server.MCPServer
	cat     *catalog.Catalog
	builder *post.Builder
}

// New creates a new MCP server with all post tools registered.
// builder is used by preview_post to render drafts that are not on disk.
func New(cat *catalog.Catalog, builder *post.Builder, version string) *Server {
	s := &Server{cat: cat, builder: builder}

	s.mcp = server.NewMCPServer(
		"reblog",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List published posts (id, title, abstract, tags, created) in listing order."),
		mcp.WithString("tag", mcp.Description("Optional tag; only posts carrying it exactly are listed")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the Markdown source of a post, front matter included."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id (e.g. hello-world or 2024/intro)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("get_post_toc",
		mcp.WithDescription("Return the rendered table of contents of a post as one line of HTML."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id")),
	), s.getPostTOC)

	s.mcp.AddTool(mcp.NewTool("get_post_html",
		mcp.WithDescription("Return the rendered HTML body of a post."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id")),
	), s.getPostHTML)

	s.mcp.AddTool(mcp.NewTool("preview_post",
		mcp.WithDescription("Build a draft post from Markdown without saving it and return the result as JSON. "+
			"Read the front-matter format first via the "+FrontMatterURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown source with optional front matter")),
		mcp.WithString("path", mcp.Description("Source file name used for the id fallback (default draft.md)")),
	), s.previewPost)

	s.mcp.AddResource(
		mcp.NewResource(FrontMatterURI, "Front-Matter Format",
			mcp.WithResourceDescription("Front-matter lines recognised in blog posts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFrontMatterResource,
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

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")
	out, err := json.MarshalIndent(s.cat.Summaries(tag), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.cat.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(p.Markdown), nil
}

func (s *Server) getPostTOC(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.cat.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(p.TableOfContents), nil
}

func (s *Server) getPostHTML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.cat.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(p.HTML), nil
}

func (s *Server) previewPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := req.GetString("path", "draft.md")

	p, err := s.builder.Build(path, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readFrontMatterResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FrontMatterURI,
			MIMEType: "text/markdown",
			Text:     FrontMatterFormat,
		},
	}, nil
}
