// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dialogoi project tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/status"
)

// Server wraps the MCP server with Dialogoi tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *metaservice.Service
	recon    *status.Reconciler
	graph    *refgraph.Graph
	index    search.Index
	resolver *paths.Resolver
}

// New creates a new MCP server with all Dialogoi tools registered.
func New(svc *metaservice.Service, recon *status.Reconciler, graph *refgraph.Graph, index search.Index, resolver *paths.Resolver) *Server {
	s := &Server{svc: svc, recon: recon, graph: graph, index: index, resolver: resolver}

	s.mcp = server.NewMCPServer(
		"Dialogoi",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_file_status",
		mcp.WithDescription("List files in a project directory with their management status (managed, untracked, missing)."),
		mcp.WithString("dir", mcp.Description("Project-relative directory ('.' or empty for the root)")),
	), s.getFileStatus)

	s.mcp.AddTool(mcp.NewTool("add_tag",
		mcp.WithDescription("Add a tag to a managed file. Applicable to content and setting entries only."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project-relative directory containing the file")),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name within the directory")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag to add")),
	), s.addTag)

	s.mcp.AddTool(mcp.NewTool("remove_tag",
		mcp.WithDescription("Remove a tag from a managed file."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project-relative directory containing the file")),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name within the directory")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag to remove")),
	), s.removeTag)

	s.mcp.AddTool(mcp.NewTool("set_tags",
		mcp.WithDescription("Replace the full tag set of a managed file."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project-relative directory containing the file")),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name within the directory")),
		mcp.WithArray("tags", mcp.Required(), mcp.Description("New tag list")),
	), s.setTags)

	s.mcp.AddTool(mcp.NewTool("add_reference",
		mcp.WithDescription("Declare that a content file references another project file. "+
			"The target may be relative to the source file; it is normalized to a "+
			"project-root-relative path. External URLs are rejected."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project-relative directory containing the source file")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Source file name")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Reference target (any link form)")),
	), s.addReference)

	s.mcp.AddTool(mcp.NewTool("remove_reference",
		mcp.WithDescription("Remove a declared reference from a content file."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project-relative directory containing the source file")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Source file name")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Reference target to remove")),
	), s.removeReference)

	s.mcp.AddTool(mcp.NewTool("set_references",
		mcp.WithDescription("Replace the full reference list of a content file."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project-relative directory containing the source file")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Source file name")),
		mcp.WithArray("targets", mcp.Required(), mcp.Description("New reference targets")),
	), s.setReferences)

	s.mcp.AddTool(mcp.NewTool("get_references",
		mcp.WithDescription("Get both directions of a file's reference edges: what it references and what references it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Project-root-relative file path")),
	), s.getReferences)

	s.mcp.AddTool(mcp.NewTool("get_invalid_references",
		mcp.WithDescription("List declared references of a file whose targets do not exist on disk."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Project-root-relative file path")),
	), s.getInvalidReferences)

	s.mcp.AddTool(mcp.NewTool("search_project",
		mcp.WithDescription("Full-text search through project text files."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchProject)

	s.mcp.AddTool(mcp.NewTool("get_metadata_contract",
		mcp.WithDescription("Returns the canonical .dialogoi-meta.yaml format contract. "+
			"Call this before editing metadata records by hand."),
	), s.getMetadataContract)

	// Resource: metadata format contract.
	s.mcp.AddResource(
		mcp.NewResource("dialogoi://metadata-format", "Metadata Format Contract",
			mcp.WithResourceDescription("Canonical .dialogoi-meta.yaml record format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMetadataFormatResource,
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

func (s *Server) resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs := s.resolver.Resolve(dir)
	if _, ok := s.resolver.RelativeFromRoot(abs); !ok {
		return "", fmt.Errorf("directory escapes project root: %s", dir)
	}
	return abs, nil
}

// entryArgs extracts the shared dir/name pair and resolves the directory.
func (s *Server) entryArgs(req mcp.CallToolRequest) (dirAbs, name string, err error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return "", "", err
	}
	name, err = req.RequireString("name")
	if err != nil {
		return "", "", err
	}
	dirAbs, err = s.resolveDir(dir)
	return dirAbs, name, err
}

func stringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		str, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be an array of strings", key)
		}
		out = append(out, str)
	}
	return out, nil
}

func resultFor(res metaservice.OperationResult) *mcp.CallToolResult {
	if !res.Success {
		return mcp.NewToolResultError(res.Message)
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) getFileStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := ""
	if d, err := req.RequireString("dir"); err == nil {
		dir = d
	}
	dirAbs, err := s.resolveDir(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := s.recon.GetFileStatusList(dirAbs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if files == nil {
		files = []models.FileStatusInfo{}
	}
	out, _ := json.MarshalIndent(files, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirAbs, name, err := s.entryArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultFor(s.svc.AddTag(dirAbs, name, tag)), nil
}

func (s *Server) removeTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirAbs, name, err := s.entryArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultFor(s.svc.RemoveTag(dirAbs, name, tag)), nil
}

func (s *Server) setTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirAbs, name, err := s.entryArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := stringSlice(req, "tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultFor(s.svc.SetTags(dirAbs, name, tags)), nil
}

func (s *Server) addReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirAbs, name, err := s.entryArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultFor(s.svc.AddReference(dirAbs, name, target)), nil
}

func (s *Server) removeReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirAbs, name, err := s.entryArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultFor(s.svc.RemoveReference(dirAbs, name, target)), nil
}

func (s *Server) setReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirAbs, name, err := s.entryArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targets, err := stringSlice(req, "targets")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultFor(s.svc.SetReferences(dirAbs, name, targets)), nil
}

func (s *Server) getReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs := s.graph.GetReferences(path)
	out, _ := json.MarshalIndent(refs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getInvalidReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	invalid := s.graph.GetInvalidReferences(path)
	if len(invalid) == 0 {
		return mcp.NewToolResultText("no invalid references"), nil
	}
	return mcp.NewToolResultText(strings.Join(invalid, "\n")), nil
}

func (s *Server) searchProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.index.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMetadataContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MetadataFormatContract), nil
}

func (s *Server) readMetadataFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dialogoi://metadata-format",
			MIMEType: "text/markdown",
			Text:     MetadataFormatContract,
		},
	}, nil
}
