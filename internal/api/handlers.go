package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/status"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *metaservice.Service
	recon    *status.Reconciler
	graph    *refgraph.Graph
	index    search.Index
	resolver *paths.Resolver
}

// NewHandler creates a new Handler.
func NewHandler(svc *metaservice.Service, recon *status.Reconciler, graph *refgraph.Graph, index search.Index, resolver *paths.Resolver) *Handler {
	return &Handler{svc: svc, recon: recon, graph: graph, index: index, resolver: resolver}
}

// resolveDir turns a project-relative directory into an absolute path,
// rejecting anything that escapes the project root.
func (h *Handler) resolveDir(dir string) (string, bool) {
	if dir == "" {
		dir = "."
	}
	abs := h.resolver.Resolve(dir)
	if _, ok := h.resolver.RelativeFromRoot(abs); !ok {
		return "", false
	}
	return abs, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeResult maps an OperationResult to a response: 200 on success, 422 when
// the operation was rejected. Transport-level problems never reach here.
func writeResult(w http.ResponseWriter, res metaservice.OperationResult) {
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, res)
}

// Status handles GET /api/status?dir=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	dirAbs, ok := h.resolveDir(dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	files, err := h.recon.GetFileStatusList(dirAbs)
	if err != nil {
		slog.Error("status listing failed", slog.String("dir", dir), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if files == nil {
		files = []models.FileStatusInfo{}
	}
	if dir == "" {
		dir = "."
	}
	writeJSON(w, http.StatusOK, StatusResponse{Dir: dir, Files: files})
}

// AddTag handles POST /api/tags/add.
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.AddTag(dirAbs, req.Name, req.Tag))
}

// RemoveTag handles POST /api/tags/remove.
func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.RemoveTag(dirAbs, req.Name, req.Tag))
}

// SetTags handles POST /api/tags/set.
func (h *Handler) SetTags(w http.ResponseWriter, r *http.Request) {
	var req TagsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.SetTags(dirAbs, req.Name, req.Tags))
}

// AddReference handles POST /api/references/add.
func (h *Handler) AddReference(w http.ResponseWriter, r *http.Request) {
	var req ReferenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.AddReference(dirAbs, req.Name, req.Target))
}

// RemoveReference handles POST /api/references/remove.
func (h *Handler) RemoveReference(w http.ResponseWriter, r *http.Request) {
	var req ReferenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.RemoveReference(dirAbs, req.Name, req.Target))
}

// SetReferences handles POST /api/references/set.
func (h *Handler) SetReferences(w http.ResponseWriter, r *http.Request) {
	var req ReferencesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.SetReferences(dirAbs, req.Name, req.Targets))
}

// TrackFile handles POST /api/files/track.
func (h *Handler) TrackFile(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.TrackFile(dirAbs, req.Name, models.EntryKind(req.Type)))
}

// UntrackFile handles POST /api/files/untrack.
func (h *Handler) UntrackFile(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.UntrackFile(dirAbs, req.Name))
}

// RenameFile handles POST /api/files/rename.
func (h *Handler) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirAbs, ok := h.resolveDir(req.Dir)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("dir escapes project root"))
		return
	}
	writeResult(w, h.svc.RenameFile(dirAbs, req.OldName, req.NewName))
}

// References handles GET /api/references?path=.
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	refs := h.graph.GetReferences(path)
	writeJSON(w, http.StatusOK, ReferencesResponse{
		Path:         path,
		References:   refs.References,
		ReferencedBy: refs.ReferencedBy,
	})
}

// InvalidReferences handles GET /api/references/invalid?path=.
func (h *Handler) InvalidReferences(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	invalid := h.graph.GetInvalidReferences(path)
	if invalid == nil {
		invalid = []string{}
	}
	writeJSON(w, http.StatusOK, InvalidReferencesResponse{Path: path, Invalid: invalid})
}

// Graph handles GET /api/graph.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges := h.graph.Snapshot()
	links := make([]GraphLink, len(edges))
	for i, e := range edges {
		links[i] = GraphLink{Source: e.Source, Target: e.Target}
	}
	if nodes == nil {
		nodes = []string{}
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.index.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, len(rows))
	for i, row := range rows {
		results[i] = SearchResult{Path: row.Path, Title: row.Title, Snippet: row.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
