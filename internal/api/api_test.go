package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/status"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// testEnv sets up a temp project, its components, and a router for testing.
// authToken="" means auth disabled.
func testEnv(t *testing.T, authToken string) (string, http.Handler) {
	t.Helper()

	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	resolver := paths.NewResolver(root)
	meta := metadata.NewAccessor(store, resolver)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	graph := refgraph.New(store, meta, resolver, logger)
	svc := metaservice.NewService(store, meta, resolver, graph, logger)
	recon := status.NewReconciler(store, meta, resolver, logger)

	dbFile, err := os.CreateTemp("", "dialogoi-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := search.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewHandler(svc, recon, graph, db, resolver)
	router := NewRouter(h, authToken != "", authToken, nil)
	return root, router
}

func seedProject(t *testing.T, root string) {
	t.Helper()
	mustWrite(t, root, "contents/chapter1.md", "# Chapter One\n\ntext")
	mustWrite(t, root, "settings/world.md", "# World\n\nlore")
	mustWrite(t, root, "contents/"+metadata.RecordFilename,
		"readme: \"\"\nfiles:\n  - name: chapter1.md\n    type: content\n    hash: \"sha256:0\"\n")
	mustWrite(t, root, "settings/"+metadata.RecordFilename,
		"readme: \"\"\nfiles:\n  - name: world.md\n    type: setting\n    tags: [worldbuilding]\n")
}

func mustWrite(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusListing(t *testing.T) {
	root, router := testEnv(t, "")
	seedProject(t, root)
	mustWrite(t, root, "contents/chapter2.md", "# Two")

	req := httptest.NewRequest(http.MethodGet, "/status?dir=contents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	byName := map[string]models.FileStatus{}
	for _, f := range resp.Files {
		byName[f.Name] = f.Status
	}
	if byName["chapter1.md"] != models.StatusManaged {
		t.Errorf("chapter1.md status = %q, want managed", byName["chapter1.md"])
	}
	if byName["chapter2.md"] != models.StatusUntracked {
		t.Errorf("chapter2.md status = %q, want untracked", byName["chapter2.md"])
	}
}

func TestStatus_DirEscapeRejected(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/status?dir=../outside", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTagMutations(t *testing.T) {
	root, router := testEnv(t, "")
	seedProject(t, root)

	w := postJSON(t, router, "/tags/add", TagRequest{
		EntryRequest: EntryRequest{Dir: "settings", Name: "world.md"},
		Tag:          "geography",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add tag status = %d, body = %s", w.Code, w.Body.String())
	}
	var res OperationResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success {
		t.Fatalf("add tag failed: %s", res.Message)
	}
	if len(res.UpdatedItems) != 1 {
		t.Fatalf("updated items = %d, want 1", len(res.UpdatedItems))
	}
	tags := res.UpdatedItems[0].Entry.Tags
	if len(tags) != 2 || tags[1] != "geography" {
		t.Errorf("tags = %v", tags)
	}

	// Removing an absent tag still succeeds (no-op).
	w = postJSON(t, router, "/tags/remove", TagRequest{
		EntryRequest: EntryRequest{Dir: "settings", Name: "world.md"},
		Tag:          "nonexistent",
	})
	if w.Code != http.StatusOK {
		t.Errorf("remove absent tag status = %d", w.Code)
	}
}

func TestTagOnSubdirectoryRejected(t *testing.T) {
	root, router := testEnv(t, "")
	mustWrite(t, root, "arcs/.keep", "")
	mustWrite(t, root, metadata.RecordFilename,
		"readme: \"\"\nfiles:\n  - name: arcs\n    type: subdirectory\n")

	w := postJSON(t, router, "/tags/add", TagRequest{
		EntryRequest: EntryRequest{Dir: ".", Name: "arcs"},
		Tag:          "nope",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", w.Code, w.Body.String())
	}
	var res OperationResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Success {
		t.Error("expected failure result")
	}
}

func TestReferenceMutationsAndQueries(t *testing.T) {
	root, router := testEnv(t, "")
	seedProject(t, root)

	w := postJSON(t, router, "/references/add", ReferenceRequest{
		EntryRequest: EntryRequest{Dir: "contents", Name: "chapter1.md"},
		Target:       "../settings/world.md",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add reference status = %d, body = %s", w.Code, w.Body.String())
	}

	// Both directions are visible through the graph.
	req := httptest.NewRequest(http.MethodGet, "/references?path=settings/world.md", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)
	var refs ReferencesResponse
	_ = json.Unmarshal(rw.Body.Bytes(), &refs)
	if len(refs.ReferencedBy) != 1 || refs.ReferencedBy[0] != "contents/chapter1.md" {
		t.Errorf("referencedBy = %v", refs.ReferencedBy)
	}

	// External links are rejected.
	w = postJSON(t, router, "/references/add", ReferenceRequest{
		EntryRequest: EntryRequest{Dir: "contents", Name: "chapter1.md"},
		Target:       "https://example.com",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("external link status = %d, want 422", w.Code)
	}
}

func TestInvalidReferences(t *testing.T) {
	root, router := testEnv(t, "")
	seedProject(t, root)

	_ = postJSON(t, router, "/references/add", ReferenceRequest{
		EntryRequest: EntryRequest{Dir: "contents", Name: "chapter1.md"},
		Target:       "ghost.md",
	})

	req := httptest.NewRequest(http.MethodGet, "/references/invalid?path=contents/chapter1.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp InvalidReferencesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Invalid) != 1 || resp.Invalid[0] != "ghost.md" {
		t.Errorf("invalid = %v, want [ghost.md]", resp.Invalid)
	}
}

func TestGraphSnapshot(t *testing.T) {
	root, router := testEnv(t, "")
	seedProject(t, root)

	_ = postJSON(t, router, "/references/add", ReferenceRequest{
		EntryRequest: EntryRequest{Dir: "contents", Name: "chapter1.md"},
		Target:       "../settings/world.md",
	})

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Nodes) != 2 {
		t.Errorf("nodes = %v, want 2", resp.Nodes)
	}
	if len(resp.Links) != 1 || resp.Links[0].Source != "contents/chapter1.md" {
		t.Errorf("links = %v", resp.Links)
	}
}

func TestTrackUntrackRename(t *testing.T) {
	root, router := testEnv(t, "")
	seedProject(t, root)
	mustWrite(t, root, "contents/chapter2.md", "# Two")

	w := postJSON(t, router, "/files/track", TrackRequest{
		EntryRequest: EntryRequest{Dir: "contents", Name: "chapter2.md"},
		Type:         "content",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("track status = %d, body = %s", w.Code, w.Body.String())
	}

	w = postJSON(t, router, "/files/rename", RenameRequest{
		Dir: "contents", OldName: "chapter2.md", NewName: "chapter02.md",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(root, "contents", "chapter02.md")); err != nil {
		t.Errorf("renamed file missing on disk: %v", err)
	}

	w = postJSON(t, router, "/files/untrack", EntryRequest{Dir: "contents", Name: "chapter02.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("untrack status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSearchParamRequired(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthModes(t *testing.T) {
	_, router := testEnv(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}

func TestBadJSONBody(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/tags/add", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
