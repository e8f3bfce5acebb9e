package refgraph

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

func testGraph(t *testing.T) (*Graph, *metadata.Accessor, storage.Provider, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	resolver := paths.NewResolver(root)
	meta := metadata.NewAccessor(store, resolver)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, meta, resolver, logger), meta, store, root
}

// checkSymmetry asserts B in references(A) iff A in referencedBy(B) for the
// whole graph.
func checkSymmetry(t *testing.T, g *Graph) {
	t.Helper()
	nodes, edges := g.Snapshot()
	for _, e := range edges {
		in := g.GetReferences(e.Target).ReferencedBy
		if !contains(in, e.Source) {
			t.Errorf("edge %s→%s has no back-reference", e.Source, e.Target)
		}
	}
	for _, n := range nodes {
		refs := g.GetReferences(n)
		for _, in := range refs.ReferencedBy {
			if !contains(g.GetReferences(in).References, n) {
				t.Errorf("back-reference %s→%s has no forward edge", in, n)
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestAddFileReferences_Bidirectional(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"b.md"})

	got := g.GetReferences("b.md").ReferencedBy
	if !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("referencedBy(b.md) = %v, want [a.md]", got)
	}
	checkSymmetry(t, g)
}

func TestAddFileReferences_Idempotent(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"b.md"})
	g.AddFileReferences("a.md", []string{"b.md"})

	if got := g.GetReferences("a.md").References; !reflect.DeepEqual(got, []string{"b.md"}) {
		t.Errorf("references(a.md) = %v, want [b.md]", got)
	}
	if got := g.GetReferences("b.md").ReferencedBy; !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("referencedBy(b.md) = %v, want [a.md]", got)
	}
}

func TestUpdateFileReferences_ClearsBackReferences(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"b.md"})
	g.UpdateFileReferences("a.md", nil)

	if got := g.GetReferences("b.md").ReferencedBy; len(got) != 0 {
		t.Errorf("referencedBy(b.md) = %v, want empty", got)
	}
	checkSymmetry(t, g)
}

func TestUpdateFileReferences_PreservesOtherSources(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"shared.md"})
	g.AddFileReferences("c.md", []string{"shared.md"})

	g.UpdateFileReferences("a.md", []string{"other.md"})

	in := g.GetReferences("shared.md").ReferencedBy
	if !reflect.DeepEqual(in, []string{"c.md"}) {
		t.Errorf("referencedBy(shared.md) = %v, want [c.md]", in)
	}
	checkSymmetry(t, g)
}

func TestNodeWithOnlyIncomingPersists(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"b.md"})
	// b.md has no outgoing references but must persist with its incoming set.
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2", g.Len())
	}

	g.RemoveFileReferences("a.md")
	// Both ends are now empty and must be dropped.
	if g.Len() != 0 {
		t.Errorf("Len after removal = %d, want 0", g.Len())
	}
}

func TestGetReferences_UnknownPathNoSideEffect(t *testing.T) {
	g, _, _, _ := testGraph(t)
	refs := g.GetReferences("ghost.md")
	if len(refs.References) != 0 || len(refs.ReferencedBy) != 0 {
		t.Errorf("unknown path refs = %+v", refs)
	}
	if g.Len() != 0 {
		t.Error("read created a node")
	}
}

func TestRemoveFileReferences_KeepsIncoming(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"b.md"})
	g.AddFileReferences("b.md", []string{"c.md"})

	g.RemoveFileReferences("b.md")

	// b.md lost its outgoing edge but is still referenced by a.md.
	refs := g.GetReferences("b.md")
	if len(refs.References) != 0 {
		t.Errorf("references(b.md) = %v, want empty", refs.References)
	}
	if !reflect.DeepEqual(refs.ReferencedBy, []string{"a.md"}) {
		t.Errorf("referencedBy(b.md) = %v, want [a.md]", refs.ReferencedBy)
	}
	checkSymmetry(t, g)
}

func TestKeyNormalization(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("contents\\a.md", []string{"settings\\world.md"})

	got := g.GetReferences("contents/a.md").References
	if !reflect.DeepEqual(got, []string{"settings/world.md"}) {
		t.Errorf("references = %v", got)
	}
}

func TestGetInvalidReferences(t *testing.T) {
	g, _, store, _ := testGraph(t)
	_ = store.Write("exists.md", []byte("x"))
	g.AddFileReferences("a.md", []string{"exists.md", "dangling.md"})

	got := g.GetInvalidReferences("a.md")
	if !reflect.DeepEqual(got, []string{"dangling.md"}) {
		t.Errorf("invalid = %v, want [dangling.md]", got)
	}
}

func TestInitialize_ScansTree(t *testing.T) {
	g, meta, _, root := testGraph(t)

	rootRec := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "contents", Kind: models.KindSubdirectory},
		{Name: "settings", Kind: models.KindSubdirectory},
	}}
	if err := meta.Save(root, rootRec, ""); err != nil {
		t.Fatal(err)
	}
	contents := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "ch1.md", Kind: models.KindContent, References: []string{"settings/world.md"}},
		{Name: "ch2.md", Kind: models.KindContent},
	}}
	if err := meta.Save(filepath.Join(root, "contents"), contents, ""); err != nil {
		t.Fatal(err)
	}
	settings := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "world.md", Kind: models.KindSetting, Tags: []string{"world"}},
	}}
	if err := meta.Save(filepath.Join(root, "settings"), settings, ""); err != nil {
		t.Fatal(err)
	}

	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	in := g.GetReferences("settings/world.md").ReferencedBy
	if !reflect.DeepEqual(in, []string{"contents/ch1.md"}) {
		t.Errorf("referencedBy(settings/world.md) = %v", in)
	}
	checkSymmetry(t, g)
}

func TestInitialize_Idempotent(t *testing.T) {
	g, meta, _, root := testGraph(t)
	rec := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "a.md", Kind: models.KindContent, References: []string{"b.md"}},
	}}
	_ = meta.Save(root, rec, "")

	for i := 0; i < 3; i++ {
		if err := g.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize #%d: %v", i, err)
		}
	}
	if got := g.GetReferences("b.md").ReferencedBy; !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("referencedBy(b.md) = %v after repeated init", got)
	}
}

func TestInitialize_BadSubtreeSkipped(t *testing.T) {
	g, meta, store, root := testGraph(t)

	rootRec := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "good", Kind: models.KindSubdirectory},
		{Name: "broken", Kind: models.KindSubdirectory},
	}}
	_ = meta.Save(root, rootRec, "")
	good := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "a.md", Kind: models.KindContent, References: []string{"good/b.md"}},
	}}
	_ = meta.Save(filepath.Join(root, "good"), good, "")
	// A record that fails to decode aborts only its subtree.
	_ = store.Write("broken/"+metadata.RecordFilename, []byte("files: [unclosed"))

	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := g.GetReferences("good/a.md").References; !reflect.DeepEqual(got, []string{"good/b.md"}) {
		t.Errorf("good subtree not scanned: %v", got)
	}
}

func TestInitialize_Cancelled(t *testing.T) {
	g, meta, _, root := testGraph(t)
	rec := &models.DirectoryRecord{Files: []models.FileEntry{
		{Name: "a.md", Kind: models.KindContent, References: []string{"b.md"}},
	}}
	_ = meta.Save(root, rec, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Initialize(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestSnapshot(t *testing.T) {
	g, _, _, _ := testGraph(t)
	g.AddFileReferences("a.md", []string{"b.md", "c.md"})

	nodes, edges := g.Snapshot()
	if !reflect.DeepEqual(nodes, []string{"a.md", "b.md", "c.md"}) {
		t.Errorf("nodes = %v", nodes)
	}
	want := []Edge{{Source: "a.md", Target: "b.md"}, {Source: "a.md", Target: "c.md"}}
	if !reflect.DeepEqual(edges, want) {
		t.Errorf("edges = %v", edges)
	}
}
