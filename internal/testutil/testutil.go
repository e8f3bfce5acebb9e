// Package testutil provides shared test helpers for setting up projects and
// search databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// TestIndex creates a temporary SQLite search database that is automatically
// cleaned up.
func TestIndex(t *testing.T) *search.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dialogoi-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := search.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestProject creates a temporary project directory carrying the marker file,
// with a storage.Provider, path resolver, and metadata accessor bound to it.
func TestProject(t *testing.T) (string, storage.Provider, *paths.Resolver, *metadata.Accessor) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, metadata.ProjectMarker), []byte("title: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	resolver := paths.NewResolver(root)
	return root, store, resolver, metadata.NewAccessor(store, resolver)
}
