package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// watcherTestEnv sets up a project dir plus the full set of components the
// watcher patches.
func watcherTestEnv(t *testing.T) (string, Deps) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	resolver := paths.NewResolver(root)
	meta := metadata.NewAccessor(store, resolver)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	graph := refgraph.New(store, meta, resolver, logger)
	svc := metaservice.NewService(store, meta, resolver, graph, logger)

	dbFile, err := os.CreateTemp("", "dialogoi-watcher-test-*.db")
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

	return root, Deps{
		Store:    store,
		Meta:     meta,
		Resolver: resolver,
		Graph:    graph,
		Index:    db,
		Service:  svc,
		Logger:   logger,
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	root, d := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, d, func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := d.Index.GetChecksum("new.md")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "file.created:new.md" {
				return true
			}
		}
		return false
	}, "expected file.created:new.md callback")
}

func TestWatcher_RecordChangePatchesGraph(t *testing.T) {
	root, d := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "chapter1.md"), []byte("# One"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "world.md"), []byte("# World"), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, d, nil)
	time.Sleep(100 * time.Millisecond)

	record := "readme: \"\"\nfiles:\n" +
		"  - name: chapter1.md\n    type: content\n    hash: \"sha256:0\"\n    references: [world.md]\n"
	_ = os.WriteFile(filepath.Join(root, metadata.RecordFilename), []byte(record), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		refs := d.Graph.GetReferences("chapter1.md")
		return len(refs.References) == 1 && refs.References[0] == "world.md"
	}, "declared reference not applied to graph by watcher")
}

func TestWatcher_ContentLinksSynced(t *testing.T) {
	root, d := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "world.md"), []byte("# World"), 0o644)
	record := "readme: \"\"\nfiles:\n" +
		"  - name: chapter1.md\n    type: content\n    hash: \"sha256:0\"\n"
	_ = os.WriteFile(filepath.Join(root, metadata.RecordFilename), []byte(record), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, d, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "chapter1.md"),
		[]byte("# One\n\nSee [the world](world.md)."), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		refs := d.Graph.GetReferences("chapter1.md")
		for _, r := range refs.References {
			if r == "world.md" {
				return true
			}
		}
		return false
	}, "hyperlink in saved content not synced into references")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root, d := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, d, nil)
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(root, "settings")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := d.Index.GetChecksum("settings/deep.md")
		return cs != ""
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, d := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "del.md"), []byte("# Delete Me"), 0o644)
	if err := search.Sync(context.Background(), d.Index, d.Store, d.Meta, d.Resolver, d.Logger); err != nil {
		t.Fatal(err)
	}
	cs, _ := d.Index.GetChecksum("del.md")
	if cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, d, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := d.Index.GetChecksum("del.md")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, d := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "old.md"), []byte("# Rename"), 0o644)
	if err := search.Sync(context.Background(), d.Index, d.Store, d.Meta, d.Resolver, d.Logger); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, d, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := d.Index.GetChecksum("old.md")
		newCS, _ := d.Index.GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
