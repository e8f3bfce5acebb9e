// Package watcher keeps the reference graph and the search index in step
// with filesystem changes. It watches the project tree with fsnotify and
// patches both incrementally, falling back to a full reconcile after rename
// storms.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/parser"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// EventCallback is called after a watcher-driven change. kind is one of
// "meta.updated", "file.created", "file.updated", "file.deleted",
// "graph.updated". path is project-relative.
type EventCallback func(kind string, path string)

// Deps bundles what the watcher patches on each event.
type Deps struct {
	Store    storage.Provider
	Meta     *metadata.Accessor
	Resolver *paths.Resolver
	Graph    *refgraph.Graph
	Index    *search.DB
	Service  *metaservice.Service
	Logger   *slog.Logger
}

// Watch starts an fsnotify watcher on the project root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after each
// successful mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that resyncs the search
// index and rebuilds the reference graph.
func Watch(ctx context.Context, d Deps, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := d.Resolver.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	d.Logger.Info("watcher: started", slog.String("root", root))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			d.Logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, d, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories are added to the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						d.Logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						d.Logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(d, absPath, cb)
					continue
				}
			}

			base := filepath.Base(absPath)

			switch {
			case base == metadata.RecordFilename:
				if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					handleRecordChange(d, absPath, cb)
				} else if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					// The record is gone and with it the knowledge of
					// what it declared. Rebuild from what remains.
					scheduleReconcile()
				}

			case isTextFile(base):
				rel, ok := d.Resolver.RelativeFromRoot(absPath)
				if !ok {
					continue
				}
				handleTextFile(d, absPath, rel, ev.Op, cb, scheduleReconcile)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.Logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handleRecordChange reloads a directory's metadata record and replays its
// declared references into the graph. A removed record drops what it
// declared.
func handleRecordChange(d Deps, recordAbs string, cb EventCallback) {
	dirAbs := filepath.Dir(recordAbs)
	dirRel, ok := d.Resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return
	}

	rec, _, err := d.Meta.Load(dirAbs)
	if err != nil {
		d.Logger.Warn("watcher: record reload failed",
			slog.String("dir", dirRel), slog.String("error", err.Error()))
		return
	}

	for i := range rec.Files {
		e := &rec.Files[i]
		if !e.SupportsReferences() {
			continue
		}
		key := paths.JoinCanonical(dirRel, e.Name)
		d.Graph.UpdateFileReferences(key, e.References)
	}

	d.Logger.Debug("watcher: record applied", slog.String("dir", dirRel))
	if cb != nil {
		cb("meta.updated", dirRel)
		cb("graph.updated", dirRel)
	}
}

// handleTextFile patches the search index and syncs hyperlink references for
// one content file event.
func handleTextFile(d Deps, absPath, rel string, op fsnotify.Op, cb EventCallback, scheduleReconcile func()) {
	switch {
	case op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := search.IndexFile(d.Index, d.Store, d.Meta, d.Resolver, rel); err != nil {
			d.Logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		syncContentLinks(d, absPath, rel)
		kind := "file.updated"
		if op&fsnotify.Create != 0 {
			kind = "file.created"
		}
		d.Logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		if cb != nil {
			cb(kind, rel)
		}

	case op&fsnotify.Remove != 0:
		if err := d.Index.DeleteFile(rel); err != nil {
			d.Logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		d.Logger.Debug("watcher: deleted", slog.String("path", rel))
		if cb != nil {
			cb("file.deleted", rel)
		}

	case op&fsnotify.Rename != 0:
		// fsnotify fires Rename on the OLD path only. The new path will
		// arrive as a separate Create event (if it stays within a watched
		// dir). We delete the old index entry immediately and schedule a
		// short reconciliation pass to catch any stragglers.
		if err := d.Index.DeleteFile(rel); err != nil {
			d.Logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			d.Logger.Debug("watcher: rename old deleted", slog.String("path", rel))
			if cb != nil {
				cb("file.deleted", rel)
			}
		}
		scheduleReconcile()
	}
}

// syncContentLinks extracts markdown links from a saved file and adds the
// resolvable new ones to the file's declared references.
func syncContentLinks(d Deps, absPath, rel string) {
	data, err := d.Store.Read(rel)
	if err != nil {
		return
	}
	links := parser.ExtractLinks(string(data))
	if len(links) == 0 {
		return
	}
	added, err := d.Service.SyncReferencesFromContent(absPath, links)
	if err != nil {
		d.Logger.Debug("watcher: link sync skipped",
			slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if added > 0 {
		d.Logger.Debug("watcher: links synced",
			slog.String("path", rel), slog.Int("added", added))
	}
}

// reconcile resyncs the search index against disk and rebuilds the reference
// graph from the metadata records.
func reconcile(ctx context.Context, d Deps, cb EventCallback) {
	if err := search.Sync(ctx, d.Index, d.Store, d.Meta, d.Resolver, d.Logger); err != nil {
		d.Logger.Warn("reconcile: index sync failed", slog.String("error", err.Error()))
	}
	if err := d.Graph.Initialize(ctx); err != nil {
		d.Logger.Warn("reconcile: graph rebuild failed", slog.String("error", err.Error()))
		return
	}
	d.Logger.Debug("reconcile: done")
	if cb != nil {
		cb("graph.updated", ".")
	}
}

// indexNewDir indexes any text files found in a newly created directory.
func indexNewDir(d Deps, dirPath string, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(p string, de fs.DirEntry, err error) error {
		if err != nil || de.IsDir() || !isTextFile(de.Name()) {
			return nil
		}
		rel, ok := d.Resolver.RelativeFromRoot(p)
		if !ok {
			return nil
		}
		if idxErr := search.IndexFile(d.Index, d.Store, d.Meta, d.Resolver, rel); idxErr == nil {
			d.Logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			if cb != nil {
				cb("file.created", rel)
			}
		}
		return nil
	})
}

func isTextFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".txt")
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
