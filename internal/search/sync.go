package search

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/checksum"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/parser"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// Sync walks the project and brings the index up to date:
//   - new/changed text files are parsed and upserted
//   - files removed from disk are deleted from the index
//
// ctx is checked between files so large projects can interrupt the scan.
func Sync(ctx context.Context, db *DB, store storage.Provider, meta *metadata.Accessor, resolver *paths.Resolver, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := IndexFile(db, store, meta, resolver, m.Path); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteFile(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile reads, parses, and upserts one project file. The tags declared
// for the file in its directory record are indexed alongside its inline tags.
func IndexFile(db *DB, store storage.Provider, meta *metadata.Accessor, resolver *paths.Resolver, relPath string) error {
	data, err := store.Read(relPath)
	if err != nil {
		return err
	}
	res := parser.Parse(data)

	tags := res.Tags
	for _, t := range entryTags(meta, resolver, relPath) {
		if !contains(tags, t) {
			tags = append(tags, t)
		}
	}

	row := FileRow{
		Path:      relPath,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      tags,
		UpdatedAt: time.Now(),
	}
	return db.UpsertFile(row, res.Body)
}

// entryTags returns the tags declared for relPath in its directory's metadata
// record, best effort.
func entryTags(meta *metadata.Accessor, resolver *paths.Resolver, relPath string) []string {
	rec, _, err := meta.Load(resolver.Resolve(path.Dir(relPath)))
	if err != nil {
		return nil
	}
	if e := rec.Find(path.Base(relPath)); e != nil {
		return e.Tags
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
