// Package status reconciles a directory's declared metadata against its
// actual filesystem contents into a three-way status per entry.
package status

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/apperr"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// Reconciler merges metadata records with directory listings.
type Reconciler struct {
	store    storage.Provider
	meta     *metadata.Accessor
	resolver *paths.Resolver
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler for one project.
func NewReconciler(store storage.Provider, meta *metadata.Accessor, resolver *paths.Resolver, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, meta: meta, resolver: resolver, logger: logger}
}

// GetFileStatusList returns the reconciliation status of every visible entry
// in the directory at dirAbs. A directory without a metadata record lists
// everything as untracked. Per-entry filesystem failures are logged and the
// entry skipped; the listing itself always completes.
func (r *Reconciler) GetFileStatusList(dirAbs string) ([]models.FileStatusInfo, error) {
	dirRel, ok := r.resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return nil, fmt.Errorf("status: directory %s: %w", dirAbs, apperr.ErrOutOfProject)
	}

	rec, _, err := r.meta.Load(dirAbs)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		rec = &models.DirectoryRecord{}
	}

	order := make(map[string]int, len(rec.Files))
	declared := make(map[string]*models.FileEntry, len(rec.Files))
	for i := range rec.Files {
		declared[rec.Files[i].Name] = &rec.Files[i]
		order[rec.Files[i].Name] = i
	}

	entries, err := r.store.ReadDir(dirRel)
	if err != nil {
		return nil, err
	}

	var out []models.FileStatusInfo
	matched := make(map[string]bool, len(entries))
	for _, de := range entries {
		if reserved(de.Name, rec.Readme) {
			continue
		}
		// Resolve through Stat so symlinked directories classify correctly;
		// an entry we cannot stat is skipped, not fatal.
		info, statErr := r.store.Stat(paths.JoinCanonical(dirRel, de.Name))
		if statErr != nil {
			r.logger.Warn("status: stat failed",
				slog.String("dir", dirRel),
				slog.String("name", de.Name),
				slog.String("error", statErr.Error()))
			continue
		}
		fi := models.FileStatusInfo{
			Name:         de.Name,
			AbsolutePath: filepath.Join(dirAbs, de.Name),
			IsDir:        info.IsDir(),
		}
		if e, ok := declared[de.Name]; ok {
			matched[de.Name] = true
			fi.Status = models.StatusManaged
			fi.Entry = e
		} else {
			fi.Status = models.StatusUntracked
		}
		out = append(out, fi)
	}

	// Declared entries never seen on disk are missing.
	for i := range rec.Files {
		e := &rec.Files[i]
		if matched[e.Name] {
			continue
		}
		out = append(out, models.FileStatusInfo{
			Name:         e.Name,
			AbsolutePath: filepath.Join(dirAbs, e.Name),
			Status:       models.StatusMissing,
			Entry:        e,
			IsDir:        e.Kind == models.KindSubdirectory,
		})
	}

	sortStatusList(out, order)
	return out, nil
}

// reserved reports whether name is internal bookkeeping or the readme target.
// Neither appears in the visible listing.
func reserved(name, readme string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if name == metadata.ProjectMarker {
		return true
	}
	if readme != "" && name == readme {
		return true
	}
	return false
}

// sortStatusList orders directories before files; within each group declared
// metadata order comes first, undeclared entries after, ties broken by
// case-sensitive name.
func sortStatusList(list []models.FileStatusInfo, order map[string]int) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		ai, aok := order[a.Name]
		bi, bok := order[b.Name]
		switch {
		case aok && bok:
			if ai != bi {
				return ai < bi
			}
		case aok:
			return true
		case bok:
			return false
		}
		return a.Name < b.Name
	})
}
