// Package metaservice applies tag and reference mutations to directory
// metadata records, keeping the reference graph in sync with what is saved.
package metaservice

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/apperr"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/checksum"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// OperationResult is the boundary result of one mutation. Errors are caught
// at the service boundary and never propagate as raised errors.
type OperationResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	UpdatedItems []UpdatedItem `json:"updatedItems,omitempty"`
}

// UpdatedItem pairs an updated entry with its resolved absolute path.
type UpdatedItem struct {
	Entry        models.FileEntry `json:"entry"`
	AbsolutePath string           `json:"absolutePath"`
}

// Service coordinates record mutations with the reference graph.
type Service struct {
	store    storage.Provider
	meta     *metadata.Accessor
	resolver *paths.Resolver
	graph    *refgraph.Graph
	logger   *slog.Logger
}

// NewService creates a Service for one project session.
func NewService(store storage.Provider, meta *metadata.Accessor, resolver *paths.Resolver, graph *refgraph.Graph, logger *slog.Logger) *Service {
	return &Service{store: store, meta: meta, resolver: resolver, graph: graph, logger: logger}
}

// mutate runs the shared load → locate → guard → apply → save cycle every
// mutation follows. apply returns an error to veto the save.
func (s *Service) mutate(dirAbs, name string, apply func(e *models.FileEntry) error) OperationResult {
	rec, fingerprint, err := s.meta.Load(dirAbs)
	if err != nil {
		return s.failure(dirAbs, name, err)
	}
	e := rec.Find(name)
	if e == nil {
		return s.failure(dirAbs, name, fmt.Errorf("entry %q: %w", name, apperr.ErrNotFound))
	}
	if err := apply(e); err != nil {
		return s.failure(dirAbs, name, err)
	}
	if err := s.meta.Save(dirAbs, rec, fingerprint); err != nil {
		return s.failure(dirAbs, name, err)
	}
	return OperationResult{
		Success: true,
		Message: fmt.Sprintf("updated %s", name),
		UpdatedItems: []UpdatedItem{{
			Entry:        e.Clone(),
			AbsolutePath: filepath.Join(dirAbs, name),
		}},
	}
}

func (s *Service) failure(dir, name string, err error) OperationResult {
	s.logger.Warn("metaservice: mutation failed",
		slog.String("dir", dir),
		slog.String("entry", name),
		slog.String("error", err.Error()))
	return OperationResult{Success: false, Message: err.Error()}
}

func requireTags(e *models.FileEntry) error {
	if !e.SupportsTags() {
		return fmt.Errorf("tags on %s entry %q: %w", e.Kind, e.Name, apperr.ErrUnsupported)
	}
	return nil
}

func requireReferences(e *models.FileEntry) error {
	if !e.SupportsReferences() {
		return fmt.Errorf("references on %s entry %q: %w", e.Kind, e.Name, apperr.ErrUnsupported)
	}
	return nil
}

// AddTag adds tag to the named entry. Adding a tag already present is a no-op
// that still succeeds.
func (s *Service) AddTag(dirAbs, name, tag string) OperationResult {
	return s.mutate(dirAbs, name, func(e *models.FileEntry) error {
		if err := requireTags(e); err != nil {
			return err
		}
		for _, t := range e.Tags {
			if t == tag {
				return nil
			}
		}
		e.Tags = append(e.Tags, tag)
		return nil
	})
}

// RemoveTag removes tag from the named entry. Removing an absent tag is a
// no-op that still succeeds.
func (s *Service) RemoveTag(dirAbs, name, tag string) OperationResult {
	return s.mutate(dirAbs, name, func(e *models.FileEntry) error {
		if err := requireTags(e); err != nil {
			return err
		}
		out := e.Tags[:0]
		for _, t := range e.Tags {
			if t != tag {
				out = append(out, t)
			}
		}
		e.Tags = out
		return nil
	})
}

// SetTags replaces the entry's tags wholesale, dropping duplicates while
// preserving first-occurrence order.
func (s *Service) SetTags(dirAbs, name string, tags []string) OperationResult {
	return s.mutate(dirAbs, name, func(e *models.FileEntry) error {
		if err := requireTags(e); err != nil {
			return err
		}
		e.Tags = dedupe(tags)
		return nil
	})
}

// AddReference adds a reference to target from the named content entry.
// target may be written relative to the entry's file or to the project root;
// external links and paths escaping the root are rejected.
func (s *Service) AddReference(dirAbs, name, target string) OperationResult {
	canonical, ok := s.resolver.NormalizeToProjectPath(target, filepath.Join(dirAbs, name))
	if !ok {
		return s.failure(dirAbs, name, fmt.Errorf("reference %q: %w", target, apperr.ErrOutOfProject))
	}
	res := s.mutate(dirAbs, name, func(e *models.FileEntry) error {
		if err := requireReferences(e); err != nil {
			return err
		}
		for _, ref := range e.References {
			if paths.IsSamePath(ref, canonical) {
				return nil
			}
		}
		e.References = append(e.References, canonical)
		return nil
	})
	s.syncGraph(dirAbs, name, res)
	return res
}

// RemoveReference removes the reference to target from the named entry.
func (s *Service) RemoveReference(dirAbs, name, target string) OperationResult {
	canonical, ok := s.resolver.NormalizeToProjectPath(target, filepath.Join(dirAbs, name))
	if !ok {
		return s.failure(dirAbs, name, fmt.Errorf("reference %q: %w", target, apperr.ErrOutOfProject))
	}
	res := s.mutate(dirAbs, name, func(e *models.FileEntry) error {
		if err := requireReferences(e); err != nil {
			return err
		}
		out := e.References[:0]
		for _, ref := range e.References {
			if !paths.IsSamePath(ref, canonical) {
				out = append(out, ref)
			}
		}
		e.References = out
		return nil
	})
	s.syncGraph(dirAbs, name, res)
	return res
}

// SetReferences replaces the entry's references wholesale. Every target is
// normalized first; one rejected target fails the whole operation.
func (s *Service) SetReferences(dirAbs, name string, targets []string) OperationResult {
	canonicals := make([]string, 0, len(targets))
	for _, target := range targets {
		c, ok := s.resolver.NormalizeToProjectPath(target, filepath.Join(dirAbs, name))
		if !ok {
			return s.failure(dirAbs, name, fmt.Errorf("reference %q: %w", target, apperr.ErrOutOfProject))
		}
		canonicals = append(canonicals, c)
	}
	res := s.mutate(dirAbs, name, func(e *models.FileEntry) error {
		if err := requireReferences(e); err != nil {
			return err
		}
		e.References = dedupe(canonicals)
		return nil
	})
	s.syncGraph(dirAbs, name, res)
	return res
}

// syncGraph propagates a successful reference mutation to the graph so the
// in-memory index never diverges from the persisted record.
func (s *Service) syncGraph(dirAbs, name string, res OperationResult) {
	if !res.Success || s.graph == nil || len(res.UpdatedItems) == 0 {
		return
	}
	dirRel, ok := s.resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return
	}
	source := paths.JoinCanonical(dirRel, name)
	s.graph.UpdateFileReferences(source, res.UpdatedItems[0].Entry.References)
}

// TrackFile adds a metadata entry for a file or directory currently untracked.
// kind may be empty, in which case directories become subdirectory entries
// and files become setting entries. Files get a content hash.
func (s *Service) TrackFile(dirAbs, name string, kind models.EntryKind) OperationResult {
	dirRel, ok := s.resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return s.failure(dirAbs, name, fmt.Errorf("directory %s: %w", dirAbs, apperr.ErrOutOfProject))
	}
	rel := paths.JoinCanonical(dirRel, name)
	info, err := s.store.Stat(rel)
	if err != nil {
		return s.failure(dirAbs, name, fmt.Errorf("file %q: %w", name, apperr.ErrNotFound))
	}
	if kind == "" {
		if info.IsDir() {
			kind = models.KindSubdirectory
		} else {
			kind = models.KindSetting
		}
	}

	rec, fingerprint, err := s.meta.Load(dirAbs)
	if err != nil {
		return s.failure(dirAbs, name, err)
	}
	if rec.Find(name) != nil {
		return OperationResult{Success: true, Message: fmt.Sprintf("%s is already tracked", name)}
	}

	entry := models.FileEntry{Name: name, Kind: kind}
	if kind != models.KindSubdirectory {
		if data, readErr := s.store.Read(rel); readErr == nil {
			entry.Hash = checksum.Tagged(data)
		}
	}
	rec.Files = append(rec.Files, entry)
	if err := s.meta.Save(dirAbs, rec, fingerprint); err != nil {
		return s.failure(dirAbs, name, err)
	}
	return OperationResult{
		Success:      true,
		Message:      fmt.Sprintf("tracking %s", name),
		UpdatedItems: []UpdatedItem{{Entry: entry, AbsolutePath: filepath.Join(dirAbs, name)}},
	}
}

// UntrackFile removes the named entry from the directory record, leaving the
// file itself on disk. Outgoing references of a content entry are dropped
// from the graph.
func (s *Service) UntrackFile(dirAbs, name string) OperationResult {
	rec, fingerprint, err := s.meta.Load(dirAbs)
	if err != nil {
		return s.failure(dirAbs, name, err)
	}
	e := rec.Find(name)
	if e == nil {
		return s.failure(dirAbs, name, fmt.Errorf("entry %q: %w", name, apperr.ErrNotFound))
	}
	wasContent := e.Kind == models.KindContent
	rec.Remove(name)
	if err := s.meta.Save(dirAbs, rec, fingerprint); err != nil {
		return s.failure(dirAbs, name, err)
	}
	if wasContent && s.graph != nil {
		if dirRel, ok := s.resolver.RelativeFromRoot(dirAbs); ok {
			s.graph.RemoveFileReferences(paths.JoinCanonical(dirRel, name))
		}
	}
	return OperationResult{Success: true, Message: fmt.Sprintf("untracked %s", name)}
}

// RenameFile renames a tracked file on disk and in its record, then rewrites
// every reference pointing at the old path across the project so no link
// dangles. Referencing records that fail to update are logged and skipped.
func (s *Service) RenameFile(dirAbs, oldName, newName string) OperationResult {
	dirRel, ok := s.resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return s.failure(dirAbs, oldName, fmt.Errorf("directory %s: %w", dirAbs, apperr.ErrOutOfProject))
	}
	oldRel := paths.JoinCanonical(dirRel, oldName)
	newRel := paths.JoinCanonical(dirRel, newName)

	rec, fingerprint, err := s.meta.Load(dirAbs)
	if err != nil {
		return s.failure(dirAbs, oldName, err)
	}
	e := rec.Find(oldName)
	if e == nil {
		return s.failure(dirAbs, oldName, fmt.Errorf("entry %q: %w", oldName, apperr.ErrNotFound))
	}
	if rec.Find(newName) != nil || s.store.Exists(newRel) {
		return s.failure(dirAbs, oldName, fmt.Errorf("rename target %q already exists", newName))
	}

	if err := s.store.Move(oldRel, newRel); err != nil {
		return s.failure(dirAbs, oldName, err)
	}
	e.Name = newName
	if err := s.meta.Save(dirAbs, rec, fingerprint); err != nil {
		return s.failure(dirAbs, oldName, err)
	}

	if s.graph != nil {
		incoming := s.graph.GetReferences(oldRel).ReferencedBy
		s.graph.UpdateFileReferences(newRel, e.References)
		s.graph.RemoveFileReferences(oldRel)
		for _, source := range incoming {
			s.retargetReference(source, oldRel, newRel)
		}
	}
	return OperationResult{
		Success: true,
		Message: fmt.Sprintf("renamed %s to %s", oldName, newName),
		UpdatedItems: []UpdatedItem{{
			Entry:        e.Clone(),
			AbsolutePath: filepath.Join(dirAbs, newName),
		}},
	}
}

// retargetReference rewrites one referencing entry's link from oldRel to
// newRel, best effort.
func (s *Service) retargetReference(source, oldRel, newRel string) {
	srcDirAbs := s.resolver.Resolve(path.Dir(source))
	srcName := path.Base(source)
	res := s.mutate(srcDirAbs, srcName, func(e *models.FileEntry) error {
		if err := requireReferences(e); err != nil {
			return err
		}
		for i, ref := range e.References {
			if paths.IsSamePath(ref, oldRel) {
				e.References[i] = newRel
			}
		}
		e.References = dedupe(e.References)
		return nil
	})
	if !res.Success {
		s.logger.Warn("metaservice: reference retarget failed",
			slog.String("source", source),
			slog.String("target", newRel))
		return
	}
	s.graph.UpdateFileReferences(source, res.UpdatedItems[0].Entry.References)
}

// SyncReferencesFromContent adds references for every project-internal
// hyperlink found in a content file's body that is not yet declared.
// Manually added references are kept. Returns the number added.
// ErrNotFound when the file is not a tracked entry, ErrUnsupported when the
// tracked entry is not a content entry; callers treat both as "nothing to do".
func (s *Service) SyncReferencesFromContent(fileAbs string, links []string) (int, error) {
	dirAbs := filepath.Dir(fileAbs)
	name := filepath.Base(fileAbs)

	rec, fingerprint, err := s.meta.Load(dirAbs)
	if err != nil {
		return 0, err
	}
	e := rec.Find(name)
	if e == nil {
		return 0, fmt.Errorf("entry %q: %w", name, apperr.ErrNotFound)
	}
	if err := requireReferences(e); err != nil {
		return 0, err
	}

	added := 0
	for _, link := range links {
		canonical, ok := s.resolver.NormalizeToProjectPath(link, fileAbs)
		if !ok {
			continue
		}
		present := false
		for _, ref := range e.References {
			if paths.IsSamePath(ref, canonical) {
				present = true
				break
			}
		}
		if !present {
			e.References = append(e.References, canonical)
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.meta.Save(dirAbs, rec, fingerprint); err != nil {
		return 0, err
	}
	if s.graph != nil {
		if dirRel, ok := s.resolver.RelativeFromRoot(dirAbs); ok {
			s.graph.UpdateFileReferences(paths.JoinCanonical(dirRel, name), e.References)
		}
	}
	return added, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
