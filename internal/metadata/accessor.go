// Package metadata loads and saves per-directory metadata records.
//
// Each managed directory carries a RecordFilename YAML file listing its
// children; the project root additionally carries the ProjectMarker
// descriptor.
package metadata

import (
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/apperr"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/checksum"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

const (
	// RecordFilename is the per-directory metadata record file.
	RecordFilename = ".dialogoi-meta.yaml"
	// ProjectMarker identifies the project root directory.
	ProjectMarker = "dialogoi.yaml"
)

// Accessor reads and writes DirectoryRecords through a storage provider,
// keyed by absolute directory path.
type Accessor struct {
	store    storage.Provider
	resolver *paths.Resolver
}

// NewAccessor creates an Accessor for one project.
func NewAccessor(store storage.Provider, resolver *paths.Resolver) *Accessor {
	return &Accessor{store: store, resolver: resolver}
}

// RecordPath returns the project-relative path of the record file for the
// directory at dirAbs.
func (a *Accessor) RecordPath(dirAbs string) (string, error) {
	rel, ok := a.resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return "", fmt.Errorf("metadata: directory %s: %w", dirAbs, apperr.ErrOutOfProject)
	}
	return paths.JoinCanonical(rel, RecordFilename), nil
}

// Exists reports whether the directory at dirAbs carries a metadata record.
func (a *Accessor) Exists(dirAbs string) bool {
	p, err := a.RecordPath(dirAbs)
	if err != nil {
		return false
	}
	return a.store.Exists(p)
}

// Load returns the directory's record together with the fingerprint of its
// raw on-disk bytes, for use as the ifMatch argument of a later Save.
// A missing record file yields apperr.ErrNotFound.
func (a *Accessor) Load(dirAbs string) (*models.DirectoryRecord, string, error) {
	p, err := a.RecordPath(dirAbs)
	if err != nil {
		return nil, "", err
	}
	data, err := a.store.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("metadata: record for %s: %w", dirAbs, apperr.ErrNotFound)
		}
		return nil, "", err
	}
	var rec models.DirectoryRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, "", fmt.Errorf("metadata: decode %s: %w", p, err)
	}
	return &rec, checksum.Sum(data), nil
}

// Save validates, encodes, and atomically writes the record. When ifMatch is
// non-empty it must equal the fingerprint of the current on-disk bytes, or
// apperr.ErrConflict is returned and nothing is written. An empty ifMatch
// skips the check (first write of a new record).
func (a *Accessor) Save(dirAbs string, rec *models.DirectoryRecord, ifMatch string) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	p, err := a.RecordPath(dirAbs)
	if err != nil {
		return err
	}
	if ifMatch != "" {
		current, err := a.store.Read(p)
		if err == nil && checksum.Sum(current) != ifMatch {
			return fmt.Errorf("metadata: record for %s changed underneath: %w", dirAbs, apperr.ErrConflict)
		}
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metadata: encode %s: %w", p, err)
	}
	return a.store.Write(p, data)
}
