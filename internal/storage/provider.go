// Package storage defines the project file-system abstraction.
package storage

import (
	"io/fs"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
)

// DirEntry is one name in a directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Provider is the interface for project file operations. All paths are
// relative to the project root, forward-slash separated; the root itself is
// addressed as "" or ".".
type Provider interface {
	// Exists reports whether path exists.
	Exists(path string) bool
	// Stat returns file info for path, following symlinks.
	Stat(path string) (fs.FileInfo, error)
	// ReadDir returns the direct children of dir.
	ReadDir(dir string) ([]DirEntry, error)
	// List walks dir and returns metadata for every text file under it,
	// skipping bookkeeping files.
	List(dir string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
