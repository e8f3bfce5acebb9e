package models

import "time"

// FileStatus is the three-way reconciliation status of a directory entry
// against its declared metadata.
type FileStatus string

const (
	StatusManaged   FileStatus = "managed"
	StatusUntracked FileStatus = "untracked"
	StatusMissing   FileStatus = "missing"
)

// FileStatusInfo is the derived, non-persisted reconciliation result for one
// name in a directory.
type FileStatusInfo struct {
	Name         string     `json:"name"`
	AbsolutePath string     `json:"absolutePath"`
	Status       FileStatus `json:"status"`
	// Entry is the declared metadata entry, nil for untracked names.
	Entry *FileEntry `json:"entry,omitempty"`
	IsDir bool       `json:"isDir"`
}

// ToEntry converts the status info back to a FileEntry. Declared entries keep
// their shape (with IsMissing set when the file is absent); untracked names
// get a minimal default entry of inferred kind with the IsUntracked flag set.
func (i *FileStatusInfo) ToEntry() FileEntry {
	if i.Entry != nil {
		e := i.Entry.Clone()
		e.IsMissing = i.Status == StatusMissing
		return e
	}
	kind := KindSetting
	if i.IsDir {
		kind = KindSubdirectory
	}
	e := FileEntry{Name: i.Name, Kind: kind, IsUntracked: true}
	if kind == KindSetting {
		e.Tags = []string{}
	}
	return e
}

// FileMeta is a lightweight description of one project file, returned by
// storage listing operations.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
