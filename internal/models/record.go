// Package models defines the domain types for Dialogoi projects.
package models

import "fmt"

// EntryKind discriminates the three kinds of entries a directory record holds.
type EntryKind string

const (
	KindContent      EntryKind = "content"
	KindSetting      EntryKind = "setting"
	KindSubdirectory EntryKind = "subdirectory"
)

// CharacterImportance ranks a character within the story.
type CharacterImportance string

const (
	ImportanceMain       CharacterImportance = "main"
	ImportanceSub        CharacterImportance = "sub"
	ImportanceBackground CharacterImportance = "background"
)

// Character is the setting payload for character sheets.
type Character struct {
	Importance CharacterImportance `yaml:"importance" json:"importance"`
	// Multiple marks a sheet that describes a group rather than one person.
	Multiple bool `yaml:"multiple,omitempty" json:"multiple,omitempty"`
}

// Foreshadowing anchors a planted hint to its payoff. Both anchors are
// canonical project-relative paths.
type Foreshadowing struct {
	Start string `yaml:"start" json:"start"`
	Goal  string `yaml:"goal" json:"goal"`
}

// FileEntry is one child of a directory record, discriminated by Kind.
// Content entries carry tags and references, setting entries carry tags and
// at most one type-specific payload, subdirectory entries are structural.
type FileEntry struct {
	Name string    `yaml:"name" json:"name"`
	Kind EntryKind `yaml:"type" json:"type"`
	Hash string    `yaml:"hash,omitempty" json:"hash,omitempty"`

	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// References are canonical project-relative paths, ordered, no duplicates.
	References []string `yaml:"references,omitempty" json:"references,omitempty"`

	Character     *Character     `yaml:"character,omitempty" json:"character,omitempty"`
	Foreshadowing *Foreshadowing `yaml:"foreshadowing,omitempty" json:"foreshadowing,omitempty"`
	Glossary      bool           `yaml:"glossary,omitempty" json:"glossary,omitempty"`

	// Runtime flags set by the status reconciler; never persisted.
	IsMissing   bool `yaml:"-" json:"isMissing,omitempty"`
	IsUntracked bool `yaml:"-" json:"isUntracked,omitempty"`
}

// SupportsTags reports whether the entry kind carries tags.
func (e *FileEntry) SupportsTags() bool {
	switch e.Kind {
	case KindContent, KindSetting:
		return true
	case KindSubdirectory:
		return false
	default:
		return false
	}
}

// SupportsReferences reports whether the entry kind carries references.
func (e *FileEntry) SupportsReferences() bool {
	return e.Kind == KindContent
}

// Validate checks kind and payload consistency for a single entry.
func (e *FileEntry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entry with empty name")
	}
	switch e.Kind {
	case KindContent:
		if e.Character != nil || e.Foreshadowing != nil || e.Glossary {
			return fmt.Errorf("entry %q: content entries carry no setting payload", e.Name)
		}
	case KindSetting:
		if len(e.References) > 0 {
			return fmt.Errorf("entry %q: setting entries carry no references", e.Name)
		}
		payloads := 0
		if e.Character != nil {
			payloads++
		}
		if e.Foreshadowing != nil {
			payloads++
		}
		if e.Glossary {
			payloads++
		}
		if payloads > 1 {
			return fmt.Errorf("entry %q: setting payloads are mutually exclusive", e.Name)
		}
	case KindSubdirectory:
		if len(e.Tags) > 0 || len(e.References) > 0 || e.Character != nil || e.Foreshadowing != nil || e.Glossary {
			return fmt.Errorf("entry %q: subdirectory entries are purely structural", e.Name)
		}
	default:
		return fmt.Errorf("entry %q: unknown kind %q", e.Name, e.Kind)
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (e *FileEntry) Clone() FileEntry {
	out := *e
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	if e.References != nil {
		out.References = append([]string(nil), e.References...)
	}
	if e.Character != nil {
		c := *e.Character
		out.Character = &c
	}
	if e.Foreshadowing != nil {
		f := *e.Foreshadowing
		out.Foreshadowing = &f
	}
	return out
}

// DirectoryRecord is the persisted metadata for one directory's children.
// File order is display order and is preserved across round trips.
type DirectoryRecord struct {
	Readme string      `yaml:"readme,omitempty" json:"readme,omitempty"`
	Files  []FileEntry `yaml:"files" json:"files"`
}

// Find returns the entry with the given name, or nil.
func (r *DirectoryRecord) Find(name string) *FileEntry {
	for i := range r.Files {
		if r.Files[i].Name == name {
			return &r.Files[i]
		}
	}
	return nil
}

// Remove deletes the entry with the given name, preserving the order of the
// rest. It reports whether an entry was removed.
func (r *DirectoryRecord) Remove(name string) bool {
	for i := range r.Files {
		if r.Files[i].Name == name {
			r.Files = append(r.Files[:i], r.Files[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks every entry and the name-uniqueness invariant.
func (r *DirectoryRecord) Validate() error {
	seen := make(map[string]struct{}, len(r.Files))
	for i := range r.Files {
		e := &r.Files[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("entry %q: duplicate name", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}
