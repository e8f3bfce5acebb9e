package api

import (
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
)

// EntryRequest addresses one entry in one directory record. Dir is
// project-relative ("." for the root directory).
type EntryRequest struct {
	Dir  string `json:"dir"`
	Name string `json:"name"`
}

// TagRequest is the body for single-tag mutations.
type TagRequest struct {
	EntryRequest
	Tag string `json:"tag"`
}

// TagsRequest is the body for replacing an entry's tag set.
type TagsRequest struct {
	EntryRequest
	Tags []string `json:"tags"`
}

// ReferenceRequest is the body for single-reference mutations. Target may be
// any link form; it is normalized against the source file.
type ReferenceRequest struct {
	EntryRequest
	Target string `json:"target"`
}

// ReferencesRequest is the body for replacing an entry's reference list.
type ReferencesRequest struct {
	EntryRequest
	Targets []string `json:"targets"`
}

// TrackRequest is the body for bringing an untracked file under management.
type TrackRequest struct {
	EntryRequest
	Type string `json:"type,omitempty"`
}

// RenameRequest is the body for renaming a managed file.
type RenameRequest struct {
	Dir     string `json:"dir"`
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

// OperationResult is the mutation result envelope (aliased from the domain
// layer).
type OperationResult = metaservice.OperationResult

// StatusResponse wraps a directory status listing.
type StatusResponse struct {
	Dir   string                  `json:"dir"`
	Files []models.FileStatusInfo `json:"files"`
}

// ReferencesResponse wraps both directions of a file's reference edges.
type ReferencesResponse struct {
	Path         string   `json:"path"`
	References   []string `json:"references"`
	ReferencedBy []string `json:"referencedBy"`
}

// InvalidReferencesResponse lists declared references with no file on disk.
type InvalidReferencesResponse struct {
	Path    string   `json:"path"`
	Invalid []string `json:"invalid"`
}

// GraphLink is an edge in the reference graph.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// GraphResponse wraps the reference graph snapshot.
type GraphResponse struct {
	Nodes []string    `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}
