// Package refgraph maintains the project-wide bidirectional reference index.
//
// The graph is rebuilt from directory metadata records on Initialize and
// patched incrementally afterwards. It is owned by the active project session
// and never persisted; the symmetry invariant (B in references(A) iff A in
// referencedBy(B)) holds after every mutation completes.
package refgraph

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cedretaber/dialogoi-editor-sub004/internal/apperr"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/models"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
)

// node is the pair of reference sets tracked for one canonical path.
type node struct {
	references   map[string]struct{}
	referencedBy map[string]struct{}
}

// References is the query result for one path.
type References struct {
	References   []string `json:"references"`
	ReferencedBy []string `json:"referencedBy"`
}

// Edge is one directed reference in a Snapshot.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the in-memory bidirectional reference index for one open project.
// HTTP handlers and the watcher share it, so access is mutex-guarded.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node

	store    storage.Provider
	meta     *metadata.Accessor
	resolver *paths.Resolver
	logger   *slog.Logger
}

// New creates an empty Graph for one project session.
func New(store storage.Provider, meta *metadata.Accessor, resolver *paths.Resolver, logger *slog.Logger) *Graph {
	return &Graph{
		nodes:    make(map[string]*node),
		store:    store,
		meta:     meta,
		resolver: resolver,
		logger:   logger,
	}
}

// Initialize clears the graph and rebuilds it by scanning every directory
// record under the project root. A record that fails to load aborts only its
// own subtree. Safe to call repeatedly; ctx is checked between directories.
func (g *Graph) Initialize(ctx context.Context) error {
	g.mu.Lock()
	g.nodes = make(map[string]*node)
	g.mu.Unlock()
	return g.scanDir(ctx, g.resolver.Root())
}

func (g *Graph) scanDir(ctx context.Context, dirAbs string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, _, err := g.meta.Load(dirAbs)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			g.logger.Warn("refgraph: skipping subtree",
				slog.String("dir", dirAbs),
				slog.String("error", err.Error()))
		}
		return nil
	}
	dirRel, ok := g.resolver.RelativeFromRoot(dirAbs)
	if !ok {
		return nil
	}
	for i := range rec.Files {
		e := &rec.Files[i]
		switch e.Kind {
		case models.KindSubdirectory:
			if err := g.scanDir(ctx, filepath.Join(dirAbs, e.Name)); err != nil {
				return err
			}
		case models.KindContent:
			if len(e.References) > 0 {
				g.AddFileReferences(paths.JoinCanonical(dirRel, e.Name), e.References)
			}
		case models.KindSetting:
			// Settings carry no references.
		}
	}
	return nil
}

// AddFileReferences records source → target edges, creating nodes on demand
// for both ends. Targets already present are no-ops.
func (g *Graph) AddFileReferences(source string, targets []string) {
	source = normalizeKey(source)
	if source == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range targets {
		t = normalizeKey(t)
		if t == "" {
			continue
		}
		g.node(source).references[t] = struct{}{}
		g.node(t).referencedBy[source] = struct{}{}
	}
}

// RemoveFileReferences removes every outgoing edge of source. The source node
// itself survives while other files still reference it.
func (g *Graph) RemoveFileReferences(source string) {
	source = normalizeKey(source)
	g.mu.Lock()
	defer g.mu.Unlock()
	src, ok := g.nodes[source]
	if !ok {
		return
	}
	for t := range src.references {
		if tgt, ok := g.nodes[t]; ok {
			delete(tgt.referencedBy, source)
			g.dropIfEmpty(t, tgt)
		}
	}
	src.references = make(map[string]struct{})
	g.dropIfEmpty(source, src)
}

// UpdateFileReferences replaces source's outgoing edges with targets.
// Removal happens before adding; the reverse order would double-count or
// lose back-references from other sources mid-update.
func (g *Graph) UpdateFileReferences(source string, targets []string) {
	g.RemoveFileReferences(source)
	g.AddFileReferences(source, targets)
}

// GetReferences returns the outgoing and incoming reference sets for path,
// sorted. Unknown paths yield empty sets; no node is created by a read.
func (g *Graph) GetReferences(p string) References {
	key := normalizeKey(p)
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[key]
	if !ok {
		return References{References: []string{}, ReferencedBy: []string{}}
	}
	return References{
		References:   sortedKeys(n.references),
		ReferencedBy: sortedKeys(n.referencedBy),
	}
}

// GetInvalidReferences returns the outgoing references of path whose target
// does not currently exist on disk.
func (g *Graph) GetInvalidReferences(p string) []string {
	out := []string{}
	for _, t := range g.GetReferences(p).References {
		if !g.store.Exists(t) {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot returns every node key and every edge, sorted for stable output.
func (g *Graph) Snapshot() ([]string, []Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]string, 0, len(g.nodes))
	var edges []Edge
	for key, n := range g.nodes {
		nodes = append(nodes, key)
		for t := range n.references {
			edges = append(edges, Edge{Source: key, Target: t})
		}
	}
	sort.Strings(nodes)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return nodes, edges
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// node returns the tracked node for key, creating it if needed. Callers hold mu.
func (g *Graph) node(key string) *node {
	n, ok := g.nodes[key]
	if !ok {
		n = &node{
			references:   make(map[string]struct{}),
			referencedBy: make(map[string]struct{}),
		}
		g.nodes[key] = n
	}
	return n
}

// dropIfEmpty removes a node once both its sets are empty; a node with only
// incoming references persists. Callers hold mu.
func (g *Graph) dropIfEmpty(key string, n *node) {
	if len(n.references) == 0 && len(n.referencedBy) == 0 {
		delete(g.nodes, key)
	}
}

func normalizeKey(p string) string {
	return strings.TrimSpace(paths.NormalizeSeparators(p))
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
