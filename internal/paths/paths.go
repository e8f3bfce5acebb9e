// Package paths converts link paths between their on-disk forms and the
// canonical project-root-relative form. Canonical paths are forward-slash
// separated, case-preserving, and never escape the project root.
package paths

import (
	"path"
	"path/filepath"
	"strings"
)

// externalSchemes are link prefixes that are never resolved against the
// filesystem.
var externalSchemes = []string{
	"http://",
	"https://",
	"mailto:",
	"tel:",
	"ftp://",
	"file://",
}

// IsExternalLink reports whether link starts with a known external scheme.
func IsExternalLink(link string) bool {
	lower := strings.ToLower(link)
	for _, s := range externalSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// NormalizeSeparators rewrites backslash separators to forward slashes.
func NormalizeSeparators(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// IsSamePath reports whether two link paths refer to the same target after
// separator normalization. Comparison is case-sensitive.
func IsSamePath(a, b string) bool {
	return NormalizeSeparators(a) == NormalizeSeparators(b)
}

// JoinCanonical appends name to a canonical directory path. The project root
// itself is spelled ".".
func JoinCanonical(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

// Resolver converts between absolute paths and canonical project-relative
// paths for one project root.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for the given absolute project root.
func NewResolver(rootAbs string) *Resolver {
	return &Resolver{root: filepath.Clean(rootAbs)}
}

// Root returns the absolute project root.
func (r *Resolver) Root() string { return r.root }

// NormalizeToProjectPath converts any link form found in a file into the
// canonical project-root-relative form. currentFileAbs is the absolute path
// of the file the link appears in. ok is false for empty input, external
// links, and paths that escape the project root; callers treat that as
// "not applicable", not as an error.
//
// A link that is already canonical is returned unchanged (idempotent). A bare
// "." resolves to the containing directory's own project-relative path.
func (r *Resolver) NormalizeToProjectPath(link, currentFileAbs string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}
	if IsExternalLink(link) {
		return "", false
	}
	if isBareProjectPath(link) {
		return NormalizeSeparators(link), true
	}
	abs := filepath.Join(filepath.Dir(currentFileAbs), filepath.FromSlash(NormalizeSeparators(link)))
	return r.RelativeFromRoot(abs)
}

// isBareProjectPath reports whether link is already expressed relative to the
// project root: not absolute, no explicit "./" or "../" prefix, not "." or
// ".." alone.
func isBareProjectPath(link string) bool {
	slashed := NormalizeSeparators(link)
	if slashed == "." || slashed == ".." {
		return false
	}
	if strings.HasPrefix(slashed, "./") || strings.HasPrefix(slashed, "../") {
		return false
	}
	if path.IsAbs(slashed) || filepath.IsAbs(link) {
		return false
	}
	// Windows drive-letter forms.
	if len(link) >= 2 && link[1] == ':' {
		return false
	}
	return true
}

// Resolve returns the absolute path for a canonical project-relative path.
func (r *Resolver) Resolve(canonical string) string {
	return filepath.Join(r.root, filepath.FromSlash(canonical))
}

// RelativeFromRoot expresses an absolute path relative to the project root in
// canonical form. ok is false when the path lies outside the root. The root
// itself is returned as ".".
func (r *Resolver) RelativeFromRoot(abs string) (string, bool) {
	rel, err := filepath.Rel(r.root, filepath.Clean(abs))
	if err != nil {
		return "", false
	}
	slashed := filepath.ToSlash(rel)
	if slashed == ".." || strings.HasPrefix(slashed, "../") {
		return "", false
	}
	return slashed, true
}
