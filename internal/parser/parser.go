// Package parser extracts titles and hyperlinks from Markdown content files.
// Hyperlink targets feed reference synchronization; titles and bodies feed
// the search index.
package parser

import (
	"regexp"
	"strings"
)

var (
	// [text](target) and ![alt](target); the optional leading ! marks images.
	linkRe = regexp.MustCompile(`(!?)\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	tagRe  = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing a content file.
type Result struct {
	Title string
	Body  string
	Links []string
	Tags  []string
}

// Parse extracts the title, body, hyperlink targets, and inline tags from raw
// Markdown bytes.
func Parse(data []byte) *Result {
	body := string(data)
	return &Result{
		Title: deriveTitle(body),
		Body:  body,
		Links: ExtractLinks(body),
		Tags:  extractTags(body),
	}
}

// ExtractLinks returns deduplicated Markdown hyperlink targets in order of
// first appearance. Image embeds and in-page anchors are skipped; external
// targets are kept for the caller to filter.
func ExtractLinks(body string) []string {
	matches := linkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if m[1] == "!" {
			continue
		}
		target := strings.TrimSpace(m[2])
		if target == "" || strings.HasPrefix(target, "#") {
			continue
		}
		// Drop an in-page fragment from a file target.
		if i := strings.Index(target, "#"); i >= 0 {
			target = target[:i]
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects inline #tags from the body.
func extractTags(body string) []string {
	matches := tagRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		t := m[1]
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// deriveTitle returns the first H1 heading, or empty string.
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
