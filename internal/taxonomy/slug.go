package taxonomy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// NormalizeSlug lowercases, trims, and collapses a tag or term name into a
// URL-safe slug: spaces and underscores become hyphens, anything outside
// [a-z0-9-] is dropped. Mirrors kosh's `utils/tree.go` fallback-title
// idiom in reverse (that builds a display title from a path segment; this
// builds a path segment from a display name).
func NormalizeSlug(name string) string {
	var b strings.Builder
	lastHyphen := true // avoid a leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ', r == '_', r == '-':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// FallbackTitle turns a slug back into a display title when no explicit
// name was ever captured, the same title-casing kosh's BuildSiteTree uses
// for virtual section nodes.
func FallbackTitle(slug string) string {
	return titleCaser.String(strings.ReplaceAll(slug, "-", " "))
}
