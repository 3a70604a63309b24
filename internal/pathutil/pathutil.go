// Package pathutil normalizes filesystem paths into the SourcePath form
// every cache key uses: forward slashes, relative to the site root's
// parent when inside the checkout, absolute when outside. This is the
// anchor of cross-checkout cache portability (spec §4.1).
package pathutil

import (
	"path/filepath"
	"strings"
)

// SourcePath is a logical path string, always forward-slashed.
type SourcePath string

// Normalize converts an OS path to SourcePath form relative to root. If
// path is not under root, the absolute, slash-normalized form is returned
// instead so the cache key is still stable (just not portable across
// machines).
func Normalize(root, path string) SourcePath {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return SourcePath(toSlash(absPath))
	}
	return SourcePath(toSlash(rel))
}

// Base returns the final slash-separated segment, e.g. "blog" for
// "content/blog".
func (p SourcePath) Base() string {
	parts := strings.Split(string(p), "/")
	return parts[len(parts)-1]
}

// ToSlash forces forward slashes regardless of host OS.
func ToSlash(path string) string {
	return toSlash(path)
}

func toSlash(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), "\\", "/")
}

// Join joins path segments and normalizes to forward slashes.
func Join(segments ...string) string {
	return toSlash(filepath.Join(segments...))
}

// IsTemp reports whether a filename looks like an atomic-write temp file
// residue (`<dest>.<pid>.<uuid>.tmp`, as internal/atomicfile names them)
// that discovery must skip.
func IsTemp(name string) bool {
	return strings.HasSuffix(name, ".tmp")
}

// IsDotfile reports whether the base name of path starts with a dot.
func IsDotfile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
