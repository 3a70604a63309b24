// Package postprocess implements the C11 emitters invoked after rendering
// (spec §4.11): sitemap/RSS XML, redirect pages from aliases, per-page
// JSON/text dumps, and search index assembly. Each emitter satisfies
// orchestrator.Postprocessor; internals are deliberately simple since the
// spec only constrains invocation, write order, atomicity, and
// per-version scoping, not output formatting.
package postprocess

import (
	"sort"

	"github.com/bengal-ssg/bengal/internal/snapshot"
)

// versionOf reads the "lang" metadata key as a stand-in for version id,
// the same conflation internal/snapshot documents for Menus (spec §3.7
// "nav trees keyed by version_id"); unversioned sites get "".
func versionOf(p *snapshot.PageSnapshot) string {
	if lang, ok := p.Metadata["lang"].(string); ok {
		return lang
	}
	return ""
}

func groupByVersion(pages []*snapshot.PageSnapshot) map[string][]*snapshot.PageSnapshot {
	out := map[string][]*snapshot.PageSnapshot{}
	for _, p := range pages {
		v := versionOf(p)
		out[v] = append(out[v], p)
	}
	return out
}

// versionDir is the output-relative directory a version's artifacts are
// scoped under (spec §4.11 "postprocess artifacts are scoped per version
// to avoid cross-version bleed"); unversioned sites get the output root.
func versionDir(version string) string {
	if version == "" {
		return "."
	}
	return version
}

func versionPrefix(version string) string {
	if version == "" {
		return ""
	}
	return "/" + version
}

func sortedByOutputPath(pages []*snapshot.PageSnapshot) []*snapshot.PageSnapshot {
	out := append([]*snapshot.PageSnapshot(nil), pages...)
	sort.Slice(out, func(i, j int) bool { return out[i].OutputPath < out[j].OutputPath })
	return out
}
