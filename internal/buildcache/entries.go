// Package buildcache implements BuildCache (spec §3.8, §4.3): the
// persisted, multi-table build cache that backs incremental rebuilds.
// Every table is held in memory as a map keyed by SourcePath (or a derived
// key) and persisted through internal/cacheable's tolerant-load JSON
// contract, one file per table under the cache directory.
package buildcache

import (
	"fmt"

	"github.com/bengal-ssg/bengal/internal/cacheable"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// fingerprintEntry adapts hashing.Fingerprint to Cacheable.
type fingerprintEntry struct {
	Path pathutil.SourcePath
	hashing.Fingerprint
}

func (e fingerprintEntry) ToCacheDict() (map[string]interface{}, error) {
	return map[string]interface{}{
		"path":  string(e.Path),
		"hash":  string(e.Hash),
		"mtime": e.MTime,
		"size":  e.Size,
	}, nil
}

func (fingerprintEntry) FromCacheDict(d map[string]interface{}) (fingerprintEntry, error) {
	path, _ := d["path"].(string)
	if path == "" {
		return fingerprintEntry{}, fmt.Errorf("buildcache: fingerprint entry missing path")
	}
	hash, _ := d["hash"].(string)
	mtime, _ := d["mtime"].(float64)
	size, _ := d["size"].(float64)
	return fingerprintEntry{
		Path: pathutil.SourcePath(path),
		Fingerprint: hashing.Fingerprint{
			Hash:  hashing.ContentHash(hash),
			MTime: mtime,
			Size:  uint64(size),
		},
	}, nil
}

// ParsedContent is the §3.8 `parsed_content` table's value shape.
type ParsedContent struct {
	Path                pathutil.SourcePath
	HTML                string
	TOC                 string
	TOCItems            []TOCItem
	Links               []string
	MetadataHash        hashing.ContentHash
	NavMetadataHash     hashing.ContentHash
	CascadeMetadataHash hashing.ContentHash
	Template            string
	ParserVersion       int
	Timestamp           float64
	SizeBytes           int64

	// FileHash is the source file's content hash at the time this entry was
	// stored, checked against the live Fingerprint on lookup.
	FileHash hashing.ContentHash
	// DependencyHashes snapshots every transitive dependency's content hash
	// at store time (spec §4.3: "every transitive dependency's content hash
	// matches its cached fingerprint").
	DependencyHashes map[pathutil.SourcePath]hashing.ContentHash

	// HTMLBlobHash is the blobstore key the rendered body is stored under
	// (spec §11.1 of SPEC_FULL.md: the JSON cache never inlines large
	// bodies). Populated by BuildCache.SaveAll/Open around the plain
	// ToCacheDict/FromCacheDict round trip, since blob I/O is a side
	// effect the Cacheable contract itself stays free of.
	HTMLBlobHash string
}

// TOCItem mirrors content.TOCItem without importing the content
// package, avoiding a dependency cycle (content will eventually depend on
// buildcache for planner wiring, not the reverse).
type TOCItem struct {
	ID    string
	Title string
	Level int
}

func (e ParsedContent) ToCacheDict() (map[string]interface{}, error) {
	items := make([]interface{}, 0, len(e.TOCItems))
	for _, it := range e.TOCItems {
		items = append(items, map[string]interface{}{"id": it.ID, "title": it.Title, "level": it.Level})
	}
	deps := make(map[string]interface{}, len(e.DependencyHashes))
	for k, v := range e.DependencyHashes {
		deps[string(k)] = string(v)
	}
	return map[string]interface{}{
		"path":                  string(e.Path),
		"html_blob_hash":        e.HTMLBlobHash,
		"toc":                   e.TOC,
		"toc_items":             items,
		"links":                 toAnySlice(e.Links),
		"metadata_hash":         string(e.MetadataHash),
		"nav_metadata_hash":     string(e.NavMetadataHash),
		"cascade_metadata_hash": string(e.CascadeMetadataHash),
		"template":              e.Template,
		"parser_version":        e.ParserVersion,
		"timestamp":             e.Timestamp,
		"size_bytes":            e.SizeBytes,
		"file_hash":             string(e.FileHash),
		"dependency_hashes":     deps,
	}, nil
}

func (ParsedContent) FromCacheDict(d map[string]interface{}) (ParsedContent, error) {
	path, _ := d["path"].(string)
	if path == "" {
		return ParsedContent{}, fmt.Errorf("buildcache: parsed_content entry missing path")
	}
	e := ParsedContent{
		Path:         pathutil.SourcePath(path),
		HTMLBlobHash: str(d["html_blob_hash"]),
		TOC:          str(d["toc"]),
		Links:               cacheable.StringSlice(d["links"]),
		MetadataHash:        hashing.ContentHash(str(d["metadata_hash"])),
		NavMetadataHash:     hashing.ContentHash(str(d["nav_metadata_hash"])),
		CascadeMetadataHash: hashing.ContentHash(str(d["cascade_metadata_hash"])),
		Template:            str(d["template"]),
		ParserVersion:       intOf(d["parser_version"]),
		Timestamp:           floatOf(d["timestamp"]),
		SizeBytes:           int64(floatOf(d["size_bytes"])),
		FileHash:            hashing.ContentHash(str(d["file_hash"])),
	}
	if raw, ok := d["toc_items"].([]interface{}); ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			e.TOCItems = append(e.TOCItems, TOCItem{
				ID:    str(m["id"]),
				Title: str(m["title"]),
				Level: intOf(m["level"]),
			})
		}
	}
	if raw, ok := d["dependency_hashes"].(map[string]interface{}); ok {
		e.DependencyHashes = make(map[pathutil.SourcePath]hashing.ContentHash, len(raw))
		for k, v := range raw {
			e.DependencyHashes[pathutil.SourcePath(k)] = hashing.ContentHash(str(v))
		}
	}
	return e, nil
}

// RenderedOutput is the §3.8 `rendered_output` table's value shape.
type RenderedOutput struct {
	Path               pathutil.SourcePath
	HTML               string
	HTMLBlobHash       string
	Template           string
	MetadataHash       hashing.ContentHash
	Dependencies       []pathutil.SourcePath
	AssetManifestMTime float64
	Timestamp          float64
	SizeBytes          int64
}

func (e RenderedOutput) ToCacheDict() (map[string]interface{}, error) {
	deps := make([]interface{}, 0, len(e.Dependencies))
	for _, d := range e.Dependencies {
		deps = append(deps, string(d))
	}
	return map[string]interface{}{
		"path":                 string(e.Path),
		"html_blob_hash":       e.HTMLBlobHash,
		"template":             e.Template,
		"metadata_hash":        string(e.MetadataHash),
		"dependencies":         deps,
		"asset_manifest_mtime": e.AssetManifestMTime,
		"timestamp":            e.Timestamp,
		"size_bytes":           e.SizeBytes,
	}, nil
}

func (RenderedOutput) FromCacheDict(d map[string]interface{}) (RenderedOutput, error) {
	path, _ := d["path"].(string)
	if path == "" {
		return RenderedOutput{}, fmt.Errorf("buildcache: rendered_output entry missing path")
	}
	e := RenderedOutput{
		Path:               pathutil.SourcePath(path),
		HTMLBlobHash:       str(d["html_blob_hash"]),
		Template:           str(d["template"]),
		MetadataHash:       hashing.ContentHash(str(d["metadata_hash"])),
		AssetManifestMTime: floatOf(d["asset_manifest_mtime"]),
		Timestamp:          floatOf(d["timestamp"]),
		SizeBytes:          int64(floatOf(d["size_bytes"])),
	}
	for _, dep := range cacheable.StringSlice(d["dependencies"]) {
		e.Dependencies = append(e.Dependencies, pathutil.SourcePath(dep))
	}
	return e, nil
}

// dependencyEntry is the §3.8 `dependencies` table: a page's edge set.
type dependencyEntry struct {
	Path pathutil.SourcePath
	Deps map[string]struct{}
}

func (e dependencyEntry) ToCacheDict() (map[string]interface{}, error) {
	return map[string]interface{}{
		"path": string(e.Path),
		"deps": toAnySlice(cacheable.SetToCache(e.Deps)),
	}, nil
}

func (dependencyEntry) FromCacheDict(d map[string]interface{}) (dependencyEntry, error) {
	path, _ := d["path"].(string)
	if path == "" {
		return dependencyEntry{}, fmt.Errorf("buildcache: dependency entry missing path")
	}
	return dependencyEntry{
		Path: pathutil.SourcePath(path),
		Deps: cacheable.SetFromCache(cacheable.StringSlice(d["deps"])),
	}, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func floatOf(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func intOf(v interface{}) int {
	return int(floatOf(v))
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
