package buildcache

import (
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// GetParsedContent returns the cached ParsedContent for path iff every
// validity condition in spec §4.3 holds: the file is unchanged by content
// hash, the metadata/template/parser-version all still match, and every
// transitive dependency's content hash still matches its cached
// fingerprint. Any mismatch is a cache miss (ok == false); callers must
// reparse.
func (bc *BuildCache) GetParsedContent(path pathutil.SourcePath, currentFileHash hashing.ContentHash, metadataHash hashing.ContentHash, template string, parserVersion int) (ParsedContent, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	entry, ok := bc.parsedContent[path]
	if !ok {
		return ParsedContent{}, false
	}
	if entry.FileHash != currentFileHash {
		return ParsedContent{}, false
	}
	if entry.MetadataHash != metadataHash {
		return ParsedContent{}, false
	}
	if entry.Template != template || entry.ParserVersion != parserVersion {
		return ParsedContent{}, false
	}
	for dep, wantHash := range entry.DependencyHashes {
		fp, ok := bc.fingerprints[dep]
		if !ok || fp.Hash != wantHash {
			return ParsedContent{}, false
		}
	}
	return entry, true
}

// PreviousMetadataHashes returns the metadata and nav-metadata hashes
// recorded the last time path was parsed, with no validity gating — the
// planner's D3 change-detection needs the raw prior values even when the
// file itself has since changed (spec §4.8 D3: "did metadata change since
// last build").
func (bc *BuildCache) PreviousMetadataHashes(path pathutil.SourcePath) (metadataHash, navMetadataHash hashing.ContentHash, ok bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	entry, ok := bc.parsedContent[path]
	if !ok {
		return "", "", false
	}
	return entry.MetadataHash, entry.NavMetadataHash, true
}

// StoreParsedContent persists a freshly-parsed page, capturing the three
// metadata hashes (full, nav-only, cascade-only) spec §4.3 requires for
// fine-grained downstream invalidation.
func (bc *BuildCache) StoreParsedContent(entry ParsedContent) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.parsedContent[entry.Path] = entry
}

// GetRenderedOutput returns the cached RenderedOutput for path iff it is
// unchanged by metadata hash, its dependency set's hashes all still match,
// and the asset manifest hasn't been rewritten since (spec §4.3: a
// rewritten asset manifest invalidates every rendered page, since
// fingerprinted asset URLs embedded in the HTML would otherwise go stale).
func (bc *BuildCache) GetRenderedOutput(path pathutil.SourcePath, metadataHash hashing.ContentHash, assetManifestMTime float64) (RenderedOutput, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	entry, ok := bc.renderedOutput[path]
	if !ok {
		return RenderedOutput{}, false
	}
	if entry.MetadataHash != metadataHash {
		return RenderedOutput{}, false
	}
	if entry.AssetManifestMTime != assetManifestMTime {
		return RenderedOutput{}, false
	}
	for _, dep := range entry.Dependencies {
		if _, ok := bc.fingerprints[dep]; !ok {
			return RenderedOutput{}, false
		}
	}
	return entry, true
}

// StoreRenderedOutput persists a freshly-rendered page.
func (bc *BuildCache) StoreRenderedOutput(entry RenderedOutput) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.renderedOutput[entry.Path] = entry
}

// SetDependencies records path's edge set — every template, partial, and
// data file its render consumed (spec §3.9).
func (bc *BuildCache) SetDependencies(path pathutil.SourcePath, deps []pathutil.SourcePath) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	set := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		set[string(d)] = struct{}{}
	}
	bc.dependencies[path] = set
}

// Dependencies returns path's recorded edge set.
func (bc *BuildCache) Dependencies(path pathutil.SourcePath) []pathutil.SourcePath {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	set, ok := bc.dependencies[path]
	if !ok {
		return nil
	}
	out := make([]pathutil.SourcePath, 0, len(set))
	for d := range set {
		out = append(out, pathutil.SourcePath(d))
	}
	return out
}

// ReverseDependencies returns every SourcePath whose recorded edge set
// contains dep — the planner's reverse-dependency closure (spec §3.9: "if
// this dep changed, which pages are dirty?").
func (bc *BuildCache) ReverseDependencies(dep pathutil.SourcePath) []pathutil.SourcePath {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	var out []pathutil.SourcePath
	for path, deps := range bc.dependencies {
		if _, ok := deps[string(dep)]; ok {
			out = append(out, path)
		}
	}
	return out
}

// KnownContentPaths returns every source path the cache has a parsed-content
// entry for — the planner's "previously known content" set, used to detect
// deletions (spec §4.8 D1: a page the last build parsed but the current
// discovery pass never saw again).
func (bc *BuildCache) KnownContentPaths() []pathutil.SourcePath {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]pathutil.SourcePath, 0, len(bc.parsedContent))
	for p := range bc.parsedContent {
		out = append(out, p)
	}
	return out
}
