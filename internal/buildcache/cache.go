package buildcache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/blobstore"
	"github.com/bengal-ssg/bengal/internal/cacheable"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

const (
	parsedHTMLCategory   = "parsed-html"
	renderedHTMLCategory = "rendered-html"
)

const (
	cacheVersion = 1

	fingerprintsFile   = "fingerprints.json"
	parsedContentFile  = "parsed_content.json"
	renderedOutputFile = "rendered_output.json"
	dependenciesFile   = "dependencies.json"
	autodocDepsFile    = "autodoc_dependencies.json"
	autodocMetaFile    = "autodoc_source_metadata.json"
	taxonomyFile       = "taxonomy_index.json"
	membersFile        = "generated_page_members.json"
	metaFile           = "meta.json"
)

// BuildCache composes the sub-cache tables of spec §3.8 behind one API,
// matching kosh's Manager shape (a single struct guarding every table with
// one mutex, opened once per build). Unlike kosh's bbolt-backed Manager,
// each table here is a plain in-memory map persisted to its own
// tolerant-load JSON file (spec §7's on-disk format is explicit about
// that), with large values referred out to internal/blobstore by hash
// rather than inlined.
type BuildCache struct {
	mu     sync.RWMutex
	fs     afero.Fs
	dir    string
	logger *slog.Logger
	blobs  *blobstore.Store

	fingerprints   map[pathutil.SourcePath]hashing.Fingerprint
	parsedContent  map[pathutil.SourcePath]ParsedContent
	renderedOutput map[pathutil.SourcePath]RenderedOutput
	dependencies   map[pathutil.SourcePath]map[string]struct{}
	autodocDeps    map[pathutil.SourcePath]map[string]struct{}
	autodocMeta    map[pathutil.SourcePath]AutodocSourceMeta
	taxonomyIndex  map[string]taxonomyEntry
	members        map[string]generatedMembersEntry

	configHash         hashing.ContentHash
	assetManifestMTime float64
}

// Open loads every sub-cache table from dir, tolerating a missing or
// partially corrupt cache directory (spec §3.8, §4.2): a brand new
// directory produces an empty-but-usable BuildCache, never an error.
func Open(fs afero.Fs, dir string, logger *slog.Logger) (*BuildCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	blobs, err := blobstore.New(pathutil.Join(dir, "blobs"))
	if err != nil {
		return nil, fmt.Errorf("buildcache: open blob store: %w", err)
	}

	bc := &BuildCache{
		fs:             fs,
		dir:            dir,
		logger:         logger,
		blobs:          blobs,
		fingerprints:   map[pathutil.SourcePath]hashing.Fingerprint{},
		parsedContent:  map[pathutil.SourcePath]ParsedContent{},
		renderedOutput: map[pathutil.SourcePath]RenderedOutput{},
		dependencies:   map[pathutil.SourcePath]map[string]struct{}{},
		autodocDeps:    map[pathutil.SourcePath]map[string]struct{}{},
		autodocMeta:    map[pathutil.SourcePath]AutodocSourceMeta{},
		taxonomyIndex:  map[string]taxonomyEntry{},
		members:        map[string]generatedMembersEntry{},
	}

	for _, fp := range cacheable.Load(fs, bc.path(fingerprintsFile), cacheVersion, fingerprintEntry{}, logger) {
		bc.fingerprints[fp.Path] = fp.Fingerprint
	}
	for _, pc := range cacheable.Load(fs, bc.path(parsedContentFile), cacheVersion, ParsedContent{}, logger) {
		if pc.HTMLBlobHash != "" {
			if html, err := bc.blobs.Get(parsedHTMLCategory, pc.HTMLBlobHash); err == nil {
				pc.HTML = string(html)
			} else {
				logger.Warn("parsed-content blob missing, treating entry as absent", "path", string(pc.Path), "error", err)
				continue
			}
		}
		bc.parsedContent[pc.Path] = pc
	}
	for _, ro := range cacheable.Load(fs, bc.path(renderedOutputFile), cacheVersion, RenderedOutput{}, logger) {
		if ro.HTMLBlobHash != "" {
			if html, err := bc.blobs.Get(renderedHTMLCategory, ro.HTMLBlobHash); err == nil {
				ro.HTML = string(html)
			} else {
				logger.Warn("rendered-output blob missing, treating entry as absent", "path", string(ro.Path), "error", err)
				continue
			}
		}
		bc.renderedOutput[ro.Path] = ro
	}
	for _, dep := range cacheable.Load(fs, bc.path(dependenciesFile), cacheVersion, dependencyEntry{}, logger) {
		bc.dependencies[dep.Path] = dep.Deps
	}
	for _, ad := range cacheable.Load(fs, bc.path(autodocDepsFile), cacheVersion, autodocDepEntry{}, logger) {
		bc.autodocDeps[ad.Source] = ad.Generated
	}
	for _, am := range cacheable.Load(fs, bc.path(autodocMetaFile), cacheVersion, AutodocSourceMeta{}, logger) {
		bc.autodocMeta[am.Source] = am
	}
	for _, tx := range cacheable.Load(fs, bc.path(taxonomyFile), cacheVersion, taxonomyEntry{}, logger) {
		bc.taxonomyIndex[tx.Slug] = tx
	}
	for _, mb := range cacheable.Load(fs, bc.path(membersFile), cacheVersion, generatedMembersEntry{}, logger) {
		bc.members[memberKey(mb.PageType, mb.PageID)] = mb
	}

	meta := loadMeta(fs, bc.path(metaFile), logger)
	bc.configHash = meta.ConfigHash
	bc.assetManifestMTime = meta.AssetManifestMTime

	return bc, nil
}

func (bc *BuildCache) path(name string) string {
	return pathutil.Join(bc.dir, name)
}

// SaveAll persists every sub-cache table. Called once at the end of a
// build; a failure on one table is returned immediately, so tables saved
// before it stay written and the tables after it are not written (unlike
// loading, saving has no tolerant mode that skips a bad table and goes on).
func (bc *BuildCache) SaveAll() error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	fingerprints := make([]fingerprintEntry, 0, len(bc.fingerprints))
	for p, fp := range bc.fingerprints {
		fingerprints = append(fingerprints, fingerprintEntry{Path: p, Fingerprint: fp})
	}
	if err := cacheable.Save(bc.fs, bc.path(fingerprintsFile), cacheVersion, fingerprints); err != nil {
		return err
	}

	parsed := make([]ParsedContent, 0, len(bc.parsedContent))
	for _, pc := range bc.parsedContent {
		if pc.HTML != "" {
			hash, err := bc.blobs.Put(parsedHTMLCategory, []byte(pc.HTML))
			if err != nil {
				return fmt.Errorf("buildcache: store parsed-content blob for %s: %w", pc.Path, err)
			}
			pc.HTMLBlobHash = hash
		}
		parsed = append(parsed, pc)
	}
	if err := cacheable.Save(bc.fs, bc.path(parsedContentFile), cacheVersion, parsed); err != nil {
		return err
	}

	rendered := make([]RenderedOutput, 0, len(bc.renderedOutput))
	for _, ro := range bc.renderedOutput {
		if ro.HTML != "" {
			hash, err := bc.blobs.Put(renderedHTMLCategory, []byte(ro.HTML))
			if err != nil {
				return fmt.Errorf("buildcache: store rendered-output blob for %s: %w", ro.Path, err)
			}
			ro.HTMLBlobHash = hash
		}
		rendered = append(rendered, ro)
	}
	if err := cacheable.Save(bc.fs, bc.path(renderedOutputFile), cacheVersion, rendered); err != nil {
		return err
	}

	deps := make([]dependencyEntry, 0, len(bc.dependencies))
	for p, d := range bc.dependencies {
		deps = append(deps, dependencyEntry{Path: p, Deps: d})
	}
	if err := cacheable.Save(bc.fs, bc.path(dependenciesFile), cacheVersion, deps); err != nil {
		return err
	}

	autodocDeps := make([]autodocDepEntry, 0, len(bc.autodocDeps))
	for p, g := range bc.autodocDeps {
		autodocDeps = append(autodocDeps, autodocDepEntry{Source: p, Generated: g})
	}
	if err := cacheable.Save(bc.fs, bc.path(autodocDepsFile), cacheVersion, autodocDeps); err != nil {
		return err
	}

	autodocMeta := make([]AutodocSourceMeta, 0, len(bc.autodocMeta))
	for _, m := range bc.autodocMeta {
		autodocMeta = append(autodocMeta, m)
	}
	if err := cacheable.Save(bc.fs, bc.path(autodocMetaFile), cacheVersion, autodocMeta); err != nil {
		return err
	}

	taxonomy := make([]taxonomyEntry, 0, len(bc.taxonomyIndex))
	for _, t := range bc.taxonomyIndex {
		taxonomy = append(taxonomy, t)
	}
	if err := cacheable.Save(bc.fs, bc.path(taxonomyFile), cacheVersion, taxonomy); err != nil {
		return err
	}

	members := make([]generatedMembersEntry, 0, len(bc.members))
	for _, m := range bc.members {
		members = append(members, m)
	}
	if err := cacheable.Save(bc.fs, bc.path(membersFile), cacheVersion, members); err != nil {
		return err
	}

	return saveMeta(bc.fs, bc.path(metaFile), cacheMeta{
		ConfigHash:         bc.configHash,
		AssetManifestMTime: bc.assetManifestMTime,
	})
}

// SetConfigHash records the merged config's ContentHash (spec §3.8
// `config_hash`).
func (bc *BuildCache) SetConfigHash(h hashing.ContentHash) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.configHash = h
}

// ConfigHash returns the last-persisted config ContentHash.
func (bc *BuildCache) ConfigHash() hashing.ContentHash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.configHash
}

// SetAssetManifestMTime records the asset manifest's mtime (spec §3.8
// `asset_manifest_mtime`); a change here invalidates every rendered-output
// entry on next lookup (spec §4.3).
func (bc *BuildCache) SetAssetManifestMTime(mtime float64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.assetManifestMTime = mtime
}

func (bc *BuildCache) AssetManifestMTime() float64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.assetManifestMTime
}

type cacheMeta struct {
	ConfigHash         hashing.ContentHash
	AssetManifestMTime float64
}

func (m cacheMeta) ToCacheDict() (map[string]interface{}, error) {
	return map[string]interface{}{
		"config_hash":          string(m.ConfigHash),
		"asset_manifest_mtime": m.AssetManifestMTime,
	}, nil
}

func (cacheMeta) FromCacheDict(d map[string]interface{}) (cacheMeta, error) {
	return cacheMeta{
		ConfigHash:         hashing.ContentHash(str(d["config_hash"])),
		AssetManifestMTime: floatOf(d["asset_manifest_mtime"]),
	}, nil
}

func loadMeta(fs afero.Fs, path string, logger *slog.Logger) cacheMeta {
	entries := cacheable.Load(fs, path, cacheVersion, cacheMeta{}, logger)
	if len(entries) == 0 {
		return cacheMeta{}
	}
	return entries[0]
}

func saveMeta(fs afero.Fs, path string, m cacheMeta) error {
	return cacheable.Save(fs, path, cacheVersion, []cacheMeta{m})
}
