// Package planner implements the incremental planner (spec §4.8): the
// three decisions an incremental build makes before any parsing or
// rendering starts — what changed, what minimum page set to rebuild, and
// which derived structures to recompute.
package planner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/bengal-ssg/bengal/internal/buildcache"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/taxonomy"
)

// FileKind classifies a tracked source for D1 (spec §4.8: "content,
// templates, data, config, assets").
type FileKind int

const (
	KindContent FileKind = iota
	KindTemplate
	KindData
	KindConfig
	KindAsset
)

// TrackedFile is one source the planner compares against the cache's
// fingerprint table. Callers build this list from a filesystem walk; the
// planner itself never touches a filesystem.
type TrackedFile struct {
	Path        pathutil.SourcePath
	Kind        FileKind
	Fingerprint hashing.Fingerprint
}

// ChangeSummary is D1's output (spec §4.10 step 3: "compute the change
// summary"). Every slice is sorted by path for deterministic logging and
// testing.
type ChangeSummary struct {
	AddedContent     []pathutil.SourcePath
	ChangedContent   []pathutil.SourcePath
	TouchedContent   []pathutil.SourcePath
	DeletedContent   []pathutil.SourcePath
	ChangedTemplates []pathutil.SourcePath
	ChangedData      []pathutil.SourcePath
	ChangedAssets    []pathutil.SourcePath
	ConfigChanged    bool
}

// Plan is the complete D1+D2+D3 output handed to the orchestrator (spec
// §4.10 step 3).
type Plan struct {
	ChangeSummary

	// FullRebuild is set when config, theme, or parser version changed
	// (spec §4.8 D2): every page rebuilds, so RebuildPages is left nil.
	FullRebuild bool

	// RebuildPages is D2's minimum rebuild set. Nil when FullRebuild is
	// true; callers should treat a true FullRebuild as "rebuild
	// everything" rather than inspecting this map.
	RebuildPages map[pathutil.SourcePath]bool

	// InvalidateRenderedOutput mirrors spec §4.8 D2's asset-manifest rule:
	// any asset change invalidates every rendered-output cache entry, even
	// though RebuildPages still only names pages whose own dependencies
	// changed or that embed a fingerprinted asset URL.
	InvalidateRenderedOutput bool

	RecomputeTaxonomy bool
	RecomputeMenus    bool
	RecomputeRelated  bool
}

// Planner owns the three incremental decisions (spec §4.8). It holds no
// state of its own beyond what it needs to consult the cache; a Planner
// value is cheap to construct per build.
type Planner struct {
	Cache  *buildcache.BuildCache
	Strict buildcache.StrictMode
	Logger *slog.Logger
}

// DetectChanges implements D1: for every tracked source, compare its
// current fingerprint against the cache and classify by kind. Content
// deletions are detected by diffing the cache's previously-parsed content
// paths against the paths seen in files (spec §4.8 D1: "record changed,
// deleted, and added sources").
func (p *Planner) DetectChanges(files []TrackedFile) ChangeSummary {
	var summary ChangeSummary
	seenContent := map[pathutil.SourcePath]bool{}

	for _, f := range files {
		status := p.Cache.IsChanged(f.Path, f.Fingerprint)
		switch f.Kind {
		case KindContent:
			seenContent[f.Path] = true
			switch status {
			case buildcache.NotCached:
				summary.AddedContent = append(summary.AddedContent, f.Path)
			case buildcache.Changed:
				summary.ChangedContent = append(summary.ChangedContent, f.Path)
			case buildcache.Touched:
				summary.TouchedContent = append(summary.TouchedContent, f.Path)
			}
		case KindTemplate:
			if status == buildcache.Changed || status == buildcache.NotCached {
				summary.ChangedTemplates = append(summary.ChangedTemplates, f.Path)
			}
		case KindData:
			if status == buildcache.Changed || status == buildcache.NotCached {
				summary.ChangedData = append(summary.ChangedData, f.Path)
			}
		case KindAsset:
			if status == buildcache.Changed || status == buildcache.NotCached {
				summary.ChangedAssets = append(summary.ChangedAssets, f.Path)
			}
		case KindConfig:
			if status != buildcache.Unchanged {
				summary.ConfigChanged = true
			}
		}
	}

	for _, known := range p.Cache.KnownContentPaths() {
		if !seenContent[known] {
			summary.DeletedContent = append(summary.DeletedContent, known)
		}
	}

	sortPaths(summary.AddedContent)
	sortPaths(summary.ChangedContent)
	sortPaths(summary.TouchedContent)
	sortPaths(summary.DeletedContent)
	sortPaths(summary.ChangedTemplates)
	sortPaths(summary.ChangedData)
	sortPaths(summary.ChangedAssets)

	return summary
}

func sortPaths(paths []pathutil.SourcePath) {
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
}

// BuildRebuildSet implements D2 (spec §4.8): seed with directly changed
// and added content pages, then expand by reverse-dependency closure over
// changed templates, data files, and assets. A config or theme change
// short-circuits to a full rebuild.
func (p *Planner) BuildRebuildSet(summary ChangeSummary, themeChanged bool, parserVersionChanged bool) (rebuild map[pathutil.SourcePath]bool, fullRebuild bool) {
	if summary.ConfigChanged || themeChanged || parserVersionChanged {
		return nil, true
	}

	rebuild = map[pathutil.SourcePath]bool{}
	for _, c := range summary.ChangedContent {
		rebuild[c] = true
	}
	for _, c := range summary.AddedContent {
		rebuild[c] = true
	}

	for _, tmpl := range summary.ChangedTemplates {
		for _, page := range p.Cache.ReverseDependencies(tmpl) {
			rebuild[page] = true
		}
	}
	for _, data := range summary.ChangedData {
		for _, page := range p.Cache.ReverseDependencies(data) {
			rebuild[page] = true
		}
	}
	for _, asset := range summary.ChangedAssets {
		// Pages whose rendered HTML embedded one of this asset's
		// fingerprinted URLs recorded it as a dependency the same way a
		// template or data file is recorded (spec §4.8 D2).
		for _, page := range p.Cache.ReverseDependencies(asset) {
			rebuild[page] = true
		}
	}

	return rebuild, false
}

// DerivedPlan is D3's output: which derived structures need recomputing.
type DerivedPlan struct {
	RecomputeTaxonomy bool
	RecomputeMenus    bool
	RecomputeRelated  bool
}

// PlanDerivedRecomputation implements D3 (spec §4.8). metadataChangedPages
// are pages whose non-tag metadata (title, date, summary, ...) changed —
// these still need their taxonomy listings regenerated even though their
// tag membership didn't move (spec §4.6's cascade-to-tags case).
// navAffectingChanged reports whether any rebuilding page carries a
// NAV_AFFECTING_KEYS key (spec §6.5); the caller computes this with
// taxonomy.HasNavAffectingChange since only it knows each page's metadata
// diff.
func (p *Planner) PlanDerivedRecomputation(
	summary ChangeSummary,
	rebuildSet map[pathutil.SourcePath]bool,
	fullRebuild bool,
	metadataChangedPages []pathutil.SourcePath,
	navAffectingChanged bool,
	totalPageCount int,
) DerivedPlan {
	taxonomyTouched := fullRebuild || len(rebuildSet) > 0 || len(metadataChangedPages) > 0 || len(summary.DeletedContent) > 0

	return DerivedPlan{
		RecomputeTaxonomy: taxonomyTouched,
		RecomputeMenus:    fullRebuild || summary.ConfigChanged || navAffectingChanged,
		RecomputeRelated: fullRebuild ||
			((len(rebuildSet) > 0 || len(summary.DeletedContent) > 0) && totalPageCount <= taxonomy.RelatedPostsSkipThreshold),
	}
}

// CheckStrict enforces the strict-incremental three-state switch's
// "missing dependency fingerprints" concern (spec §4.8): a page about to
// be skipped as unchanged must have every dependency's fingerprint on
// record, or the incremental decision can't be trusted. The sibling
// "missing autodoc metadata" concern is already enforced inside
// buildcache.GetStaleAutodocSources; this covers the other named case.
func (p *Planner) CheckStrict(rebuildSet map[pathutil.SourcePath]bool) error {
	if p.Strict == buildcache.StrictOff {
		return nil
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for page := range rebuildSet {
		for _, dep := range p.Cache.Dependencies(page) {
			if _, ok := p.Cache.Fingerprint(dep); ok {
				continue
			}
			if p.Strict == buildcache.StrictError {
				return fmt.Errorf("planner: page %s depends on %s, which has no cached fingerprint", page, dep)
			}
			logger.Warn("dependency has no cached fingerprint, incremental decision may be unreliable",
				"page", string(page), "dependency", string(dep))
		}
	}
	return nil
}

// Plan runs D1, D2, and D3 in sequence and returns the complete plan
// (spec §4.10 step 3).
func (p *Planner) Plan(
	files []TrackedFile,
	themeChanged bool,
	parserVersionChanged bool,
	metadataChangedPages []pathutil.SourcePath,
	navAffectingChanged bool,
	totalPageCount int,
) (*Plan, error) {
	summary := p.DetectChanges(files)
	rebuildSet, fullRebuild := p.BuildRebuildSet(summary, themeChanged, parserVersionChanged)

	if err := p.CheckStrict(rebuildSet); err != nil {
		return nil, err
	}

	derived := p.PlanDerivedRecomputation(summary, rebuildSet, fullRebuild, metadataChangedPages, navAffectingChanged, totalPageCount)

	return &Plan{
		ChangeSummary:            summary,
		FullRebuild:              fullRebuild,
		RebuildPages:             rebuildSet,
		InvalidateRenderedOutput: len(summary.ChangedAssets) > 0,
		RecomputeTaxonomy:        derived.RecomputeTaxonomy,
		RecomputeMenus:           derived.RecomputeMenus,
		RecomputeRelated:         derived.RecomputeRelated,
	}, nil
}
