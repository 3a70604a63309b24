// Package orchestrator owns the build phase sequence (spec §4.10): each
// phase opens a timed scope that contributes to build stats, the way
// kosh's builder/run/build.go walks setup, content, global pages, and sync
// phases in a fixed order.
package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/atomicfile"
	"github.com/bengal-ssg/bengal/internal/buildcache"
	"github.com/bengal-ssg/bengal/internal/cascade"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/metrics"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/planner"
	"github.com/bengal-ssg/bengal/internal/scheduler"
	"github.com/bengal-ssg/bengal/internal/snapshot"
	"github.com/bengal-ssg/bengal/internal/taxonomy"
)

// Parser is the injected markdown collaborator (spec §6.3): its internals
// are opaque to the orchestrator, which only needs html/toc/links back and
// a version string to key the parsed-content cache on.
type Parser interface {
	Parse(sourceMarkdown string) (html string, toc string, tocItems []content.TOCItem, links []string, err error)
	ParserVersion() string
}

// TemplateEngine is the injected template collaborator (spec §6.4).
type TemplateEngine interface {
	RenderTemplate(name string, context map[string]interface{}) (string, error)
	TemplateExists(name string) bool
	PrecompileTemplates(names []string) (int, error)
	PartialsOf(name string) []string
}

// AssetProcessor processes and copies static assets, returning the asset
// manifest's mtime as a float64 unix timestamp (spec §6.2).
type AssetProcessor interface {
	Process(ctx context.Context, assets []content.Asset) (manifestMTime float64, err error)
}

// Postprocessor is one emitter invoked after rendering (spec §4.11): RSS,
// sitemap, redirects, JSON/text dumps, search index. Each must write
// atomically and in deterministic order; the orchestrator runs them in the
// slice order given at construction.
type Postprocessor interface {
	Name() string
	Emit(ctx context.Context, snap *snapshot.SiteSnapshot, cfg *config.Config, outputFs afero.Fs) error
}

// Orchestrator owns one site's build state across calls to Build. Build is
// not safe to call concurrently with itself; the dev server caller is
// responsible for serializing rebuilds (spec §5 "cancellation").
type Orchestrator struct {
	Fs       afero.Fs
	SiteRoot string
	Config   *config.Config
	Logger   *slog.Logger

	Parser         Parser
	TemplateEngine TemplateEngine
	Assets         AssetProcessor
	Postprocessors []Postprocessor

	Cache *buildcache.BuildCache

	// Incremental, when false, forces a full rebuild regardless of cache
	// state (spec §4.10 step 3 "find work (incremental only)").
	Incremental bool

	// MetricsRegistry, when set, receives the build's Prometheus
	// collectors (spec §11 of SPEC_FULL.md). Nil disables exporting.
	MetricsRegistry prometheus.Registerer
}

// Result is what one Build call produces.
type Result struct {
	Stats    *metrics.BuildStats
	Snapshot *snapshot.SiteSnapshot
	Plan     *planner.Plan
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Build runs the full 14-step phase sequence (spec §4.10).
func (o *Orchestrator) Build(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	stats := metrics.New(o.MetricsRegistry)
	logger := o.logger()
	result := &Result{Stats: stats}

	// Step 1: initialize.
	if err := stats.Timed(metrics.PhaseInitialize, func() error {
		return o.initialize()
	}); err != nil {
		return result, fmt.Errorf("orchestrator: initialize: %w", err)
	}

	// Step 2: discover content and assets; apply cascades.
	var discovered *content.Result
	var assets []content.Asset
	if err := stats.Timed(metrics.PhaseDiscovery, func() error {
		var err error
		discovered, assets, err = o.discover()
		return err
	}); err != nil {
		return result, fmt.Errorf("orchestrator: discover: %w", err)
	}

	topLevelHandles := toHandles(discovered.TopLevel)
	engine := cascade.New(logger)
	if _, err := engine.Apply(discovered.Root, topLevelHandles); err != nil {
		return result, fmt.Errorf("orchestrator: cascade: %w", err)
	}

	// Step 3: find work (incremental only).
	var plan *planner.Plan
	if err := stats.Timed(metrics.PhasePlan, func() error {
		var err error
		plan, err = o.plan(discovered, assets)
		return err
	}); err != nil {
		return result, fmt.Errorf("orchestrator: plan: %w", err)
	}
	result.Plan = plan
	stats.IsIncremental = o.Incremental && !plan.FullRebuild
	stats.ChangedFiles = len(plan.ChangedContent) + len(plan.AddedContent) + len(plan.DeletedContent)

	// Step 4: finalize sections — ensured by snapshot.Build synthesizing a
	// virtual index page for any non-root section missing one (spec §4.10
	// step 4). The section tree is always validated; a failure is fatal
	// only in strict-error mode and is otherwise logged as a warning.
	if err := stats.Timed(metrics.PhaseSections, func() error {
		return o.validateSections(discovered.Root)
	}); err != nil {
		if o.Config.ResolveStrictMode() == buildcache.StrictError {
			return result, fmt.Errorf("orchestrator: section validation: %w", err)
		}
		logger.Warn("section validation failed, continuing", "error", err)
	}

	allHandles := toHandles(discovered.AllPages)

	// Step 5: taxonomies.
	tagIndex := taxonomy.NewIndex("tags")
	if err := stats.Timed(metrics.PhaseTaxonomies, func() error {
		if plan.RecomputeTaxonomy {
			tagIndex.Build(allHandles)
			for _, term := range tagIndex.SortedTerms() {
				taxonomy.PersistTerm(o.Cache, "tags", term)
			}
		}
		return nil
	}); err != nil {
		return result, err
	}

	// Step 6: menus.
	var menus map[string][]*taxonomy.MenuEntry
	if err := stats.Timed(metrics.PhaseMenus, func() error {
		if plan.RecomputeMenus {
			menus = taxonomy.BuildMenus(discovered.AllPages, o.menuConfig())
		}
		return nil
	}); err != nil {
		return result, err
	}

	// Step 7: related posts (conditional on tag presence and site size).
	if err := stats.Timed(metrics.PhaseRelated, func() error {
		if plan.RecomputeRelated {
			related := taxonomy.RelatedPosts(allHandles, o.Config.RelatedPostsCount)
			applyRelated(discovered.AllPages, related)
		}
		return nil
	}); err != nil {
		return result, err
	}

	// Step 8: query indexes.
	queryIndex := taxonomy.NewQueryIndexes()
	if err := stats.Timed(metrics.PhaseQueryIndex, func() error {
		queryIndex.Build(allHandles)
		return nil
	}); err != nil {
		return result, err
	}

	// Step 9: update pages list — merge generated tag pages whose
	// generated_page_members entry proves unchanged back out of the
	// rebuild set (spec §4.10 step 9).
	if err := stats.Timed(metrics.PhasePagesUpdate, func() error {
		o.pruneUnchangedGeneratedPages(plan, tagIndex)
		return nil
	}); err != nil {
		return result, err
	}

	// Step 10: snapshot.
	var snap *snapshot.SiteSnapshot
	if err := stats.Timed(metrics.PhaseSnapshot, func() error {
		var err error
		snap, err = snapshot.Build(discovered.Root, topLevelHandles, snapshot.Options{
			TemplateOf: o.templateOf,
			PartialsOf: o.partialsOf,
			Menus:      menus,
			TagIndex:   tagIndex,
		})
		return err
	}); err != nil {
		return result, fmt.Errorf("orchestrator: snapshot: %w", err)
	}
	result.Snapshot = snap

	// Step 11: assets.
	var manifestMTime float64
	if err := stats.Timed(metrics.PhaseAssets, func() error {
		if o.Assets == nil {
			return nil
		}
		var err error
		manifestMTime, err = o.Assets.Process(ctx, assets)
		return err
	}); err != nil {
		return result, fmt.Errorf("orchestrator: assets: %w", err)
	}
	if manifestMTime != o.Cache.AssetManifestMTime() {
		plan.InvalidateRenderedOutput = true
		o.Cache.SetAssetManifestMTime(manifestMTime)
	}

	// Step 12: render.
	if err := stats.Timed(metrics.PhaseRender, func() error {
		toBuild := o.renderSet(plan, snap)
		sched := &scheduler.Scheduler{
			WorkloadType: o.Config.WorkloadType(),
			Logger:       logger,
		}
		renderResult := sched.Render(snap, toBuild, o.renderPage(manifestMTime, stats))
		for _, pe := range renderResult.Errors {
			logger.Error("page render failed", "page", string(pe.Page), "error", pe.Err)
		}
		return nil
	}); err != nil {
		return result, fmt.Errorf("orchestrator: render: %w", err)
	}

	// Step 13: postprocess.
	if err := stats.Timed(metrics.PhasePostprocess, func() error {
		for _, p := range o.Postprocessors {
			if err := p.Emit(ctx, snap, o.Config, o.Fs); err != nil {
				logger.Error("postprocess emitter failed", "name", p.Name(), "error", err)
			}
		}
		return nil
	}); err != nil {
		return result, err
	}

	// Step 14: save cache.
	if err := stats.Timed(metrics.PhaseCacheSave, func() error {
		return o.Cache.SaveAll()
	}); err != nil {
		return result, fmt.Errorf("orchestrator: save cache: %w", err)
	}

	stats.Finish()
	return result, nil
}

// initialize loads the cache (tolerant) and detects a config change by
// hashing the merged config (spec §4.10 step 1).
func (o *Orchestrator) initialize() error {
	cache, err := buildcache.Open(o.Fs, o.Config.CacheDir, o.logger())
	if err != nil {
		return err
	}
	o.Cache = cache

	configDict := map[string]interface{}{
		"title":       o.Config.Title,
		"baseURL":     o.Config.BaseURL,
		"theme":       o.Config.Theme,
		"contentDir":  o.Config.ContentDir,
		"assetDirs":   o.Config.AssetDirs,
	}
	newHash, err := hashing.HashDict(configDict)
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}
	if o.Cache.ConfigHash() != newHash {
		o.Config.ForceRebuild = true
	}
	o.Cache.SetConfigHash(newHash)
	return nil
}

func (o *Orchestrator) discover() (*content.Result, []content.Asset, error) {
	d := &content.Discovery{Fs: o.Fs, Root: o.SiteRoot, ContentDir: o.Config.ContentDir}
	result, err := d.Discover()
	if err != nil {
		return nil, nil, err
	}

	themeDirs := map[string]bool{o.Config.ThemeDir: true}
	assets, err := content.DiscoverAssets(o.Fs, o.SiteRoot, o.Config.AssetDirs, themeDirs)
	if err != nil {
		return nil, nil, err
	}
	return result, assets, nil
}

func (o *Orchestrator) plan(discovered *content.Result, assets []content.Asset) (*planner.Plan, error) {
	p := &planner.Planner{Cache: o.Cache, Strict: o.Config.ResolveStrictMode(), Logger: o.logger()}

	if !o.Incremental || o.Config.ForceRebuild {
		return &planner.Plan{FullRebuild: true, RecomputeTaxonomy: true, RecomputeMenus: true, RecomputeRelated: true}, nil
	}

	var files []planner.TrackedFile
	var metadataChangedPages []pathutil.SourcePath
	navAffecting := false
	for _, page := range discovered.AllPages {
		fp, err := fingerprintOf(o.Fs, string(page.SourcePath()))
		if err != nil {
			continue
		}
		files = append(files, planner.TrackedFile{Path: page.SourcePath(), Kind: planner.KindContent, Fingerprint: fp})

		metaHash, err := hashing.HashDict(page.Metadata)
		if err != nil {
			continue
		}
		navHash, err := hashing.HashDict(navAffectingMetadata(page.Metadata))
		if err != nil {
			continue
		}
		if prevMeta, prevNav, ok := o.Cache.PreviousMetadataHashes(page.SourcePath()); ok {
			if prevMeta != metaHash {
				metadataChangedPages = append(metadataChangedPages, page.SourcePath())
			}
			if prevNav != navHash {
				navAffecting = true
			}
		}
	}
	for _, a := range assets {
		fp, err := fingerprintOf(o.Fs, string(a.SourcePath))
		if err != nil {
			continue
		}
		files = append(files, planner.TrackedFile{
			Path:        a.SourcePath,
			Kind:        planner.KindAsset,
			Fingerprint: fp,
		})
	}

	tmplFiles, err := o.templateFiles()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list templates: %w", err)
	}
	files = append(files, tmplFiles...)

	return p.Plan(files, false, false, metadataChangedPages, navAffecting, len(discovered.AllPages))
}

// navAffectingMetadata filters d down to the keys in
// taxonomy.NavAffectingKeys, so its hash only moves when a nav-affecting
// key's value actually changes (spec §6.5).
func navAffectingMetadata(d map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(taxonomy.NavAffectingKeys))
	for k, v := range d {
		if _, ok := taxonomy.NavAffectingKeys[k]; ok {
			out[k] = v
		}
	}
	return out
}

// templatesRoot is the theme's template directory, the root both
// templateengine.Engine and the planner's KindTemplate tracking walk.
func (o *Orchestrator) templatesRoot() string {
	return pathutil.Join(o.Config.ThemeDir, "templates")
}

// templateSourcePath builds the SourcePath a rendered page records as a
// dependency for the template it used.
func (o *Orchestrator) templateSourcePath(name string) pathutil.SourcePath {
	return pathutil.SourcePath(pathutil.Join(o.templatesRoot(), name))
}

// partialSourcePath builds the SourcePath for one of TemplateEngine's
// PartialsOf results, which live flat under templates/partials (spec §4.7).
func (o *Orchestrator) partialSourcePath(name string) pathutil.SourcePath {
	return pathutil.SourcePath(pathutil.Join(o.templatesRoot(), "partials", name))
}

// templateFiles walks the theme's template directory into planner.KindTemplate
// TrackedFiles, so D1 detects a changed template/partial and D2 expands the
// rebuild set through BuildCache.ReverseDependencies (spec §4.8).
func (o *Orchestrator) templateFiles() ([]planner.TrackedFile, error) {
	root := o.templatesRoot()
	var files []planner.TrackedFile
	err := afero.Walk(o.Fs, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		fp, err := fingerprintOf(o.Fs, path)
		if err != nil {
			return nil
		}
		files = append(files, planner.TrackedFile{
			Path:        pathutil.SourcePath(path),
			Kind:        planner.KindTemplate,
			Fingerprint: fp,
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return files, nil
}

// parserVersionKey derives the int the §3.8 parsed-content table keys on
// from the Parser collaborator's string version (spec §6.3 reports a
// string; the cache table stores a compact int so a parser bump is a
// single-word comparison like the other invalidation checks).
func parserVersionKey(version string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(version))
	return int(h.Sum32())
}

func fingerprintOf(fs afero.Fs, path string) (hashing.Fingerprint, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return hashing.Fingerprint{}, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return hashing.Fingerprint{}, err
	}
	return hashing.Fingerprint{
		Hash:  hashing.HashBytes(data),
		MTime: float64(info.ModTime().Unix()),
		Size:  uint64(info.Size()),
	}, nil
}

func (o *Orchestrator) validateSections(root *content.Section) error {
	seen := map[pathutil.SourcePath]bool{}
	var walk func(s *content.Section) error
	walk = func(s *content.Section) error {
		if seen[s.Path] {
			return fmt.Errorf("duplicate section path %s", s.Path)
		}
		seen[s.Path] = true
		for _, child := range s.Subsections {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

func (o *Orchestrator) menuConfig() taxonomy.MenuConfig {
	cfg := taxonomy.MenuConfig{}
	for name, entries := range o.Config.Menus {
		for _, e := range entries {
			cfg[name] = append(cfg[name], taxonomy.MenuHint{
				Identifier: e.Name,
				Name:       e.Name,
				URL:        e.URL,
				Parent:     e.Parent,
				Weight:     e.Weight,
			})
		}
	}
	return cfg
}

func applyRelated(pages []*content.Page, related map[string][]content.PageHandle) {
	if related == nil {
		return
	}
	for _, p := range pages {
		members := related[string(p.SourcePath())]
		p.RelatedPosts = p.RelatedPosts[:0]
		for _, m := range members {
			if promoted, err := m.Promote(); err == nil {
				p.RelatedPosts = append(p.RelatedPosts, promoted)
			}
		}
	}
}

// pruneUnchangedGeneratedPages drops tag listing pages from the rebuild set
// when their generated_page_members entry proves the member set and every
// member's content hash haven't moved (spec §4.10 step 9).
func (o *Orchestrator) pruneUnchangedGeneratedPages(plan *planner.Plan, tagIndex *taxonomy.Index) {
	if plan.FullRebuild || plan.RebuildPages == nil {
		return
	}
	for _, term := range tagIndex.SortedTerms() {
		path := pathutil.SourcePath("tags/" + term.Slug + "/_index.virtual")
		if !taxonomy.ShouldRegenerateTerm(o.Cache, "tags", term) {
			delete(plan.RebuildPages, path)
		} else {
			plan.RebuildPages[path] = true
		}
	}
}

func (o *Orchestrator) templateOf(p content.PageHandle, isSectionIndex bool) string {
	core := p.CoreMeta()
	if core.Type != nil && *core.Type != "" {
		name := *core.Type + ".html"
		if o.TemplateEngine == nil || o.TemplateEngine.TemplateExists(name) {
			return name
		}
	}
	if isSectionIndex {
		return "section.html"
	}
	return "page.html"
}

func (o *Orchestrator) partialsOf(name string) []string {
	if o.TemplateEngine == nil {
		return nil
	}
	return o.TemplateEngine.PartialsOf(name)
}

// renderSet decides which pages the wave scheduler processes this build:
// every page on FullRebuild, else exactly plan.RebuildPages (spec §4.10
// step 12 consuming D2's output).
func (o *Orchestrator) renderSet(plan *planner.Plan, snap *snapshot.SiteSnapshot) map[pathutil.SourcePath]bool {
	toBuild := map[pathutil.SourcePath]bool{}
	if plan.FullRebuild {
		for _, p := range snap.Pages {
			toBuild[p.SourcePath] = true
		}
		return toBuild
	}
	for path := range plan.RebuildPages {
		toBuild[path] = true
	}
	if plan.InvalidateRenderedOutput {
		for _, p := range snap.Pages {
			toBuild[p.SourcePath] = true
		}
	}
	return toBuild
}

// renderPage returns the scheduler.RenderFunc that parses (if needed),
// renders a template, and updates cache + stats for one page.
func (o *Orchestrator) renderPage(assetManifestMTime float64, stats *metrics.BuildStats) scheduler.RenderFunc {
	return func(p *snapshot.PageSnapshot) (bool, error) {
		metaHash, err := hashing.HashDict(p.Metadata)
		if err != nil {
			stats.RecordFailed()
			return false, fmt.Errorf("hash metadata for %s: %w", p.SourcePath, err)
		}

		if cached, ok := o.Cache.GetRenderedOutput(p.SourcePath, metaHash, assetManifestMTime); ok {
			if err := o.writeOutput(p, cached.HTML); err != nil {
				stats.RecordFailed()
				return false, err
			}
			stats.RecordCached()
			return true, nil
		}

		template, _ := p.Metadata["_resolved_template"].(string)

		fileHash := hashing.HashBytes([]byte(p.RawContent))
		parserVersion := 0
		if o.Parser != nil {
			parserVersion = parserVersionKey(o.Parser.ParserVersion())
		}

		var html string
		if parsed, ok := o.Cache.GetParsedContent(p.SourcePath, fileHash, metaHash, template, parserVersion); ok {
			html, p.TOC, p.Links = parsed.HTML, parsed.TOC, parsed.Links
			for _, item := range parsed.TOCItems {
				p.TOCItems = append(p.TOCItems, content.TOCItem{ID: item.ID, Title: item.Title, Level: item.Level})
			}
		} else {
			html = p.RawContent
			if o.Parser != nil {
				parsedHTML, toc, tocItems, links, err := o.Parser.Parse(p.RawContent)
				if err != nil {
					stats.RecordFailed()
					return false, fmt.Errorf("parse %s: %w", p.SourcePath, err)
				}
				html, p.TOC, p.TOCItems, p.Links = parsedHTML, toc, tocItems, links
			}

			navHash, err := hashing.HashDict(navAffectingMetadata(p.Metadata))
			if err != nil {
				stats.RecordFailed()
				return false, fmt.Errorf("hash nav metadata for %s: %w", p.SourcePath, err)
			}

			o.Cache.StoreParsedContent(buildcache.ParsedContent{
				Path:            p.SourcePath,
				HTML:            html,
				TOC:             p.TOC,
				TOCItems:        toBuildcacheTOCItems(p.TOCItems),
				Links:           p.Links,
				MetadataHash:    metaHash,
				NavMetadataHash: navHash,
				Template:        template,
				ParserVersion:   parserVersion,
				FileHash:        fileHash,
			})
		}

		deps := o.renderDependencies(template)

		if o.TemplateEngine != nil && template != "" {
			context := map[string]interface{}{
				"Title":   p.Title,
				"Content": html,
				"Page":    p,
			}
			rendered, err := o.TemplateEngine.RenderTemplate(template, context)
			if err != nil {
				stats.RecordFailed()
				return false, fmt.Errorf("render %s with %s: %w", p.SourcePath, template, err)
			}
			html = rendered
		}

		o.Cache.SetDependencies(p.SourcePath, deps)
		o.Cache.StoreRenderedOutput(buildcache.RenderedOutput{
			Path:               p.SourcePath,
			HTML:               html,
			Template:           template,
			MetadataHash:       metaHash,
			Dependencies:       deps,
			AssetManifestMTime: assetManifestMTime,
		})

		if err := o.writeOutput(p, html); err != nil {
			stats.RecordFailed()
			return false, err
		}

		stats.RecordRendered()
		return false, nil
	}
}

// renderDependencies resolves template as a dependency edge the page is
// rebuilt from, plus every partial TemplateEngine.PartialsOf reports it
// pulling in (spec §3.9, §4.9 step 6).
func (o *Orchestrator) renderDependencies(template string) []pathutil.SourcePath {
	if o.TemplateEngine == nil || template == "" {
		return nil
	}
	deps := []pathutil.SourcePath{o.templateSourcePath(template)}
	for _, partial := range o.TemplateEngine.PartialsOf(template) {
		deps = append(deps, o.partialSourcePath(partial))
	}
	return deps
}

func toBuildcacheTOCItems(items []content.TOCItem) []buildcache.TOCItem {
	out := make([]buildcache.TOCItem, len(items))
	for i, it := range items {
		out[i] = buildcache.TOCItem{ID: it.ID, Title: it.Title, Level: it.Level}
	}
	return out
}

func (o *Orchestrator) writeOutput(p *snapshot.PageSnapshot, html string) error {
	if p.OutputPath == "" {
		return nil
	}
	dest := pathutil.Join(o.Config.OutputDir, p.OutputPath)
	return atomicfile.Write(o.Fs, dest, []byte(html))
}

func toHandles(pages []*content.Page) []content.PageHandle {
	out := make([]content.PageHandle, len(pages))
	for i, p := range pages {
		out[i] = p
	}
	return out
}
