// Package snapshot builds SiteSnapshot (spec §3.7, §4.7): the immutable,
// fully pre-computed view of a site handed to the wave scheduler so every
// read during parallel rendering is a lock-free lookup rather than a walk
// of the mutable content tree.
package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/taxonomy"
)

// PageSnapshot is the frozen, render-ready view of one page (spec §3.7).
// Section/NextPage/PrevPage point to other snapshots, never back to the
// mutable Page. They do form pointer cycles among snapshots (a page's
// Section lists the page; NextPage and PrevPage link both ways), so those
// fields are only filled in
// after the whole page list exists (spec §4.7 "reverse references are set
// after the forward tree is built").
type PageSnapshot struct {
	SourcePath pathutil.SourcePath
	Title      string
	Tags       []string
	Weight     *int
	Date       *time.Time
	OutputPath string
	RawContent string
	TOC        string
	TOCItems   []content.TOCItem
	Links      []string
	Metadata   map[string]interface{}

	ReadingTime    int
	WordCount      int
	ContentHash    hashing.ContentHash
	AttentionScore float64

	IsSectionIndex bool

	Section  *SectionSnapshot
	NextPage *PageSnapshot
	PrevPage *PageSnapshot
}

// SectionSnapshot is the frozen view of one Section (spec §3.7, §4.7).
type SectionSnapshot struct {
	Path         pathutil.SourcePath
	Pages        []*PageSnapshot
	SortedPages  []*PageSnapshot
	Subsections  []*SectionSnapshot
	Parent       *SectionSnapshot
	IndexPage    *PageSnapshot
	Depth        int
	Hierarchy    []string
	TemplateName string
}

// ScoutHint drives the scout thread's template pre-warm order (spec §4.7
// "scout hints", §4.9 "scout thread").
type ScoutHint struct {
	TemplatePath string
	PartialPaths []string
	PagesUsing   int
	Priority     int
}

// SiteSnapshot is the complete frozen view (spec §3.7). Once returned by
// Build, nothing in this tree is ever mutated again; any component needing
// a different view takes a fresh Build.
type SiteSnapshot struct {
	Pages             []*PageSnapshot
	Sections          []*SectionSnapshot
	TopLevelPages     []*PageSnapshot
	TopLevelSections  []*SectionSnapshot
	Waves             [][]*PageSnapshot
	TemplateGroups    map[string][]*PageSnapshot
	AttentionOrder    []*PageSnapshot
	ScoutHints        []ScoutHint
	TagPages          map[string][]*PageSnapshot
	NavTrees          map[string][]*taxonomy.MenuEntry
}

// Options configures a Build pass. Every field is optional; the zero value
// produces sane single-wave, convention-named-template behavior.
type Options struct {
	// PageDeps maps a page's SourcePath to the SourcePaths of other pages
	// it depends on (spec §4.7 "future cross-page dependencies"). Pure
	// content sites have none, which degenerates topological waves to a
	// single wave, exactly as spec §4.7 describes.
	PageDeps map[pathutil.SourcePath][]pathutil.SourcePath

	// TemplateOf resolves a page's template name. Defaults to
	// defaultTemplateOf: a page's `type` names "<type>.html", else
	// "section.html" for a section index and "page.html" otherwise. No
	// `template` frontmatter key is read.
	TemplateOf func(p content.PageHandle, isSectionIndex bool) string

	// PartialsOf returns the transitive closure of partials a template
	// includes/extends (spec §4.7 "static template analysis"), supplied by
	// the template engine collaborator (spec §6.4). Nil means no partial
	// closure is known yet; the scout hint still gets an entry, just an
	// empty PartialPaths.
	PartialsOf func(templateName string) []string

	// Menus are the already-built navigation trees keyed by version id
	// (spec §3.7 "nav trees keyed by version_id"). This module has no
	// explicit multi-version page model, so Lang doubles as version_id
	// (kosh's own tree-building code conflates the two in the same way);
	// sites with no Lang set key everything under "".
	Menus map[string][]*taxonomy.MenuEntry

	// TagIndex supplies the tag→pages precompute (spec §3.7 "tag→pages").
	TagIndex *taxonomy.Index
}

// Build freezes root and topLevelPages into a SiteSnapshot (spec §4.7).
// Every content.PageHandle reachable from the tree is promoted: a snapshot
// is taken once derivation is complete, and everything downstream (the
// scheduler, the template engine) needs full page bodies, so there is no
// benefit left to deferring a load past this point.
func Build(root *content.Section, topLevelPages []content.PageHandle, opts Options) (*SiteSnapshot, error) {
	if opts.TemplateOf == nil {
		opts.TemplateOf = defaultTemplateOf
	}

	pagesByPath := map[pathutil.SourcePath]*PageSnapshot{}
	var allPages []*PageSnapshot

	snapOf := func(handle content.PageHandle, isSectionIndex bool) (*PageSnapshot, error) {
		page, err := handle.Promote()
		if err != nil {
			return nil, fmt.Errorf("snapshot: promote %s: %w", handle.SourcePath(), err)
		}
		ps := buildPageSnapshot(page, isSectionIndex, opts.TemplateOf)
		pagesByPath[ps.SourcePath] = ps
		allPages = append(allPages, ps)
		return ps, nil
	}

	var sections []*SectionSnapshot
	var buildSection func(s *content.Section, parent *SectionSnapshot, depth int, hierarchy []string, isRoot bool) (*SectionSnapshot, error)
	buildSection = func(s *content.Section, parent *SectionSnapshot, depth int, hierarchy []string, isRoot bool) (*SectionSnapshot, error) {
		ss := &SectionSnapshot{
			Path:      s.Path,
			Parent:    parent,
			Depth:     depth,
			Hierarchy: append([]string(nil), hierarchy...),
		}
		sections = append(sections, ss)

		// The root section's own Pages duplicate the topLevelPages argument
		// (content.Discovery appends a root-owned page to both root.Pages
		// and Result.TopLevel); topLevelPages is built separately below, so
		// skip s.Pages here to avoid snapshotting those pages twice.
		if !isRoot {
			for _, handle := range s.Pages {
				ps, err := snapOf(handle, false)
				if err != nil {
					return nil, err
				}
				ps.Section = ss
				ss.Pages = append(ss.Pages, ps)
			}
			ss.SortedPages = sortedCopy(ss.Pages)
		}

		if s.IndexPage != nil {
			ps, err := snapOf(s.IndexPage, true)
			if err != nil {
				return nil, err
			}
			ps.Section = ss
			ss.IndexPage = ps
		} else if parent != nil {
			// Finalize sections (spec §4.10 step 4): a non-root section
			// without an explicit _index.md still renders an index output.
			ps := virtualIndexPage(s, opts.TemplateOf)
			ps.Section = ss
			ss.IndexPage = ps
			pagesByPath[ps.SourcePath] = ps
			allPages = append(allPages, ps)
		}
		if ss.IndexPage != nil {
			ss.TemplateName, _ = ss.IndexPage.Metadata["_resolved_template"].(string)
		}

		for _, child := range s.Subsections {
			childSnap, err := buildSection(child, ss, depth+1, append(hierarchy, child.Path.Base()), false)
			if err != nil {
				return nil, err
			}
			ss.Subsections = append(ss.Subsections, childSnap)
		}
		return ss, nil
	}

	var topLevelSections []*SectionSnapshot
	var rootSnapshot *SectionSnapshot
	if root != nil {
		ss, err := buildSection(root, nil, 0, nil, true)
		if err != nil {
			return nil, err
		}
		rootSnapshot = ss
		topLevelSections = append(topLevelSections, ss.Subsections...)
	}

	var topLevel []*PageSnapshot
	for _, handle := range topLevelPages {
		ps, err := snapOf(handle, false)
		if err != nil {
			return nil, err
		}
		if rootSnapshot != nil {
			ps.Section = rootSnapshot
		}
		topLevel = append(topLevel, ps)
	}
	if rootSnapshot != nil {
		rootSnapshot.Pages = topLevel
		rootSnapshot.SortedPages = sortedCopy(topLevel)
	}

	linkNextPrev(topLevel)
	for _, ss := range sections {
		linkNextPrev(ss.SortedPages)
	}

	assignAttentionScores(allPages)

	waves, err := computeWaves(allPages, opts.PageDeps)
	if err != nil {
		return nil, err
	}

	templateGroups := map[string][]*PageSnapshot{}
	for _, p := range allPages {
		tmpl, _ := p.Metadata["_resolved_template"].(string)
		templateGroups[tmpl] = append(templateGroups[tmpl], p)
	}
	for tmpl, group := range templateGroups {
		sort.SliceStable(group, func(i, j int) bool { return group[i].AttentionScore > group[j].AttentionScore })
		templateGroups[tmpl] = group
	}

	attentionOrder := append([]*PageSnapshot(nil), allPages...)
	sort.SliceStable(attentionOrder, func(i, j int) bool { return attentionOrder[i].AttentionScore > attentionOrder[j].AttentionScore })

	scoutHints := buildScoutHints(templateGroups, opts.PartialsOf)

	var tagPages map[string][]*PageSnapshot
	if opts.TagIndex != nil {
		tagPages = map[string][]*PageSnapshot{}
		for _, term := range opts.TagIndex.SortedTerms() {
			for _, member := range term.Pages {
				if ps, ok := pagesByPath[member.CoreMeta().SourcePath]; ok {
					tagPages[term.Slug] = append(tagPages[term.Slug], ps)
				}
			}
		}
	}

	navTrees := opts.Menus
	if navTrees == nil {
		navTrees = map[string][]*taxonomy.MenuEntry{}
	}

	return &SiteSnapshot{
		Pages:            allPages,
		Sections:         sections,
		TopLevelPages:    topLevel,
		TopLevelSections: topLevelSections,
		Waves:            waves,
		TemplateGroups:   templateGroups,
		AttentionOrder:   attentionOrder,
		ScoutHints:       scoutHints,
		TagPages:         tagPages,
		NavTrees:         navTrees,
	}, nil
}

func buildPageSnapshot(page *content.Page, isSectionIndex bool, templateOf func(content.PageHandle, bool) string) *PageSnapshot {
	outputPath := ""
	if page.OutputPath != nil {
		outputPath = *page.OutputPath
	}
	metadata := make(map[string]interface{}, len(page.Metadata)+1)
	for k, v := range page.Metadata {
		metadata[k] = v
	}
	metadata["_resolved_template"] = templateOf(page, isSectionIndex)

	words := wordCount(page.RawContent)
	ps := &PageSnapshot{
		SourcePath:     page.SourcePath(),
		Title:          page.Title,
		Tags:           append([]string(nil), page.Tags...),
		Weight:         page.Weight,
		Date:           page.Date,
		OutputPath:     outputPath,
		RawContent:     page.RawContent,
		TOC:            page.TOC,
		TOCItems:       append([]content.TOCItem(nil), page.TOCItems...),
		Links:          append([]string(nil), page.Links...),
		Metadata:       metadata,
		WordCount:      words,
		ReadingTime:    readingTimeMinutes(words),
		ContentHash:    hashing.HashBytes([]byte(page.RawContent)),
		IsSectionIndex: isSectionIndex,
	}
	return ps
}

func virtualIndexPage(s *content.Section, templateOf func(content.PageHandle, bool) string) *PageSnapshot {
	title := taxonomy.FallbackTitle(s.Path.Base())
	virtualPath := pathutil.SourcePath(string(s.Path) + "/_index.virtual")
	metadata := map[string]interface{}{"_resolved_template": "section.html"}
	return &PageSnapshot{
		SourcePath:     virtualPath,
		Title:          title,
		Metadata:       metadata,
		IsSectionIndex: true,
	}
}

// wordsPerMinute is the reading-speed constant used to estimate
// reading_time (spec §4.7 "pre-parse any last derived properties").
const wordsPerMinute = 200

func wordCount(body string) int {
	return len(strings.Fields(body))
}

func readingTimeMinutes(words int) int {
	if words == 0 {
		return 0
	}
	minutes := words / wordsPerMinute
	if words%wordsPerMinute != 0 {
		minutes++
	}
	if minutes == 0 {
		minutes = 1
	}
	return minutes
}

// sortedCopy mirrors content.Section's canonical (weight asc, date desc,
// title asc) ordering (spec §3.7 invariant "s.sorted_pages ==
// sorted(s.pages, key=(weight, -date, title))").
func sortedCopy(pages []*PageSnapshot) []*PageSnapshot {
	out := append([]*PageSnapshot(nil), pages...)
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := weightOf(out[i]), weightOf(out[j])
		if wi != wj {
			return wi < wj
		}
		di, dj := dateOf(out[i]), dateOf(out[j])
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func weightOf(p *PageSnapshot) int {
	if p.Weight != nil {
		return *p.Weight
	}
	return 0
}

func dateOf(p *PageSnapshot) time.Time {
	if p.Date != nil {
		return *p.Date
	}
	return time.Time{}
}

func linkNextPrev(pages []*PageSnapshot) {
	for i, p := range pages {
		if i > 0 {
			p.PrevPage = pages[i-1]
		}
		if i < len(pages)-1 {
			p.NextPage = pages[i+1]
		}
	}
}

func assignAttentionScores(pages []*PageSnapshot) {
	byDateRank := append([]*PageSnapshot(nil), pages...)
	total := len(byDateRank)
	for i, p := range byDateRank {
		score := 0.0
		if p.IsSectionIndex {
			score += 1000
		}
		if truthy(p.Metadata["featured"]) {
			score += 500
		}
		if total > 0 {
			score += float64(total-i) / float64(total) * 100
		}
		p.AttentionScore = score
	}
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

// computeWaves groups pages into topological waves by PageDeps (spec
// §4.7). Pages outside the dependency graph, or when deps is empty,
// collapse into a single wave.
func computeWaves(pages []*PageSnapshot, deps map[pathutil.SourcePath][]pathutil.SourcePath) ([][]*PageSnapshot, error) {
	if len(deps) == 0 {
		return [][]*PageSnapshot{pages}, nil
	}

	byPath := make(map[pathutil.SourcePath]*PageSnapshot, len(pages))
	for _, p := range pages {
		byPath[p.SourcePath] = p
	}

	remaining := make(map[pathutil.SourcePath][]pathutil.SourcePath, len(pages))
	for _, p := range pages {
		var edges []pathutil.SourcePath
		for _, d := range deps[p.SourcePath] {
			if _, ok := byPath[d]; ok {
				edges = append(edges, d)
			}
		}
		remaining[p.SourcePath] = edges
	}

	var waves [][]*PageSnapshot
	done := map[pathutil.SourcePath]bool{}
	for len(done) < len(pages) {
		var wave []*PageSnapshot
		for _, p := range pages {
			if done[p.SourcePath] {
				continue
			}
			ready := true
			for _, dep := range remaining[p.SourcePath] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, p)
			}
		}
		if len(wave) == 0 {
			// Cycle: spec names no resolution strategy for this case
			// (pure content pages never cycle); fail loudly rather than
			// spin forever.
			return nil, fmt.Errorf("snapshot: dependency cycle detected among remaining pages")
		}
		for _, p := range wave {
			done[p.SourcePath] = true
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

func buildScoutHints(templateGroups map[string][]*PageSnapshot, partialsOf func(string) []string) []ScoutHint {
	names := make([]string, 0, len(templateGroups))
	for name := range templateGroups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(templateGroups[names[i]]) > len(templateGroups[names[j]]) })

	hints := make([]ScoutHint, 0, len(names))
	for i, name := range names {
		var partials []string
		if partialsOf != nil {
			partials = partialsOf(name)
		}
		hints = append(hints, ScoutHint{
			TemplatePath: name,
			PartialPaths: partials,
			PagesUsing:   len(templateGroups[name]),
			Priority:     len(names) - i,
		})
	}
	return hints
}

func defaultTemplateOf(p content.PageHandle, isSectionIndex bool) string {
	core := p.CoreMeta()
	if core.Type != nil && *core.Type != "" {
		return *core.Type + ".html"
	}
	if isSectionIndex {
		return "section.html"
	}
	return "page.html"
}
