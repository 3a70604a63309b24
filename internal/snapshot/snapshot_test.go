package snapshot

import (
	"testing"

	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

func newPage(path, title string, weight *int) *content.Page {
	core := content.PageCore{
		SourcePath: pathutil.SourcePath(path),
		Title:      title,
		Weight:     weight,
	}
	return &content.Page{PageCore: core, Metadata: map[string]interface{}{}, RawContent: "hello world"}
}

func intPtr(i int) *int { return &i }

func TestBuildPartitionsPagesBetweenTopLevelAndSections(t *testing.T) {
	root := &content.Section{Path: "content"}
	home := newPage("content/about.md", "About", nil)
	root.Pages = append(root.Pages, home)

	blog := &content.Section{Path: "content/blog", Parent: root}
	root.Subsections = append(root.Subsections, blog)
	post := newPage("content/blog/post-1.md", "Post 1", nil)
	blog.Pages = append(blog.Pages, post)

	snap, err := Build(root, []content.PageHandle{home}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(snap.TopLevelPages) != 1 || snap.TopLevelPages[0].SourcePath != "content/about.md" {
		t.Fatalf("expected about.md as the sole top-level page, got %+v", snap.TopLevelPages)
	}

	total := len(snap.TopLevelPages)
	for _, s := range snap.Sections {
		if s.Path == root.Path {
			continue // root's Pages mirror TopLevelPages, not a disjoint set
		}
		total += len(s.Pages)
	}
	if total != len(snap.Pages) {
		t.Fatalf("partition invariant violated: top-level(%d)+sections(%d-root) != all pages(%d)",
			len(snap.TopLevelPages), total-len(snap.TopLevelPages), len(snap.Pages))
	}
	if len(snap.Pages) != 2 {
		t.Fatalf("expected 2 total pages (about, post-1), got %d: %+v", len(snap.Pages), snap.Pages)
	}

	seen := map[pathutil.SourcePath]bool{}
	for _, p := range snap.Pages {
		if seen[p.SourcePath] {
			t.Fatalf("page %s snapshotted more than once", p.SourcePath)
		}
		seen[p.SourcePath] = true
	}
}

func TestBuildRootSectionPagesMatchTopLevel(t *testing.T) {
	root := &content.Section{Path: "content"}
	a := newPage("content/a.md", "A", nil)
	root.Pages = append(root.Pages, a)

	snap, err := Build(root, []content.PageHandle{a}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var rootSection *SectionSnapshot
	for _, s := range snap.Sections {
		if s.Path == root.Path {
			rootSection = s
		}
	}
	if rootSection == nil {
		t.Fatalf("expected root section in snap.Sections")
	}
	if len(rootSection.Pages) != 1 || rootSection.Pages[0].SourcePath != "content/a.md" {
		t.Fatalf("expected root section Pages to equal top-level pages, got %+v", rootSection.Pages)
	}
	if len(rootSection.SortedPages) != 1 {
		t.Fatalf("expected root section SortedPages populated once, got %d", len(rootSection.SortedPages))
	}
}

func TestBuildSynthesizesVirtualIndexForSectionMissingIndexMd(t *testing.T) {
	root := &content.Section{Path: "content"}
	docs := &content.Section{Path: "content/docs", Parent: root}
	root.Subsections = append(root.Subsections, docs)
	guide := newPage("content/docs/guide.md", "Guide", nil)
	docs.Pages = append(docs.Pages, guide)

	snap, err := Build(root, nil, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var docsSnap *SectionSnapshot
	for _, s := range snap.Sections {
		if s.Path == docs.Path {
			docsSnap = s
		}
	}
	if docsSnap == nil {
		t.Fatalf("expected docs section in snapshot")
	}
	if docsSnap.IndexPage == nil {
		t.Fatalf("expected a synthesized virtual index page for docs")
	}
	if !docsSnap.IndexPage.IsSectionIndex {
		t.Fatalf("expected virtual index page to be marked IsSectionIndex")
	}

	found := false
	for _, p := range snap.Pages {
		if p.SourcePath == docsSnap.IndexPage.SourcePath {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected virtual index page to be included in snap.Pages")
	}
}

func TestBuildUsesRealIndexPageWhenPresent(t *testing.T) {
	root := &content.Section{Path: "content"}
	blog := &content.Section{Path: "content/blog", Parent: root}
	root.Subsections = append(root.Subsections, blog)
	blog.IndexPage = newPage("content/blog/_index.md", "Blog", nil)

	snap, err := Build(root, nil, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var blogSnap *SectionSnapshot
	for _, s := range snap.Sections {
		if s.Path == blog.Path {
			blogSnap = s
		}
	}
	if blogSnap == nil || blogSnap.IndexPage == nil {
		t.Fatalf("expected blog section with an index page")
	}
	if blogSnap.IndexPage.Title != "Blog" {
		t.Fatalf("expected real _index.md page to be used, got title %q", blogSnap.IndexPage.Title)
	}
}

func TestComputeWavesSingleWaveWhenNoDeps(t *testing.T) {
	a := &PageSnapshot{SourcePath: "a.md"}
	b := &PageSnapshot{SourcePath: "b.md"}
	waves, err := computeWaves([]*PageSnapshot{a, b}, nil)
	if err != nil {
		t.Fatalf("computeWaves: %v", err)
	}
	if len(waves) != 1 || len(waves[0]) != 2 {
		t.Fatalf("expected a single wave with both pages, got %+v", waves)
	}
}

func TestComputeWavesOrdersByDependencyChain(t *testing.T) {
	a := &PageSnapshot{SourcePath: "a.md"}
	b := &PageSnapshot{SourcePath: "b.md"}
	c := &PageSnapshot{SourcePath: "c.md"}
	deps := map[pathutil.SourcePath][]pathutil.SourcePath{
		"b.md": {"a.md"},
		"c.md": {"b.md"},
	}
	waves, err := computeWaves([]*PageSnapshot{a, b, c}, deps)
	if err != nil {
		t.Fatalf("computeWaves: %v", err)
	}
	if len(waves) != 3 {
		t.Fatalf("expected 3 waves for a strict chain, got %d: %+v", len(waves), waves)
	}
	if waves[0][0].SourcePath != "a.md" || waves[1][0].SourcePath != "b.md" || waves[2][0].SourcePath != "c.md" {
		t.Fatalf("unexpected wave order: %+v", waves)
	}
}

func TestComputeWavesDetectsCycle(t *testing.T) {
	a := &PageSnapshot{SourcePath: "a.md"}
	b := &PageSnapshot{SourcePath: "b.md"}
	deps := map[pathutil.SourcePath][]pathutil.SourcePath{
		"a.md": {"b.md"},
		"b.md": {"a.md"},
	}
	if _, err := computeWaves([]*PageSnapshot{a, b}, deps); err == nil {
		t.Fatalf("expected an error for a dependency cycle")
	}
}

func TestAssignAttentionScoresFavorsSectionIndexAndFeatured(t *testing.T) {
	plain := &PageSnapshot{SourcePath: "plain.md"}
	featured := &PageSnapshot{SourcePath: "featured.md", Metadata: map[string]interface{}{"featured": true}}
	index := &PageSnapshot{SourcePath: "index.md", IsSectionIndex: true}

	assignAttentionScores([]*PageSnapshot{plain, featured, index})

	if index.AttentionScore <= featured.AttentionScore {
		t.Fatalf("expected section index to outrank featured: index=%v featured=%v", index.AttentionScore, featured.AttentionScore)
	}
	if featured.AttentionScore <= plain.AttentionScore {
		t.Fatalf("expected featured to outrank plain: featured=%v plain=%v", featured.AttentionScore, plain.AttentionScore)
	}
}

func TestSortedCopyOrdersByWeightThenDateThenTitle(t *testing.T) {
	low := &PageSnapshot{Title: "Low", Weight: intPtr(1)}
	high := &PageSnapshot{Title: "High", Weight: intPtr(2)}
	unweighted := &PageSnapshot{Title: "Unweighted"}

	out := sortedCopy([]*PageSnapshot{high, low, unweighted})
	if out[0] != unweighted || out[1] != low || out[2] != high {
		t.Fatalf("expected unweighted(0) < low(1) < high(2), got %+v", out)
	}
}

func TestLinkNextPrevChainsInOrder(t *testing.T) {
	a := &PageSnapshot{SourcePath: "a.md"}
	b := &PageSnapshot{SourcePath: "b.md"}
	c := &PageSnapshot{SourcePath: "c.md"}
	linkNextPrev([]*PageSnapshot{a, b, c})

	if a.PrevPage != nil || a.NextPage != b {
		t.Fatalf("a: expected nil prev, b next, got prev=%v next=%v", a.PrevPage, a.NextPage)
	}
	if b.PrevPage != a || b.NextPage != c {
		t.Fatalf("b: expected a prev, c next")
	}
	if c.PrevPage != b || c.NextPage != nil {
		t.Fatalf("c: expected b prev, nil next")
	}
}

func TestBuildScoutHintsOrdersByPagesUsingDescending(t *testing.T) {
	groups := map[string][]*PageSnapshot{
		"page.html":    {{}, {}, {}},
		"section.html": {{}},
	}
	hints := buildScoutHints(groups, func(name string) []string { return []string{"partials/" + name} })

	if len(hints) != 2 {
		t.Fatalf("expected 2 hints, got %d", len(hints))
	}
	if hints[0].TemplatePath != "page.html" || hints[0].PagesUsing != 3 {
		t.Fatalf("expected page.html first with 3 pages, got %+v", hints[0])
	}
	if hints[0].Priority <= hints[1].Priority {
		t.Fatalf("expected descending priority, got %+v", hints)
	}
	if len(hints[0].PartialPaths) != 1 {
		t.Fatalf("expected partials resolved via PartialsOf, got %+v", hints[0].PartialPaths)
	}
}

func TestDefaultTemplateOfUsesTypeThenSectionIndexThenPage(t *testing.T) {
	withType := newPage("a.md", "A", nil)
	ty := "post"
	withType.Type = &ty
	if got := defaultTemplateOf(withType, false); got != "post.html" {
		t.Fatalf("expected post.html, got %s", got)
	}

	plain := newPage("b.md", "B", nil)
	if got := defaultTemplateOf(plain, true); got != "section.html" {
		t.Fatalf("expected section.html for section index, got %s", got)
	}
	if got := defaultTemplateOf(plain, false); got != "page.html" {
		t.Fatalf("expected page.html default, got %s", got)
	}
}
