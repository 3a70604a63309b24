package taxonomy

import (
	"testing"

	"github.com/bengal-ssg/bengal/internal/content"
)

func TestRelatedPostsRanksByTagOverlap(t *testing.T) {
	a := newTestPage("content/a.md", "A", "go", "cli", "testing")
	b := newTestPage("content/b.md", "B", "go", "cli")
	c := newTestPage("content/c.md", "C", "go")
	d := newTestPage("content/d.md", "D", "rust")

	related := RelatedPosts([]content.PageHandle{a, b, c, d}, 2)
	got := related["content/a.md"]
	if len(got) != 2 {
		t.Fatalf("expected 2 related pages, got %d", len(got))
	}
	if got[0].CoreMeta().SourcePath != "content/b.md" {
		t.Fatalf("expected b (2 shared tags) ranked first, got %s", got[0].CoreMeta().SourcePath)
	}
	if got[1].CoreMeta().SourcePath != "content/c.md" {
		t.Fatalf("expected c (1 shared tag) ranked second, got %s", got[1].CoreMeta().SourcePath)
	}
}

func TestRelatedPostsSkippedAboveThreshold(t *testing.T) {
	pages := make([]content.PageHandle, RelatedPostsSkipThreshold+1)
	for i := range pages {
		pages[i] = newTestPage("content/p.md", "P", "go")
	}
	if RelatedPosts(pages, 5) != nil {
		t.Fatalf("expected nil when page count exceeds threshold")
	}
}

func TestRelatedPostsSkippedWithNoTags(t *testing.T) {
	a := newTestPage("content/a.md", "A")
	b := newTestPage("content/b.md", "B")
	if RelatedPosts([]content.PageHandle{a, b}, 5) != nil {
		t.Fatalf("expected nil when no page has tags")
	}
}
