package taxonomy

import (
	"testing"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

func newDatedPage(path, title string, date time.Time, section string, tags ...string) *content.Page {
	p := newTestPage(path, title, tags...)
	p.Date = &date
	if section != "" {
		sp := pathutil.SourcePath(section)
		p.PageCore.Section = &sp
	}
	return p
}

func TestQueryIndexesBuildAndLookup(t *testing.T) {
	older := newDatedPage("content/blog/a.md", "A", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "blog", "go")
	newer := newDatedPage("content/blog/b.md", "B", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "blog", "go")

	q := NewQueryIndexes()
	q.Build([]content.PageHandle{older, newer})

	byDate := q.ByDate()
	if len(byDate) != 2 || byDate[0].CoreMeta().SourcePath != "content/blog/b.md" {
		t.Fatalf("expected newer page first, got %v", byDate)
	}
	if len(q.BySection("blog")) != 2 {
		t.Fatalf("expected 2 pages in 'blog' section")
	}
	if len(q.ByTag("go")) != 2 {
		t.Fatalf("expected 2 pages tagged 'go'")
	}
}

func TestQueryIndexesUpdateReturnsAffectedKeys(t *testing.T) {
	a := newDatedPage("content/blog/a.md", "A", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "blog", "go")
	q := NewQueryIndexes()
	q.Build([]content.PageHandle{a})

	a.Tags = []string{"rust"}
	affected := q.Update([]content.PageHandle{a}, nil)

	found := map[string]bool{}
	for _, k := range affected {
		found[k] = true
	}
	if !found["by_tag:go"] || !found["by_tag:rust"] {
		t.Fatalf("expected both old and new tag buckets affected, got %v", affected)
	}
	if len(q.ByTag("go")) != 0 {
		t.Fatalf("expected 'go' bucket emptied")
	}
	if len(q.ByTag("rust")) != 1 {
		t.Fatalf("expected 'rust' bucket to hold the page")
	}
}

func TestQueryIndexesUpdateHandlesRemoval(t *testing.T) {
	a := newDatedPage("content/blog/a.md", "A", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "blog", "go")
	q := NewQueryIndexes()
	q.Build([]content.PageHandle{a})

	q.Update(nil, []pathutil.SourcePath{"content/blog/a.md"})

	if len(q.ByDate()) != 0 {
		t.Fatalf("expected by_date empty after removal")
	}
	if len(q.BySection("blog")) != 0 {
		t.Fatalf("expected section bucket emptied after removal")
	}
}
