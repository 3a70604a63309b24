package scheduler

import (
	"errors"
	"sync"
	"testing"

	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

func page(path string) *snapshot.PageSnapshot {
	return &snapshot.PageSnapshot{SourcePath: pathutil.SourcePath(path)}
}

func TestBuildTemplateBatchesOrdersByDescendingSizeThenName(t *testing.T) {
	snap := &snapshot.SiteSnapshot{
		TemplateGroups: map[string][]*snapshot.PageSnapshot{
			"page.html":    {page("a.md"), page("b.md")},
			"post.html":    {page("c.md")},
			"section.html": {page("d.md"), page("e.md")},
		},
	}
	toBuild := map[pathutil.SourcePath]bool{"a.md": true, "b.md": true, "c.md": true, "d.md": true, "e.md": true}

	batches := BuildTemplateBatches(snap, toBuild)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 {
		t.Fatalf("expected the two 2-page batches first, got sizes %d,%d,%d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
	if len(batches[2]) != 1 {
		t.Fatalf("expected post.html's single page last, got %+v", batches)
	}
}

func TestBuildTemplateBatchesExcludesPagesNotInToBuild(t *testing.T) {
	snap := &snapshot.SiteSnapshot{
		TemplateGroups: map[string][]*snapshot.PageSnapshot{
			"page.html": {page("a.md"), page("b.md")},
		},
	}
	batches := BuildTemplateBatches(snap, map[pathutil.SourcePath]bool{"a.md": true})
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected a single-page batch, got %+v", batches)
	}
}

func TestBuildTopologicalWavesFiltersAndPreservesOrder(t *testing.T) {
	a, b, c := page("a.md"), page("b.md"), page("c.md")
	snap := &snapshot.SiteSnapshot{
		Pages: []*snapshot.PageSnapshot{a, b, c},
		Waves: [][]*snapshot.PageSnapshot{{a}, {b}, {c}},
	}
	toBuild := map[pathutil.SourcePath]bool{"a.md": true, "c.md": true}

	waves := BuildTopologicalWaves(snap, toBuild)
	if len(waves) != 2 {
		t.Fatalf("expected 2 non-empty waves, got %d: %+v", len(waves), waves)
	}
	if waves[0][0].SourcePath != "a.md" || waves[1][0].SourcePath != "c.md" {
		t.Fatalf("expected wave order preserved, got %+v", waves)
	}
}

func TestBuildTopologicalWavesOrphansFormFinalWave(t *testing.T) {
	a, orphan := page("a.md"), page("orphan.md")
	snap := &snapshot.SiteSnapshot{
		Pages: []*snapshot.PageSnapshot{a, orphan},
		Waves: [][]*snapshot.PageSnapshot{{a}},
	}
	toBuild := map[pathutil.SourcePath]bool{"a.md": true, "orphan.md": true}

	waves := BuildTopologicalWaves(snap, toBuild)
	if len(waves) != 2 {
		t.Fatalf("expected an orphan wave appended, got %+v", waves)
	}
	if waves[1][0].SourcePath != "orphan.md" {
		t.Fatalf("expected orphan page in the trailing wave, got %+v", waves[1])
	}
}

func TestRenderSequentialWhenBelowParallelThreshold(t *testing.T) {
	snap := &snapshot.SiteSnapshot{
		TemplateGroups: map[string][]*snapshot.PageSnapshot{"page.html": {page("a.md"), page("b.md")}},
	}
	toBuild := map[pathutil.SourcePath]bool{"a.md": true, "b.md": true}

	s := &Scheduler{WorkloadType: CPUBound, Environment: Local}
	var rendered []string
	var mu sync.Mutex
	result := s.Render(snap, toBuild, func(p *snapshot.PageSnapshot) (bool, error) {
		mu.Lock()
		rendered = append(rendered, string(p.SourcePath))
		mu.Unlock()
		return false, nil
	})

	if result.Rendered != 2 {
		t.Fatalf("expected 2 pages rendered, got %d", result.Rendered)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", result.Errors)
	}
}

func TestRenderCountsCacheHits(t *testing.T) {
	snap := &snapshot.SiteSnapshot{TemplateGroups: map[string][]*snapshot.PageSnapshot{"page.html": {page("a.md")}}}
	toBuild := map[pathutil.SourcePath]bool{"a.md": true}

	s := &Scheduler{}
	result := s.Render(snap, toBuild, func(p *snapshot.PageSnapshot) (bool, error) { return true, nil })
	if result.CacheHits != 1 || result.Rendered != 1 {
		t.Fatalf("expected 1 rendered with 1 cache hit, got %+v", result)
	}
}

func TestRenderCollectsErrorsAndSwallowsShutdown(t *testing.T) {
	snap := &snapshot.SiteSnapshot{
		TemplateGroups: map[string][]*snapshot.PageSnapshot{
			"page.html": {page("good.md"), page("bad.md"), page("shutdown.md")},
		},
	}
	toBuild := map[pathutil.SourcePath]bool{"good.md": true, "bad.md": true, "shutdown.md": true}

	s := &Scheduler{}
	result := s.Render(snap, toBuild, func(p *snapshot.PageSnapshot) (bool, error) {
		switch p.SourcePath {
		case "bad.md":
			return false, errors.New("template parse failed")
		case "shutdown.md":
			return false, errors.New("interpreter shutdown in progress")
		default:
			return false, nil
		}
	})

	if result.Rendered != 1 {
		t.Fatalf("expected only good.md counted as rendered, got %d", result.Rendered)
	}
	if len(result.Errors) != 1 || result.Errors[0].Page != "bad.md" {
		t.Fatalf("expected only bad.md reported as an error, got %+v", result.Errors)
	}
}

func TestRenderReportsProgress(t *testing.T) {
	snap := &snapshot.SiteSnapshot{
		TemplateGroups: map[string][]*snapshot.PageSnapshot{"page.html": {page("a.md"), page("b.md"), page("c.md")}},
	}
	toBuild := map[pathutil.SourcePath]bool{"a.md": true, "b.md": true, "c.md": true}

	var lastCompleted, lastTotal int
	s := &Scheduler{ProgressBatch: 1, Progress: func(completed, total int, lastItem string) {
		lastCompleted, lastTotal = completed, total
	}}
	s.Render(snap, toBuild, func(p *snapshot.PageSnapshot) (bool, error) { return false, nil })

	if lastCompleted != 3 || lastTotal != 3 {
		t.Fatalf("expected final progress update to report 3/3, got %d/%d", lastCompleted, lastTotal)
	}
}
