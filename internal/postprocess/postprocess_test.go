package postprocess

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

func testConfig() *config.Config {
	return &config.Config{
		Title:       "Test Site",
		Description: "a site",
		BaseURL:     "https://example.com",
		OutputDir:   "/public",
		Features: config.GeneratorsConfig{
			Sitemap:   true,
			RSS:       true,
			Redirects: true,
			Search:    true,
			JSONDump:  true,
		},
	}
}

func samplePages() []*snapshot.PageSnapshot {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	return []*snapshot.PageSnapshot{
		{
			SourcePath: "content/post-one.md",
			Title:      "Post One",
			Tags:       []string{"go", "testing"},
			Date:       &date,
			OutputPath: "post-one.html",
			RawContent: "<p>Hello world, this is a test post about Go.</p>",
			Metadata:   map[string]interface{}{"aliases": []string{"old/post-one"}},
		},
		{
			SourcePath:     "content/_index.md",
			Title:          "Home",
			OutputPath:     "index.html",
			IsSectionIndex: true,
			RawContent:     "<p>welcome</p>",
			Metadata:       map[string]interface{}{},
		},
	}
}

func TestSitemapWritesEntryPerPage(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	if err := (Sitemap{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data, err := afero.ReadFile(fs, "/public/sitemap.xml")
	if err != nil {
		t.Fatalf("expected sitemap.xml written: %v", err)
	}
	if !contains(string(data), "post-one.html") {
		t.Fatalf("expected sitemap to reference post-one.html, got %s", data)
	}
}

func TestSitemapDisabledByFeatureToggle(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := testConfig()
	cfg.Features.Sitemap = false
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	if err := (Sitemap{}).Emit(context.Background(), snap, cfg, fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if exists, _ := afero.Exists(fs, "/public/sitemap.xml"); exists {
		t.Fatalf("expected no sitemap.xml when disabled")
	}
}

func TestRSSSkipsSectionIndexes(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	if err := (RSS{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data, err := afero.ReadFile(fs, "/public/rss.xml")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if contains(string(data), "Home") {
		t.Fatalf("expected section index excluded from RSS, got %s", data)
	}
	if !contains(string(data), "Post One") {
		t.Fatalf("expected post included in RSS, got %s", data)
	}
}

func TestRedirectsEmitsPageForEachAlias(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	if err := (Redirects{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data, err := afero.ReadFile(fs, "/public/old/post-one/index.html")
	if err != nil {
		t.Fatalf("expected redirect page written: %v", err)
	}
	if !contains(string(data), "/post-one.html") {
		t.Fatalf("expected redirect to point at canonical page, got %s", data)
	}
}

func TestRedirectsSkipsCollisionWithRenderedPage(t *testing.T) {
	fs := afero.NewMemMapFs()
	pages := samplePages()
	pages[0].Metadata["aliases"] = []string{"index.html"}
	if err := afero.WriteFile(fs, "/public/index.html", []byte("<p>welcome</p>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	snap := &snapshot.SiteSnapshot{Pages: pages}
	if err := (Redirects{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data, err := afero.ReadFile(fs, "/public/index.html")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if contains(string(data), "meta http-equiv") {
		t.Fatalf("expected already-rendered page to win the collision, got a redirect instead")
	}
}

func TestRedirectsGeneratesRedirectsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	r := Redirects{GenerateRedirectsFile: true}
	if err := r.Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data, err := afero.ReadFile(fs, "/public/_redirects")
	if err != nil {
		t.Fatalf("expected _redirects file: %v", err)
	}
	if !contains(string(data), "301") {
		t.Fatalf("expected 301 status in _redirects file, got %s", data)
	}
}

func TestJSONTextDumpWritesBothFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	if err := (JSONTextDump{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := afero.ReadFile(fs, "/public/post-one.json"); err != nil {
		t.Fatalf("expected post-one.json: %v", err)
	}
	txt, err := afero.ReadFile(fs, "/public/post-one.txt")
	if err != nil {
		t.Fatalf("expected post-one.txt: %v", err)
	}
	if contains(string(txt), "<p>") {
		t.Fatalf("expected HTML stripped from text dump, got %s", txt)
	}
}

func TestSearchIndexWritesCompressedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := &snapshot.SiteSnapshot{Pages: samplePages()}
	if err := (SearchIndex{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	info, err := fs.Stat("/public/search.bin")
	if err != nil {
		t.Fatalf("expected search.bin written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty search index")
	}
}

func TestVersionScopingSeparatesOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	pages := samplePages()
	pages[0].Metadata["lang"] = "fr"
	snap := &snapshot.SiteSnapshot{Pages: pages}
	if err := (Sitemap{}).Emit(context.Background(), snap, testConfig(), fs); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := afero.ReadFile(fs, "/public/fr/sitemap.xml"); err != nil {
		t.Fatalf("expected versioned sitemap at fr/sitemap.xml: %v", err)
	}
	if _, err := afero.ReadFile(fs, "/public/sitemap.xml"); err != nil {
		t.Fatalf("expected default-version sitemap still written: %v", err)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
