package taxonomy

import (
	"testing"

	"github.com/bengal-ssg/bengal/internal/content"
)

func TestHasNavAffectingChange(t *testing.T) {
	if !HasNavAffectingChange([]string{"summary", "weight"}) {
		t.Fatalf("expected weight to be nav-affecting")
	}
	if HasNavAffectingChange([]string{"summary", "color"}) {
		t.Fatalf("expected no nav-affecting key present")
	}
}

func TestBuildMenusFromConfig(t *testing.T) {
	cfg := MenuConfig{
		"main": {
			{Identifier: "home", Name: "Home", URL: "/", Weight: 1},
			{Identifier: "about", Name: "About", URL: "/about/", Weight: 2},
		},
	}
	menus := BuildMenus(nil, cfg)
	entries := menus["main"]
	if len(entries) != 2 {
		t.Fatalf("expected 2 top-level entries, got %d", len(entries))
	}
	if entries[0].Identifier != "home" {
		t.Fatalf("expected 'home' first by weight, got %s", entries[0].Identifier)
	}
}

func TestBuildMenusFromPageFrontmatterHint(t *testing.T) {
	p := newTestPage("content/docs.md", "Docs")
	p.Metadata["menu"] = map[string]interface{}{
		"main": map[string]interface{}{"weight": 5},
	}
	out := "/docs/"
	p.OutputPath = &out

	menus := BuildMenus([]*content.Page{p}, nil)
	entries := menus["main"]
	if len(entries) != 1 || entries[0].Name != "Docs" || entries[0].URL != "/docs/" {
		t.Fatalf("expected Docs entry from frontmatter hint, got %+v", entries)
	}
}

func TestBuildMenusNestsChildUnderParent(t *testing.T) {
	cfg := MenuConfig{
		"main": {
			{Identifier: "docs", Name: "Docs", Weight: 1},
			{Identifier: "docs-intro", Name: "Intro", Parent: "docs", Weight: 1},
		},
	}
	menus := BuildMenus(nil, cfg)
	entries := menus["main"]
	if len(entries) != 1 {
		t.Fatalf("expected 1 top-level entry, got %d", len(entries))
	}
	if len(entries[0].Children) != 1 || entries[0].Children[0].Identifier != "docs-intro" {
		t.Fatalf("expected child nested under docs, got %+v", entries[0])
	}
}
