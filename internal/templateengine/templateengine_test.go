package templateengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRenderTemplateSubstitutesContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{define "page.html"}}<h1>{{.Title}}</h1>{{end}}`)

	e := New(dir, nil)
	out, err := e.RenderTemplate("page.html", map[string]interface{}{"Title": "Hello"})
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out != "<h1>Hello</h1>" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTemplateExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{define "page.html"}}x{{end}}`)

	e := New(dir, nil)
	if !e.TemplateExists("page.html") {
		t.Fatalf("expected page.html to exist")
	}
	if e.TemplateExists("missing.html") {
		t.Fatalf("expected missing.html to not exist")
	}
}

func TestRenderTemplateIncludesPartials(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{define "page.html"}}<body>{{template "header.html" .}}</body>{{end}}`)
	writeFile(t, filepath.Join(dir, "partials", "header.html"), `{{define "header.html"}}<header>{{.Title}}</header>{{end}}`)

	e := New(dir, nil)
	out, err := e.RenderTemplate("page.html", map[string]interface{}{"Title": "Site"})
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out != "<body><header>Site</header></body>" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRenderTemplateRecachesOnMTimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	writeFile(t, path, `{{define "page.html"}}v1{{end}}`)

	e := New(dir, nil)
	out1, err := e.RenderTemplate("page.html", nil)
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out1 != "v1" {
		t.Fatalf("expected v1, got %q", out1)
	}

	future := time.Now().Add(time.Minute)
	writeFile(t, path, `{{define "page.html"}}v2{{end}}`)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	out2, err := e.RenderTemplate("page.html", nil)
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out2 != "v2" {
		t.Fatalf("expected re-parsed v2, got %q", out2)
	}
}

func TestPrecompileTemplatesSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{define "page.html"}}x{{end}}`)

	e := New(dir, nil)
	count, err := e.PrecompileTemplates([]string{"page.html", "missing.html"})
	if err != nil {
		t.Fatalf("PrecompileTemplates: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 precompiled, got %d", count)
	}
}

func TestPartialsOfReturnsAssociatedTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{define "page.html"}}{{template "header.html" .}}{{end}}`)
	writeFile(t, filepath.Join(dir, "partials", "header.html"), `{{define "header.html"}}h{{end}}`)

	e := New(dir, nil)
	partials := e.PartialsOf("page.html")
	found := false
	for _, p := range partials {
		if p == "header.html" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected header.html among partials, got %v", partials)
	}
}
