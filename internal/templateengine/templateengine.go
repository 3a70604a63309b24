// Package templateengine is the default (non-core) implementation of the
// §6.4 TemplateEngine collaborator: html/template with an mtime-checked
// cache, the way the teacher's builder/renderer/template_cache.go avoids
// re-parsing template files on every call within a warm process.
package templateengine

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Engine loads `*.html` templates from Dir and caches parsed
// *template.Template values, re-parsing a name only when its file's mtime
// moves forward (spec §5 "read-mostly during rendering").
type Engine struct {
	Dir     string
	FuncMap template.FuncMap

	mu        sync.RWMutex
	templates map[string]*template.Template
	mtimes    map[string]time.Time
}

// New builds an Engine rooted at dir. Templates are read directly off the
// OS filesystem — like the teacher's Renderer, this module treats
// templates as static source alongside the binary, not as site content
// flowing through afero.
func New(dir string, funcs template.FuncMap) *Engine {
	merged := template.FuncMap{
		"lower":     strings.ToLower,
		"hasPrefix": strings.HasPrefix,
		"now":       time.Now,
	}
	for k, v := range funcs {
		merged[k] = v
	}
	return &Engine{
		Dir:       dir,
		FuncMap:   merged,
		templates: map[string]*template.Template{},
		mtimes:    map[string]time.Time{},
	}
}

func (e *Engine) path(name string) string {
	return filepath.Join(e.Dir, name)
}

// TemplateExists satisfies §6.4's template_exists(name) -> bool.
func (e *Engine) TemplateExists(name string) bool {
	_, err := os.Stat(e.path(name))
	return err == nil
}

// load parses or returns the cached *template.Template for name,
// re-parsing when the backing file's mtime has moved forward since the
// cached copy was built.
func (e *Engine) load(name string) (*template.Template, error) {
	path := e.path(name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("templateengine: stat %s: %w", name, err)
	}

	e.mu.RLock()
	cached, ok := e.templates[name]
	cachedMTime := e.mtimes[name]
	e.mu.RUnlock()
	if ok && !info.ModTime().After(cachedMTime) {
		return cached, nil
	}

	// Parse the named template alongside every Dir/partials/*.html file
	// (subdirectories of partials are not searched) so
	// {{template "partial"}} calls resolve (teacher's
	// renderer.go parses layout.html standalone; this module generalizes
	// to an arbitrary set of page/section templates sharing partials).
	partials, err := filepath.Glob(filepath.Join(e.Dir, "partials", "*.html"))
	if err != nil {
		return nil, fmt.Errorf("templateengine: glob partials: %w", err)
	}

	tmpl := template.New(filepath.Base(name)).Funcs(e.FuncMap)
	files := append([]string{path}, partials...)
	tmpl, err = tmpl.ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("templateengine: parse %s: %w", name, err)
	}

	e.mu.Lock()
	e.templates[name] = tmpl
	e.mtimes[name] = info.ModTime()
	e.mu.Unlock()

	return tmpl, nil
}

// RenderTemplate satisfies §6.4's render_template(name, context) -> html.
func (e *Engine) RenderTemplate(name string, context map[string]interface{}) (string, error) {
	tmpl, err := e.load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, filepath.Base(name), context); err != nil {
		return "", fmt.Errorf("templateengine: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// PrecompileTemplates satisfies §6.4's precompile_templates([name]) ->
// count_precompiled: it loads each existing named template into the cache
// ahead of rendering (spec §4.9 "scout... may call env.get_template(name)").
// The orchestrator's build does not call it and runs no scout.
func (e *Engine) PrecompileTemplates(names []string) (int, error) {
	count := 0
	for _, name := range names {
		if !e.TemplateExists(name) {
			continue
		}
		if _, err := e.load(name); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// PartialsOf returns the names of every other template in name's parsed
// set, drawn from html/template's associated-template set rather than a
// hand-rolled dependency parser: every Dir/partials/*.html file and every
// {{define}} block, whether or not name actually calls it. The result is
// a superset of the partials name uses, not a traced closure.
func (e *Engine) PartialsOf(name string) []string {
	tmpl, err := e.load(name)
	if err != nil {
		return nil
	}
	var out []string
	for _, t := range tmpl.Templates() {
		if t.Name() != filepath.Base(name) && t.Name() != "" {
			out = append(out, t.Name())
		}
	}
	return out
}
