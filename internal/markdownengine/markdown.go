// Package markdownengine is the default (non-core) implementation of the
// §6.3 Parser collaborator: goldmark plus the syntax-highlighting, math
// passthrough, admonition, and table-of-contents extensions the teacher
// wires in builder/parser/parser.go, generalized from that blog's
// Mermaid/KaTeX-specific transformers to plain link rewriting and TOC
// extraction.
package markdownengine

import (
	"bytes"
	"path/filepath"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/gohugoio/hugo-goldmark-extensions/passthrough"
	admonitions "github.com/stefanfritsch/goldmark-admonitions"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	gmtoc "go.abhg.dev/goldmark/toc"

	"github.com/bengal-ssg/bengal/internal/content"
)

// parserVersion is the stable version string the §6.3 contract keys the
// parsed-content cache on; bump it whenever an extension change would
// alter rendered output for unchanged markdown.
const parserVersion = "goldmark+highlighting+chroma+passthrough+admonitions+toc@1"

// Engine implements the orchestrator's Parser collaborator interface
// (spec §6.3: parse(markdown) -> (html, toc, toc_items, ast, links)). Its
// Parse returns html, toc, toc items and links; it returns no AST.
type Engine struct {
	md      goldmark.Markdown
	baseURL string
}

// New builds an Engine. baseURL, when non-empty, is prefixed onto any
// root-relative link destination (teacher's URLTransformer behavior).
func New(baseURL string) *Engine {
	e := &Engine{baseURL: baseURL}
	e.md = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("nord"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
			passthrough.New(passthrough.Config{
				InlineDelimiters: []passthrough.Delimiters{{Open: "$", Close: "$"}, {Open: `\(`, Close: `\)`}},
				BlockDelimiters:  []passthrough.Delimiters{{Open: "$$", Close: "$$"}, {Open: `\[`, Close: `\]`}},
			}),
			&admonitions.Extender{},
		),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(
				util.Prioritized(&urlTransformer{baseURL: baseURL}, 100),
			),
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return e
}

// ParserVersion satisfies the §6.3 collaborator contract.
func (e *Engine) ParserVersion() string { return parserVersion }

// Parse renders sourceMarkdown to HTML and extracts a TOC and the page's
// outbound links (spec §6.3).
func (e *Engine) Parse(sourceMarkdown string) (string, string, []content.TOCItem, []string, error) {
	src := []byte(sourceMarkdown)

	doc := e.md.Parser().Parse(text.NewReader(src))

	tocItems := flattenTOC(doc, src)
	links := collectLinks(doc)

	var buf bytes.Buffer
	if err := e.md.Renderer().Render(&buf, src, doc); err != nil {
		return "", "", nil, nil, err
	}

	return buf.String(), renderTOCHTML(tocItems), tocItems, links, nil
}

// flattenTOC walks the rendered heading tree via go.abhg.dev/goldmark/toc
// and flattens it into the spec's flat TOCItem list, recording depth as
// Level (spec §3.3 "toc_items": flat list with a level per entry).
func flattenTOC(doc ast.Node, src []byte) []content.TOCItem {
	tree, err := gmtoc.Inspect(doc, src)
	if err != nil || tree == nil {
		return nil
	}
	var out []content.TOCItem
	var walk func(items gmtoc.Items, depth int)
	walk = func(items gmtoc.Items, depth int) {
		for _, item := range items {
			out = append(out, content.TOCItem{
				ID:    string(item.ID),
				Title: string(item.Title),
				Level: depth,
			})
			walk(item.Items, depth+1)
		}
	}
	walk(tree.Items, 1)
	return out
}

// renderTOCHTML builds a minimal flat <ul> from the item list, one <li> per
// heading; Level is not used, so subheadings are not nested. It serves
// callers that want an inline TOC fragment rather than the structured list.
func renderTOCHTML(items []content.TOCItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<ul class="toc">`)
	for _, item := range items {
		b.WriteString(`<li><a href="#`)
		b.WriteString(item.ID)
		b.WriteString(`">`)
		b.WriteString(item.Title)
		b.WriteString(`</a></li>`)
	}
	b.WriteString(`</ul>`)
	return b.String()
}

func collectLinks(doc ast.Node) []string {
	var links []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch target := n.(type) {
		case *ast.Link:
			links = append(links, string(target.Destination))
		case *ast.Image:
			links = append(links, string(target.Destination))
		}
		return ast.WalkContinue, nil
	})
	return links
}

// urlTransformer rewrites `.md` links to the rendered output extension and
// marks external links with target="_blank" (grounded on the teacher's
// builder/parser/parser.go URLTransformer, trimmed of blog-specific image
// webp rewriting).
type urlTransformer struct {
	baseURL string
}

func (t *urlTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch target := n.(type) {
		case *ast.Link:
			target.Destination = t.rewrite(n, target.Destination, true)
		case *ast.Image:
			target.Destination = t.rewrite(n, target.Destination, false)
		}
		return ast.WalkContinue, nil
	})
}

func (t *urlTransformer) rewrite(n ast.Node, dest []byte, isLink bool) []byte {
	href := string(dest)

	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		if isLink {
			n.SetAttribute([]byte("target"), []byte("_blank"))
			n.SetAttribute([]byte("rel"), []byte("noopener noreferrer"))
		}
		return dest
	}

	if strings.EqualFold(filepath.Ext(href), ".md") {
		href = href[:len(href)-len(filepath.Ext(href))] + ".html"
	}

	if strings.HasPrefix(href, "/") && t.baseURL != "" {
		href = t.baseURL + href
	}

	return []byte(href)
}
