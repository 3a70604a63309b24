package content

import "github.com/bengal-ssg/bengal/internal/pathutil"

// TOCItem is one entry in a page's table of contents (spec §3.3).
type TOCItem struct {
	ID    string
	Title string
	Level int
}

// Page composes PageCore with the build-time fields that require reading
// and parsing the source body (spec §3.3).
type Page struct {
	PageCore

	RawContent   string
	RenderedHTML string
	TOC          string
	TOCItems     []TOCItem
	Links        []string
	OutputPath   *string
	ParsedAST    interface{}
	RelatedPosts []*Page

	// Metadata is the merged view of frontmatter + cascades. CascadeKeys
	// (mirrored from PageCore) enumerates which keys were introduced by
	// cascading, so a later cascade run can clear exactly those (spec §3.3,
	// §4.5).
	Metadata map[string]interface{}

	Section *Section
}

// CascadeKeys returns the metadata keys the cascade engine introduced on
// this page, reading through to the PageCore copy so PageProxy pages (whose
// Page body may not exist yet) can answer without loading.
func (p *Page) CascadeKeys() []string {
	return p.PageCore.CascadeKeys
}

// SetCascadeKeys updates both the live Metadata's bookkeeping key and the
// PageCore copy used for lazily-loaded access.
func (p *Page) SetCascadeKeys(keys []string) {
	p.PageCore.CascadeKeys = keys
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}
	p.Metadata["_cascade_keys"] = keys
}

// Loader loads the full Page body for a given source path. Implemented by
// the discovery layer; referenced here only as a function type so
// PageProxy doesn't depend on discovery's filesystem concerns.
type Loader func(sourcePath pathutil.SourcePath) (*Page, error)

// PageProxy wraps a PageCore and a Loader (spec §3.4, §9 "PageProxy vs
// Page"). Any access to a non-core field forces the full Page to load;
// until then, it never touches disk. This is the cache-warm path: unchanged
// pages participate in cascades, sections, and navigation without a parse
// or a read.
type PageProxy struct {
	Core   PageCore
	loader Loader

	loaded *Page
}

// NewPageProxy wraps a PageCore with a loader. Core fields are available
// immediately; anything else triggers Promote.
func NewPageProxy(core PageCore, loader Loader) *PageProxy {
	return &PageProxy{Core: core, loader: loader}
}

// SourcePath identifies the proxy. PageProxy defines no equality of its
// own: two *PageProxy values compare by pointer, not by source path.
func (p *PageProxy) SourcePath() pathutil.SourcePath { return p.Core.SourcePath }

// Promote forces the full Page to load (and caches the result), returning
// it. Components that need body access — render, cascade mutation — must
// call Promote first (spec §9).
func (p *PageProxy) Promote() (*Page, error) {
	if p.loaded != nil {
		return p.loaded, nil
	}
	page, err := p.loader(p.Core.SourcePath)
	if err != nil {
		return nil, err
	}
	page.PageCore = p.Core
	p.loaded = page
	return page, nil
}

// IsLoaded reports whether Promote has already been called, without
// triggering a load.
func (p *PageProxy) IsLoaded() bool { return p.loaded != nil }

// AnyPage is the tagged-variant union from spec §9: `Page = Loaded(Page) |
// Lazy(Proxy)`. Components that only need core fields operate on AnyPage
// without forcing a promotion; components that need the body call Promote.
type AnyPage interface {
	SourcePath() pathutil.SourcePath
	CoreMeta() PageCore
}

// PageHandle extends AnyPage with the ability to force-load the full page.
// Section.Pages holds PageHandle values so a section can carry a mix of
// already-loaded Page and still-lazy PageProxy entries; components that
// only sort or read core metadata never call Promote, so a cache-warm
// build never forces a read for pages it doesn't need to touch.
type PageHandle interface {
	AnyPage
	Promote() (*Page, error)
}

func (p *Page) SourcePath() pathutil.SourcePath { return p.PageCore.SourcePath }
func (p *Page) CoreMeta() PageCore              { return p.PageCore }

// Promote on an already-loaded Page is a no-op returning itself, so callers
// that hold a PageHandle never need to branch on which variant they have.
func (p *Page) Promote() (*Page, error) { return p, nil }

func (p *PageProxy) CoreMeta() PageCore { return p.Core }
