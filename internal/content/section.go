package content

import (
	"sort"
	"time"

	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// Section is a directory-based content grouping identified by an
// `_index.md` (spec §3.5). Pages is kept in discovery order; SortedPages is
// a cached derived view by (weight asc, date desc, title asc). Pages holds
// PageHandle rather than *Page so a cache-warm section can mix loaded pages
// with still-lazy PageProxy entries without forcing a load just to sort.
type Section struct {
	Path        pathutil.SourcePath
	Pages       []PageHandle
	Subsections []*Section
	Metadata    map[string]interface{}
	Parent      *Section

	// IndexPage is the page built from this section's `_index.md`, if one
	// exists. It is never a member of Pages (spec §3.5 `pages` enumerates
	// only regular pages); a section lacking one still renders an index
	// output, synthesized at snapshot time (spec §4.10 "finalize
	// sections").
	IndexPage *Page

	sortedPages       []PageHandle
	sortedSubsections []*Section
}

// SortedPages returns Pages ordered by (weight asc, date desc, title asc),
// computing and caching the order on first call.
func (s *Section) SortedPages() []PageHandle {
	if s.sortedPages == nil {
		s.sortedPages = append([]PageHandle(nil), s.Pages...)
		sortPagesCanonical(s.sortedPages)
	}
	return s.sortedPages
}

// SortedSubsections returns Subsections ordered the same way, treating a
// subsection's index page (if any) as its sort key source. A subsection
// without an index page sorts as weight 0, no date, empty title; ties
// fall back to Path.
func (s *Section) SortedSubsections() []*Section {
	if s.sortedSubsections == nil {
		s.sortedSubsections = append([]*Section(nil), s.Subsections...)
		key := func(sec *Section) PageCore {
			if sec.IndexPage != nil {
				return sec.IndexPage.PageCore
			}
			return PageCore{}
		}
		sort.SliceStable(s.sortedSubsections, func(i, j int) bool {
			a, b := s.sortedSubsections[i], s.sortedSubsections[j]
			ci, cj := key(a), key(b)
			if wi, wj := weightOf(ci), weightOf(cj); wi != wj {
				return wi < wj
			}
			if di, dj := dateOf(ci), dateOf(cj); !di.Equal(dj) {
				return di.After(dj) // date desc
			}
			if ci.Title != cj.Title {
				return ci.Title < cj.Title
			}
			return a.Path < b.Path
		})
	}
	return s.sortedSubsections
}

// InvalidateSortCache drops the cached sorted views, forcing recomputation
// on next access. Called after an incremental rebuild changes membership.
func (s *Section) InvalidateSortCache() {
	s.sortedPages = nil
	s.sortedSubsections = nil
}

// Cascade returns the section's own cascade mapping (the `cascade` key in
// its frontmatter), or nil if absent.
func (s *Section) Cascade() map[string]interface{} {
	if s.Metadata == nil {
		return nil
	}
	c, _ := s.Metadata["cascade"].(map[string]interface{})
	return c
}

func sortPagesCanonical(pages []PageHandle) {
	sort.SliceStable(pages, func(i, j int) bool {
		ci, cj := pages[i].CoreMeta(), pages[j].CoreMeta()
		wi, wj := weightOf(ci), weightOf(cj)
		if wi != wj {
			return wi < wj
		}
		di, dj := dateOf(ci), dateOf(cj)
		if !di.Equal(dj) {
			return di.After(dj) // date desc
		}
		return ci.Title < cj.Title
	})
}

func weightOf(c PageCore) int {
	if c.Weight != nil {
		return *c.Weight
	}
	return 0
}

func dateOf(c PageCore) time.Time {
	if c.Date != nil {
		return *c.Date
	}
	return time.Time{}
}
