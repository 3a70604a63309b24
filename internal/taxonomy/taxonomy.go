// Package taxonomy builds and incrementally updates tag/term indexes,
// menus, related-post lists, and query indexes (spec §4.6).
package taxonomy

import (
	"sort"
	"sync"

	"github.com/bengal-ssg/bengal/internal/buildcache"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// Term is one taxonomy value: a tag's slug, display name, and the pages
// carrying it (spec §4.6 `taxonomies[kind][slug] = {name, slug, pages}`).
type Term struct {
	Slug  string
	Name  string
	Pages []content.PageHandle
}

// Index holds every term for one taxonomy kind ("tags" is the only kind
// spec.md names; Kind is kept general so a future kind needs no redesign).
type Index struct {
	mu    sync.RWMutex
	Kind  string
	Terms map[string]*Term
}

// NewIndex returns an empty index for the given kind.
func NewIndex(kind string) *Index {
	return &Index{Kind: kind, Terms: map[string]*Term{}}
}

// Build performs a full-site taxonomy pass (spec §4.6 "walk regular
// pages"), discarding any prior state.
func (idx *Index) Build(pages []content.PageHandle) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Terms = map[string]*Term{}
	for _, p := range pages {
		idx.addLocked(p)
	}
	idx.sortAllLocked()
}

// Update recomputes only the tags of the given changed pages, leaving
// every other term untouched (spec §4.6 "only those pages' tags are
// recomputed; the taxonomy index is updated in place"). removed carries
// source paths of pages that no longer exist. Returns the set of term
// slugs whose membership changed, so callers know which listing pages need
// regeneration.
func (idx *Index) Update(changed []content.PageHandle, removed []pathutil.SourcePath) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	affected := map[string]struct{}{}
	for _, path := range removed {
		for slug := range idx.removeLocked(path) {
			affected[slug] = struct{}{}
		}
	}
	for _, p := range changed {
		path := p.CoreMeta().SourcePath
		for slug := range idx.removeLocked(path) {
			affected[slug] = struct{}{}
		}
		for _, slug := range idx.addLocked(p) {
			affected[slug] = struct{}{}
		}
	}
	idx.sortAllLocked()

	out := make([]string, 0, len(affected))
	for slug := range affected {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// AffectedByMetadataChange returns the slugs of terms a page currently
// belongs to, without altering membership. Used for the cascade case in
// spec §4.6: a page whose title/date/summary changed needs its listing
// pages regenerated even though its tag set didn't move.
func (idx *Index) AffectedByMetadataChange(pages []content.PageHandle) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, p := range pages {
		for _, tag := range p.CoreMeta().Tags {
			seen[NormalizeSlug(tag)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for slug := range seen {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Term returns the named term, or nil if it has no members.
func (idx *Index) Term(slug string) *Term {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Terms[slug]
}

// SortedTerms returns every term ordered by slug, for the tag-index page.
func (idx *Index) SortedTerms() []*Term {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Term, 0, len(idx.Terms))
	for _, t := range idx.Terms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// addLocked adds p to every term implied by its current tags, creating
// terms as needed, and returns the slugs touched. Caller holds idx.mu.
func (idx *Index) addLocked(p content.PageHandle) []string {
	core := p.CoreMeta()
	slugs := make([]string, 0, len(core.Tags))
	for _, tag := range core.Tags {
		slug := NormalizeSlug(tag)
		if slug == "" {
			continue
		}
		term := idx.Terms[slug]
		if term == nil {
			term = &Term{Slug: slug, Name: tag}
			idx.Terms[slug] = term
		}
		term.Pages = append(term.Pages, p)
		slugs = append(slugs, slug)
	}
	return slugs
}

// removeLocked drops path from every term it currently appears in, pruning
// terms left with no members, and returns the slugs touched.
func (idx *Index) removeLocked(path pathutil.SourcePath) map[string]struct{} {
	touched := map[string]struct{}{}
	for slug, term := range idx.Terms {
		kept := term.Pages[:0:0]
		removedAny := false
		for _, member := range term.Pages {
			if member.CoreMeta().SourcePath == path {
				removedAny = true
				continue
			}
			kept = append(kept, member)
		}
		if removedAny {
			term.Pages = kept
			touched[slug] = struct{}{}
			if len(term.Pages) == 0 {
				delete(idx.Terms, slug)
			}
		}
	}
	return touched
}

func (idx *Index) sortAllLocked() {
	for _, term := range idx.Terms {
		sort.SliceStable(term.Pages, func(i, j int) bool {
			ci, cj := term.Pages[i].CoreMeta(), term.Pages[j].CoreMeta()
			di, dj := ci.Date, cj.Date
			switch {
			case di == nil && dj == nil:
				return ci.Title < cj.Title
			case di == nil:
				return false
			case dj == nil:
				return true
			case !di.Equal(*dj):
				return di.After(*dj)
			default:
				return ci.Title < cj.Title
			}
		})
	}
}

// MemberHashes builds the per-member content-hash map buildcache's
// ShouldRegenerate/StoreGeneratedPageMembers needs (spec §3.8
// `generated_page_members`): pages lacking a FileHash (never hashed yet)
// are omitted from the map; ShouldRegenerateTerm reports any term with
// such a member as needing regeneration.
func MemberHashes(pages []content.PageHandle) map[string]hashing.ContentHash {
	out := make(map[string]hashing.ContentHash, len(pages))
	for _, p := range pages {
		c := p.CoreMeta()
		if c.FileHash != nil {
			out[string(c.SourcePath)] = *c.FileHash
		}
	}
	return out
}

// PersistTerm writes one term's membership to BuildCache's taxonomy_index
// table (spec §4.6 "taxonomy index persistence"), the authoritative source
// when a build starts cold with only a warm cache.
func PersistTerm(bc *buildcache.BuildCache, kind string, t *Term) {
	paths := make([]string, len(t.Pages))
	for i, p := range t.Pages {
		paths[i] = string(p.CoreMeta().SourcePath)
	}
	bc.SetTaxonomyPages(t.Slug, t.Name, paths)
	bc.StoreGeneratedPageMembers(kind, t.Slug, MemberHashes(t.Pages))
}

// ShouldRegenerateTerm reports whether a term's listing page must be
// regenerated this build; false means it can be skipped (spec §4.3
// "generated pages ... kept iff its generated_page_members entry's member
// set and per-member hashes match"). A term with any member lacking a
// FileHash is always regenerated.
func ShouldRegenerateTerm(bc *buildcache.BuildCache, kind string, t *Term) bool {
	for _, p := range t.Pages {
		if p.CoreMeta().FileHash == nil {
			return true
		}
	}
	return bc.ShouldRegenerate(kind, t.Slug, MemberHashes(t.Pages))
}
