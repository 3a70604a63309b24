package taxonomy

import (
	"sort"
	"sync"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// QueryIndexes pre-builds the O(1) lookup tables templates use (spec §4.6
// "by_date, by_section, by_tag"). Each bucket is kept pre-sorted so a
// template iterating `by_section["blog"]` never pays a sort itself.
type QueryIndexes struct {
	mu       sync.RWMutex
	byDate   []content.PageHandle
	bySection map[string][]content.PageHandle
	byTag    map[string][]content.PageHandle

	// owner tracks which buckets a given page currently sits in, so an
	// incremental Update can remove it cleanly before re-adding.
	owner map[pathutil.SourcePath]membership
}

type membership struct {
	section string
	tags    []string
}

// NewQueryIndexes returns an empty set of indexes.
func NewQueryIndexes() *QueryIndexes {
	return &QueryIndexes{
		bySection: map[string][]content.PageHandle{},
		byTag:     map[string][]content.PageHandle{},
		owner:     map[pathutil.SourcePath]membership{},
	}
}

// Build performs a full pass over pages, discarding any prior state.
func (q *QueryIndexes) Build(pages []content.PageHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byDate = nil
	q.bySection = map[string][]content.PageHandle{}
	q.byTag = map[string][]content.PageHandle{}
	q.owner = map[pathutil.SourcePath]membership{}
	for _, p := range pages {
		q.addLocked(p)
	}
	q.resortLocked()
}

// Update incrementally re-indexes changed pages (spec §4.8 D3 "incremental
// updates return affected keys"), returning the by_section/by_tag bucket
// keys that were touched so callers can decide what else needs rebuilding.
func (q *QueryIndexes) Update(changed []content.PageHandle, removed []pathutil.SourcePath) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	affected := map[string]struct{}{}
	for _, path := range removed {
		for key := range q.removeLocked(path) {
			affected[key] = struct{}{}
		}
	}
	for _, p := range changed {
		path := p.CoreMeta().SourcePath
		for key := range q.removeLocked(path) {
			affected[key] = struct{}{}
		}
		for key := range q.addLocked(p) {
			affected[key] = struct{}{}
		}
	}
	q.resortLocked()

	out := make([]string, 0, len(affected))
	for k := range affected {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (q *QueryIndexes) addLocked(p content.PageHandle) map[string]struct{} {
	core := p.CoreMeta()
	touched := map[string]struct{}{"by_date": {}}

	section := ""
	if core.Section != nil {
		section = string(*core.Section)
	}
	q.byDate = append(q.byDate, p)
	q.bySection[section] = append(q.bySection[section], p)
	touched["by_section:"+section] = struct{}{}

	tags := make([]string, 0, len(core.Tags))
	for _, tag := range core.Tags {
		slug := NormalizeSlug(tag)
		if slug == "" {
			continue
		}
		q.byTag[slug] = append(q.byTag[slug], p)
		touched["by_tag:"+slug] = struct{}{}
		tags = append(tags, slug)
	}
	q.owner[core.SourcePath] = membership{section: section, tags: tags}
	return touched
}

func (q *QueryIndexes) removeLocked(path pathutil.SourcePath) map[string]struct{} {
	m, ok := q.owner[path]
	if !ok {
		return nil
	}
	touched := map[string]struct{}{"by_date": {}, "by_section:" + m.section: {}}
	q.byDate = filterOut(q.byDate, path)
	q.bySection[m.section] = filterOut(q.bySection[m.section], path)
	if len(q.bySection[m.section]) == 0 {
		delete(q.bySection, m.section)
	}
	for _, tag := range m.tags {
		q.byTag[tag] = filterOut(q.byTag[tag], path)
		touched["by_tag:"+tag] = struct{}{}
		if len(q.byTag[tag]) == 0 {
			delete(q.byTag, tag)
		}
	}
	delete(q.owner, path)
	return touched
}

func filterOut(pages []content.PageHandle, path pathutil.SourcePath) []content.PageHandle {
	out := pages[:0:0]
	for _, p := range pages {
		if p.CoreMeta().SourcePath != path {
			out = append(out, p)
		}
	}
	return out
}

func (q *QueryIndexes) resortLocked() {
	sortByDateDesc(q.byDate)
	for k := range q.bySection {
		sortByDateDesc(q.bySection[k])
	}
	for k := range q.byTag {
		sortByDateDesc(q.byTag[k])
	}
}

func sortByDateDesc(pages []content.PageHandle) {
	sort.SliceStable(pages, func(i, j int) bool {
		di, dj := pages[i].CoreMeta().Date, pages[j].CoreMeta().Date
		ti, tj := zeroIfNil(di), zeroIfNil(dj)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return pages[i].CoreMeta().Title < pages[j].CoreMeta().Title
	})
}

func zeroIfNil(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ByDate returns every page sorted newest-first.
func (q *QueryIndexes) ByDate() []content.PageHandle {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]content.PageHandle(nil), q.byDate...)
}

// BySection returns the pages directly in the given section path.
func (q *QueryIndexes) BySection(section string) []content.PageHandle {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]content.PageHandle(nil), q.bySection[section]...)
}

// ByTag returns the pages carrying the given tag slug.
func (q *QueryIndexes) ByTag(slug string) []content.PageHandle {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]content.PageHandle(nil), q.byTag[slug]...)
}
