package taxonomy

import (
	"sort"

	"github.com/bengal-ssg/bengal/internal/content"
)

// DefaultRelatedCount is K in spec §4.6 "up to K (default 5) related
// pages by tag overlap".
const DefaultRelatedCount = 5

// RelatedPostsSkipThreshold is the page-count ceiling above which related
// posts are skipped entirely (spec §4.6 "cost/benefit").
const RelatedPostsSkipThreshold = 5000

// RelatedPosts computes, for every page in pages, up to k pages sharing the
// most tags with it. Returns nil if the site is too large or has no tags
// at all, matching spec §4.6's skip condition exactly (checked once for
// the whole corpus, not per page).
func RelatedPosts(pages []content.PageHandle, k int) map[string][]content.PageHandle {
	if len(pages) > RelatedPostsSkipThreshold {
		return nil
	}
	if k <= 0 {
		k = DefaultRelatedCount
	}

	tagsOf := make(map[string]map[string]struct{}, len(pages))
	anyTags := false
	for _, p := range pages {
		path := string(p.CoreMeta().SourcePath)
		set := make(map[string]struct{})
		for _, tag := range p.CoreMeta().Tags {
			set[NormalizeSlug(tag)] = struct{}{}
			anyTags = true
		}
		tagsOf[path] = set
	}
	if !anyTags {
		return nil
	}

	out := make(map[string][]content.PageHandle, len(pages))
	for _, p := range pages {
		path := string(p.CoreMeta().SourcePath)
		mine := tagsOf[path]
		if len(mine) == 0 {
			continue
		}
		type scored struct {
			page     content.PageHandle
			overlap  int
			core     content.PageCore
		}
		var candidates []scored
		for _, other := range pages {
			otherPath := string(other.CoreMeta().SourcePath)
			if otherPath == path {
				continue
			}
			overlap := 0
			for tag := range tagsOf[otherPath] {
				if _, ok := mine[tag]; ok {
					overlap++
				}
			}
			if overlap > 0 {
				candidates = append(candidates, scored{page: other, overlap: overlap, core: other.CoreMeta()})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].overlap != candidates[j].overlap {
				return candidates[i].overlap > candidates[j].overlap
			}
			di, dj := candidates[i].core.Date, candidates[j].core.Date
			if di == nil || dj == nil {
				return candidates[i].core.Title < candidates[j].core.Title
			}
			return di.After(*dj)
		})
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		related := make([]content.PageHandle, len(candidates))
		for i, c := range candidates {
			related[i] = c.page
		}
		out[path] = related
	}
	return out
}
