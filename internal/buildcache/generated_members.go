package buildcache

import "github.com/bengal-ssg/bengal/internal/hashing"

// ShouldRegenerate implements spec §4.3's generated-page-member check: an
// aggregate page (a tag listing, a section index) can skip regeneration
// iff its member set is identical to the cached one and every member's
// current content hash equals the hash recorded last time this aggregate
// was generated. This is what lets a 1,000-entry tag page stay cached
// across an edit that touches an unrelated page.
func (bc *BuildCache) ShouldRegenerate(pageType, pageID string, currentHashes map[string]hashing.ContentHash) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	cached, ok := bc.members[memberKey(pageType, pageID)]
	if !ok {
		return true
	}
	if len(cached.MemberHashes) != len(currentHashes) {
		return true
	}
	for member, hash := range currentHashes {
		cachedHash, ok := cached.MemberHashes[member]
		if !ok || cachedHash != hash {
			return true
		}
	}
	return false
}

// StoreGeneratedPageMembers records the member set and hashes used to
// produce an aggregate page, so a later ShouldRegenerate call can compare
// against it.
func (bc *BuildCache) StoreGeneratedPageMembers(pageType, pageID string, currentHashes map[string]hashing.ContentHash) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.members[memberKey(pageType, pageID)] = generatedMembersEntry{
		PageType:     pageType,
		PageID:       pageID,
		MemberHashes: currentHashes,
	}
}

// TaxonomyPages returns the cached page paths for a tag slug.
func (bc *BuildCache) TaxonomyPages(slug string) ([]string, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	entry, ok := bc.taxonomyIndex[slug]
	return entry.PagePaths, ok
}

// SetTaxonomyPages records the page set for a tag slug.
func (bc *BuildCache) SetTaxonomyPages(slug, name string, pagePaths []string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.taxonomyIndex[slug] = taxonomyEntry{Slug: slug, Name: name, PagePaths: pagePaths}
}
