package buildcache

import (
	"fmt"

	"github.com/bengal-ssg/bengal/internal/cacheable"
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// autodocDepEntry is the §3.8 `autodoc_dependencies` table: which generated
// pages a generator input (a Python module, an OpenAPI document, ...)
// produced.
type autodocDepEntry struct {
	Source    pathutil.SourcePath
	Generated map[string]struct{}
}

func (e autodocDepEntry) ToCacheDict() (map[string]interface{}, error) {
	return map[string]interface{}{
		"source":    string(e.Source),
		"generated": toAnySlice(cacheable.SetToCache(e.Generated)),
	}, nil
}

func (autodocDepEntry) FromCacheDict(d map[string]interface{}) (autodocDepEntry, error) {
	source, _ := d["source"].(string)
	if source == "" {
		return autodocDepEntry{}, fmt.Errorf("buildcache: autodoc dependency entry missing source")
	}
	return autodocDepEntry{
		Source:    pathutil.SourcePath(source),
		Generated: cacheable.SetFromCache(cacheable.StringSlice(d["generated"])),
	}, nil
}

// AutodocSourceMeta is the §3.8 `autodoc_source_metadata` table's value:
// `(content_hash, mtime, {doc_hashes})`.
type AutodocSourceMeta struct {
	Source    pathutil.SourcePath
	Hash      hashing.ContentHash
	MTime     float64
	DocHashes map[string]hashing.ContentHash
}

func (e AutodocSourceMeta) ToCacheDict() (map[string]interface{}, error) {
	docHashes := make(map[string]interface{}, len(e.DocHashes))
	for k, v := range e.DocHashes {
		docHashes[k] = string(v)
	}
	return map[string]interface{}{
		"source":     string(e.Source),
		"hash":       string(e.Hash),
		"mtime":      e.MTime,
		"doc_hashes": docHashes,
	}, nil
}

func (AutodocSourceMeta) FromCacheDict(d map[string]interface{}) (AutodocSourceMeta, error) {
	source, _ := d["source"].(string)
	if source == "" {
		return AutodocSourceMeta{}, fmt.Errorf("buildcache: autodoc source metadata entry missing source")
	}
	e := AutodocSourceMeta{
		Source: pathutil.SourcePath(source),
		Hash:   hashing.ContentHash(str(d["hash"])),
		MTime:  floatOf(d["mtime"]),
	}
	if raw, ok := d["doc_hashes"].(map[string]interface{}); ok {
		e.DocHashes = make(map[string]hashing.ContentHash, len(raw))
		for k, v := range raw {
			e.DocHashes[k] = hashing.ContentHash(str(v))
		}
	}
	return e, nil
}

// taxonomyEntry is the §3.8 `taxonomy_index` table: tag_slug -> {tag_name,
// page_paths}.
type taxonomyEntry struct {
	Slug      string
	Name      string
	PagePaths []string
}

func (e taxonomyEntry) ToCacheDict() (map[string]interface{}, error) {
	return map[string]interface{}{
		"slug":       e.Slug,
		"name":       e.Name,
		"page_paths": toAnySlice(e.PagePaths),
	}, nil
}

func (taxonomyEntry) FromCacheDict(d map[string]interface{}) (taxonomyEntry, error) {
	slug, _ := d["slug"].(string)
	if slug == "" {
		return taxonomyEntry{}, fmt.Errorf("buildcache: taxonomy entry missing slug")
	}
	return taxonomyEntry{
		Slug:      slug,
		Name:      str(d["name"]),
		PagePaths: cacheable.StringSlice(d["page_paths"]),
	}, nil
}

// generatedMembersEntry is the §3.8 `generated_page_members` table: keyed
// by (page_type, page_id), holding the member set and their last-seen
// content hashes.
type generatedMembersEntry struct {
	PageType     string
	PageID       string
	MemberHashes map[string]hashing.ContentHash
}

func (e generatedMembersEntry) ToCacheDict() (map[string]interface{}, error) {
	members := make(map[string]interface{}, len(e.MemberHashes))
	for k, v := range e.MemberHashes {
		members[k] = string(v)
	}
	return map[string]interface{}{
		"page_type":     e.PageType,
		"page_id":       e.PageID,
		"member_hashes": members,
	}, nil
}

func (generatedMembersEntry) FromCacheDict(d map[string]interface{}) (generatedMembersEntry, error) {
	pageType, _ := d["page_type"].(string)
	pageID, _ := d["page_id"].(string)
	if pageType == "" {
		return generatedMembersEntry{}, fmt.Errorf("buildcache: generated-members entry missing page_type")
	}
	e := generatedMembersEntry{PageType: pageType, PageID: pageID}
	if raw, ok := d["member_hashes"].(map[string]interface{}); ok {
		e.MemberHashes = make(map[string]hashing.ContentHash, len(raw))
		for k, v := range raw {
			e.MemberHashes[k] = hashing.ContentHash(str(v))
		}
	}
	return e, nil
}

func memberKey(pageType, pageID string) string {
	return pageType + "\x00" + pageID
}
