package taxonomy

import (
	"sort"
	"strings"

	"github.com/bengal-ssg/bengal/internal/content"
)

// NavAffectingKeys is the fixed set of frontmatter keys whose change forces
// a section-wide rebuild (spec §6.5).
var NavAffectingKeys = map[string]struct{}{
	"title": {}, "slug": {}, "permalink": {}, "aliases": {}, "hidden": {},
	"draft": {}, "visibility": {}, "menu": {}, "weight": {}, "cascade": {},
	"redirect": {}, "lang": {}, "language": {}, "translationkey": {}, "_section": {},
}

// HasNavAffectingChange reports whether any key in changedKeys is
// nav-affecting (spec §4.8 D3 "Menus: rebuild iff ... any page with a
// nav-affecting key ... changed").
func HasNavAffectingChange(changedKeys []string) bool {
	for _, k := range changedKeys {
		if _, ok := NavAffectingKeys[k]; ok {
			return true
		}
	}
	return false
}

// MenuHint is one explicit entry contributed by site config (spec §4.6
// "config + frontmatter menu hints").
type MenuHint struct {
	Identifier string
	Name       string
	URL        string
	Parent     string
	Weight     int
}

// MenuConfig maps a menu name ("main", "footer", ...) to its config-level
// entries.
type MenuConfig map[string][]MenuHint

// MenuEntry is one built navigation node.
type MenuEntry struct {
	Identifier string
	Name       string
	URL        string
	Weight     int
	Children   []*MenuEntry
}

// BuildMenus constructs hierarchical navigation per menu name, merging
// config-declared entries with per-page `menu` frontmatter hints. Pages
// must already be promoted (their Metadata loaded): a rebuild is only
// triggered by a nav-affecting key change (HasNavAffectingChange), at
// which point the caller already needs the full page anyway.
//
// Grounded on kosh's utils/tree.go BuildSiteTree. Entries at each level
// are ordered by weight ascending, then by name case-insensitively; a page
// entry without an explicit name takes the page's title as is (no
// title-casing is applied).
func BuildMenus(pages []*content.Page, configMenus MenuConfig) map[string][]*MenuEntry {
	byMenu := map[string][]*MenuEntry{}
	byIdentifier := map[string]map[string]*MenuEntry{}

	add := func(menuName string, e *MenuEntry, parent string) {
		if byIdentifier[menuName] == nil {
			byIdentifier[menuName] = map[string]*MenuEntry{}
		}
		byIdentifier[menuName][e.Identifier] = e
		if parent == "" {
			byMenu[menuName] = append(byMenu[menuName], e)
			return
		}
		if p, ok := byIdentifier[menuName][parent]; ok {
			p.Children = append(p.Children, e)
			return
		}
		// Parent not seen yet (declared out of order): fall back to root,
		// matching kosh's tolerant "orphan becomes root" behavior in
		// BuildSiteTree when a section can't be located.
		byMenu[menuName] = append(byMenu[menuName], e)
	}

	for menuName, hints := range configMenus {
		for _, h := range hints {
			ident := h.Identifier
			if ident == "" {
				ident = NormalizeSlug(h.Name)
			}
			add(menuName, &MenuEntry{
				Identifier: ident,
				Name:       h.Name,
				URL:        h.URL,
				Weight:     h.Weight,
			}, h.Parent)
		}
	}

	for _, p := range pages {
		menuVal, ok := p.Metadata["menu"]
		if !ok {
			continue
		}
		for menuName, hint := range parseMenuHint(menuVal) {
			url := ""
			if p.OutputPath != nil {
				url = *p.OutputPath
			}
			add(menuName, &MenuEntry{
				Identifier: pageIdentifier(p),
				Name:       displayName(p, hint),
				URL:        url,
				Weight:     hint.Weight,
			}, hint.Parent)
		}
	}

	for _, entries := range byMenu {
		sortMenuEntries(entries)
	}
	return byMenu
}

func pageIdentifier(p *content.Page) string {
	if p.Slug != nil && *p.Slug != "" {
		return *p.Slug
	}
	return NormalizeSlug(p.Title)
}

func displayName(p *content.Page, hint MenuHint) string {
	if hint.Name != "" {
		return hint.Name
	}
	return p.Title
}

// parseMenuHint accepts both Hugo-style shapes: a bare menu name
// (`menu: main`) and a per-menu options map
// (`menu: {main: {weight: 10, parent: "docs"}}`).
func parseMenuHint(v interface{}) map[string]MenuHint {
	out := map[string]MenuHint{}
	switch val := v.(type) {
	case string:
		out[val] = MenuHint{}
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok {
				out[s] = MenuHint{}
			}
		}
	case map[string]interface{}:
		for menuName, raw := range val {
			hint := MenuHint{}
			if opts, ok := raw.(map[string]interface{}); ok {
				if w, ok := opts["weight"].(int); ok {
					hint.Weight = w
				} else if w, ok := opts["weight"].(float64); ok {
					hint.Weight = int(w)
				}
				if s, ok := opts["parent"].(string); ok {
					hint.Parent = s
				}
				if s, ok := opts["identifier"].(string); ok {
					hint.Identifier = s
				}
				if s, ok := opts["name"].(string); ok {
					hint.Name = s
				}
			}
			out[menuName] = hint
		}
	}
	return out
}

func sortMenuEntries(entries []*MenuEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Weight != entries[j].Weight {
			return entries[i].Weight < entries[j].Weight
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	for _, e := range entries {
		sortMenuEntries(e.Children)
	}
}
