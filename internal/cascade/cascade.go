// Package cascade implements the section-cascade engine (spec §4.5):
// propagating a section's `cascade` frontmatter map to every descendant
// page, lowest priority, with page-level frontmatter always winning.
package cascade

import (
	"log/slog"

	"github.com/bengal-ssg/bengal/internal/content"
)

// Stats reports what one Apply run did (spec §4.5 step 6).
type Stats struct {
	PagesProcessed int
	PagesTouched   int
	PerKey         map[string]int
}

// Engine applies cascades across a content tree. It holds no state between
// runs — callers call Apply once per build (full or incremental) with the
// subset of sections/pages relevant to that build.
type Engine struct {
	logger *slog.Logger
}

// New builds a cascade Engine, matching kosh's constructor-injected-logger
// pattern (spec §10.1).
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply runs the full cascade algorithm over root and the top-level pages
// that belong to no section (spec §4.5 steps 1-5). It mutates every
// reachable page's Metadata and CascadeKeys in place and returns
// aggregate Stats.
func (e *Engine) Apply(root *content.Section, topLevel []content.PageHandle) (Stats, error) {
	stats := Stats{PerKey: map[string]int{}}

	if err := clearSection(root, &stats); err != nil {
		return stats, err
	}
	for _, p := range topLevel {
		if err := clearPage(p, &stats); err != nil {
			return stats, err
		}
	}

	rootCascade := map[string]interface{}{}
	for _, p := range topLevel {
		page, err := p.Promote()
		if err != nil {
			return stats, err
		}
		mergeCascade(rootCascade, cascadeOf(page.Metadata))
	}

	if err := applySection(root, map[string]interface{}{}, &stats); err != nil {
		return stats, err
	}

	for _, p := range topLevel {
		page, err := p.Promote()
		if err != nil {
			return stats, err
		}
		if _, hasOwn := page.Metadata["cascade"]; hasOwn {
			continue
		}
		if err := applyToPage(p, rootCascade, &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// clearSection recursively clears every page's previously-applied cascade
// keys before recomputing (spec §4.5 step 1), forcing PageProxy promotion
// since clearing mutates Metadata.
func clearSection(s *content.Section, stats *Stats) error {
	for _, p := range s.Pages {
		if err := clearPage(p, stats); err != nil {
			return err
		}
	}
	for _, sub := range s.Subsections {
		if err := clearSection(sub, stats); err != nil {
			return err
		}
	}
	return nil
}

func clearPage(p content.PageHandle, stats *Stats) error {
	keys := p.CoreMeta().CascadeKeys
	if len(keys) == 0 {
		return nil
	}
	page, err := p.Promote()
	if err != nil {
		return err
	}
	if page.Metadata == nil {
		page.Metadata = map[string]interface{}{}
	}
	for _, k := range keys {
		delete(page.Metadata, k)
	}
	page.SetCascadeKeys(nil)
	return nil
}

// applySection recursively applies an accumulated cascade dict starting
// from entry-point sections — here, simply root and its descendants, since
// Section.Parent already scopes the active tree (spec §4.5 step 3: "entry
// point sections — sections whose parent is not in the active section
// set"). Child cascade extends parent cascade; same key, child wins.
func applySection(s *content.Section, inherited map[string]interface{}, stats *Stats) error {
	own := s.Cascade()
	accumulated := mergeCascadeCopy(inherited, own)

	for _, p := range s.Pages {
		if err := applyToPage(p, accumulated, stats); err != nil {
			return err
		}
	}
	for _, sub := range s.Subsections {
		if err := applySection(sub, accumulated, stats); err != nil {
			return err
		}
	}
	return nil
}

func applyToPage(p content.PageHandle, cascade map[string]interface{}, stats *Stats) error {
	stats.PagesProcessed++
	if len(cascade) == 0 {
		return nil
	}

	page, err := p.Promote()
	if err != nil {
		return err
	}
	if page.Metadata == nil {
		page.Metadata = map[string]interface{}{}
	}

	var introduced []string
	for k, v := range cascade {
		if _, exists := page.Metadata[k]; exists {
			continue
		}
		page.Metadata[k] = v
		introduced = append(introduced, k)
		stats.PerKey[k]++
	}
	if len(introduced) > 0 {
		stats.PagesTouched++
		page.SetCascadeKeys(append(page.CascadeKeys(), introduced...))
	}
	return nil
}

func cascadeOf(metadata map[string]interface{}) map[string]interface{} {
	c, _ := metadata["cascade"].(map[string]interface{})
	return c
}

// mergeCascade merges src into dst in place, same-key-wins-to-child
// semantics applied by the caller passing the more-specific map last.
func mergeCascade(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}

// mergeCascadeCopy returns a new map combining parent then child, child
// keys overriding parent keys (spec §4.5: "child cascade extends parent
// cascade, same-key wins to child").
func mergeCascadeCopy(parent, child map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}
