// Package content implements content discovery (spec §4.4): walking the
// content tree, splitting frontmatter from body, and building the
// PageCore/Page/PageProxy/Section types spec §3 describes.
package content

import (
	"strconv"
	"strings"
	"time"

	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// PageCore is the single source of truth for everything cacheable about a
// page (spec §3.2). It is written once per discovery and is JSON-safe.
type PageCore struct {
	SourcePath pathutil.SourcePath
	Title      string
	Date       *time.Time
	Tags       []string
	Aliases    []string
	Slug       *string
	Weight     *int
	Lang       *string
	Type       *string
	Section    *pathutil.SourcePath
	FileHash   *hashing.ContentHash

	// CascadeKeys tracks which metadata keys on the owning Page were
	// introduced by cascading, so the cascade engine can clear exactly
	// those keys before recomputing (spec §4.5 step 1). It travels with
	// PageCore (not Page) because cascade clearing must work on a
	// still-proxied page without forcing a full load.
	CascadeKeys []string
}

// NewPageCore builds a PageCore from raw frontmatter, sanitizing tags and
// aliases per spec §3.2: nulls dropped, nested containers dropped, scalars
// coerced to trimmed strings.
func NewPageCore(sourcePath pathutil.SourcePath, fm map[string]interface{}) PageCore {
	pc := PageCore{
		SourcePath: sourcePath,
		Title:      stringField(fm, "title"),
		Tags:       sanitizeStringList(fm["tags"]),
		Aliases:    sanitizeStringList(fm["aliases"]),
	}
	if pc.Title == "" {
		pc.Title = "Untitled"
	}

	if d := parseDate(fm["date"]); d != nil {
		pc.Date = d
	}
	if s, ok := fm["slug"].(string); ok && s != "" {
		pc.Slug = &s
	}
	if w, ok := coerceInt(fm["weight"]); ok {
		pc.Weight = &w
	}
	if l, ok := fm["lang"].(string); ok && l != "" {
		pc.Lang = &l
	}
	if ty, ok := fm["type"].(string); ok && ty != "" {
		pc.Type = &ty
	}
	return pc
}

// sanitizeStringList implements the §3.2 invariant: tags/aliases never
// contain non-string values after construction. Nulls and nested
// containers are dropped; scalars are coerced to trimmed strings.
func sanitizeStringList(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		if strs, ok := v.([]string); ok {
			out := make([]string, 0, len(strs))
			for _, s := range strs {
				if t := strings.TrimSpace(s); t != "" {
					out = append(out, t)
				}
			}
			return out
		}
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch val := item.(type) {
		case nil:
			continue // nulls dropped
		case []interface{}, map[string]interface{}, map[interface{}]interface{}:
			continue // nested containers dropped
		case string:
			if t := strings.TrimSpace(val); t != "" {
				out = append(out, t)
			}
		default:
			s := strings.TrimSpace(coerceString(val))
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stringField(fm map[string]interface{}, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func coerceString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func coerceInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	default:
		return 0, false
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(v interface{}) *time.Time {
	switch val := v.(type) {
	case time.Time:
		return &val
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return &t
			}
		}
	}
	return nil
}
