package cacheable

import (
	"sort"
	"time"
)

// TimeToCache renders a time as an ISO-8601 string for a cache dict, or ""
// for the zero value (absent date).
func TimeToCache(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// TimeFromCache parses an ISO-8601 string back into a time.Time, returning
// the zero value for an empty string or an unparsable one (tolerant-load:
// a malformed date degrades the field, not the whole entry).
func TimeFromCache(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetToCache renders a set as a sorted slice, for diff stability across
// saves.
func SetToCache(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetFromCache rebuilds a set from a slice.
func SetFromCache(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		out[v] = struct{}{}
	}
	return out
}

// StringSlice extracts a []string from a cache dict's untyped
// []interface{}, dropping non-string elements.
func StringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		if direct, ok := v.([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
