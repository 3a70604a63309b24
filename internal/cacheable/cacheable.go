// Package cacheable implements the generic, versioned, tolerant-load JSON
// store every build cache table persists through (spec §4.2, §6.1).
//
// Disk layout is always:
//
//	{ "version": <int>, "entries": [ {...}, ... ] }
//
// Loading never aborts a build: a missing file, a version mismatch, or a
// single entry that fails to deserialize all degrade to "treat as absent"
// rather than propagate an error.
package cacheable

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/atomicfile"
)

// Cacheable is the contract every cached entry type implements: lossless
// round-trip through a JSON-safe mapping.
//
//	from_cache_dict(to_cache_dict(x)) == x
type Cacheable[T any] interface {
	ToCacheDict() (map[string]interface{}, error)
	FromCacheDict(map[string]interface{}) (T, error)
}

// envelope is the on-disk shape: {"version": N, "entries": [...]}.
type envelope struct {
	Version int               `json:"version"`
	Entries []json.RawMessage `json:"entries"`
}

// Save serializes entries through their ToCacheDict and atomic-writes the
// envelope.
func Save[T Cacheable[T]](fs afero.Fs, path string, version int, entries []T) error {
	env := envelope{Version: version, Entries: make([]json.RawMessage, 0, len(entries))}
	for _, e := range entries {
		dict, err := e.ToCacheDict()
		if err != nil {
			return fmt.Errorf("cacheable: encode entry: %w", err)
		}
		raw, err := json.Marshal(dict)
		if err != nil {
			return fmt.Errorf("cacheable: marshal entry: %w", err)
		}
		env.Entries = append(env.Entries, raw)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("cacheable: marshal envelope: %w", err)
	}
	return atomicfile.Write(fs, path, data)
}

// Load reads and validates a cache file per the tolerant-load contract:
// missing file -> empty, version mismatch -> empty + warn, per-entry
// deserialization failure -> skip that entry + warn, other entries still
// load. zero constructs a fresh T whose FromCacheDict is called per entry
// (Go generics can't call a method on the zero value of an interface-typed
// T directly without an instance to dispatch through).
func Load[T Cacheable[T]](fs afero.Fs, path string, expectedVersion int, zero T, logger *slog.Logger) []T {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil // missing file -> empty, not an error
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if logger != nil {
			logger.Warn("cache file corrupt, treating as empty", "path", path, "error", err)
		}
		return nil
	}

	if env.Version != expectedVersion {
		if logger != nil {
			logger.Warn("cache version mismatch, treating as empty",
				"path", path, "got", env.Version, "want", expectedVersion)
		}
		return nil
	}

	out := make([]T, 0, len(env.Entries))
	for _, raw := range env.Entries {
		var dict map[string]interface{}
		if err := json.Unmarshal(raw, &dict); err != nil {
			if logger != nil {
				logger.Warn("cache entry corrupt, skipping", "path", path, "error", err)
			}
			continue
		}
		item, err := zero.FromCacheDict(dict)
		if err != nil {
			if logger != nil {
				logger.Warn("cache entry failed to deserialize, skipping", "path", path, "error", err)
			}
			continue
		}
		out = append(out, item)
	}
	return out
}
