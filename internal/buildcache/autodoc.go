package buildcache

import (
	"log/slog"

	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// StrictMode governs how GetStaleAutodocSources escalates the "missing
// metadata with existing dependencies" fallback (spec §4.3).
type StrictMode int

const (
	StrictOff StrictMode = iota
	StrictWarn
	StrictError
)

// AddAutodocDependency records that source (a Python module, an OpenAPI
// document, ...) produced generatedPage, along with source's fingerprint
// at generation time (spec §4.3).
func (bc *BuildCache) AddAutodocDependency(source, generatedPage pathutil.SourcePath, sourceHash hashing.ContentHash, sourceMTime float64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	set, ok := bc.autodocDeps[source]
	if !ok {
		set = map[string]struct{}{}
		bc.autodocDeps[source] = set
	}
	set[string(generatedPage)] = struct{}{}

	bc.autodocMeta[source] = AutodocSourceMeta{
		Source: source,
		Hash:   sourceHash,
		MTime:  sourceMTime,
	}
}

// GeneratedPagesFor returns the generated pages recorded for an autodoc
// source.
func (bc *BuildCache) GeneratedPagesFor(source pathutil.SourcePath) []pathutil.SourcePath {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	set, ok := bc.autodocDeps[source]
	if !ok {
		return nil
	}
	out := make([]pathutil.SourcePath, 0, len(set))
	for p := range set {
		out = append(out, pathutil.SourcePath(p))
	}
	return out
}

// statSource abstracts the filesystem lookup GetStaleAutodocSources needs,
// so tests can substitute a fake without touching a real filesystem.
type statSource func(path pathutil.SourcePath) (mtime float64, exists bool, err error)
type hashSource func(path pathutil.SourcePath) (hashing.ContentHash, error)

// GetStaleAutodocSources returns the set of autodoc source paths whose
// generated pages need regenerating (spec §4.3): mtime-first optimization
// (skip hashing when mtime is unchanged), hash verification when mtime
// changed, and any source that no longer exists is unconditionally stale
// (it must trigger cleanup of its generated pages). A source with no
// metadata but an existing dependency record falls back to
// fingerprint-based detection when a fingerprint exists, or is marked
// stale outright when it doesn't. strict applies only to that second case:
// StrictWarn logs a warning through logger, StrictError returns an error.
func (bc *BuildCache) GetStaleAutodocSources(stat statSource, hashFile hashSource, strict StrictMode, logger *slog.Logger) ([]pathutil.SourcePath, error) {
	bc.mu.RLock()
	sources := make([]pathutil.SourcePath, 0, len(bc.autodocDeps))
	for s := range bc.autodocDeps {
		sources = append(sources, s)
	}
	bc.mu.RUnlock()

	if logger == nil {
		logger = slog.Default()
	}

	var stale []pathutil.SourcePath
	for _, source := range sources {
		bc.mu.RLock()
		meta, hasMeta := bc.autodocMeta[source]
		fp, hasFingerprint := bc.fingerprints[source]
		bc.mu.RUnlock()

		mtime, exists, err := stat(source)
		if err != nil {
			return nil, err
		}
		if !exists {
			stale = append(stale, source)
			continue
		}

		if !hasMeta {
			switch {
			case hasFingerprint:
				if fp.MTime != mtime {
					stale = append(stale, source)
				}
			case strict == StrictError:
				return nil, errMissingAutodocMeta(source)
			default:
				if strict == StrictWarn {
					logger.Warn("autodoc source has no metadata, marking stale", "source", string(source))
				}
				stale = append(stale, source)
			}
			continue
		}

		if meta.MTime == mtime {
			continue // mtime-first optimization: skip hashing
		}

		hash, err := hashFile(source)
		if err != nil {
			return nil, err
		}
		if hash != meta.Hash {
			stale = append(stale, source)
		}
	}
	return stale, nil
}

type autodocMetaError struct{ source pathutil.SourcePath }

func (e autodocMetaError) Error() string {
	return "buildcache: autodoc source " + string(e.source) + " has no metadata and no fingerprint fallback"
}

func errMissingAutodocMeta(source pathutil.SourcePath) error {
	return autodocMetaError{source: source}
}
