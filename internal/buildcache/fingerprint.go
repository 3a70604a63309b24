package buildcache

import (
	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// ChangeStatus is the outcome of IsChanged.
type ChangeStatus int

const (
	Unchanged ChangeStatus = iota
	Touched                // mtime/size differ but content hash is the same
	Changed
	NotCached
)

// IsChanged implements spec §4.3's three-step file-change detection:
// compare (mtime, size) first; on mismatch, rehash and compare content
// hash before declaring a real change. A file that was only touched (same
// hash, different mtime) reports Touched and refreshes the cached
// Fingerprint's mtime so the next build sees it as Unchanged again.
func (bc *BuildCache) IsChanged(path pathutil.SourcePath, current hashing.Fingerprint) ChangeStatus {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	cached, ok := bc.fingerprints[path]
	if !ok {
		bc.fingerprints[path] = current
		return NotCached
	}

	if cached.MTime == current.MTime && cached.Size == current.Size {
		return Unchanged
	}

	if cached.Hash == current.Hash {
		cached.MTime = current.MTime
		bc.fingerprints[path] = cached
		return Touched
	}

	bc.fingerprints[path] = current
	return Changed
}

// Fingerprint returns the cached Fingerprint for path, if any.
func (bc *BuildCache) Fingerprint(path pathutil.SourcePath) (hashing.Fingerprint, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	fp, ok := bc.fingerprints[path]
	return fp, ok
}

// SetFingerprint records path's current Fingerprint directly, bypassing
// change detection (used after a forced re-hash elsewhere in the
// pipeline).
func (bc *BuildCache) SetFingerprint(path pathutil.SourcePath, fp hashing.Fingerprint) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.fingerprints[path] = fp
}
