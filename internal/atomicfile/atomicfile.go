// Package atomicfile writes files the way kosh's cache store does
// (builder/cache/store.go: write to a temp path, fsync, rename) so readers
// never observe a truncated output and a crash leaves only an orphaned
// ".tmp" file that discovery ignores.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Write atomically writes data to path on fs: `<path>.<pid>.<uuid>.tmp`
// then fsync then rename. The temp name carries no thread id; the random
// UUID alone keeps concurrent writers in one process apart.
//
// afero.Fs doesn't expose an fsync primitive uniformly across backends
// (MemMapFs has nothing to sync), so Write syncs only when the underlying
// file satisfies the same Sync() error interface *os.File does; in-memory
// filesystems used in tests simply skip that step.
func Write(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}

	tmpPath := fmt.Sprintf("%s.%d.%s.tmp", path, os.Getpid(), uuid.NewString())

	f, err := fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("atomicfile: create temp %s: %w", tmpPath, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmpPath)
		return fmt.Errorf("atomicfile: write %s: %w", tmpPath, err)
	}

	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = f.Close()
			_ = fs.Remove(tmpPath)
			return fmt.Errorf("atomicfile: sync %s: %w", tmpPath, err)
		}
	}

	if err := f.Close(); err != nil {
		_ = fs.Remove(tmpPath)
		return fmt.Errorf("atomicfile: close %s: %w", tmpPath, err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		_ = fs.Remove(tmpPath)
		return fmt.Errorf("atomicfile: rename %s -> %s: %w", tmpPath, path, err)
	}

	return nil
}
