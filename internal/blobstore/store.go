// Package blobstore is a content-addressed, compressed byte store, adapted
// from kosh's builder/cache/store.go. The build cache's JSON file (§6.1)
// never holds large page bodies inline — entries in the parsed-content and
// rendered-output tables reference a blob hash here instead, keeping the
// unit of JSON corruption small (see SPEC_FULL.md §11.1).
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

// CompressionType records how a blob was stored, so Get knows whether to
// decompress.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionZstdFast
	CompressionZstdBest
)

// Size thresholds below which compression isn't worth the CPU, and above
// which the stronger (slower) zstd level pays for itself.
const (
	RawThreshold = 256       // bytes; below this, store raw
	FastZstdMax  = 64 * 1024 // bytes; below this, use SpeedFastest
)

// Store is a two-tier sharded content-addressed blob store:
// basePath/category/hash[0:2]/hash[2:4]/hash.{raw,zst}
type Store struct {
	basePath string
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

func New(basePath string) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("blobstore: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("blobstore: new decoder: %w", err)
	}
	return &Store{basePath: basePath, encoder: enc, decoder: dec}, nil
}

func (s *Store) Close() error {
	_ = s.encoder.Close()
	s.decoder.Close()
	return nil
}

func (s *Store) shardPath(category, hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.basePath, category, hash)
	}
	return filepath.Join(s.basePath, category, hash[0:2], hash[2:4], hash)
}

func extension(ct CompressionType) string {
	if ct == CompressionNone {
		return ".raw"
	}
	return ".zst"
}

func determineCompression(size int) CompressionType {
	if size < RawThreshold {
		return CompressionNone
	}
	if size < FastZstdMax {
		return CompressionZstdFast
	}
	return CompressionZstdBest
}

// Hash returns the blob store's content-address key for raw bytes
// (independent of spec's SHA-256 ContentHash — this is an internal dedup
// key, not a cross-build fingerprint).
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// PutValue msgpack-encodes v and stores it under its content hash,
// returning the hash to save in a cache entry.
func (s *Store) PutValue(category string, v interface{}) (hash string, err error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("blobstore: encode: %w", err)
	}
	return s.Put(category, data)
}

// GetValue retrieves and msgpack-decodes a value by hash into out.
func (s *Store) GetValue(category, hash string, out interface{}) error {
	data, err := s.Get(category, hash)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, out)
}

// Put stores content and returns its hash.
func (s *Store) Put(category string, content []byte) (hash string, err error) {
	hash = Hash(content)
	ct := determineCompression(len(content))
	path := s.shardPath(category, hash) + extension(ct)

	if _, err := os.Stat(path); err == nil {
		return hash, nil // already stored, content-addressed dedup
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blobstore: mkdir: %w", err)
	}

	var data []byte
	switch ct {
	case CompressionNone:
		data = content
	case CompressionZstdBest:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return "", err
		}
		data = enc.EncodeAll(content, nil)
		_ = enc.Close()
	default:
		data = s.encoder.EncodeAll(content, nil)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: write temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: rename: %w", err)
	}
	return hash, nil
}

// Get retrieves content by hash, trying both compressed and raw extensions
// since the caller may not know how a given hash was stored.
func (s *Store) Get(category, hash string) ([]byte, error) {
	rawPath := s.shardPath(category, hash) + ".raw"
	if data, err := os.ReadFile(rawPath); err == nil {
		return data, nil
	}

	zstPath := s.shardPath(category, hash) + ".zst"
	data, err := os.ReadFile(zstPath)
	if err != nil {
		return nil, fmt.Errorf("blobstore: blob not found: %s/%s", category, hash)
	}
	return s.decoder.DecodeAll(data, nil)
}

// Exists checks if a hash exists in the store under category.
func (s *Store) Exists(category, hash string) bool {
	for _, ext := range []string{".raw", ".zst"} {
		if _, err := os.Stat(s.shardPath(category, hash) + ext); err == nil {
			return true
		}
	}
	return false
}

// Delete removes a hash from the store.
func (s *Store) Delete(category, hash string) error {
	_ = os.Remove(s.shardPath(category, hash) + ".raw")
	_ = os.Remove(s.shardPath(category, hash) + ".zst")
	return nil
}

// PruneUnreferenced deletes every blob in category whose hash is not in
// keep, used by cache-save to garbage-collect blobs an incremental build no
// longer references.
func (s *Store) PruneUnreferenced(category string, keep map[string]struct{}) error {
	root := filepath.Join(s.basePath, category)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		ext := filepath.Ext(name)
		hash := strings.TrimSuffix(name, ext)
		if _, ok := keep[hash]; !ok {
			_ = os.Remove(path)
		}
		return nil
	})
}
