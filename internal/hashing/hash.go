// Package hashing provides the content-hashing primitives the build cache is
// built on: short, stable, JSON-friendly fingerprints of file and dict
// content.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sort"
)

// Prefix is the number of hex characters kept from a SHA-256 digest.
// 16 hex chars (64 bits) is short, collision-safe at site scale, and
// JSON-friendly.
const Prefix = 16

// ContentHash is a 16-hex-character prefix of SHA-256 over canonical bytes.
type ContentHash string

// Fingerprint lets callers short-circuit re-hashing when mtime and size are
// unchanged.
type Fingerprint struct {
	Hash  ContentHash `json:"hash"`
	MTime float64     `json:"mtime"`
	Size  uint64      `json:"size"`
}

// HashBytes returns the 16-hex prefix of SHA-256(b).
func HashBytes(b []byte) ContentHash {
	sum := sha256.Sum256(b)
	return ContentHash(hex.EncodeToString(sum[:])[:Prefix])
}

// HashFile hashes a file's content by path.
func HashFile(path string) (ContentHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return ContentHash(hex.EncodeToString(h.Sum(nil))[:Prefix]), nil
}

// HashFileWithStat hashes a file and captures its mtime/size in one pass,
// so a single stat+read produces a full Fingerprint.
func HashFileWithStat(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, err
	}

	return Fingerprint{
		Hash:  ContentHash(hex.EncodeToString(h.Sum(nil))[:Prefix]),
		MTime: float64(info.ModTime().UnixNano()) / 1e9,
		Size:  uint64(info.Size()),
	}, nil
}

// HashDict canonicalizes a mapping via sorted-key JSON and hashes the
// result. Canonical ordering is required for stable metadata hashes: the
// same logical mapping must always hash the same way regardless of
// iteration order.
func HashDict(d map[string]interface{}) (ContentHash, error) {
	canon, err := canonicalize(d)
	if err != nil {
		return "", err
	}
	return HashBytes(canon), nil
}

// canonicalize produces deterministic JSON: object keys sorted, nested maps
// recursively canonicalized. encoding/json already sorts map[string]any
// keys when marshaling, but we recurse explicitly so nested
// map[interface{}]interface{} (as YAML produces) are normalized to
// map[string]interface{} first.
func canonicalize(v interface{}) ([]byte, error) {
	normalized := normalize(v)
	return json.Marshal(normalized)
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[toString(k)] = normalize(v)
		}
		return normalize(out)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
