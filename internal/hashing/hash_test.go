package hashing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("hello world"))
	b := HashBytes([]byte("hello world"))
	if a != b {
		t.Fatalf("expected stable hash, got %s != %s", a, b)
	}
	if len(a) != Prefix {
		t.Fatalf("expected %d hex chars, got %d", Prefix, len(a))
	}
}

func TestHashBytesDiffers(t *testing.T) {
	a := HashBytes([]byte("hello world"))
	b := HashBytes([]byte("hello world!"))
	if a == b {
		t.Fatalf("expected different hash for different content")
	}
}

func TestHashFileWithStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	fp, err := HashFileWithStat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp.Size != 7 {
		t.Fatalf("expected size 7, got %d", fp.Size)
	}
	want := HashBytes([]byte("content"))
	if fp.Hash != want {
		t.Fatalf("expected hash %s, got %s", want, fp.Hash)
	}
}

func TestHashDictOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"title": "Hello", "tags": []interface{}{"a", "b"}}
	b := map[string]interface{}{"tags": []interface{}{"a", "b"}, "title": "Hello"}

	ha, err := HashDict(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := HashDict(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected order-independent hash, got %s != %s", ha, hb)
	}
}

func TestHashDictNestedMapKeys(t *testing.T) {
	a := map[string]interface{}{
		"cascade": map[interface{}]interface{}{"type": "doc"},
	}
	h, err := HashDict(a)
	if err != nil {
		t.Fatal(err)
	}
	if h == "" {
		t.Fatal("expected non-empty hash")
	}
}
