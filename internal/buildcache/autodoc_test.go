package buildcache

import (
	"testing"

	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

func TestGetStaleAutodocSourcesMTimeOptimization(t *testing.T) {
	bc, _, _ := openTestCache(t)
	src := pathutil.SourcePath("apidocs/users.py")
	bc.AddAutodocDependency(src, "content/api/users.md", "h1", 100)

	hashCalls := 0
	hashFn := func(p pathutil.SourcePath) (hashing.ContentHash, error) {
		hashCalls++
		return "h1", nil
	}
	statFn := func(p pathutil.SourcePath) (float64, bool, error) {
		return 100, true, nil // mtime unchanged
	}

	stale, err := bc.GetStaleAutodocSources(statFn, hashFn, StrictOff, nil)
	if err != nil {
		t.Fatalf("GetStaleAutodocSources: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale sources, got %v", stale)
	}
	if hashCalls != 0 {
		t.Fatalf("expected mtime-unchanged to skip hashing, hashed %d times", hashCalls)
	}
}

func TestGetStaleAutodocSourcesRehashesOnMTimeChange(t *testing.T) {
	bc, _, _ := openTestCache(t)
	src := pathutil.SourcePath("apidocs/users.py")
	bc.AddAutodocDependency(src, "content/api/users.md", "h1", 100)

	statFn := func(p pathutil.SourcePath) (float64, bool, error) {
		return 200, true, nil // mtime changed
	}

	t.Run("content unchanged despite touch", func(t *testing.T) {
		hashFn := func(p pathutil.SourcePath) (hashing.ContentHash, error) { return "h1", nil }
		stale, err := bc.GetStaleAutodocSources(statFn, hashFn, StrictOff, nil)
		if err != nil {
			t.Fatalf("GetStaleAutodocSources: %v", err)
		}
		if len(stale) != 0 {
			t.Fatalf("expected not stale when rehash matches, got %v", stale)
		}
	})

	t.Run("content actually changed", func(t *testing.T) {
		hashFn := func(p pathutil.SourcePath) (hashing.ContentHash, error) { return "h2", nil }
		stale, err := bc.GetStaleAutodocSources(statFn, hashFn, StrictOff, nil)
		if err != nil {
			t.Fatalf("GetStaleAutodocSources: %v", err)
		}
		if len(stale) != 1 || stale[0] != src {
			t.Fatalf("expected %v stale, got %v", src, stale)
		}
	})
}

func TestGetStaleAutodocSourcesDeletedSourceIsStale(t *testing.T) {
	bc, _, _ := openTestCache(t)
	src := pathutil.SourcePath("apidocs/removed.py")
	bc.AddAutodocDependency(src, "content/api/removed.md", "h1", 100)

	statFn := func(p pathutil.SourcePath) (float64, bool, error) { return 0, false, nil }
	hashFn := func(p pathutil.SourcePath) (hashing.ContentHash, error) { return "", nil }

	stale, err := bc.GetStaleAutodocSources(statFn, hashFn, StrictOff, nil)
	if err != nil {
		t.Fatalf("GetStaleAutodocSources: %v", err)
	}
	if len(stale) != 1 || stale[0] != src {
		t.Fatalf("expected deleted source to be stale, got %v", stale)
	}
}

func TestGetStaleAutodocSourcesMissingMetaStrictError(t *testing.T) {
	bc, _, _ := openTestCache(t)
	src := pathutil.SourcePath("apidocs/orphan.py")
	// simulate a dependency recorded without ever calling AddAutodocDependency's
	// metadata path, by writing the dependency set directly.
	bc.mu.Lock()
	bc.autodocDeps[src] = map[string]struct{}{"content/api/orphan.md": {}}
	bc.mu.Unlock()

	statFn := func(p pathutil.SourcePath) (float64, bool, error) { return 100, true, nil }
	hashFn := func(p pathutil.SourcePath) (hashing.ContentHash, error) { return "", nil }

	if _, err := bc.GetStaleAutodocSources(statFn, hashFn, StrictError, nil); err == nil {
		t.Fatalf("expected strict mode to error on missing metadata")
	}

	stale, err := bc.GetStaleAutodocSources(statFn, hashFn, StrictWarn, nil)
	if err != nil {
		t.Fatalf("GetStaleAutodocSources (warn): %v", err)
	}
	if len(stale) != 1 || stale[0] != src {
		t.Fatalf("expected warn mode to mark stale, got %v", stale)
	}
}
