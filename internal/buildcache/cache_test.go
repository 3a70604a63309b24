package buildcache

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/hashing"
	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// openTestCache uses a real temp directory rather than afero.MemMapFs,
// matching kosh's own cache tests (builder/cache/cache_test.go): the
// embedded blobstore always writes through the real os package (spec
// §11.1), so the JSON-table filesystem and the blob filesystem need to
// agree on a real, writable base path.
func openTestCache(t *testing.T) (*BuildCache, afero.Fs, string) {
	t.Helper()
	fs := afero.NewOsFs()
	dir := t.TempDir()
	bc, err := Open(fs, dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return bc, fs, dir
}

func TestIsChangedStates(t *testing.T) {
	bc, _, _ := openTestCache(t)
	p := pathutil.SourcePath("content/a.md")

	status := bc.IsChanged(p, hashing.Fingerprint{Hash: "aaa", MTime: 1, Size: 10})
	if status != NotCached {
		t.Fatalf("first check = %v, want NotCached", status)
	}

	status = bc.IsChanged(p, hashing.Fingerprint{Hash: "aaa", MTime: 1, Size: 10})
	if status != Unchanged {
		t.Fatalf("same mtime/size = %v, want Unchanged", status)
	}

	// touched: mtime differs, hash identical
	status = bc.IsChanged(p, hashing.Fingerprint{Hash: "aaa", MTime: 2, Size: 10})
	if status != Touched {
		t.Fatalf("touch-only = %v, want Touched", status)
	}
	fp, _ := bc.Fingerprint(p)
	if fp.MTime != 2 {
		t.Fatalf("expected mtime refreshed to 2, got %v", fp.MTime)
	}

	status = bc.IsChanged(p, hashing.Fingerprint{Hash: "aaa", MTime: 2, Size: 10})
	if status != Unchanged {
		t.Fatalf("after touch refresh = %v, want Unchanged", status)
	}

	status = bc.IsChanged(p, hashing.Fingerprint{Hash: "bbb", MTime: 3, Size: 11})
	if status != Changed {
		t.Fatalf("real edit = %v, want Changed", status)
	}
}

func TestParsedContentCacheValidityConditions(t *testing.T) {
	bc, _, _ := openTestCache(t)
	p := pathutil.SourcePath("content/a.md")

	bc.SetFingerprint("layouts/post.html", hashing.Fingerprint{Hash: "tmpl1"})
	bc.StoreParsedContent(ParsedContent{
		Path:          p,
		HTML:          "<p>hi</p>",
		FileHash:      "filehash1",
		MetadataHash:  "meta1",
		Template:      "post.html",
		ParserVersion: 1,
		DependencyHashes: map[pathutil.SourcePath]hashing.ContentHash{
			"layouts/post.html": "tmpl1",
		},
	})

	if _, ok := bc.GetParsedContent(p, "filehash1", "meta1", "post.html", 1); !ok {
		t.Fatalf("expected cache hit on identical inputs")
	}
	if _, ok := bc.GetParsedContent(p, "filehash2", "meta1", "post.html", 1); ok {
		t.Fatalf("expected miss on file hash mismatch")
	}
	if _, ok := bc.GetParsedContent(p, "filehash1", "meta2", "post.html", 1); ok {
		t.Fatalf("expected miss on metadata hash mismatch")
	}
	if _, ok := bc.GetParsedContent(p, "filehash1", "meta1", "other.html", 1); ok {
		t.Fatalf("expected miss on template mismatch")
	}
	if _, ok := bc.GetParsedContent(p, "filehash1", "meta1", "post.html", 2); ok {
		t.Fatalf("expected miss on parser version mismatch")
	}

	bc.SetFingerprint("layouts/post.html", hashing.Fingerprint{Hash: "tmpl2"})
	if _, ok := bc.GetParsedContent(p, "filehash1", "meta1", "post.html", 1); ok {
		t.Fatalf("expected miss when a dependency's hash changed")
	}
}

func TestRenderedOutputInvalidatedByAssetManifest(t *testing.T) {
	bc, _, _ := openTestCache(t)
	p := pathutil.SourcePath("content/a.md")

	bc.StoreRenderedOutput(RenderedOutput{
		Path:               p,
		HTML:               "<html></html>",
		MetadataHash:       "meta1",
		AssetManifestMTime: 100,
	})

	if _, ok := bc.GetRenderedOutput(p, "meta1", 100); !ok {
		t.Fatalf("expected hit with matching asset manifest mtime")
	}
	if _, ok := bc.GetRenderedOutput(p, "meta1", 200); ok {
		t.Fatalf("expected miss after asset manifest mtime changed")
	}
}

func TestShouldRegenerateGeneratedPageMembers(t *testing.T) {
	bc, _, _ := openTestCache(t)

	hashes := map[string]hashing.ContentHash{"post-a.md": "h1", "post-b.md": "h2"}
	if !bc.ShouldRegenerate("tag", "go", hashes) {
		t.Fatalf("expected regenerate=true with no prior cache entry")
	}
	bc.StoreGeneratedPageMembers("tag", "go", hashes)

	if bc.ShouldRegenerate("tag", "go", hashes) {
		t.Fatalf("expected no regeneration when member set and hashes are unchanged")
	}

	changed := map[string]hashing.ContentHash{"post-a.md": "h1-changed", "post-b.md": "h2"}
	if !bc.ShouldRegenerate("tag", "go", changed) {
		t.Fatalf("expected regeneration when a member's hash changed")
	}

	added := map[string]hashing.ContentHash{"post-a.md": "h1", "post-b.md": "h2", "post-c.md": "h3"}
	if !bc.ShouldRegenerate("tag", "go", added) {
		t.Fatalf("expected regeneration when membership grew")
	}
}

func TestReverseDependencies(t *testing.T) {
	bc, _, _ := openTestCache(t)
	bc.SetDependencies("content/a.md", []pathutil.SourcePath{"layouts/post.html"})
	bc.SetDependencies("content/b.md", []pathutil.SourcePath{"layouts/post.html"})
	bc.SetDependencies("content/c.md", []pathutil.SourcePath{"layouts/page.html"})

	affected := bc.ReverseDependencies("layouts/post.html")
	if len(affected) != 2 {
		t.Fatalf("expected 2 reverse dependents, got %d: %v", len(affected), affected)
	}
}

func TestSaveAllAndReopenRoundTrips(t *testing.T) {
	bc, fs, dir := openTestCache(t)
	p := pathutil.SourcePath("content/a.md")
	bc.IsChanged(p, hashing.Fingerprint{Hash: "aaa", MTime: 1, Size: 10})
	bc.StoreParsedContent(ParsedContent{Path: p, HTML: "<p>hi</p>", FileHash: "aaa", Template: "post.html", ParserVersion: 1})
	bc.SetConfigHash("cfg1")
	bc.SetAssetManifestMTime(42)

	if err := bc.SaveAll(); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	reopened, err := Open(fs, dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ConfigHash() != "cfg1" {
		t.Fatalf("ConfigHash = %q, want cfg1", reopened.ConfigHash())
	}
	if reopened.AssetManifestMTime() != 42 {
		t.Fatalf("AssetManifestMTime = %v, want 42", reopened.AssetManifestMTime())
	}
	fp, ok := reopened.Fingerprint(p)
	if !ok || fp.Hash != "aaa" {
		t.Fatalf("expected fingerprint to survive round trip, got %+v ok=%v", fp, ok)
	}
	entry, ok := reopened.GetParsedContent(p, "aaa", "", "post.html", 1)
	if !ok || entry.HTML != "<p>hi</p>" {
		t.Fatalf("expected parsed content to survive round trip, got %+v ok=%v", entry, ok)
	}
}

func TestOpenOnEmptyDirectoryIsNotAnError(t *testing.T) {
	fs := afero.NewOsFs()
	bc, err := Open(fs, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open on fresh dir: %v", err)
	}
	if _, ok := bc.Fingerprint("content/a.md"); ok {
		t.Fatalf("expected no fingerprints in a fresh cache")
	}
}
