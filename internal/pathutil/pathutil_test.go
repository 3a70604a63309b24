package pathutil

import "testing"

func TestNormalizeInsideRoot(t *testing.T) {
	got := Normalize("/site", "/site/content/post.md")
	if got != "content/post.md" {
		t.Fatalf("got %s", got)
	}
}

func TestNormalizeOutsideRoot(t *testing.T) {
	got := Normalize("/site", "/other/theme/base.html")
	if got != SourcePath("/other/theme/base.html") {
		t.Fatalf("got %s", got)
	}
}

func TestIsTemp(t *testing.T) {
	if !IsTemp("index.html.123.4.abcd.tmp") {
		t.Fatal("expected temp match")
	}
	if IsTemp("index.html") {
		t.Fatal("expected no temp match")
	}
}

func TestIsDotfile(t *testing.T) {
	if !IsDotfile("/a/.DS_Store") {
		t.Fatal("expected dotfile")
	}
	if IsDotfile("/a/b.md") {
		t.Fatal("expected not dotfile")
	}
}
