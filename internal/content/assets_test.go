package content

import (
	"testing"

	"github.com/spf13/afero"
)

func TestDiscoverAssetsSkipsMarkdownAndDotfiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/site/theme/assets/css/style.css", "body{}")
	writeFile(t, fs, "/site/theme/assets/.DS_Store", "junk")
	writeFile(t, fs, "/site/theme/assets/notes.md", "# skip me")

	assets, err := DiscoverAssets(fs, "/site", []string{"/site/theme/assets"}, nil)
	if err != nil {
		t.Fatalf("DiscoverAssets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d: %+v", len(assets), assets)
	}
	if assets[0].OutputPath != "css/style.css" {
		t.Fatalf("OutputPath = %q", assets[0].OutputPath)
	}
}

func TestDiscoverAssetsSiteOverridesTheme(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/site/theme/assets/css/style.css", "theme")
	writeFile(t, fs, "/site/assets/css/style.css", "site")

	themeDirs := map[string]bool{"/site/theme/assets": true}
	assets, err := DiscoverAssets(fs, "/site", []string{"/site/theme/assets", "/site/assets"}, themeDirs)
	if err != nil {
		t.Fatalf("DiscoverAssets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected override to collapse to 1 asset, got %d", len(assets))
	}
	if assets[0].FromTheme {
		t.Fatalf("expected site asset to win over theme asset")
	}
}

func TestDiscoverAssetsMissingDirIsNotError(t *testing.T) {
	fs := afero.NewMemMapFs()
	assets, err := DiscoverAssets(fs, "/site", []string{"/site/assets"}, nil)
	if err != nil {
		t.Fatalf("DiscoverAssets on missing dir: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("expected 0 assets, got %d", len(assets))
	}
}
