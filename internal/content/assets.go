package content

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/pathutil"
)

// Asset is one discovered static file (spec §4.4 asset discovery).
type Asset struct {
	SourcePath pathutil.SourcePath
	OutputPath string // relative to the assets root
	FromTheme  bool
}

// DiscoverAssets walks assetDirs in order and returns every file whose
// suffix is not `.md`, skipping dotfiles and crash-residual `.tmp` files.
// Later directories in assetDirs override earlier ones by OutputPath —
// callers should pass theme asset dirs first, site asset dirs last, so site
// assets win (spec §4.4: "Theme assets appear first... site assets
// override by output path").
func DiscoverAssets(fsys afero.Fs, root string, assetDirs []string, themeDirs map[string]bool) ([]Asset, error) {
	byOutput := map[string]Asset{}
	var order []string

	for _, dir := range assetDirs {
		err := afero.Walk(fsys, dir, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				if isNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			name := info.Name()
			if pathutil.IsTemp(name) || pathutil.IsDotfile(path) {
				return nil
			}
			if strings.EqualFold(filepath.Ext(name), ".md") {
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return fmt.Errorf("content: asset rel path: %w", err)
			}
			outputPath := pathutil.ToSlash(rel)

			if _, exists := byOutput[outputPath]; !exists {
				order = append(order, outputPath)
			}
			byOutput[outputPath] = Asset{
				SourcePath: pathutil.Normalize(root, path),
				OutputPath: outputPath,
				FromTheme:  themeDirs[dir],
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(order)
	out := make([]Asset, 0, len(order))
	for _, op := range order {
		out = append(out, byOutput[op])
	}
	return out, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory") ||
		strings.Contains(err.Error(), "file does not exist")
}
