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

// Discovery walks a content tree and builds PageCore/Section trees (spec
// §4.4). It reads every page file in full and builds a *Page for it
// directly; it creates no PageProxy values and never calls a Loader, so
// every discovery pass, warm or cold, reads every page body.
type Discovery struct {
	Fs         afero.Fs
	Root       string // absolute site root (used for SourcePath normalization)
	ContentDir string
}

// Result is everything one discovery pass produces.
type Result struct {
	Root      *Section
	Sections  map[pathutil.SourcePath]*Section
	AllPages  []*Page
	TopLevel  []*Page // pages directly in the content root (also in Root.Pages)
}

// Discover walks ContentDir, splitting frontmatter for every `.md` file and
// building the Section tree from directories containing `_index.md`.
// Directories without `_index.md` are implicit sections with empty
// metadata (spec §4.4).
func (d *Discovery) Discover() (*Result, error) {
	sections := map[pathutil.SourcePath]*Section{}
	var pageFiles []string

	err := afero.Walk(d.Fs, d.ContentDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if pathutil.IsTemp(name) || pathutil.IsDotfile(path) {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(name), ".md") {
			pageFiles = append(pageFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("content: walk %s: %w", d.ContentDir, err)
	}

	// Pass 1: build section scaffolding for every directory that holds an
	// _index.md, plus every directory that holds any page (as an implicit
	// section).
	dirSet := map[string]bool{}
	for _, p := range pageFiles {
		dirSet[filepath.Dir(p)] = true
	}
	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	getOrCreateSection := func(dir string) *Section {
		sp := pathutil.Normalize(d.Root, dir)
		if s, ok := sections[sp]; ok {
			return s
		}
		s := &Section{Path: sp, Metadata: map[string]interface{}{}}
		sections[sp] = s
		return s
	}

	root := getOrCreateSection(d.ContentDir)
	cleanContentDir := filepath.Clean(d.ContentDir)

	for _, dir := range dirs {
		// Walk from dir up to (exclusive of) the content root, creating and
		// linking a Section for every ancestor directory so nested
		// sections cascade correctly (spec §4.5 recursion needs the full
		// chain, not just leaf directories).
		child := getOrCreateSection(dir)
		current := dir
		for filepath.Clean(current) != cleanContentDir {
			parentDir := filepath.Dir(current)
			parent := getOrCreateSection(parentDir)
			attachChild(parent, child)
			if filepath.Clean(parentDir) == cleanContentDir {
				break
			}
			child = parent
			current = parentDir
		}
	}

	result := &Result{Root: root, Sections: sections}

	// Pass 2: split every markdown file into frontmatter and body and slot
	// it into its section; pages in the content root also go to TopLevel.
	for _, path := range pageFiles {
		name := filepath.Base(path)
		sourcePath := pathutil.Normalize(d.Root, path)

		raw, err := afero.ReadFile(d.Fs, path)
		if err != nil {
			return nil, fmt.Errorf("content: read %s: %w", path, err)
		}
		fm, body, err := SplitFrontmatter(raw)
		if err != nil {
			return nil, fmt.Errorf("content: %s: %w", path, err)
		}

		dir := filepath.Dir(path)
		section := getOrCreateSection(dir)

		if isIndexFile(name) {
			section.Metadata = fm
			sectionPath := section.Path
			core := NewPageCore(sourcePath, fm)
			core.Section = &sectionPath
			section.IndexPage = &Page{PageCore: core, Metadata: cloneMap(fm), RawContent: string(body)}
			continue
		}

		core := NewPageCore(sourcePath, fm)
		sectionPath := section.Path
		core.Section = &sectionPath

		page := &Page{PageCore: core, Metadata: cloneMap(fm), RawContent: string(body)}
		section.Pages = append(section.Pages, page)
		result.AllPages = append(result.AllPages, page)

		if section == root {
			result.TopLevel = append(result.TopLevel, page)
		}
	}

	return result, nil
}

func attachChild(parent, child *Section) {
	if child.Parent == parent {
		return
	}
	for _, existing := range parent.Subsections {
		if existing == child {
			return
		}
	}
	child.Parent = parent
	parent.Subsections = append(parent.Subsections, child)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
