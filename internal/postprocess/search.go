package postprocess

import (
	"compress/gzip"
	"context"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

// searchRecord is one indexed page (grounded on the teacher's
// builder/models.PostRecord).
type searchRecord struct {
	ID    int      `msgpack:"id"`
	Title string   `msgpack:"title"`
	Link  string   `msgpack:"link"`
	Tags  []string `msgpack:"tags"`
}

// searchIndex mirrors the teacher's builder/models.SearchIndex shape: a
// word -> (docID -> frequency) inverted index plus per-doc lengths for
// ranking.
type searchIndex struct {
	Posts     []searchRecord         `msgpack:"posts"`
	Inverted  map[string]map[int]int `msgpack:"inv"`
	DocLens   map[int]int            `msgpack:"lens"`
	TotalDocs int                    `msgpack:"total"`
	AvgDocLen float64                `msgpack:"avg"`
}

// SearchIndex assembles a gzip+msgpack search index per version
// (spec §6.6 "Version-scoped sites emit a per-version search index at
// <lang-or-version-root>/index.json" — this module uses a binary index
// instead of JSON, matching the teacher's own client format).
type SearchIndex struct{}

func (SearchIndex) Name() string { return "search_index" }

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9']+`)

func (SearchIndex) Emit(ctx context.Context, snap *snapshot.SiteSnapshot, cfg *config.Config, outputFs afero.Fs) error {
	if !cfg.Features.Search {
		return nil
	}

	byVersion := groupByVersion(snap.Pages)
	for version, pages := range byVersion {
		idx := searchIndex{
			Inverted: map[string]map[int]int{},
			DocLens:  map[int]int{},
		}

		totalLen := 0
		for i, p := range sortedByOutputPath(pages) {
			if p.IsSectionIndex {
				continue
			}
			idx.Posts = append(idx.Posts, searchRecord{
				ID:    i,
				Title: p.Title,
				Link:  "/" + p.OutputPath,
				Tags:  p.Tags,
			})

			words := wordPattern.FindAllString(strings.ToLower(stripHTML(p.RawContent)), -1)
			idx.DocLens[i] = len(words)
			totalLen += len(words)

			freqs := map[string]int{}
			for _, w := range words {
				freqs[w]++
			}
			for w, f := range freqs {
				bucket, ok := idx.Inverted[w]
				if !ok {
					bucket = map[int]int{}
					idx.Inverted[w] = bucket
				}
				bucket[i] = f
			}
		}

		idx.TotalDocs = len(idx.Posts)
		if idx.TotalDocs > 0 {
			idx.AvgDocLen = float64(totalLen) / float64(idx.TotalDocs)
		}

		dir := pathutil.Join(cfg.OutputDir, versionDir(version))
		if err := outputFs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := writeCompressedIndex(outputFs, pathutil.Join(dir, "search.bin"), idx); err != nil {
			return err
		}
	}
	return nil
}

func writeCompressedIndex(fs afero.Fs, path string, idx searchIndex) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gw := gzip.NewWriter(f)
	defer func() { _ = gw.Close() }()

	enc := msgpack.NewEncoder(gw)
	return enc.Encode(idx)
}
