package postprocess

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/atomicfile"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

// pageDump is the per-page JSON shape (spec §4.11 "per-page JSON and plain
// text dumps"); field names are not spec-constrained, only that the dump
// exists and is written atomically.
type pageDump struct {
	Title       string   `json:"title"`
	OutputPath  string   `json:"output_path"`
	Tags        []string `json:"tags,omitempty"`
	ReadingTime int      `json:"reading_time_minutes"`
	WordCount   int      `json:"word_count"`
}

// JSONTextDump emits a `.json` and a `.txt` sibling of every rendered page
// when enabled (spec §4.11).
type JSONTextDump struct{}

func (JSONTextDump) Name() string { return "json_text_dump" }

func (JSONTextDump) Emit(ctx context.Context, snap *snapshot.SiteSnapshot, cfg *config.Config, outputFs afero.Fs) error {
	if !cfg.Features.JSONDump {
		return nil
	}
	for _, p := range sortedByOutputPath(snap.Pages) {
		if p.OutputPath == "" {
			continue
		}
		base := strings.TrimSuffix(p.OutputPath, ".html")

		dump := pageDump{
			Title:       p.Title,
			OutputPath:  p.OutputPath,
			Tags:        p.Tags,
			ReadingTime: p.ReadingTime,
			WordCount:   p.WordCount,
		}
		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return err
		}
		if err := atomicfile.Write(outputFs, pathutil.Join(cfg.OutputDir, base+".json"), data); err != nil {
			return err
		}

		text := stripHTML(p.RawContent)
		if err := atomicfile.Write(outputFs, pathutil.Join(cfg.OutputDir, base+".txt"), []byte(text)); err != nil {
			return err
		}
	}
	return nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}
