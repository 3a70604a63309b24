package postprocess

import (
	"context"
	"encoding/xml"
	"time"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/atomicfile"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

// sitemapURL is one <url> entry (spec §4.11 "RSS/sitemap XML emission").
type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// Sitemap emits one sitemap.xml per version root (spec §4.11 "per-version if
// versioned").
type Sitemap struct{}

func (Sitemap) Name() string { return "sitemap" }

func (Sitemap) Emit(ctx context.Context, snap *snapshot.SiteSnapshot, cfg *config.Config, outputFs afero.Fs) error {
	if !cfg.Features.Sitemap {
		return nil
	}

	byVersion := groupByVersion(snap.Pages)
	for version, pages := range byVersion {
		set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     cfg.BaseURL + versionPrefix(version),
			LastMod: time.Now().UTC().Format("2006-01-02"),
		})
		for _, p := range sortedByOutputPath(pages) {
			if p.OutputPath == "" {
				continue
			}
			lastMod := ""
			if p.Date != nil {
				lastMod = p.Date.UTC().Format("2006-01-02")
			}
			set.URLs = append(set.URLs, sitemapURL{
				Loc:     cfg.BaseURL + "/" + p.OutputPath,
				LastMod: lastMod,
			})
		}

		body, err := xml.MarshalIndent(set, "", "  ")
		if err != nil {
			return err
		}
		dest := pathutil.Join(cfg.OutputDir, versionDir(version), "sitemap.xml")
		if err := atomicfile.Write(outputFs, dest, append([]byte(xml.Header), body...)); err != nil {
			return err
		}
	}
	return nil
}
