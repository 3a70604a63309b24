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

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

// RSS emits rss.xml per version root (spec §4.11).
type RSS struct{}

func (RSS) Name() string { return "rss" }

func (RSS) Emit(ctx context.Context, snap *snapshot.SiteSnapshot, cfg *config.Config, outputFs afero.Fs) error {
	if !cfg.Features.RSS {
		return nil
	}

	byVersion := groupByVersion(snap.Pages)
	for version, pages := range byVersion {
		var items []rssItem
		for _, p := range sortedByDateDesc(pages) {
			if p.IsSectionIndex || p.OutputPath == "" {
				continue
			}
			link := cfg.BaseURL + versionPrefix(version) + "/" + p.OutputPath
			pubDate := ""
			if p.Date != nil {
				pubDate = p.Date.UTC().Format(time.RFC1123Z)
			}
			items = append(items, rssItem{
				Title:   p.Title,
				Link:    link,
				PubDate: pubDate,
				GUID:    link,
			})
		}

		feed := rssFeed{
			Version: "2.0",
			Channel: rssChannel{
				Title:       cfg.Title,
				Link:        cfg.BaseURL + versionPrefix(version),
				Description: cfg.Description,
				Items:       items,
			},
		}

		body, err := xml.MarshalIndent(feed, "", "  ")
		if err != nil {
			return err
		}
		dest := pathutil.Join(cfg.OutputDir, versionDir(version), "rss.xml")
		if err := atomicfile.Write(outputFs, dest, append([]byte(xml.Header), body...)); err != nil {
			return err
		}
	}
	return nil
}

func sortedByDateDesc(pages []*snapshot.PageSnapshot) []*snapshot.PageSnapshot {
	out := append([]*snapshot.PageSnapshot(nil), pages...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && dateOf(out[j]).After(dateOf(out[j-1])); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func dateOf(p *snapshot.PageSnapshot) time.Time {
	if p.Date == nil {
		return time.Time{}
	}
	return *p.Date
}
