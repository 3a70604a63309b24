// Package config loads the site configuration file (spec §6, SPEC_FULL.md
// §10.3): an exported struct with yaml tags, defaults applied after
// unmarshal, the way kosh's builder/config/config.go does it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/bengal-ssg/bengal/internal/buildcache"
	"github.com/bengal-ssg/bengal/internal/scheduler"
)

// GeneratorsConfig toggles postprocess emitters (spec §4.11).
type GeneratorsConfig struct {
	Sitemap   bool `yaml:"sitemap"`
	RSS       bool `yaml:"rss"`
	Redirects bool `yaml:"redirects"`
	Search    bool `yaml:"search"`
	JSONDump  bool `yaml:"jsonDump"`
}

// Version names one documentation version of a versioned site.
type Version struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	IsLatest bool   `yaml:"isLatest"`
}

// MenuEntryConfig is one statically-configured navigation entry (spec
// §4.6's menu config input, alongside per-page menu hints).
type MenuEntryConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url,omitempty"`
	Weight int    `yaml:"weight,omitempty"`
	Parent string `yaml:"parent,omitempty"`
}

// Config is the site's bengal.yaml. Fields tagged `yaml:"-"` are runtime
// state, never read from or written to the file.
type Config struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	BaseURL     string `yaml:"baseURL"`
	Language    string `yaml:"language"`

	ContentDir string `yaml:"contentDir"`
	OutputDir  string `yaml:"outputDir"`
	ThemeDir   string `yaml:"themeDir"`
	Theme      string `yaml:"theme"`
	CacheDir   string `yaml:"cacheDir"`
	AssetDirs  []string `yaml:"assetDirs"`

	Menus    map[string][]MenuEntryConfig `yaml:"menus"`
	Versions []Version                   `yaml:"versions"`

	RelatedPostsCount int              `yaml:"relatedPostsCount"`
	ParserVersion     string           `yaml:"-"`
	Features          GeneratorsConfig `yaml:"features"`

	// StrictIncrementalRaw holds the YAML value ("off"|"warn"|"error");
	// ResolveStrictMode turns it (and the BENGAL_STRICT_INCREMENTAL
	// override) into a buildcache.StrictMode.
	StrictIncrementalRaw string `yaml:"strictIncremental"`

	ForceRebuild  bool `yaml:"-"`
	IncludeDrafts bool `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Title:             "Bengal Site",
		ContentDir:        "content",
		OutputDir:         "public",
		ThemeDir:          "themes",
		Theme:             "default",
		CacheDir:          ".bengal",
		AssetDirs:         []string{"static"},
		RelatedPostsCount: 5,
		Features: GeneratorsConfig{
			Sitemap:   true,
			RSS:       true,
			Redirects: true,
			Search:    true,
			JSONDump:  false,
		},
		StrictIncrementalRaw: "warn",
	}
}

// Load reads siteRoot/bengal.yaml (falling back to bengal.yml), applies
// defaults for anything unset, and loads a sibling .env file first so
// BENGAL_ENV/BENGAL_STRICT_INCREMENTAL can be set without exporting them by
// hand (SPEC_FULL.md §10.3). A missing config file is not an error — an
// empty site still builds with every default.
func Load(fs afero.Fs, siteRoot string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(siteRoot, ".env"))

	cfg := defaults()

	for _, name := range []string{"bengal.yaml", "bengal.yml"} {
		data, err := afero.ReadFile(fs, filepath.Join(siteRoot, name))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}

	if !filepath.IsAbs(cfg.ContentDir) {
		cfg.ContentDir = filepath.Join(siteRoot, cfg.ContentDir)
	}
	if !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(siteRoot, cfg.OutputDir)
	}
	if !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(siteRoot, cfg.CacheDir)
	}

	return cfg, nil
}

// ResolveStrictMode turns the config's raw value into a buildcache.StrictMode,
// with BENGAL_STRICT_INCREMENTAL taking precedence when set (SPEC_FULL.md
// §12's strict-incremental switch).
func (c *Config) ResolveStrictMode() buildcache.StrictMode {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("BENGAL_STRICT_INCREMENTAL")))
	if raw == "" {
		raw = strings.ToLower(strings.TrimSpace(c.StrictIncrementalRaw))
	}
	switch raw {
	case "error":
		return buildcache.StrictError
	case "off", "false", "0":
		return buildcache.StrictOff
	default:
		return buildcache.StrictWarn
	}
}

// WorkloadType maps the site's rendering concerns onto the scheduler's
// auto-tune table (spec §4.9). It always returns CPUBound; IOBound and
// Mixed are never chosen here.
func (c *Config) WorkloadType() scheduler.WorkloadType {
	return scheduler.CPUBound
}
