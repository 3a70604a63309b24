package postprocess

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/atomicfile"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

const redirectTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0; url=%s">
<link rel="canonical" href="%s">
<meta name="robots" content="noindex">
<title>Redirecting&hellip;</title>
</head>
<body>
<p>Redirecting to <a href="%s">%s</a>.</p>
</body>
</html>
`

// Redirects emits one HTML redirect page per alias, plus an optional
// platform `_redirects` file (spec §6.6, §4.11). Collisions with an
// already-claimed output path resolve first-claimant-wins with a warning
// (spec §4.11, §8 "redirect safety").
type Redirects struct {
	// GenerateRedirectsFile additionally emits a `_redirects` file in
	// `<src>  <dest>  301` form (spec §6.6).
	GenerateRedirectsFile bool
	Logger                interface{ Warn(string, ...any) }
}

func (Redirects) Name() string { return "redirects" }

func (r Redirects) Emit(ctx context.Context, snap *snapshot.SiteSnapshot, cfg *config.Config, outputFs afero.Fs) error {
	if !cfg.Features.Redirects {
		return nil
	}

	claimed := map[string]bool{}
	for _, p := range snap.Pages {
		if p.OutputPath != "" {
			claimed[p.OutputPath] = true
		}
	}

	var plainLines []string
	for _, p := range sortedByOutputPath(snap.Pages) {
		dest := "/" + p.OutputPath

		for _, raw := range aliasStrings(p.Metadata) {
			src := normalizeAlias(raw)
			if src == "" || src == p.OutputPath {
				continue
			}
			outPath := src
			if !strings.HasSuffix(outPath, ".html") {
				outPath = strings.TrimSuffix(outPath, "/") + "/index.html"
			}
			if claimed[outPath] {
				if r.Logger != nil {
					r.Logger.Warn("redirect output path already claimed, skipping", "path", outPath, "alias", raw)
				}
				continue
			}
			claimed[outPath] = true

			body := fmt.Sprintf(redirectTemplate, dest, dest, dest, dest)
			full := pathutil.Join(cfg.OutputDir, outPath)
			if err := atomicfile.Write(outputFs, full, []byte(body)); err != nil {
				return err
			}
			plainLines = append(plainLines, fmt.Sprintf("%s  %s  301", "/"+src, dest))
		}
	}

	if r.GenerateRedirectsFile && len(plainLines) > 0 {
		dest := pathutil.Join(cfg.OutputDir, "_redirects")
		if err := atomicfile.Write(outputFs, dest, []byte(strings.Join(plainLines, "\n")+"\n")); err != nil {
			return err
		}
	}
	return nil
}

func aliasStrings(metadata map[string]interface{}) []string {
	raw, ok := metadata["aliases"]
	if !ok {
		return nil
	}
	var out []string
	switch v := raw.(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func normalizeAlias(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), "/")
}
