// Package assetpipeline is the default (non-core) implementation of the
// §6.2 asset manifest contract: copy each discovered asset byte for byte
// into the output directory and write asset-manifest.json, the one piece
// of the asset pipeline the build core depends on. Fingerprinted URL
// rewriting and minification mechanics are explicitly out of scope
// (spec §1) — this package computes a fingerprint per asset for the
// manifest's own sake, but never rewrites a rendered page's markup to
// reference it.
package assetpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/atomicfile"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/hashing"
)

// manifestEntry is one asset's record in asset-manifest.json.
type manifestEntry struct {
	OutputPath string              `json:"outputPath"`
	Hash       hashing.ContentHash `json:"hash"`
	Size       uint64              `json:"size"`
}

// manifest is the on-disk shape of asset-manifest.json (spec §6.2).
type manifest struct {
	Assets []manifestEntry `json:"assets"`
}

// ManifestName is the file written into the output directory root.
const ManifestName = "asset-manifest.json"

// Processor implements orchestrator.AssetProcessor: copy, fingerprint,
// manifest.
type Processor struct {
	SourceFs  afero.Fs
	OutputFs  afero.Fs
	OutputDir string
}

// New builds a Processor rooted at outputDir on outputFs, reading source
// bytes from sourceFs.
func New(sourceFs, outputFs afero.Fs, outputDir string) *Processor {
	return &Processor{SourceFs: sourceFs, OutputFs: outputFs, OutputDir: outputDir}
}

// Process copies every asset to OutputDir/asset.OutputPath and writes the
// manifest, returning the manifest file's mtime (spec §6.2, §4.10 step 11).
func (p *Processor) Process(ctx context.Context, assets []content.Asset) (float64, error) {
	entries := make([]manifestEntry, 0, len(assets))

	for _, a := range assets {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		data, err := afero.ReadFile(p.SourceFs, string(a.SourcePath))
		if err != nil {
			return 0, fmt.Errorf("assetpipeline: read %s: %w", a.SourcePath, err)
		}

		destPath := filepath.Join(p.OutputDir, filepath.FromSlash(a.OutputPath))
		if err := atomicfile.Write(p.OutputFs, destPath, data); err != nil {
			return 0, fmt.Errorf("assetpipeline: write %s: %w", destPath, err)
		}

		entries = append(entries, manifestEntry{
			OutputPath: a.OutputPath,
			Hash:       hashing.HashBytes(data),
			Size:       uint64(len(data)),
		})
	}

	data, err := json.MarshalIndent(manifest{Assets: entries}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("assetpipeline: marshal manifest: %w", err)
	}

	manifestPath := filepath.Join(p.OutputDir, ManifestName)
	if err := atomicfile.Write(p.OutputFs, manifestPath, data); err != nil {
		return 0, fmt.Errorf("assetpipeline: write manifest: %w", err)
	}

	info, err := p.OutputFs.Stat(manifestPath)
	if err != nil {
		return 0, fmt.Errorf("assetpipeline: stat manifest: %w", err)
	}
	return float64(info.ModTime().UnixNano()) / 1e9, nil
}
