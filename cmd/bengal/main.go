// Command bengal builds a Bengal site from the current directory, the
// way kosh's cmd/kosh wires a Builder from its own CLI flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/assetpipeline"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/devserver"
	"github.com/bengal-ssg/bengal/internal/markdownengine"
	"github.com/bengal-ssg/bengal/internal/orchestrator"
	"github.com/bengal-ssg/bengal/internal/postprocess"
	"github.com/bengal-ssg/bengal/internal/templateengine"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "build":
		runBuild(ctx, args)
	case "serve":
		runServe(ctx, args)
	case "help", "-help", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runBuild(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	forceRebuild := fs.Bool("force", false, "ignore the cache and rebuild every page")
	drafts := fs.Bool("drafts", false, "include draft content")
	_ = fs.Parse(args)

	siteRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bengal: %v\n", err)
		os.Exit(1)
	}

	o, err := newOrchestrator(siteRoot, *forceRebuild, *drafts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bengal: %v\n", err)
		os.Exit(1)
	}

	result, err := o.Build(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bengal: build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result.Stats.String())
}

func runServe(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	drafts := fs.Bool("drafts", false, "include draft content")
	_ = fs.Parse(args)

	siteRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bengal: %v\n", err)
		os.Exit(1)
	}

	o, err := newOrchestrator(siteRoot, false, *drafts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bengal: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("building site...")
	if _, err := o.Build(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bengal: initial build failed: %v\n", err)
		os.Exit(1)
	}

	watchDirs := []string{
		o.Config.ContentDir,
		o.Config.ThemeDir,
	}
	watchDirs = append(watchDirs, o.Config.AssetDirs...)

	w := devserver.New(watchDirs, func(ctx context.Context) (any, error) {
		return o.Build(ctx)
	}, slog.Default())
	w.OnChanged = func(paths []string) {
		fmt.Printf("change detected (%d file(s)), rebuilding...\n", len(paths))
	}
	w.OnResult = func(result any, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "bengal: rebuild failed: %v\n", err)
			return
		}
		if r, ok := result.(*orchestrator.Result); ok {
			fmt.Println(r.Stats.String())
		}
	}

	fmt.Println("watching for changes, press Ctrl+C to stop")
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bengal: watcher failed: %v\n", err)
		os.Exit(1)
	}
}

// newOrchestrator assembles an Orchestrator from the real OS filesystem
// and the default (non-core) markdown/template/asset collaborators,
// rooted at siteRoot.
func newOrchestrator(siteRoot string, forceRebuild, includeDrafts bool) (*orchestrator.Orchestrator, error) {
	fs := afero.NewOsFs()

	cfg, err := config.Load(fs, siteRoot)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ForceRebuild = forceRebuild
	cfg.IncludeDrafts = includeDrafts

	md := markdownengine.New(cfg.BaseURL)
	cfg.ParserVersion = md.ParserVersion()

	tmplDir := filepath.Join(cfg.ThemeDir, "templates")
	tmpl := templateengine.New(tmplDir, template.FuncMap{})

	assets := assetpipeline.New(fs, fs, cfg.OutputDir)

	return &orchestrator.Orchestrator{
		Fs:             fs,
		SiteRoot:       siteRoot,
		Config:         cfg,
		Logger:         slog.Default(),
		Parser:         md,
		TemplateEngine: tmpl,
		Assets:         assets,
		Postprocessors: []orchestrator.Postprocessor{
			postprocess.Sitemap{},
			postprocess.RSS{},
			postprocess.Redirects{GenerateRedirectsFile: true, Logger: slog.Default()},
			postprocess.JSONTextDump{},
			postprocess.SearchIndex{},
		},
		Incremental: true,
	}, nil
}

func printUsage() {
	fmt.Println("Usage: bengal <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  build    Build the site once")
	fmt.Println("  serve    Build the site, then watch for changes and rebuild")
	fmt.Println("  help     Show this help message")
	fmt.Println()
	fmt.Println("Build/serve flags:")
	fmt.Println("  --force    Ignore the cache and rebuild every page (build only)")
	fmt.Println("  --drafts   Include draft content")
}
