// Package scheduler implements the wave scheduler (spec §4.9): it turns a
// SiteSnapshot and a to-build page set into ordered batches, renders each
// batch with an auto-tuned worker pool, and aggregates errors and progress
// the way kosh's pipeline workers do (builder/run/pipeline_posts.go's
// buffered-channel-semaphore idiom), calibrated against
// original_source/bengal/orchestration/utils/parallel.py's thresholds.
package scheduler

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bengal-ssg/bengal/internal/pathutil"
	"github.com/bengal-ssg/bengal/internal/snapshot"
)

// Strategy picks how pages within the to-build set are grouped into
// render batches (spec §4.9: "template-first batching, or topological wave
// batching when page-to-page dependencies exist").
type Strategy int

const (
	// TemplateFirst groups by resolved template, largest group first, so a
	// template's parse/compile cost amortizes over the most pages before
	// the scout or scheduler moves to the next one.
	TemplateFirst Strategy = iota
	// Topological renders snapshot.SiteSnapshot.Waves in order, respecting
	// page-to-page dependencies; pages outside every wave render last.
	Topological
)

// RenderFunc renders one page. cacheHit reports whether the page's output
// came from cache rather than a fresh render, for Result bookkeeping.
type RenderFunc func(page *snapshot.PageSnapshot) (cacheHit bool, err error)

// ProgressFunc receives a throttled progress update (spec §4.9, grounded on
// parallel.py's BatchProgressUpdater: updates fire every batchSize items or
// every updateInterval, whichever comes first).
type ProgressFunc func(completed, total int, lastItem string)

// PageError pairs a page with the error its render produced.
type PageError struct {
	Page pathutil.SourcePath
	Err  error
}

// Result is what a Render pass returns.
type Result struct {
	Rendered  int
	CacheHits int
	Errors    []PageError
}

// Default tuning constants, grounded on parallel.py's ParallelProcessor and
// BatchProgressUpdater defaults (SPEC_FULL.md §12).
const (
	DefaultErrorThreshold  = 5
	DefaultMaxErrorSamples = 3
	DefaultProgressBatch   = 10
)

// DefaultProgressInterval is parallel.py's update_interval_s (0.1s).
var DefaultProgressInterval = 100 * time.Millisecond

// shutdownSentinel is the substring errors.py matches to recognize an
// error produced by interpreter/runtime teardown racing worker goroutines,
// rather than a genuine page failure; these are swallowed, not counted
// (spec §4.9 "swallow shutdown-race errors").
const shutdownSentinel = "interpreter shutdown"

func isShutdownError(err error) bool {
	return err != nil && strings.Contains(err.Error(), shutdownSentinel)
}

// Scheduler owns one wave-scheduler configuration. The zero value is
// usable: TemplateFirst strategy, CPUBound workload, auto-detected
// environment, auto-tuned worker count, and the parallel.py default
// thresholds above.
type Scheduler struct {
	Strategy     Strategy
	WorkloadType WorkloadType
	Environment  Environment

	// WorkerOverride bypasses the auto-tune table when positive (spec
	// §4.9's "config override").
	WorkerOverride int

	ErrorType        string
	ErrorThreshold   int
	MaxErrorSamples  int
	ProgressBatch    int
	ProgressInterval time.Duration

	Logger   *slog.Logger
	Progress ProgressFunc
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// BuildTemplateBatches groups the to-build pages by resolved template,
// using the snapshot's already-sorted TemplateGroups (spec §4.9
// "template-first: group by template, largest group first"). Batches with
// no to-build pages are omitted; within a batch, pages stay ordered by
// descending attention score, same as TemplateGroups itself.
func BuildTemplateBatches(snap *snapshot.SiteSnapshot, toBuild map[pathutil.SourcePath]bool) [][]*snapshot.PageSnapshot {
	var names []string
	filtered := map[string][]*snapshot.PageSnapshot{}
	for tmpl, pages := range snap.TemplateGroups {
		var batch []*snapshot.PageSnapshot
		for _, p := range pages {
			if toBuild[p.SourcePath] {
				batch = append(batch, p)
			}
		}
		if len(batch) > 0 {
			filtered[tmpl] = batch
			names = append(names, tmpl)
		}
	}

	sortStrings(names, func(a, b string) bool {
		if len(filtered[a]) != len(filtered[b]) {
			return len(filtered[a]) > len(filtered[b])
		}
		return a < b
	})

	batches := make([][]*snapshot.PageSnapshot, 0, len(names))
	for _, name := range names {
		batches = append(batches, filtered[name])
	}
	return batches
}

func sortStrings(names []string, less func(a, b string) bool) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && less(names[j], names[j-1]); j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

// BuildTopologicalWaves filters snapshot.SiteSnapshot.Waves down to the
// to-build set, preserving wave order, and appends any to-build page that
// never appeared in a wave as one final orphan wave (spec §4.9
// "topological: consume the precomputed waves; pages with no recorded
// dependency relationship form a trailing wave").
func BuildTopologicalWaves(snap *snapshot.SiteSnapshot, toBuild map[pathutil.SourcePath]bool) [][]*snapshot.PageSnapshot {
	var waves [][]*snapshot.PageSnapshot
	seen := map[pathutil.SourcePath]bool{}

	for _, wave := range snap.Waves {
		var batch []*snapshot.PageSnapshot
		for _, p := range wave {
			if toBuild[p.SourcePath] {
				batch = append(batch, p)
				seen[p.SourcePath] = true
			}
		}
		if len(batch) > 0 {
			waves = append(waves, batch)
		}
	}

	var orphans []*snapshot.PageSnapshot
	for _, p := range snap.Pages {
		if toBuild[p.SourcePath] && !seen[p.SourcePath] {
			orphans = append(orphans, p)
		}
	}
	if len(orphans) > 0 {
		waves = append(waves, orphans)
	}
	return waves
}

// Render runs every to-build page through render, batched according to
// s.Strategy, one batch at a time, with each batch's pages distributed
// across an auto-tuned worker pool (spec §4.9).
func (s *Scheduler) Render(snap *snapshot.SiteSnapshot, toBuild map[pathutil.SourcePath]bool, render RenderFunc) *Result {
	var batches [][]*snapshot.PageSnapshot
	if s.Strategy == Topological {
		batches = BuildTopologicalWaves(snap, toBuild)
	} else {
		batches = BuildTemplateBatches(snap, toBuild)
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}

	agg := &errorAggregator{
		threshold:  orDefault(s.ErrorThreshold, DefaultErrorThreshold),
		maxSamples: orDefault(s.MaxErrorSamples, DefaultMaxErrorSamples),
		logger:     s.logger(),
		errorType:  orDefaultString(s.ErrorType, "render"),
	}
	prog := newProgressUpdater(s.Progress, orDefault(s.ProgressBatch, DefaultProgressBatch),
		orDefaultDuration(s.ProgressInterval, DefaultProgressInterval), total)

	result := &Result{}
	var resultMu sync.Mutex

	env := resolveEnvironment(s.Environment)

	for _, batch := range batches {
		workers := OptimalWorkers(len(batch), s.WorkloadType, env, s.WorkerOverride)
		parallel := ShouldParallelize(len(batch), s.WorkloadType, env) && workers > 1

		run := func(p *snapshot.PageSnapshot) {
			hit, err := render(p)
			if err != nil {
				agg.record(p.SourcePath, err)
			} else {
				resultMu.Lock()
				result.Rendered++
				if hit {
					result.CacheHits++
				}
				resultMu.Unlock()
			}
			prog.increment(string(p.SourcePath))
		}

		if !parallel {
			for _, p := range batch {
				run(p)
			}
			continue
		}

		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for _, p := range batch {
			p := p
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				run(p)
			}()
		}
		wg.Wait()
	}

	prog.finalize(total)
	agg.summarize()
	result.Errors = agg.errors
	return result
}

// errorAggregator implements parallel.py's error-handling policy: shutdown
// errors are swallowed entirely, the first maxSamples failures are logged
// individually as they happen, and a summary line fires only once the
// total crosses threshold.
type errorAggregator struct {
	mu         sync.Mutex
	errors     []PageError
	total      int
	threshold  int
	maxSamples int
	logger     *slog.Logger
	errorType  string
}

func (a *errorAggregator) record(page pathutil.SourcePath, err error) {
	if isShutdownError(err) {
		a.logger.Debug(a.errorType+"_shutdown_swallowed", "page", string(page))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.errors = append(a.errors, PageError{Page: page, Err: err})
	if a.total <= a.maxSamples {
		a.logger.Error(a.errorType+"_failed", "page", string(page), "error", err)
	}
}

func (a *errorAggregator) summarize() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total > a.threshold {
		a.logger.Error(a.errorType+"_summary", "total_errors", a.total, "samples_logged", a.maxSamples)
	}
}

// progressUpdater throttles ProgressFunc calls to every batchSize
// increments or every interval, whichever comes first (spec §4.9, grounded
// on parallel.py's BatchProgressUpdater).
type progressUpdater struct {
	mu         sync.Mutex
	fn         ProgressFunc
	batchSize  int
	interval   time.Duration
	total      int
	completed  int
	pending    int
	lastUpdate time.Time
}

func newProgressUpdater(fn ProgressFunc, batchSize int, interval time.Duration, total int) *progressUpdater {
	return &progressUpdater{fn: fn, batchSize: batchSize, interval: interval, total: total, lastUpdate: time.Now()}
}

func (p *progressUpdater) increment(item string) {
	if p.fn == nil {
		return
	}

	now := time.Now()
	p.mu.Lock()
	p.pending++
	due := p.pending >= p.batchSize || now.Sub(p.lastUpdate) >= p.interval
	var current int
	if due {
		p.completed += p.pending
		p.pending = 0
		p.lastUpdate = now
		current = p.completed
	}
	p.mu.Unlock()

	if due {
		p.fn(current, p.total, item)
	}
}

func (p *progressUpdater) finalize(total int) {
	p.mu.Lock()
	p.completed += p.pending
	p.pending = 0
	final := p.completed
	p.mu.Unlock()

	if p.fn != nil {
		p.fn(final, total, "")
	}
}
