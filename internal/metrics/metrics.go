// Package metrics tracks build performance the way kosh's builder/metrics
// package does: per-phase durations plus page/cache counters, with an
// optional Prometheus exporter layered on top for callers that supply a
// registry (spec §4.10 "each phase opens a timed scope that contributes to
// build stats").
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phase names the build-orchestrator steps that get their own timed scope
// (spec §4.10: "discovery, taxonomies, rendering, assets, postprocess").
type Phase string

const (
	PhaseInitialize  Phase = "initialize"
	PhaseDiscovery   Phase = "discovery"
	PhasePlan        Phase = "plan"
	PhaseSections    Phase = "sections"
	PhaseTaxonomies  Phase = "taxonomies"
	PhaseMenus       Phase = "menus"
	PhaseRelated     Phase = "related"
	PhaseQueryIndex  Phase = "query_index"
	PhasePagesUpdate Phase = "pages_update"
	PhaseSnapshot    Phase = "snapshot"
	PhaseAssets      Phase = "assets"
	PhaseRender      Phase = "render"
	PhasePostprocess Phase = "postprocess"
	PhaseCacheSave   Phase = "cache_save"
)

// BuildStats accumulates one build's timing and counters (kosh's
// BuildMetrics, generalized from post-specific counters to page/phase
// ones). Safe for concurrent use: the render phase records from many
// worker goroutines at once.
type BuildStats struct {
	mu sync.Mutex

	StartTime time.Time
	EndTime   time.Time

	PhaseDurations map[Phase]time.Duration

	PagesRendered int
	PagesCached   int
	PagesFailed   int

	IsIncremental bool
	ChangedFiles  int

	prom *promRecorder
}

// New starts a fresh BuildStats with StartTime set to now. A nil registry
// disables Prometheus export entirely (spec: "registered only if the
// orchestrator is given a registry").
func New(reg prometheus.Registerer) *BuildStats {
	s := &BuildStats{
		StartTime:      time.Now(),
		PhaseDurations: map[Phase]time.Duration{},
	}
	if reg != nil {
		s.prom = newPromRecorder(reg)
	}
	return s
}

// Timed runs fn, recording its duration under phase and updating the
// Prometheus histogram if one is registered.
func (s *BuildStats) Timed(phase Phase, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)

	s.mu.Lock()
	s.PhaseDurations[phase] += d
	s.mu.Unlock()

	if s.prom != nil {
		s.prom.observePhase(string(phase), d)
	}
	return err
}

// RecordRendered marks one page as freshly rendered.
func (s *BuildStats) RecordRendered() {
	s.mu.Lock()
	s.PagesRendered++
	s.mu.Unlock()
	if s.prom != nil {
		s.prom.pagesTotal.WithLabelValues("rendered").Inc()
	}
}

// RecordCached marks one page as served from cache.
func (s *BuildStats) RecordCached() {
	s.mu.Lock()
	s.PagesCached++
	s.mu.Unlock()
	if s.prom != nil {
		s.prom.pagesTotal.WithLabelValues("cached").Inc()
	}
}

// RecordFailed marks one page's render as having failed.
func (s *BuildStats) RecordFailed() {
	s.mu.Lock()
	s.PagesFailed++
	s.mu.Unlock()
	if s.prom != nil {
		s.prom.pagesTotal.WithLabelValues("failed").Inc()
	}
}

// Finish stamps EndTime; call once the build completes.
func (s *BuildStats) Finish() {
	s.mu.Lock()
	s.EndTime = time.Now()
	s.mu.Unlock()
}

// TotalDuration is EndTime - StartTime, or elapsed-so-far if still running.
func (s *BuildStats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// CacheHitRate is the fraction of rendered+cached pages that came from
// cache, as a percentage.
func (s *BuildStats) CacheHitRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.PagesRendered + s.PagesCached
	if total == 0 {
		return 0
	}
	return float64(s.PagesCached) / float64(total) * 100
}

// String is a one-line human summary, same shape as kosh's BuildMetrics.String.
func (s *BuildStats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.PagesRendered + s.PagesCached
	rate := float64(0)
	if total > 0 {
		rate = float64(s.PagesCached) / float64(total) * 100
	}
	elapsed := s.EndTime.Sub(s.StartTime)
	if s.EndTime.IsZero() {
		elapsed = time.Since(s.StartTime)
	}
	return fmt.Sprintf("built %d pages in %v (cache: %d/%d, %.0f%%, %d failed)",
		s.PagesRendered, elapsed, s.PagesCached, total, rate, s.PagesFailed)
}

// promRecorder is the optional Prometheus layer; its fields are only
// non-nil when BuildStats was constructed with a registry.
type promRecorder struct {
	phaseDuration *prometheus.HistogramVec
	pagesTotal    *prometheus.CounterVec
}

func newPromRecorder(reg prometheus.Registerer) *promRecorder {
	p := &promRecorder{
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bengal",
			Subsystem: "build",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each build phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		pagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bengal",
			Subsystem: "build",
			Name:      "pages_total",
			Help:      "Pages processed during rendering, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(p.phaseDuration, p.pagesTotal)
	return p
}

func (p *promRecorder) observePhase(phase string, d time.Duration) {
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}
