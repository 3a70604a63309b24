package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bengal-ssg/bengal/internal/snapshot"
)

// PreloadFunc pre-warms one template (and its partial closure) so the
// worker pool never pays first-compile cost on the render critical path
// (spec §4.9 "scout thread"). Supplied by the template engine collaborator.
type PreloadFunc func(hint snapshot.ScoutHint) error

// WaveCounter is a shared, lock-free progress counter: the caller driving
// the worker pool advances it once per completed batch (Scheduler.Render
// does not touch it), and the scout reads it to decide
// whether it's gotten too far ahead of the worker pool.
type WaveCounter struct{ n atomic.Int64 }

// Advance records that the worker pool finished another batch.
func (w *WaveCounter) Advance() { w.n.Add(1) }

// Load returns the number of batches the worker pool has completed so far.
func (w *WaveCounter) Load() int64 { return w.n.Load() }

// DefaultLookaheadWaves bounds how far the scout may run ahead of worker
// progress before it pauses (spec §4.9).
const DefaultLookaheadWaves = 2

// DefaultScoutPollInterval is how often a throttled scout rechecks worker
// progress while waiting.
var DefaultScoutPollInterval = 10 * time.Millisecond

// Scout preloads templates in ScoutHint priority order (spec §4.7's
// highest-PagesUsing-first ordering), throttled so it never runs more than
// LookaheadWaves batches ahead of worker progress (spec §4.9: "stays
// lookahead_waves ahead, never indefinitely far"). Every preload failure
// is logged and skipped non-fatally: a broken template surfaces its real
// error later when the worker pool's own render call reaches that page.
type Scout struct {
	LookaheadWaves int
	PollInterval   time.Duration
	Logger         *slog.Logger
}

func (s *Scout) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run preloads every hint in order, pacing itself against workerProgress.
// Passing a nil workerProgress disables throttling entirely (useful for a
// dry run or a single-wave build where there's nothing to race ahead of).
func (s *Scout) Run(ctx context.Context, hints []snapshot.ScoutHint, workerProgress *WaveCounter, preload PreloadFunc) {
	lookahead := int64(orDefault(s.LookaheadWaves, DefaultLookaheadWaves))
	interval := orDefaultDuration(s.PollInterval, DefaultScoutPollInterval)

	for i, hint := range hints {
		for workerProgress != nil && int64(i)-workerProgress.Load() > lookahead {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if preload == nil {
			continue
		}
		if err := preload(hint); err != nil {
			s.logger().Debug("scout_preload_failed", "template", hint.TemplatePath, "error", err)
		}
	}
}
