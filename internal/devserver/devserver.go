// Package devserver batches raw filesystem events into debounced rebuild
// triggers. This is the one sliver of the dev server/live-reload stack
// (out of scope per the spec's Non-goals) whose interface the build core
// exposes: it knows nothing about HTTP, websockets, or browser reload, it
// only tells its caller "something changed, rebuild now" — grounded on
// the teacher's internal/watch.Watcher debounce loop.
package devserver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BuildFunc is the rebuild trigger the watcher calls once per debounced
// batch of filesystem events. Callers pass a closure over their own
// orchestrator.Orchestrator.Build so this package never needs to import
// internal/orchestrator.
type BuildFunc func(ctx context.Context) (any, error)

// Watcher watches a set of root directories and debounces filesystem
// events into a single rebuild trigger, the way the teacher's watch.Watcher
// coalesces a burst of saves from an editor into one build.
type Watcher struct {
	Dirs      []string
	Debounce  time.Duration
	Build     BuildFunc
	Logger    *slog.Logger
	OnResult  func(result any, err error)
	OnChanged func(paths []string)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
}

// New constructs a Watcher. debounce defaults to 100ms, matching the
// teacher's own debounceDuration constant.
func New(dirs []string, build BuildFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		Dirs:     dirs,
		Debounce: 100 * time.Millisecond,
		Build:    build,
		Logger:   logger,
		pending:  map[string]struct{}{},
	}
}

// Run watches w.Dirs until ctx is cancelled, triggering a debounced Build
// call on every batch of filesystem events. It blocks until ctx is done
// or the underlying watcher fails to start.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer func() { _ = fsw.Close() }()

	for _, dir := range w.Dirs {
		if err := w.addRecursive(dir); err != nil {
			w.Logger.Warn("devserver: failed to watch directory", "dir", dir, "error", err)
		}
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				w.flush(ctx)
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("devserver: watcher error", "error", err)
		}
	}
}

// flush drains the pending change set and runs one rebuild. The rebuild is
// skipped when ctx is already cancelled; an error from a rebuild that does
// run, a cancellation included, is logged and passed to OnResult.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	if w.OnChanged != nil {
		w.OnChanged(paths)
	}

	if ctx.Err() != nil {
		return
	}
	result, err := w.Build(ctx)
	if err != nil {
		w.Logger.Error("devserver: rebuild failed", "error", err)
	}
	if w.OnResult != nil {
		w.OnResult(result, err)
	}
}

// addRecursive adds dir and every non-hidden subdirectory to the
// underlying fsnotify watcher, the way the teacher's watch.Watcher walks
// its root directories once at startup.
func (w *Watcher) addRecursive(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return w.fsw.Add(filepath.Dir(dir))
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if len(base) > 0 && base[0] == '.' && path != dir {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
