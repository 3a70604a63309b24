package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewStartsTimerWithoutRegistry(t *testing.T) {
	s := New(nil)
	if s.StartTime.IsZero() {
		t.Fatalf("expected StartTime set")
	}
	if !s.EndTime.IsZero() {
		t.Fatalf("expected EndTime zero before Finish")
	}
	if s.prom != nil {
		t.Fatalf("expected no Prometheus recorder without a registry")
	}
}

func TestTimedAccumulatesPhaseDuration(t *testing.T) {
	s := New(nil)
	err := s.Timed(PhaseRender, func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Timed: %v", err)
	}
	if s.PhaseDurations[PhaseRender] <= 0 {
		t.Fatalf("expected a positive render phase duration")
	}
}

func TestTimedPropagatesError(t *testing.T) {
	s := New(nil)
	wantErr := errors.New("boom")
	err := s.Timed(PhaseAssets, func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("expected Timed to propagate the phase's error, got %v", err)
	}
}

func TestRecordRenderedCachedFailed(t *testing.T) {
	s := New(nil)
	s.RecordRendered()
	s.RecordRendered()
	s.RecordCached()
	s.RecordFailed()

	if s.PagesRendered != 2 || s.PagesCached != 1 || s.PagesFailed != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
}

func TestCacheHitRate(t *testing.T) {
	s := New(nil)
	s.RecordRendered()
	s.RecordCached()
	s.RecordCached()
	s.RecordCached()
	if rate := s.CacheHitRate(); rate != 75 {
		t.Fatalf("expected 75%% cache hit rate, got %v", rate)
	}
}

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	if s.prom == nil {
		t.Fatalf("expected a Prometheus recorder when a registry is given")
	}
	s.RecordRendered()
	_ = s.Timed(PhaseRender, func() error { return nil })

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}
}

func TestFinishStampsEndTime(t *testing.T) {
	s := New(nil)
	s.Finish()
	if s.EndTime.IsZero() {
		t.Fatalf("expected EndTime set after Finish")
	}
	if s.TotalDuration() < 0 {
		t.Fatalf("expected non-negative total duration")
	}
}
