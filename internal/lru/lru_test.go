package lru

import (
	"errors"
	"testing"
	"time"
)

func TestEvictionOrder(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // touch a, making b the LRU entry
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatal("expected a still present")
	}
}

func TestStatsHitMiss(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("got %+v", s)
	}
}

func TestDisableEnable(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Disable()
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss while disabled")
	}
	c.Set("b", 2)
	c.Enable()
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a still present after re-enable")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b never cached while disabled")
	}
}

func TestGetOrSetDoesNotCacheOnError(t *testing.T) {
	c := New[string, int](4)
	wantErr := errors.New("boom")
	calls := 0
	factory := func() (int, error) {
		calls++
		return 0, wantErr
	}

	_, err := c.GetOrSet("k", factory)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error, got %v", err)
	}
	_, err = c.GetOrSet("k", factory)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error again, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected factory called twice (no caching of failure), got %d", calls)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewWithTTL[string, int](4, 10*time.Millisecond)
	c.Set("a", 1)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected immediate hit")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
}
