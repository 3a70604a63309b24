package scheduler

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := append([]string{"BENGAL_ENV"}, ciIndicators...)
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestDetectEnvironmentExplicitOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("BENGAL_ENV", "production")
	t.Cleanup(func() { os.Unsetenv("BENGAL_ENV") })

	if got := DetectEnvironment(); got != Production {
		t.Fatalf("expected Production, got %v", got)
	}
}

func TestDetectEnvironmentCIIndicator(t *testing.T) {
	clearEnv(t)
	os.Setenv("GITHUB_ACTIONS", "true")
	t.Cleanup(func() { os.Unsetenv("GITHUB_ACTIONS") })

	if got := DetectEnvironment(); got != CI {
		t.Fatalf("expected CI from indicator var, got %v", got)
	}
}

func TestDetectEnvironmentDefaultsLocal(t *testing.T) {
	clearEnv(t)
	if got := DetectEnvironment(); got != Local {
		t.Fatalf("expected Local when nothing is set, got %v", got)
	}
}

func TestGetProfileResolvesAutoDetect(t *testing.T) {
	clearEnv(t)
	os.Setenv("BENGAL_ENV", "ci")
	t.Cleanup(func() { os.Unsetenv("BENGAL_ENV") })

	got := GetProfile(CPUBound, AutoDetect)
	want := profiles[CPUBound][CI]
	if got != want {
		t.Fatalf("expected AutoDetect to resolve to CI profile, got %+v want %+v", got, want)
	}
}

func TestOptimalWorkersHonorsConfigOverride(t *testing.T) {
	if got := OptimalWorkers(1000, Mixed, Production, 3); got != 3 {
		t.Fatalf("expected config override to bypass the table, got %d", got)
	}
}

func TestOptimalWorkersNeverExceedsTaskCount(t *testing.T) {
	got := OptimalWorkers(1, IOBound, Production, 0)
	if got != 1 {
		t.Fatalf("expected worker count capped at task count of 1, got %d", got)
	}
}

func TestOptimalWorkersBoundedByMinMax(t *testing.T) {
	got := OptimalWorkers(1000, CPUBound, CI, 0)
	profile := profiles[CPUBound][CI]
	if got < profile.MinWorkers || got > profile.MaxWorkers {
		t.Fatalf("expected worker count within [%d,%d], got %d", profile.MinWorkers, profile.MaxWorkers, got)
	}
}

func TestShouldParallelizeBelowThreshold(t *testing.T) {
	profile := profiles[CPUBound][Local]
	if ShouldParallelize(profile.ParallelThreshold-1, CPUBound, Local) {
		t.Fatalf("expected sequential execution below parallel_threshold")
	}
	if !ShouldParallelize(profile.ParallelThreshold, CPUBound, Local) {
		t.Fatalf("expected parallel execution at parallel_threshold")
	}
}
