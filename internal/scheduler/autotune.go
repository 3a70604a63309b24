package scheduler

import (
	"os"
	"runtime"
	"strings"
)

// WorkloadType characterizes a scheduling workload's resource usage
// pattern (spec §4.9 "auto-tune table indexed by workload type").
type WorkloadType int

const (
	CPUBound WorkloadType = iota
	IOBound
	Mixed
)

// Environment is the execution environment an auto-tune profile is keyed
// on (spec §4.9 "(CI/local/production)"). AutoDetect is the zero value, so
// a Scheduler left with its Environment field unset resolves it via
// DetectEnvironment on every call rather than silently behaving as Local.
type Environment int

const (
	AutoDetect Environment = iota
	Local
	CI
	Production
)

func resolveEnvironment(env Environment) Environment {
	if env == AutoDetect {
		return DetectEnvironment()
	}
	return env
}

// WorkloadProfile is one calibrated entry in the auto-tune table (spec
// §4.9: "(parallel_threshold, min_workers, max_workers, cpu_fraction)").
type WorkloadProfile struct {
	ParallelThreshold int
	MinWorkers        int
	MaxWorkers        int
	CPUFraction       float64
}

// profiles reproduces original_source/bengal/utils/concurrency/workers.py's
// _PROFILES table exactly (SPEC_FULL.md §12: calibrated via benchmarks, not
// invented numbers).
var profiles = map[WorkloadType]map[Environment]WorkloadProfile{
	CPUBound: {
		CI:         {ParallelThreshold: 5, MinWorkers: 2, MaxWorkers: 2, CPUFraction: 1.0},
		Local:      {ParallelThreshold: 5, MinWorkers: 2, MaxWorkers: 4, CPUFraction: 0.5},
		Production: {ParallelThreshold: 5, MinWorkers: 2, MaxWorkers: 8, CPUFraction: 0.5},
	},
	IOBound: {
		CI:         {ParallelThreshold: 20, MinWorkers: 2, MaxWorkers: 4, CPUFraction: 1.0},
		Local:      {ParallelThreshold: 20, MinWorkers: 2, MaxWorkers: 8, CPUFraction: 0.75},
		Production: {ParallelThreshold: 20, MinWorkers: 2, MaxWorkers: 10, CPUFraction: 0.75},
	},
	Mixed: {
		CI:         {ParallelThreshold: 5, MinWorkers: 2, MaxWorkers: 2, CPUFraction: 1.0},
		Local:      {ParallelThreshold: 5, MinWorkers: 2, MaxWorkers: 6, CPUFraction: 0.5},
		Production: {ParallelThreshold: 5, MinWorkers: 2, MaxWorkers: 10, CPUFraction: 0.5},
	},
}

// ciIndicators mirrors workers.py's ci_indicators list: common CI
// environment variables checked in order when BENGAL_ENV doesn't name an
// environment explicitly.
var ciIndicators = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"TRAVIS",
	"JENKINS_URL",
	"BUILDKITE",
	"CODEBUILD_BUILD_ID",
	"AZURE_PIPELINES",
	"TF_BUILD",
}

// DetectEnvironment implements workers.py's detect_environment: explicit
// BENGAL_ENV first, then CI indicator variables, else Local (spec §4.9,
// SPEC_FULL.md §12).
func DetectEnvironment() Environment {
	switch strings.ToLower(os.Getenv("BENGAL_ENV")) {
	case "ci":
		return CI
	case "production":
		return Production
	case "local":
		return Local
	}

	for _, indicator := range ciIndicators {
		if os.Getenv(indicator) != "" {
			return CI
		}
	}
	return Local
}

// GetProfile returns the calibrated profile for a workload type and
// environment. Passing AutoDetect resolves the environment first.
func GetProfile(workload WorkloadType, env Environment) WorkloadProfile {
	return profiles[workload][resolveEnvironment(env)]
}

// OptimalWorkers implements workers.py's get_optimal_workers: a config
// override bypasses the table outright; otherwise the profile's CPU
// fraction and task count both bound the worker count, and the result
// never exceeds taskCount nor drops below 1.
func OptimalWorkers(taskCount int, workload WorkloadType, env Environment, configOverride int) int {
	if configOverride > 0 {
		return configOverride
	}

	profile := GetProfile(workload, env)
	cpuCount := runtime.NumCPU()
	cpuOptimal := int(float64(cpuCount) * profile.CPUFraction)
	if cpuOptimal < profile.MinWorkers {
		cpuOptimal = profile.MinWorkers
	}
	if cpuOptimal > profile.MaxWorkers {
		cpuOptimal = profile.MaxWorkers
	}

	if taskCount < 1 {
		taskCount = 1
	}
	if cpuOptimal > taskCount {
		return taskCount
	}
	return cpuOptimal
}

// ShouldParallelize implements workers.py's should_parallelize: below the
// profile's parallel_threshold, sequential execution avoids thread
// overhead exceeding the benefit (spec §4.9 "If task count <
// parallel_threshold, do sequential").
func ShouldParallelize(taskCount int, workload WorkloadType, env Environment) bool {
	profile := GetProfile(workload, env)
	return taskCount >= profile.ParallelThreshold
}
