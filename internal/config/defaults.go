// Package config provides centralized configuration for ShiftWing.
// All default values should be defined here to ensure a single source of truth.
package config

import "time"

// Executor defaults
const (
	// DefaultStalenessThreshold is how old a claim must be before another
	// invocation may reclaim it. A worker still running past this point can
	// be executed twice; keep it above DefaultStepTimeout.
	DefaultStalenessThreshold = 45 * time.Minute

	// DefaultStepTimeout bounds a single step execution.
	DefaultStepTimeout = 30 * time.Minute

	// DefaultMaxAttempts is the retry ceiling after which a step is skipped.
	DefaultMaxAttempts = 5

	// DefaultMaxStepsPerCycle caps steps executed by one invocation.
	DefaultMaxStepsPerCycle = 2

	// DefaultFastCompletionThreshold lets an invocation run another step when
	// the previous one finished quicker than this.
	DefaultFastCompletionThreshold = 2 * time.Minute

	// DefaultRetryBackoff is the wait before a transient failure is retried.
	DefaultRetryBackoff = 10 * time.Minute
)

// Planner defaults
const (
	DefaultShiftName            = "shift"
	DefaultWindowDuration       = 8 * time.Hour
	DefaultApprovalTimeout      = 30 * time.Minute
	DefaultMaxSubActionsPerStep = 3
	DefaultMaxStepsPerTask      = 6
	DefaultMaxStepMinutes       = 30
)

// Trigger defaults
const (
	DefaultCycleInterval = 5 * time.Minute
	DefaultPlanInterval  = time.Hour
)

// DefaultFormat is the encoding of the plan and shift state files.
const DefaultFormat = "json"
