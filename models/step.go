package models

import (
	"fmt"
	"slices"
	"time"
)

// StepStatus is the lifecycle status of a step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepClaimed StepStatus = "claimed"
	StepDone    StepStatus = "done"
	StepBlocked StepStatus = "blocked"
	StepSkipped StepStatus = "skipped"
)

// BlockKind records why a step is blocked and decides whether it may be retried.
type BlockKind string

const (
	// BlockTransient failures are retried after a backoff.
	BlockTransient BlockKind = "transient"
	// BlockDependency failures are retried once the steps they depend on are done.
	BlockDependency BlockKind = "dependency"
	// BlockUser failures wait for a person and are never retried automatically.
	BlockUser BlockKind = "user"
)

// stepTransitions is the only set of status changes a step may make.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepClaimed},
	StepClaimed: {StepDone, StepBlocked, StepPending},
	StepBlocked: {StepPending, StepSkipped},
}

// CanTransitionStep reports whether from -> to is a legal step transition.
func CanTransitionStep(from, to StepStatus) bool {
	return slices.Contains(stepTransitions[from], to)
}

// StepTransition is one entry of a step's audit history.
type StepTransition struct {
	From StepStatus `json:"from" yaml:"from" toml:"from"`
	To   StepStatus `json:"to" yaml:"to" toml:"to"`
	At   time.Time  `json:"at" yaml:"at" toml:"at"`
	Note string     `json:"note,omitempty" yaml:"note,omitempty" toml:"note,omitempty"`
}

// Step is the atomic unit of work: one step is claimed and executed per cycle.
type Step struct {
	ID               string     `json:"id" yaml:"id" toml:"id" validate:"required"`
	TaskID           string     `json:"taskId" yaml:"taskId" toml:"taskId" validate:"required"`
	Description      string     `json:"description" yaml:"description" toml:"description" validate:"required"`
	SubActions       []string   `json:"subActions,omitempty" yaml:"subActions,omitempty" toml:"subActions,omitempty" validate:"dive,required"`
	MaxSubActions    int        `json:"maxSubActions,omitempty" yaml:"maxSubActions,omitempty" toml:"maxSubActions,omitempty" validate:"gte=0"`
	EstimatedMinutes int        `json:"estimatedMinutes,omitempty" yaml:"estimatedMinutes,omitempty" toml:"estimatedMinutes,omitempty" validate:"gte=0"`
	Status           StepStatus `json:"status" yaml:"status" toml:"status" validate:"required,oneof=pending claimed done blocked skipped"`
	ClaimedAt        *time.Time `json:"claimedAt,omitempty" yaml:"claimedAt,omitempty" toml:"claimedAt,omitempty"`
	ClaimedBy        string     `json:"claimedBy,omitempty" yaml:"claimedBy,omitempty" toml:"claimedBy,omitempty"`
	AttemptCount     int        `json:"attemptCount" yaml:"attemptCount" toml:"attemptCount" validate:"gte=0"`
	ReclaimCount     int        `json:"reclaimCount,omitempty" yaml:"reclaimCount,omitempty" toml:"reclaimCount,omitempty" validate:"gte=0"`
	LastAttemptAt    *time.Time `json:"lastAttemptAt,omitempty" yaml:"lastAttemptAt,omitempty" toml:"lastAttemptAt,omitempty"`
	Result           string     `json:"result,omitempty" yaml:"result,omitempty" toml:"result,omitempty"`
	BlockReason      string     `json:"blockReason,omitempty" yaml:"blockReason,omitempty" toml:"blockReason,omitempty"`
	BlockKind        BlockKind  `json:"blockKind,omitempty" yaml:"blockKind,omitempty" toml:"blockKind,omitempty" validate:"omitempty,oneof=transient dependency user"`
	DependsOn        []string   `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty" toml:"dependsOn,omitempty" validate:"dive,required"`
	NeedsReview      bool       `json:"needsReview,omitempty" yaml:"needsReview,omitempty" toml:"needsReview,omitempty"`
	Carryover        bool       `json:"carryover,omitempty" yaml:"carryover,omitempty" toml:"carryover,omitempty"`
	// Destructive and ExternallyVisible steps always need a fresh approval.
	Destructive       bool             `json:"destructive,omitempty" yaml:"destructive,omitempty" toml:"destructive,omitempty"`
	ExternallyVisible bool             `json:"externallyVisible,omitempty" yaml:"externallyVisible,omitempty" toml:"externallyVisible,omitempty"`
	ApprovedAt        *time.Time       `json:"approvedAt,omitempty" yaml:"approvedAt,omitempty" toml:"approvedAt,omitempty"`
	Transitions       []StepTransition `json:"transitions,omitempty" yaml:"transitions,omitempty" toml:"transitions,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt"`
}

// Transition moves the step to a new status, recording the change in its
// history. Leaving the claimed status clears the claim.
func (s *Step) Transition(to StepStatus, at time.Time, note string) error {
	if !CanTransitionStep(s.Status, to) {
		return fmt.Errorf("%w: step %s %s -> %s", ErrInvalidTransition, s.ID, s.Status, to)
	}
	s.Transitions = append(s.Transitions, StepTransition{From: s.Status, To: to, At: at, Note: note})
	if s.Status == StepClaimed {
		s.ClaimedAt = nil
		s.ClaimedBy = ""
	}
	if to == StepPending {
		s.BlockReason = ""
		s.BlockKind = ""
	}
	s.Status = to
	s.UpdatedAt = at
	return nil
}

// Claim marks a pending step as claimed by the given invocation.
func (s *Step) Claim(invocationID string, at time.Time) error {
	if err := s.Transition(StepClaimed, at, "claimed by "+invocationID); err != nil {
		return err
	}
	claimedAt := at
	s.ClaimedAt = &claimedAt
	s.ClaimedBy = invocationID
	return nil
}

// Block moves a claimed step to blocked with a reason.
func (s *Step) Block(kind BlockKind, reason string, at time.Time) error {
	if err := s.Transition(StepBlocked, at, string(kind)+": "+reason); err != nil {
		return err
	}
	s.BlockKind = kind
	s.BlockReason = reason
	return nil
}

// Skip gives up on a blocked step and flags it for human review.
func (s *Step) Skip(reason string, at time.Time) error {
	if err := s.Transition(StepSkipped, at, reason); err != nil {
		return err
	}
	s.NeedsReview = true
	return nil
}

// IsStale reports whether a claimed step's claim is older than threshold.
func (s *Step) IsStale(now time.Time, threshold time.Duration) bool {
	return s.Status == StepClaimed && s.ClaimedAt != nil && now.Sub(*s.ClaimedAt) > threshold
}

// IsTerminal reports whether the step will never run again in this shift.
func (s *Step) IsTerminal() bool {
	return s.Status == StepDone || s.Status == StepSkipped
}
