package models

import (
	"slices"
	"time"
)

// ShiftStatus is the lifecycle status of the current shift.
type ShiftStatus string

const (
	ShiftIdle             ShiftStatus = "idle"
	ShiftAwaitingApproval ShiftStatus = "awaiting_approval"
	ShiftExecuting        ShiftStatus = "executing"
	ShiftCompleted        ShiftStatus = "completed"
	ShiftCancelled        ShiftStatus = "cancelled"
)

var shiftTransitions = map[ShiftStatus][]ShiftStatus{
	ShiftIdle:             {ShiftAwaitingApproval, ShiftExecuting},
	ShiftAwaitingApproval: {ShiftAwaitingApproval, ShiftExecuting, ShiftCancelled},
	ShiftExecuting:        {ShiftCompleted, ShiftCancelled},
	ShiftCompleted:        {ShiftAwaitingApproval, ShiftExecuting},
	ShiftCancelled:        {ShiftAwaitingApproval, ShiftExecuting},
}

// CanTransitionShift reports whether from -> to is a legal shift transition.
// Staying in the same status is always allowed.
func CanTransitionShift(from, to ShiftStatus) bool {
	if from == to {
		return true
	}
	return slices.Contains(shiftTransitions[from], to)
}

// ShiftState is the single small record describing where the current shift is.
// It is always read and written whole.
type ShiftState struct {
	ShiftID   string      `json:"shiftId,omitempty" yaml:"shiftId,omitempty" toml:"shiftId,omitempty" validate:"required_unless=Status idle"`
	ShiftName string      `json:"shiftName,omitempty" yaml:"shiftName,omitempty" toml:"shiftName,omitempty"`
	Date      string      `json:"date,omitempty" yaml:"date,omitempty" toml:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status    ShiftStatus `json:"status" yaml:"status" toml:"status" validate:"required,oneof=idle awaiting_approval executing completed cancelled"`
	// StatusReason is a human-readable note about the last status change.
	StatusReason           string     `json:"statusReason,omitempty" yaml:"statusReason,omitempty" toml:"statusReason,omitempty"`
	ApprovedAt             *time.Time `json:"approvedAt,omitempty" yaml:"approvedAt,omitempty" toml:"approvedAt,omitempty"`
	ApprovedBy             string     `json:"approvedBy,omitempty" yaml:"approvedBy,omitempty" toml:"approvedBy,omitempty"`
	AutoApproved           bool       `json:"autoApproved,omitempty" yaml:"autoApproved,omitempty" toml:"autoApproved,omitempty"`
	AutoApprovalDecisionID string     `json:"autoApprovalDecisionId,omitempty" yaml:"autoApprovalDecisionId,omitempty" toml:"autoApprovalDecisionId,omitempty"`
	CarryoverFromShift     string     `json:"carryoverFromShift,omitempty" yaml:"carryoverFromShift,omitempty" toml:"carryoverFromShift,omitempty"`
	ProposalPublishedAt    *time.Time `json:"proposalPublishedAt,omitempty" yaml:"proposalPublishedAt,omitempty" toml:"proposalPublishedAt,omitempty"`
	WindowStart            *time.Time `json:"windowStart,omitempty" yaml:"windowStart,omitempty" toml:"windowStart,omitempty"`
	WindowEnd              *time.Time `json:"windowEnd,omitempty" yaml:"windowEnd,omitempty" toml:"windowEnd,omitempty"`
	TotalSteps             int        `json:"totalSteps" yaml:"totalSteps" toml:"totalSteps" validate:"gte=0"`
	Completed              int        `json:"completed" yaml:"completed" toml:"completed" validate:"gte=0"`
	Blocked                int        `json:"blocked" yaml:"blocked" toml:"blocked" validate:"gte=0"`
	Skipped                int        `json:"skipped" yaml:"skipped" toml:"skipped" validate:"gte=0"`
	Pending                int        `json:"pending" yaml:"pending" toml:"pending" validate:"gte=0"`
	InFlight               int        `json:"inFlight" yaml:"inFlight" toml:"inFlight" validate:"gte=0,lte=1"`
	CyclesRun              int        `json:"cyclesRun" yaml:"cyclesRun" toml:"cyclesRun" validate:"gte=0"`
	LastCycleAt            *time.Time `json:"lastCycleAt,omitempty" yaml:"lastCycleAt,omitempty" toml:"lastCycleAt,omitempty"`
	StartedAt              *time.Time `json:"startedAt,omitempty" yaml:"startedAt,omitempty" toml:"startedAt,omitempty"`
	UpdatedAt              time.Time  `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt"`
}

// IdleShift is the state used before the first shift is ever planned.
func IdleShift() ShiftState {
	return ShiftState{Status: ShiftIdle}
}

// ApplyCounts overwrites the counters from a fresh tally of the plan.
func (s *ShiftState) ApplyCounts(c StepCounts) {
	s.TotalSteps = c.Total
	s.Completed = c.Done
	s.Blocked = c.Blocked
	s.Skipped = c.Skipped
	s.Pending = c.Pending
	s.InFlight = c.Claimed
}

// WindowExpired reports whether the shift window has ended at now.
func (s *ShiftState) WindowExpired(now time.Time) bool {
	return s.WindowEnd != nil && !now.Before(*s.WindowEnd)
}

// IsFinished reports whether the shift reached a terminal status.
func (s *ShiftState) IsFinished() bool {
	return s.Status == ShiftCompleted || s.Status == ShiftCancelled
}
