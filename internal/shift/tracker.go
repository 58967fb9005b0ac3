// Package shift tracks the lifecycle of the current shift. Every change is a
// whole-record read-modify-write of the shift state file.
package shift

import (
	"errors"
	"fmt"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
)

// ErrShiftMismatch is returned when an update targets a shift that is not
// the current one.
var ErrShiftMismatch = errors.New("shift state belongs to another shift")

// Tracker owns all writes to the shift state.
type Tracker struct {
	store store.ShiftStore
	now   func() time.Time
}

// NewTracker creates a tracker over the given store.
func NewTracker(s store.ShiftStore) *Tracker {
	return &Tracker{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Current returns the shift state as stored.
func (t *Tracker) Current() (models.ShiftState, error) {
	return t.store.Load()
}

// Transition applies fn to the full record and writes it back, rejecting any
// status change outside the lifecycle table.
func (t *Tracker) Transition(fn func(st *models.ShiftState) error) (models.ShiftState, error) {
	return t.store.Update(func(st *models.ShiftState) error {
		from := st.Status
		if err := fn(st); err != nil {
			return err
		}
		if !models.CanTransitionShift(from, st.Status) {
			return fmt.Errorf("%w: shift %s -> %s", models.ErrInvalidTransition, from, st.Status)
		}
		return nil
	})
}

// Proposal describes a shift waiting for approval.
type Proposal struct {
	ShiftID     string
	ShiftName   string
	Date        string
	WindowStart time.Time
	WindowEnd   time.Time
}

// AwaitApproval records that a proposal was published. Re-publishing the same
// shift keeps the original publication time so the approval timeout holds.
func (t *Tracker) AwaitApproval(p Proposal) (models.ShiftState, error) {
	now := t.now()
	return t.Transition(func(st *models.ShiftState) error {
		if st.Status == models.ShiftAwaitingApproval && st.ShiftID == p.ShiftID {
			return nil
		}
		if st.Status == models.ShiftExecuting {
			return fmt.Errorf("%w: shift %s is still executing", models.ErrInvalidTransition, st.ShiftID)
		}
		start, end := p.WindowStart, p.WindowEnd
		*st = models.ShiftState{
			ShiftID:             p.ShiftID,
			ShiftName:           p.ShiftName,
			Date:                p.Date,
			Status:              models.ShiftAwaitingApproval,
			StatusReason:        "proposal published",
			ProposalPublishedAt: &now,
			WindowStart:         &start,
			WindowEnd:           &end,
		}
		return nil
	})
}

// Approval records who approved a plan and how.
type Approval struct {
	ApprovedBy    string
	AutoApproved  bool
	DecisionID    string
	CarryoverFrom string
}

// Begin moves the shift to executing for the given approved plan.
func (t *Tracker) Begin(plan *models.Plan, a Approval) (models.ShiftState, error) {
	now := t.now()
	return t.Transition(func(st *models.ShiftState) error {
		if st.Status == models.ShiftAwaitingApproval && st.ShiftID != plan.ShiftID {
			return fmt.Errorf("%w: awaiting %s, beginning %s", ErrShiftMismatch, st.ShiftID, plan.ShiftID)
		}
		if st.Status == models.ShiftExecuting {
			return fmt.Errorf("%w: shift %s is already executing", models.ErrInvalidTransition, st.ShiftID)
		}
		published := st.ProposalPublishedAt
		start, end := plan.WindowStart, plan.WindowEnd
		*st = models.ShiftState{
			ShiftID:                plan.ShiftID,
			ShiftName:              plan.ShiftName,
			Date:                   plan.Date,
			Status:                 models.ShiftExecuting,
			StatusReason:           "approved",
			ApprovedAt:             &now,
			ApprovedBy:             a.ApprovedBy,
			AutoApproved:           a.AutoApproved,
			AutoApprovalDecisionID: a.DecisionID,
			CarryoverFromShift:     a.CarryoverFrom,
			ProposalPublishedAt:    published,
			WindowStart:            &start,
			WindowEnd:              &end,
			StartedAt:              &now,
		}
		st.ApplyCounts(models.CountSteps(plan))
		return nil
	})
}

// RecordProgress refreshes the counters from the plan after a cycle.
func (t *Tracker) RecordProgress(plan *models.Plan) (models.ShiftState, error) {
	now := t.now()
	return t.Transition(func(st *models.ShiftState) error {
		if st.ShiftID != plan.ShiftID {
			return fmt.Errorf("%w: state %s, plan %s", ErrShiftMismatch, st.ShiftID, plan.ShiftID)
		}
		st.ApplyCounts(models.CountSteps(plan))
		st.CyclesRun++
		st.LastCycleAt = &now
		return nil
	})
}

// Finalize closes the shift after its handoff has been written. A shift that
// is already finished is left as is.
func (t *Tracker) Finalize(plan *models.Plan, reason models.HandoffReason) (models.ShiftState, error) {
	return t.Transition(func(st *models.ShiftState) error {
		if st.ShiftID != plan.ShiftID {
			return fmt.Errorf("%w: state %s, plan %s", ErrShiftMismatch, st.ShiftID, plan.ShiftID)
		}
		st.ApplyCounts(models.CountSteps(plan))
		if st.IsFinished() {
			return nil
		}
		if reason == models.HandoffCancelled {
			st.Status = models.ShiftCancelled
		} else {
			st.Status = models.ShiftCompleted
		}
		st.StatusReason = string(reason)
		return nil
	})
}

// Cancel stops the whole shift. Cancellation is never per step.
func (t *Tracker) Cancel(reason string) (models.ShiftState, error) {
	return t.Transition(func(st *models.ShiftState) error {
		if st.Status == models.ShiftCancelled {
			return nil
		}
		st.Status = models.ShiftCancelled
		st.StatusReason = reason
		return nil
	})
}
