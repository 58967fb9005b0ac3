package shift

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	s, err := store.NewFileShiftStore(filepath.Join(t.TempDir(), "shift.json"), "json")
	require.NoError(t, err)
	return NewTracker(s).WithClock(func() time.Time { return now })
}

func plan() *models.Plan {
	return &models.Plan{
		ShiftID:     "shift-1",
		ShiftName:   "morning",
		Date:        "2026-03-02",
		WindowStart: now,
		WindowEnd:   now.Add(time.Hour),
		Tasks:       []models.Task{{ID: "t1", Title: "Task one", Tier: models.TierP2, StepIDs: []string{"a", "b"}}},
		Steps: []models.Step{
			{ID: "a", TaskID: "t1", Description: "a", Status: models.StepDone},
			{ID: "b", TaskID: "t1", Description: "b", Status: models.StepPending},
		},
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTracker(t)
	p := plan()

	st, err := tr.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftIdle, st.Status)

	st, err = tr.AwaitApproval(Proposal{ShiftID: p.ShiftID, ShiftName: p.ShiftName, Date: p.Date, WindowStart: p.WindowStart, WindowEnd: p.WindowEnd})
	require.NoError(t, err)
	assert.Equal(t, models.ShiftAwaitingApproval, st.Status)
	require.NotNil(t, st.ProposalPublishedAt)

	st, err = tr.Begin(p, Approval{ApprovedBy: "dana"})
	require.NoError(t, err)
	assert.Equal(t, models.ShiftExecuting, st.Status)
	assert.Equal(t, 2, st.TotalSteps)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, "dana", st.ApprovedBy)

	st, err = tr.RecordProgress(p)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CyclesRun)
	require.NotNil(t, st.LastCycleAt)

	st, err = tr.Finalize(p, models.HandoffExhausted)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCompleted, st.Status)

	// Finalizing twice is harmless.
	st, err = tr.Finalize(p, models.HandoffExhausted)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCompleted, st.Status)
}

func TestTracker_RejectsIllegalTransition(t *testing.T) {
	tr := newTracker(t)

	_, err := tr.Transition(func(st *models.ShiftState) error {
		st.ShiftID = "x"
		st.Status = models.ShiftCompleted
		return nil
	})
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	st, err := tr.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftIdle, st.Status, "rejected transition must not be written")
}

func TestTracker_AwaitApprovalKeepsPublicationTime(t *testing.T) {
	tr := newTracker(t)
	p := Proposal{ShiftID: "s", ShiftName: "n", Date: "2026-03-02", WindowStart: now, WindowEnd: now.Add(time.Hour)}

	first, err := tr.AwaitApproval(p)
	require.NoError(t, err)

	tr.WithClock(func() time.Time { return now.Add(20 * time.Minute) })
	second, err := tr.AwaitApproval(p)
	require.NoError(t, err)
	assert.True(t, first.ProposalPublishedAt.Equal(*second.ProposalPublishedAt))
}

func TestTracker_CannotProposeWhileExecuting(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.Begin(plan(), Approval{ApprovedBy: "auto", AutoApproved: true, DecisionID: "d-1"})
	require.NoError(t, err)

	_, err = tr.AwaitApproval(Proposal{ShiftID: "next", ShiftName: "n", Date: "2026-03-03", WindowStart: now, WindowEnd: now.Add(time.Hour)})
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestTracker_Cancel(t *testing.T) {
	tr := newTracker(t)
	p := plan()
	_, err := tr.Begin(p, Approval{ApprovedBy: "dana"})
	require.NoError(t, err)

	st, err := tr.Cancel("operator request")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCancelled, st.Status)

	// The archiver finalizing a cancelled shift keeps it cancelled.
	st, err = tr.Finalize(p, models.HandoffCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCancelled, st.Status)
}

func TestTracker_RecordProgressWrongShift(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.Begin(plan(), Approval{ApprovedBy: "dana"})
	require.NoError(t, err)

	other := plan()
	other.ShiftID = "other"
	_, err = tr.RecordProgress(other)
	require.ErrorIs(t, err, ErrShiftMismatch)
}
