package handoff

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/shift"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	now      time.Time
	plans    *store.FilePlanStore
	tracker  *shift.Tracker
	archives *store.FileArchiveStore
	handoffs *store.FileHandoffStore
	drafts   *store.FileDraftStore
	log      *store.FileContextLog
	archiver *Archiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	layout := config.NewLayout(t.TempDir(), "json")
	require.NoError(t, layout.Ensure())
	f := &fixture{t: t, now: start}
	clock := func() time.Time { return f.now }

	var err error
	f.plans, err = store.NewFilePlanStore(layout.PlanFile(), layout.Format)
	require.NoError(t, err)
	shifts, err := store.NewFileShiftStore(layout.ShiftFile(), layout.Format)
	require.NoError(t, err)
	f.archives, err = store.NewFileArchiveStore(layout.ArchiveDir())
	require.NoError(t, err)
	f.handoffs, err = store.NewFileHandoffStore(layout.HandoffDir())
	require.NoError(t, err)
	f.drafts, err = store.NewFileDraftStore(layout.DraftFile())
	require.NoError(t, err)
	f.log, err = store.NewFileContextLog(layout.ContextLogFile())
	require.NoError(t, err)
	f.tracker = shift.NewTracker(shifts).WithClock(clock)

	f.archiver, err = New(Deps{Plans: f.plans, Tracker: f.tracker, Archives: f.archives, Handoffs: f.handoffs, Drafts: f.drafts, Log: f.log})
	require.NoError(t, err)
	f.archiver.WithClock(clock)
	return f
}

// seed starts a shift whose plan has one step in every status.
func (f *fixture) seed() models.Plan {
	f.t.Helper()
	claimedAt := start.Add(time.Minute)
	plan := models.Plan{
		ShiftID: "shift-1", ShiftName: "night", Date: "2026-03-02",
		WindowStart: start, WindowEnd: start.Add(6 * time.Hour),
		CreatedAt: start, UpdatedAt: start,
		Tasks: []models.Task{
			{ID: "ops", Title: "Rotate certificates", Tier: models.TierP1, StepIDs: []string{"done", "claimed", "pending"}},
			{ID: "docs", Title: "Refresh runbooks", Tier: models.TierP3, Order: 1, StepIDs: []string{"blocked", "skipped"}},
		},
		Steps: []models.Step{
			{ID: "done", TaskID: "ops", Description: "issue new certs", Status: models.StepDone, Result: "3 certs issued", AttemptCount: 1},
			{ID: "claimed", TaskID: "ops", Description: "deploy certs", Status: models.StepClaimed, ClaimedAt: &claimedAt, ClaimedBy: "inv-9", DependsOn: []string{"done"}},
			{ID: "pending", TaskID: "ops", Description: "verify endpoints", Status: models.StepPending, DependsOn: []string{"claimed"}},
			{ID: "blocked", TaskID: "docs", Description: "update wiki", Status: models.StepBlocked, BlockKind: models.BlockUser, BlockReason: "wiki login expired", AttemptCount: 1},
			{ID: "skipped", TaskID: "docs", Description: "publish pdf", Status: models.StepSkipped, BlockReason: "renderer crashed", AttemptCount: 5, NeedsReview: true},
		},
	}
	require.NoError(f.t, f.plans.Save(plan))
	_, err := f.tracker.Begin(&plan, shift.Approval{ApprovedBy: "dana"})
	require.NoError(f.t, err)
	return plan
}

func TestArchive_WritesHandoffAndCarryover(t *testing.T) {
	f := newFixture(t)
	f.seed()
	require.NoError(t, f.log.Append(
		models.ContextEntry{Timestamp: start.Add(-time.Hour), Text: "before the shift"},
		models.ContextEntry{Timestamp: start.Add(time.Hour), Text: "staging certs live in vault"},
	))
	f.now = start.Add(6 * time.Hour)

	h, err := f.archiver.Archive(context.Background(), models.HandoffWindowExpired)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffWindowExpired, h.Reason)
	assert.Equal(t, "shift-1", h.ArchiveID)
	assert.Equal(t, []string{"done"}, stepIDs(h.Completed))
	assert.Equal(t, []string{"blocked"}, stepIDs(h.Blocked))
	assert.Equal(t, []string{"skipped"}, stepIDs(h.Skipped))
	assert.Equal(t, []string{"claimed", "pending", "blocked"}, stepIDs(h.CarriedOver))
	require.Len(t, h.Lessons, 1)
	assert.Equal(t, "staging certs live in vault", h.Lessons[0].Text)

	plan, err := f.plans.Load()
	require.NoError(t, err)
	assert.True(t, plan.Frozen)
	assert.Nil(t, plan.ClaimedStep(), "claims are released before freezing")

	st, err := f.tracker.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCompleted, st.Status)
	assert.Equal(t, 2, st.Pending)

	latest, found, err := f.handoffs.LoadLatest()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, h.ShiftID, latest.ShiftID)
	md, err := f.handoffs.LatestMarkdown()
	require.NoError(t, err)
	assert.Contains(t, md, "## Needs review (skipped) (1)")
	assert.Contains(t, md, "user: wiki login expired")

	archived, err := f.archives.Plan("shift-1")
	require.NoError(t, err)
	assert.True(t, archived.Frozen)

	draft, err := f.drafts.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"shift-1"}, draft.CarriedFrom)
	require.Len(t, draft.Steps, 3)
	for _, s := range draft.Steps {
		assert.True(t, s.Carryover)
	}
	claimed := draft.Steps[0]
	assert.Equal(t, "claimed", claimed.ID)
	assert.Equal(t, models.StepPending, claimed.Status)
	assert.Empty(t, claimed.DependsOn, "dependencies on finished steps are dropped")
	assert.Equal(t, []string{"claimed"}, draft.Steps[1].DependsOn)
	require.Len(t, draft.Tasks, 2)
	assert.Equal(t, []string{"claimed", "pending"}, draft.Tasks[0].StepIDs)
	assert.Equal(t, "shift-1", draft.Tasks[0].SourceShift)
	assert.Equal(t, []string{"blocked"}, draft.Tasks[1].StepIDs)
}

func TestArchive_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed()
	ctx := context.Background()

	first, err := f.archiver.Archive(ctx, models.HandoffExhausted)
	require.NoError(t, err)
	entries, err := f.log.All()
	require.NoError(t, err)

	// A second run, or a run with another reason, changes nothing.
	f.now = start.Add(time.Hour)
	second, err := f.archiver.Archive(ctx, models.HandoffWindowExpired)
	require.NoError(t, err)
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, first.ArchiveID, second.ArchiveID)

	items, err := f.archives.List()
	require.NoError(t, err)
	assert.Len(t, items, 1)
	draft, err := f.drafts.Load()
	require.NoError(t, err)
	assert.Len(t, draft.Steps, 3)
	after, err := f.log.All()
	require.NoError(t, err)
	assert.Len(t, after, len(entries), "no second handoff entry")
}

func TestArchive_ResumesAfterFreeze(t *testing.T) {
	f := newFixture(t)
	f.seed()
	// Crash right after the freeze.
	_, err := f.archiver.freeze(models.HandoffExhausted)
	require.NoError(t, err)
	st, err := f.tracker.Current()
	require.NoError(t, err)
	require.Equal(t, models.ShiftExecuting, st.Status)

	h, err := f.archiver.Archive(context.Background(), models.HandoffExhausted)
	require.NoError(t, err)
	assert.Len(t, h.CarriedOver, 3)
	st, err = f.tracker.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCompleted, st.Status)
}

func TestArchive_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.seed()

	h, err := f.archiver.Archive(context.Background(), models.HandoffCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffCancelled, h.Reason)
	st, err := f.tracker.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCancelled, st.Status)
}

func TestArchive_CancelKeptAcrossCrashAfterFreeze(t *testing.T) {
	f := newFixture(t)
	f.seed()
	// The cancel froze the plan, then the process died.
	_, err := f.archiver.freeze(models.HandoffCancelled)
	require.NoError(t, err)
	st, err := f.tracker.Current()
	require.NoError(t, err)
	require.Equal(t, models.ShiftExecuting, st.Status, "the state is closed after the freeze")

	// The next cycle finishes the handoff with its own reason.
	h, err := f.archiver.Archive(context.Background(), models.HandoffExhausted)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffCancelled, h.Reason)
	st, err = f.tracker.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCancelled, st.Status)
	assert.Equal(t, "cancelled", st.StatusReason)
}

func TestResume_CancelledStateWithUnfrozenPlan(t *testing.T) {
	f := newFixture(t)
	f.seed()
	ctx := context.Background()
	// State closed but the plan was never frozen or archived.
	_, err := f.tracker.Cancel("cancelled")
	require.NoError(t, err)

	pending, err := f.archiver.Pending()
	require.NoError(t, err)
	require.True(t, pending)

	h, resumed, err := f.archiver.Resume(ctx)
	require.NoError(t, err)
	require.True(t, resumed)
	assert.Equal(t, models.HandoffCancelled, h.Reason)
	assert.Len(t, h.CarriedOver, 3)

	plan, err := f.plans.Load()
	require.NoError(t, err)
	assert.True(t, plan.Frozen)
	assert.Equal(t, models.HandoffCancelled, plan.EndReason)
	has, err := f.archives.Has("shift-1")
	require.NoError(t, err)
	assert.True(t, has)
	draft, err := f.drafts.Load()
	require.NoError(t, err)
	assert.Len(t, draft.Steps, 3)
	st, err := f.tracker.Current()
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCancelled, st.Status)

	entries, err := f.log.All()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[len(entries)-1].Text, "handed off (cancelled)")

	_, resumed, err = f.archiver.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestPending(t *testing.T) {
	f := newFixture(t)
	pending, err := f.archiver.Pending()
	require.NoError(t, err)
	assert.False(t, pending, "no plan")

	f.seed()
	pending, err = f.archiver.Pending()
	require.NoError(t, err)
	assert.False(t, pending, "an executing shift is handed off by the executor")

	_, err = f.archiver.Archive(context.Background(), models.HandoffExhausted)
	require.NoError(t, err)
	pending, err = f.archiver.Pending()
	require.NoError(t, err)
	assert.False(t, pending, "handoff complete")
}

func TestArchive_NothingToArchive(t *testing.T) {
	f := newFixture(t)
	_, err := f.archiver.Archive(context.Background(), models.HandoffExhausted)
	assert.ErrorIs(t, err, ErrNothingToArchive)
}

func TestRenderMarkdown(t *testing.T) {
	h := models.Handoff{
		ShiftID: "s1", ShiftName: "night", Date: "2026-03-02", Reason: models.HandoffExhausted,
		Completed: []models.HandoffStep{{StepID: "a", TaskTitle: "Certs", Tier: models.TierP1, Description: "issue\nmore detail", Result: "done"}},
		Counts:    models.StepCounts{Total: 1, Done: 1},
	}
	md := RenderMarkdown(h)
	assert.True(t, strings.HasPrefix(md, "# Handoff: night (2026-03-02)"))
	assert.Contains(t, md, "- Ended: no runnable steps left")
	assert.Contains(t, md, "- [P1] Certs: issue (done) `a`")
	assert.NotContains(t, md, "more detail")
	assert.NotContains(t, md, "## Blocked")
}

func stepIDs(steps []models.HandoffStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.StepID
	}
	return out
}
