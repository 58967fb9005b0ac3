// Package handoff ends a shift: it freezes the plan, archives it with a
// handoff document, seeds the carryover draft and closes the shift state.
// Every step is idempotent, so an archive interrupted by a crash is finished
// by simply running it again.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/notify"
	"github.com/josephgoksu/ShiftWing/internal/shift"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
)

// ErrNothingToArchive is returned when the plan store holds no plan.
var ErrNothingToArchive = errors.New("no plan to archive")

// Deps are the stores an archiver writes. Log and Notifier are optional.
type Deps struct {
	Plans    store.PlanStore
	Tracker  *shift.Tracker
	Archives store.ArchiveStore
	Handoffs store.HandoffStore
	Drafts   store.DraftStore
	Log      store.ContextLog
	Notifier notify.Notifier
}

// Archiver implements the shift handoff.
type Archiver struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

// New creates an archiver.
func New(deps Deps) (*Archiver, error) {
	if deps.Plans == nil || deps.Tracker == nil || deps.Archives == nil || deps.Handoffs == nil || deps.Drafts == nil {
		return nil, errors.New("handoff: plan, shift, archive, handoff and draft stores are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	return &Archiver{
		deps:   deps,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("component", "handoff"),
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Archive ends the shift whose plan is in the plan store.
func (a *Archiver) Archive(ctx context.Context, reason models.HandoffReason) (models.Handoff, error) {
	if err := ctx.Err(); err != nil {
		return models.Handoff{}, err
	}
	st, err := a.deps.Tracker.Current()
	if err != nil {
		return models.Handoff{}, fmt.Errorf("read shift state: %w", err)
	}
	plan, err := a.deps.Plans.Load()
	if errors.Is(err, store.ErrPlanNotFound) {
		return models.Handoff{}, ErrNothingToArchive
	}
	if err != nil {
		return models.Handoff{}, fmt.Errorf("load plan: %w", err)
	}
	current := st.ShiftID == plan.ShiftID
	if !current && !plan.Frozen {
		return models.Handoff{}, fmt.Errorf("%w: state %s, plan %s", shift.ErrShiftMismatch, st.ShiftID, plan.ShiftID)
	}
	wasFinished := !current || st.IsFinished()
	if current && st.Status == models.ShiftCancelled {
		reason = models.HandoffCancelled
	}

	// The shift state is closed last, after the freeze, the archive and the
	// carryover, so a crash anywhere before it leaves a state that resumes.
	if !plan.Frozen {
		if plan, err = a.freeze(reason); err != nil {
			return models.Handoff{}, err
		}
	}
	if plan.EndReason != "" {
		reason = plan.EndReason
	}

	h, created, err := a.archive(plan, st, reason)
	if err != nil {
		return models.Handoff{}, err
	}
	md := RenderMarkdown(h)
	if err := a.deps.Handoffs.SaveLatest(h, md); err != nil {
		return models.Handoff{}, fmt.Errorf("save handoff: %w", err)
	}

	tasks, steps := Carryover(&plan)
	merged, err := a.deps.Drafts.Merge(plan.ShiftID, tasks, steps)
	if err != nil {
		return models.Handoff{}, fmt.Errorf("merge carryover: %w", err)
	}
	if merged {
		a.logger.Info("carryover drafted", "shift", plan.ShiftID, "steps", len(steps))
	}

	if current {
		if _, err := a.deps.Tracker.Finalize(&plan, h.Reason); err != nil {
			return models.Handoff{}, fmt.Errorf("finalize shift: %w", err)
		}
	}

	if !wasFinished || created {
		if a.deps.Log != nil {
			entry := models.ContextEntry{Timestamp: a.now(), Text: fmt.Sprintf("shift %s handed off (%s): %d done, %d blocked, %d skipped, %d carried over",
				plan.ShiftID, h.Reason, len(h.Completed), len(h.Blocked), len(h.Skipped), len(h.CarriedOver))}
			if err := a.deps.Log.Append(entry); err != nil {
				a.logger.Warn("could not append to context log", "error", err)
			}
		}
		level := notify.LevelInfo
		if len(h.Skipped) > 0 || len(h.Blocked) > 0 {
			level = notify.LevelWarning
		}
		if err := a.deps.Notifier.Notify(ctx, notify.Alert{
			Level:   level,
			Title:   "Shift handed off",
			Body:    md,
			ShiftID: plan.ShiftID,
			At:      a.now(),
		}); err != nil {
			a.logger.Warn("notification failed", "error", err)
		}
	}
	a.logger.Info("shift handed off", "shift", plan.ShiftID, "reason", h.Reason, "archive", h.ArchiveID)
	return h, nil
}

// Pending reports whether the shift in the state store ended without a
// complete handoff: its status is final but its plan is still unfrozen or
// was never archived.
func (a *Archiver) Pending() (bool, error) {
	st, err := a.deps.Tracker.Current()
	if err != nil {
		return false, fmt.Errorf("read shift state: %w", err)
	}
	if !st.IsFinished() {
		return false, nil
	}
	plan, err := a.deps.Plans.Load()
	if errors.Is(err, store.ErrPlanNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load plan: %w", err)
	}
	if plan.ShiftID != st.ShiftID {
		return false, nil
	}
	if !plan.Frozen {
		return true, nil
	}
	has, err := a.deps.Archives.Has(plan.ShiftID)
	if err != nil {
		return false, fmt.Errorf("check archive: %w", err)
	}
	return !has, nil
}

// Resume finishes an interrupted handoff. It reports false when there was
// nothing to finish.
func (a *Archiver) Resume(ctx context.Context) (models.Handoff, bool, error) {
	pending, err := a.Pending()
	if err != nil || !pending {
		return models.Handoff{}, false, err
	}
	a.logger.Warn("resuming interrupted handoff")
	h, err := a.Archive(ctx, models.HandoffExhausted)
	if err != nil {
		return models.Handoff{}, false, err
	}
	return h, true, nil
}

// freeze reverts live claims and marks the plan frozen with its end reason
// in one write.
func (a *Archiver) freeze(reason models.HandoffReason) (models.Plan, error) {
	now := a.now()
	plan, err := a.deps.Plans.Update(func(p *models.Plan) error {
		for i := range p.Steps {
			st := &p.Steps[i]
			if st.Status != models.StepClaimed {
				continue
			}
			if err := st.Transition(models.StepPending, now, "claim released at shift end"); err != nil {
				return err
			}
		}
		p.Frozen = true
		if p.EndReason == "" {
			p.EndReason = reason
		}
		return nil
	})
	if errors.Is(err, store.ErrPlanFrozen) {
		return a.deps.Plans.Load()
	}
	if err != nil {
		return models.Plan{}, fmt.Errorf("freeze plan: %w", err)
	}
	return plan, nil
}

// archive writes the archive entry, or returns the handoff already archived
// for the shift. created is false in the second case.
func (a *Archiver) archive(plan models.Plan, st models.ShiftState, reason models.HandoffReason) (h models.Handoff, created bool, err error) {
	has, err := a.deps.Archives.Has(plan.ShiftID)
	if err != nil {
		return models.Handoff{}, false, fmt.Errorf("check archive: %w", err)
	}
	if has {
		_, prior, err := a.deps.Archives.Get(plan.ShiftID)
		if err != nil {
			return models.Handoff{}, false, fmt.Errorf("read archived handoff: %w", err)
		}
		return prior, false, nil
	}

	since := plan.WindowStart
	if st.ShiftID == plan.ShiftID && st.StartedAt != nil {
		since = *st.StartedAt
	}
	var lessons []models.ContextEntry
	if a.deps.Log != nil {
		if lessons, err = a.deps.Log.Since(since); err != nil {
			a.logger.Warn("could not read context log delta", "error", err)
		}
	}

	h = Build(&plan, reason, lessons, a.now())
	if st.ShiftID == plan.ShiftID {
		h.CyclesRun = st.CyclesRun
	}
	entry, _, err := a.deps.Archives.Archive(store.ArchiveRequest{Plan: plan, Handoff: h, Markdown: RenderMarkdown(h)})
	if err != nil {
		return models.Handoff{}, false, fmt.Errorf("archive shift: %w", err)
	}
	h.ArchiveID = entry.ID
	return h, true, nil
}

// Build summarizes a finished plan.
func Build(plan *models.Plan, reason models.HandoffReason, lessons []models.ContextEntry, at time.Time) models.Handoff {
	h := models.Handoff{
		ShiftID:    plan.ShiftID,
		ShiftName:  plan.ShiftName,
		Date:       plan.Date,
		Reason:     reason,
		Lessons:    lessons,
		Counts:     models.CountSteps(plan),
		ArchivedAt: at,
	}
	for _, st := range plan.OrderedSteps() {
		hs := summarize(plan, st)
		switch st.Status {
		case models.StepDone:
			h.Completed = append(h.Completed, hs)
		case models.StepSkipped:
			h.Skipped = append(h.Skipped, hs)
		case models.StepBlocked:
			h.Blocked = append(h.Blocked, hs)
			h.CarriedOver = append(h.CarriedOver, hs)
		default:
			h.CarriedOver = append(h.CarriedOver, hs)
		}
	}
	return h
}

func summarize(plan *models.Plan, st *models.Step) models.HandoffStep {
	hs := models.HandoffStep{
		StepID:      st.ID,
		TaskID:      st.TaskID,
		Description: st.Description,
		Status:      st.Status,
		Result:      st.Result,
		BlockReason: st.BlockReason,
		BlockKind:   st.BlockKind,
		Attempts:    st.AttemptCount,
		Reclaims:    st.ReclaimCount,
	}
	if t := plan.Task(st.TaskID); t != nil {
		hs.TaskTitle = t.Title
		hs.Tier = t.Tier
	}
	return hs
}

// Carryover returns the unfinished work of a plan as draft tasks and steps.
// Dependencies on steps that are not carried are dropped: done ones are
// satisfied and the rest are recorded in the archive.
func Carryover(plan *models.Plan) ([]models.Task, []models.Step) {
	carried := make(map[string]bool)
	var steps []models.Step
	for _, st := range plan.OrderedSteps() {
		if st.IsTerminal() {
			continue
		}
		carried[st.ID] = true
	}
	for _, p := range plan.OrderedSteps() {
		if !carried[p.ID] {
			continue
		}
		st := *p
		st.Carryover = true
		st.DependsOn = slices.DeleteFunc(slices.Clone(st.DependsOn), func(id string) bool { return !carried[id] })
		steps = append(steps, st)
	}

	var tasks []models.Task
	for _, t := range plan.OrderedTasks() {
		ids := slices.DeleteFunc(slices.Clone(t.StepIDs), func(id string) bool { return !carried[id] })
		if len(ids) == 0 {
			continue
		}
		task := *t
		task.StepIDs = ids
		task.Carryover = true
		task.SourceShift = plan.ShiftID
		tasks = append(tasks, task)
	}
	return tasks, steps
}
