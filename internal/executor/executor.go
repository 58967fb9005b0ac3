// Package executor runs one cycle of the current shift: reclaim stale claims,
// pick the next step, claim it, run it through a worker and record the
// outcome. A cycle keeps nothing in memory; every call starts from the
// stores.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/notify"
	"github.com/josephgoksu/ShiftWing/internal/shift"
	"github.com/josephgoksu/ShiftWing/internal/worker"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
)

// Outcome is what a cycle did.
type Outcome string

const (
	// OutcomeNoop means the shift is not executing; nothing was touched.
	OutcomeNoop Outcome = "noop"
	// OutcomeBusy means another invocation holds a live claim.
	OutcomeBusy Outcome = "busy"
	// OutcomeExecuted means at least one step ran.
	OutcomeExecuted Outcome = "executed"
	// OutcomeWaiting means nothing can run now but blocked work may be
	// retried later in the shift.
	OutcomeWaiting Outcome = "waiting"
	// OutcomeHandedOff means the shift ended and was archived.
	OutcomeHandedOff Outcome = "handed_off"
)

// Archiver ends a shift. It must be idempotent.
type Archiver interface {
	Archive(ctx context.Context, reason models.HandoffReason) (models.Handoff, error)
}

// StepReport describes one executed step.
type StepReport struct {
	StepID   string
	TaskID   string
	Retry    bool
	Outcome  worker.Outcome
	Status   models.StepStatus
	Result   string
	Duration time.Duration
	// Discarded is set when the claim was lost before the result could be
	// recorded; the result was dropped.
	Discarded bool
}

// CycleReport is the result of one RunCycle.
type CycleReport struct {
	InvocationID  string
	ShiftID       string
	Outcome       Outcome
	Reclaimed     []string
	Skipped       []string
	Steps         []StepReport
	BusyStepID    string
	HandoffReason models.HandoffReason
	Handoff       *models.Handoff
	State         models.ShiftState
}

// Deps are the stores and collaborators of an executor. Log, Archiver and
// Notifier are optional.
type Deps struct {
	Plans    store.PlanStore
	Tracker  *shift.Tracker
	Log      store.ContextLog
	Worker   worker.Worker
	Archiver Archiver
	Notifier notify.Notifier
}

// Executor is the cycle state machine.
type Executor struct {
	deps   Deps
	cfg    config.ExecutorConfig
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// New creates an executor.
func New(deps Deps, cfg config.ExecutorConfig) (*Executor, error) {
	if deps.Plans == nil || deps.Tracker == nil || deps.Worker == nil {
		return nil, errors.New("executor: plan store, shift tracker and worker are required")
	}
	if cfg.MaxStepsPerCycle < 1 {
		cfg.MaxStepsPerCycle = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	return &Executor{
		deps:   deps,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: slog.Default().With("component", "executor"),
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// WithIDs replaces the invocation id generator. Used by tests.
func (e *Executor) WithIDs(newID func() string) *Executor {
	e.newID = newID
	return e
}

var (
	errUnchanged = errors.New("plan unchanged")
	errLostClaim = errors.New("claim lost")
)

// claim is the outcome of the locked select-and-claim step.
type claim struct {
	step      *models.Step
	task      *models.Task
	retry     bool
	reclaimed []string
	skipped   []string
	busy      string
	waiting   bool
	exhausted bool
}

// RunCycle runs one stateless cycle.
func (e *Executor) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{InvocationID: e.newID()}
	log := e.logger.With("invocation", report.InvocationID)

	st, err := e.deps.Tracker.Current()
	if err != nil {
		return report, fmt.Errorf("read shift state: %w", err)
	}
	report.ShiftID = st.ShiftID
	report.State = st
	if st.Status != models.ShiftExecuting {
		report.Outcome = OutcomeNoop
		log.Debug("shift not executing", "status", st.Status)
		return report, nil
	}
	if st.WindowExpired(e.now()) {
		return e.handOff(ctx, report, models.HandoffWindowExpired)
	}

	ran := 0
	var lessons []models.ContextEntry
	for ran < e.cfg.MaxStepsPerCycle {
		if ran > 0 && st.WindowExpired(e.now()) {
			break
		}
		c, err := e.claimNext(report.InvocationID, st.ShiftID)
		if errors.Is(err, store.ErrPlanFrozen) {
			// A crash interrupted the archiver; finish its work.
			reason := models.HandoffExhausted
			if st.WindowExpired(e.now()) {
				reason = models.HandoffWindowExpired
			}
			return e.handOff(ctx, report, reason)
		}
		if err != nil {
			return report, err
		}
		report.Reclaimed = append(report.Reclaimed, c.reclaimed...)
		report.Skipped = append(report.Skipped, c.skipped...)
		for _, id := range c.reclaimed {
			log.Warn("reclaimed stale claim", "step", id, "threshold", e.cfg.StalenessThreshold)
		}

		if c.busy != "" {
			report.BusyStepID = c.busy
			if ran == 0 {
				report.Outcome = OutcomeBusy
			}
			log.Info("another invocation holds a live claim", "step", c.busy)
			break
		}
		if c.step == nil {
			if c.exhausted {
				report.HandoffReason = models.HandoffExhausted
			} else if ran == 0 {
				report.Outcome = OutcomeWaiting
			}
			break
		}

		sr, learned := e.execute(ctx, report.InvocationID, st.ShiftID, c)
		report.Steps = append(report.Steps, sr)
		lessons = append(lessons, learned...)
		ran++
		log.Info("step finished", "step", sr.StepID, "outcome", sr.Outcome, "status", sr.Status, "duration", sr.Duration, "discarded", sr.Discarded)

		if sr.Duration > e.cfg.FastCompletionThreshold || ctx.Err() != nil {
			break
		}
	}
	if ran > 0 {
		report.Outcome = OutcomeExecuted
	}

	if len(lessons) > 0 && e.deps.Log != nil {
		if err := e.deps.Log.Append(lessons...); err != nil {
			log.Warn("could not append lessons to context log", "error", err)
		}
	}

	if ran > 0 || len(report.Reclaimed) > 0 || len(report.Skipped) > 0 {
		plan, err := e.deps.Plans.Load()
		if err != nil {
			return report, fmt.Errorf("reload plan: %w", err)
		}
		state, err := e.deps.Tracker.RecordProgress(&plan)
		if err != nil {
			return report, fmt.Errorf("record progress: %w", err)
		}
		report.State = state
	}

	if report.HandoffReason == "" && st.WindowExpired(e.now()) {
		report.HandoffReason = models.HandoffWindowExpired
	}
	if report.HandoffReason != "" {
		return e.handOff(ctx, report, report.HandoffReason)
	}
	if report.Outcome == "" {
		report.Outcome = OutcomeWaiting
	}
	return report, nil
}

// claimNext reverts stale claims and claims the next runnable step in one
// locked write. Nothing is written when nothing changes.
func (e *Executor) claimNext(invocationID, shiftID string) (claim, error) {
	var c claim
	now := e.now()
	_, err := e.deps.Plans.Update(func(p *models.Plan) error {
		c = claim{}
		if p.ShiftID != shiftID {
			return fmt.Errorf("%w: executing %s, plan belongs to %s", shift.ErrShiftMismatch, shiftID, p.ShiftID)
		}
		changed := false

		for i := range p.Steps {
			step := &p.Steps[i]
			if !step.IsStale(now, e.cfg.StalenessThreshold) {
				continue
			}
			note := fmt.Sprintf("stale claim by %s reclaimed by %s", step.ClaimedBy, invocationID)
			if err := step.Transition(models.StepPending, now, note); err != nil {
				return err
			}
			step.ReclaimCount++
			c.reclaimed = append(c.reclaimed, step.ID)
			changed = true
		}

		if live := p.ClaimedStep(); live != nil {
			c.busy = live.ID
			if !changed {
				return errUnchanged
			}
			return nil
		}

		sel := newSelector(p, now, e.cfg.RetryBackoff)
		for {
			step, retry := sel.next()
			if step == nil {
				break
			}
			if retry && step.AttemptCount >= e.cfg.MaxAttempts {
				if err := step.Skip(fmt.Sprintf("gave up after %d attempts", step.AttemptCount), now); err != nil {
					return err
				}
				c.skipped = append(c.skipped, step.ID)
				changed = true
				sel = newSelector(p, now, e.cfg.RetryBackoff)
				continue
			}
			if retry {
				if err := step.Transition(models.StepPending, now, fmt.Sprintf("%s block re-checked", step.BlockKind)); err != nil {
					return err
				}
			}
			if err := step.Claim(invocationID, now); err != nil {
				return err
			}
			p.UpdatedAt = now
			cp := *step
			c.step = &cp
			if t := p.Task(step.TaskID); t != nil {
				tc := *t
				c.task = &tc
			}
			c.retry = retry
			return nil
		}

		if sel.waiting() {
			c.waiting = true
		} else {
			c.exhausted = true
		}
		if !changed {
			return errUnchanged
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return claim{}, fmt.Errorf("claim next step: %w", err)
	}
	return c, nil
}

// execute runs the claimed step outside any lock and records its outcome.
func (e *Executor) execute(ctx context.Context, invocationID, shiftID string, c claim) (StepReport, []models.ContextEntry) {
	step := c.step
	sr := StepReport{StepID: step.ID, TaskID: step.TaskID, Retry: c.retry}

	in := worker.Input{
		InvocationID: invocationID,
		ShiftID:      shiftID,
		Step:         *step,
		Deadline:     e.now().Add(e.cfg.StepTimeout),
	}
	if c.task != nil {
		in.TaskTitle = c.task.Title
		in.Tier = c.task.Tier
	}
	if e.deps.Log != nil {
		entries, err := e.deps.Log.All()
		switch {
		case store.IsCorruption(err):
			e.logger.Error("context log is corrupt; running step without context", "error", err)
			e.alert(ctx, notify.LevelCritical, shiftID, "Context log corrupt",
				fmt.Sprintf("Step %s ran without shared context: %v. Repair or prune the context log.", step.ID, err))
		case err != nil:
			e.logger.Warn("could not read context log for worker", "error", err)
		}
		in.Context = entries
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	start := time.Now()
	out, err := e.deps.Worker.Execute(runCtx, in)
	sr.Duration = time.Since(start)
	cancel()
	if err != nil {
		out = worker.Output{Outcome: worker.OutcomeTransient, Result: err.Error()}
	}
	if out.Outcome == "" {
		out.Outcome = worker.OutcomeTransient
	}
	sr.Outcome = out.Outcome
	sr.Result = out.Result

	now := e.now()
	updated, err := e.deps.Plans.Update(func(p *models.Plan) error {
		cur := p.Step(step.ID)
		if cur == nil || cur.Status != models.StepClaimed || cur.ClaimedBy != invocationID {
			return errLostClaim
		}
		return e.record(cur, out, now)
	})
	switch {
	case errors.Is(err, errLostClaim), errors.Is(err, store.ErrPlanFrozen):
		sr.Discarded = true
		e.logger.Warn("discarding result of a step no longer claimed by this invocation", "step", step.ID, "invocation", invocationID)
		return sr, nil
	case err != nil:
		// The claim stays in place; the next cycle reclaims it once stale.
		e.logger.Error("could not record step outcome", "step", step.ID, "error", err)
		sr.Discarded = true
		return sr, nil
	}
	if cur := updated.Step(step.ID); cur != nil {
		sr.Status = cur.Status
		if cur.Status == models.StepSkipped {
			e.alert(ctx, notify.LevelWarning, shiftID, "Step skipped",
				fmt.Sprintf("%s gave up after %d attempts and needs review: %s", step.ID, cur.AttemptCount, cur.BlockReason))
		}
		if cur.Status == models.StepBlocked && cur.BlockKind == models.BlockUser {
			e.alert(ctx, notify.LevelWarning, shiftID, "Step needs input", fmt.Sprintf("%s: %s", step.ID, cur.BlockReason))
		}
	}

	lessons := make([]models.ContextEntry, 0, len(out.Lessons))
	for _, l := range out.Lessons {
		lessons = append(lessons, models.ContextEntry{Timestamp: now, Text: l})
	}
	return sr, lessons
}

// record applies a worker outcome to the claimed step.
func (e *Executor) record(st *models.Step, out worker.Output, now time.Time) error {
	st.AttemptCount++
	at := now
	st.LastAttemptAt = &at
	st.Result = out.Result

	if out.Outcome == worker.OutcomeSuccess {
		return st.Transition(models.StepDone, now, "completed")
	}

	kind := models.BlockTransient
	switch out.Outcome {
	case worker.OutcomeDependency:
		kind = models.BlockDependency
	case worker.OutcomeNeedsInput:
		kind = models.BlockUser
	}
	reason := out.Result
	if reason == "" {
		reason = string(out.Outcome)
	}
	if err := st.Block(kind, reason, now); err != nil {
		return err
	}
	if kind != models.BlockUser && st.AttemptCount >= e.cfg.MaxAttempts {
		return st.Skip(fmt.Sprintf("gave up after %d attempts", st.AttemptCount), now)
	}
	return nil
}

func (e *Executor) handOff(ctx context.Context, report CycleReport, reason models.HandoffReason) (CycleReport, error) {
	report.HandoffReason = reason
	if e.deps.Archiver == nil {
		report.Outcome = OutcomeWaiting
		e.logger.Warn("shift is over but no archiver is configured", "shift", report.ShiftID, "reason", reason)
		return report, nil
	}
	h, err := e.deps.Archiver.Archive(ctx, reason)
	if err != nil {
		return report, fmt.Errorf("hand off shift %s: %w", report.ShiftID, err)
	}
	report.Outcome = OutcomeHandedOff
	report.Handoff = &h
	if st, err := e.deps.Tracker.Current(); err == nil {
		report.State = st
	}
	return report, nil
}

func (e *Executor) alert(ctx context.Context, level notify.Level, shiftID, title, body string) {
	if err := e.deps.Notifier.Notify(ctx, notify.Alert{Level: level, Title: title, Body: body, ShiftID: shiftID, At: e.now()}); err != nil {
		e.logger.Warn("notification failed", "title", title, "error", err)
	}
}
