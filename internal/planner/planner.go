package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/notify"
	"github.com/josephgoksu/ShiftWing/internal/policy"
	"github.com/josephgoksu/ShiftWing/internal/shift"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
)

// ErrUnfinishedPlan is returned when the plan store still holds a live plan
// of another shift.
var ErrUnfinishedPlan = errors.New("plan store holds an unfinished shift")

// Outcome is what a planner invocation did.
type Outcome string

const (
	OutcomeStarted          Outcome = "started"
	OutcomeAwaiting         Outcome = "awaiting_approval"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeAlreadyExecuting Outcome = "already_executing"
	OutcomeNothingToPlan    Outcome = "nothing_to_plan"
)

// PolicyApprover is the approver name recorded for auto-approved shifts.
const PolicyApprover = "policy:" + policy.DefaultPolicyPackage

// HandoffResumer finishes a handoff that a crash left half done.
type HandoffResumer interface {
	Resume(ctx context.Context) (models.Handoff, bool, error)
}

// Deps are the stores and collaborators a Planner works with. Policy, Audit,
// Notifier and Resumer are optional.
type Deps struct {
	Plans     store.PlanStore
	Proposals store.PlanStore
	Tracker   *shift.Tracker
	Drafts    store.DraftStore
	Handoffs  store.HandoffStore
	Log       store.ContextLog
	Signals   SignalSource
	Approvals ApprovalChannel
	Policy    *policy.Engine
	Audit     *policy.AuditLog
	Notifier  notify.Notifier
	Resumer   HandoffResumer
}

// Request tunes one planner invocation.
type Request struct {
	// ShiftName overrides planner.shiftName for a new proposal.
	ShiftName string
	// Window overrides planner.windowDuration for a new proposal.
	Window time.Duration
	// Response is applied instead of polling the approval channel.
	Response *ApprovalResponse
}

// Result reports what Plan did.
type Result struct {
	Outcome      Outcome
	ShiftID      string
	Plan         *models.Plan
	State        models.ShiftState
	AutoApproved bool
	Decision     *policy.PolicyDecision
	Message      string
}

// Planner turns signals, carryover and approvals into the plan of a shift.
// Every invocation starts from the stores; nothing is kept in memory between
// calls.
type Planner struct {
	deps       Deps
	cfg        config.PlannerConfig
	decomposer *Decomposer
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// New creates a planner.
func New(deps Deps, cfg config.PlannerConfig) (*Planner, error) {
	if deps.Plans == nil || deps.Proposals == nil || deps.Tracker == nil || deps.Drafts == nil || deps.Approvals == nil {
		return nil, errors.New("planner: plan, proposal, shift, draft stores and an approval channel are required")
	}
	dec, err := NewDecomposer(DecompositionPolicy{
		MaxSubActionsPerStep: cfg.MaxSubActionsPerStep,
		MaxStepsPerTask:      cfg.MaxStepsPerTask,
		MaxStepMinutes:       cfg.MaxStepMinutes,
	})
	if err != nil {
		return nil, err
	}
	if deps.Signals == nil {
		deps.Signals = StaticSignals(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	return &Planner{
		deps:       deps,
		cfg:        cfg,
		decomposer: dec,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      NewID,
		logger:     slog.Default().With("component", "planner"),
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	p.decomposer.now = now
	return p
}

// WithIDs replaces the id generator. Used by tests.
func (p *Planner) WithIDs(newID func() string) *Planner {
	p.newID = newID
	p.decomposer.newID = newID
	return p
}

// Plan advances planning by one step: it proposes a new shift, or applies
// the answer to the open proposal, or reports that it is still waiting.
// Unapproved work never reaches the plan store.
func (p *Planner) Plan(ctx context.Context, req Request) (Result, error) {
	st, err := p.deps.Tracker.Current()
	if err != nil {
		return Result{}, fmt.Errorf("read shift state: %w", err)
	}
	if st.Status == models.ShiftExecuting {
		if err := p.cleanup(ctx, st.ShiftID); err != nil {
			p.logger.Warn("cleanup after start failed", "shift", st.ShiftID, "error", err)
		}
		return Result{Outcome: OutcomeAlreadyExecuting, ShiftID: st.ShiftID, State: st}, nil
	}
	if p.deps.Resumer != nil && st.IsFinished() {
		h, resumed, err := p.deps.Resumer.Resume(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("resume handoff: %w", err)
		}
		if resumed {
			p.logger.Info("finished interrupted handoff", "shift", h.ShiftID, "reason", h.Reason)
			if st, err = p.deps.Tracker.Current(); err != nil {
				return Result{}, fmt.Errorf("read shift state: %w", err)
			}
		}
	}

	proposal, found, err := p.loadProposal()
	if err != nil {
		return Result{}, err
	}
	if found && st.ShiftID == proposal.ShiftID && st.Status == models.ShiftCancelled {
		if err := p.cleanup(ctx, proposal.ShiftID); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeSkipped, ShiftID: proposal.ShiftID, State: st}, nil
	}
	if found && st.Status == models.ShiftAwaitingApproval && st.ShiftID != proposal.ShiftID {
		p.logger.Warn("discarding proposal that does not match the awaited shift", "proposal", proposal.ShiftID, "awaiting", st.ShiftID)
		found = false
	}

	if !found {
		proposal, err = p.propose(ctx, req)
		if err != nil {
			return Result{}, err
		}
		if len(proposal.Steps) == 0 {
			return Result{Outcome: OutcomeNothingToPlan, State: st, Message: "no carryover and no signals"}, nil
		}
		if err := p.deps.Proposals.Save(proposal); err != nil {
			return Result{}, fmt.Errorf("save proposal: %w", err)
		}
	}

	if st.Status != models.ShiftAwaitingApproval || st.ShiftID != proposal.ShiftID {
		return p.open(ctx, proposal)
	}

	resp := req.Response
	if resp == nil {
		resp, err = p.deps.Approvals.Poll(ctx, proposal.ShiftID)
		if err != nil {
			return Result{}, err
		}
	}
	if resp == nil {
		deadline := p.deadline(st)
		if p.now().Before(deadline) {
			return Result{Outcome: OutcomeAwaiting, ShiftID: proposal.ShiftID, Plan: &proposal, State: st,
				Message: "waiting for approval until " + deadline.Format(time.RFC3339)}, nil
		}
		resp = &ApprovalResponse{ShiftID: proposal.ShiftID, Kind: ApproveTimedOut, RespondedAt: p.now()}
	}
	return p.apply(ctx, proposal, st, resp)
}

func (p *Planner) deadline(st models.ShiftState) time.Time {
	published := p.now()
	if st.ProposalPublishedAt != nil {
		published = *st.ProposalPublishedAt
	}
	return published.Add(p.cfg.ApprovalTimeout)
}

func (p *Planner) loadProposal() (models.Plan, bool, error) {
	plan, err := p.deps.Proposals.Load()
	if errors.Is(err, store.ErrPlanNotFound) {
		return models.Plan{}, false, nil
	}
	if err != nil {
		return models.Plan{}, false, fmt.Errorf("load proposal: %w", err)
	}
	return plan, true, nil
}

// propose builds a new shift from the carryover draft and the signals.
func (p *Planner) propose(ctx context.Context, req Request) (models.Plan, error) {
	now := p.now()
	draft, err := p.deps.Drafts.Load()
	if err != nil {
		return models.Plan{}, fmt.Errorf("load carryover draft: %w", err)
	}
	signals, err := p.deps.Signals.Signals(ctx)
	if err != nil {
		return models.Plan{}, fmt.Errorf("read signals: %w", err)
	}

	shiftID := p.newID()
	name := req.ShiftName
	if name == "" {
		name = p.cfg.ShiftName
	}
	window := req.Window
	if window <= 0 {
		window = p.cfg.WindowDuration
	}

	plan := models.Plan{
		ShiftID:     shiftID,
		ShiftName:   name,
		Date:        now.Format("2006-01-02"),
		WindowStart: now,
		WindowEnd:   now.Add(window),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, t := range draft.Tasks {
		t.Carryover = true
		t.Order = len(plan.Tasks)
		plan.Tasks = append(plan.Tasks, t)
	}
	for _, st := range draft.Steps {
		st.Carryover = true
		// A new shift gives transient and dependency blocks a fresh chance.
		// User blocks wait for a person.
		if st.Status == models.StepBlocked && st.BlockKind != models.BlockUser {
			if err := st.Transition(models.StepPending, now, "carried into shift "+shiftID); err != nil {
				return models.Plan{}, err
			}
		}
		plan.Steps = append(plan.Steps, st)
	}

	tasks, steps, err := p.decomposer.Decompose(signals, plan.Tasks, len(plan.Tasks))
	if err != nil {
		return models.Plan{}, err
	}
	plan.Tasks = append(plan.Tasks, tasks...)
	plan.Steps = append(plan.Steps, steps...)

	if len(plan.Steps) == 0 {
		return plan, nil
	}
	if err := p.decomposer.ValidatePlan(&plan).Err(); err != nil {
		return models.Plan{}, err
	}
	p.logger.Info("proposed shift", "shift", shiftID, "carryover_steps", len(draft.Steps), "new_tasks", len(tasks), "steps", len(plan.Steps))
	return plan, nil
}

// open either starts an all-carryover proposal under the auto-approval
// policy or publishes it for a human answer.
func (p *Planner) open(ctx context.Context, proposal models.Plan) (Result, error) {
	var decision *policy.PolicyDecision
	carried := carryoverSteps(&proposal)
	if len(carried) > 0 {
		d, err := p.evaluate(ctx, &proposal, carried)
		if err != nil {
			return Result{}, err
		}
		decision = d
	}
	if p.cfg.SkipApprovalForCarryover && decision != nil && decision.IsAllowed() && len(carried) == len(proposal.Steps) {
		return p.begin(ctx, proposal, shift.Approval{
			ApprovedBy:    PolicyApprover,
			AutoApproved:  true,
			DecisionID:    decision.DecisionID,
			CarryoverFrom: carryoverSource(&proposal),
		}, decision)
	}

	view := ProposalView{Plan: &proposal, Decision: decision, ExpiresAt: p.now().Add(p.cfg.ApprovalTimeout)}
	if p.deps.Handoffs != nil {
		if h, ok, err := p.deps.Handoffs.LoadLatest(); err != nil {
			p.logger.Warn("could not read previous handoff", "error", err)
		} else if ok {
			view.Previous = &h
		}
	}
	if p.deps.Log != nil {
		if lessons, err := p.deps.Log.Tail(10); err != nil {
			p.logger.Warn("could not read context log", "error", err)
		} else {
			view.Lessons = lessons
		}
	}
	if err := p.deps.Approvals.Publish(ctx, view); err != nil {
		return Result{}, fmt.Errorf("publish proposal: %w", err)
	}
	st, err := p.deps.Tracker.AwaitApproval(shift.Proposal{
		ShiftID:     proposal.ShiftID,
		ShiftName:   proposal.ShiftName,
		Date:        proposal.Date,
		WindowStart: proposal.WindowStart,
		WindowEnd:   proposal.WindowEnd,
	})
	if err != nil {
		return Result{}, err
	}
	p.alert(ctx, notify.LevelInfo, proposal.ShiftID, "Shift proposal awaiting approval",
		fmt.Sprintf("%d tasks, %d steps. Answer before %s.", len(proposal.Tasks), len(proposal.Steps), view.ExpiresAt.Format(time.RFC3339)))
	return Result{Outcome: OutcomeAwaiting, ShiftID: proposal.ShiftID, Plan: &proposal, State: st, Decision: decision}, nil
}

// apply acts on an approval response for the open proposal.
func (p *Planner) apply(ctx context.Context, proposal models.Plan, st models.ShiftState, resp *ApprovalResponse) (Result, error) {
	if res := resp.Validate(); !res.Valid {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidResponse, res.ErrorSummary())
	}
	approver := resp.ApprovedBy
	if approver == "" {
		approver = p.cfg.Approver
	}
	if approver == "" {
		approver = "unknown"
	}
	approval := shift.Approval{ApprovedBy: approver, CarryoverFrom: carryoverSource(&proposal)}
	logger := p.logger.With("shift", proposal.ShiftID, "response", resp.Kind)

	switch resp.Kind {
	case ApproveAll:
		return p.begin(ctx, proposal, approval, nil)

	case ApproveSubset:
		narrowed, err := subset(&proposal, resp.TaskIDs)
		if err != nil {
			return Result{}, err
		}
		logger.Info("approved subset", "tasks", len(narrowed.Tasks), "of", len(proposal.Tasks))
		return p.begin(ctx, narrowed, approval, nil)

	case ApproveModify:
		modified, err := p.modify(proposal, resp.Modifications)
		if err != nil {
			return Result{}, err
		}
		return p.begin(ctx, modified, approval, nil)

	case ApproveAddTask:
		maxOrder := 0
		for _, t := range proposal.Tasks {
			maxOrder = max(maxOrder, t.Order+1)
		}
		tasks, steps, err := p.decomposer.Decompose(resp.AddTasks, proposal.Tasks, maxOrder)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		proposal.Tasks = append(proposal.Tasks, tasks...)
		proposal.Steps = append(proposal.Steps, steps...)
		return p.begin(ctx, proposal, approval, nil)

	case ApproveSkip:
		reason := "skipped by " + approver
		if resp.Reason != "" {
			reason += ": " + resp.Reason
		}
		state, err := p.deps.Tracker.Cancel(reason)
		if err != nil {
			return Result{}, err
		}
		if err := p.cleanup(ctx, proposal.ShiftID); err != nil {
			return Result{}, err
		}
		logger.Info("shift skipped; carryover kept for the next shift")
		p.alert(ctx, notify.LevelInfo, proposal.ShiftID, "Shift skipped", reason)
		return Result{Outcome: OutcomeSkipped, ShiftID: proposal.ShiftID, State: state}, nil

	case ApproveTimedOut:
		return p.timedOut(ctx, proposal, st)
	}
	return Result{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidResponse, resp.Kind)
}

// timedOut narrows the proposal to carryover the policy allows, or keeps
// waiting. Unapproved work is never started.
func (p *Planner) timedOut(ctx context.Context, proposal models.Plan, st models.ShiftState) (Result, error) {
	waiting := Result{Outcome: OutcomeAwaiting, ShiftID: proposal.ShiftID, Plan: &proposal, State: st}
	if !p.cfg.AutoApproveOnTimeout {
		waiting.Message = "approval timed out; still waiting"
		return waiting, nil
	}

	narrowed := narrowToApproved(&proposal)
	if len(narrowed.Steps) == 0 {
		waiting.Message = "approval timed out and no previously approved carryover exists; still waiting"
		return waiting, nil
	}
	decision, err := p.evaluate(ctx, &narrowed, narrowed.Steps)
	if err != nil {
		return Result{}, err
	}
	waiting.Decision = decision
	if decision == nil || !decision.IsAllowed() {
		waiting.Message = "approval timed out and the carryover is not eligible for auto-approval; still waiting"
		if decision != nil && !decision.IsAllowed() {
			p.alert(ctx, notify.LevelWarning, proposal.ShiftID, "Shift still awaiting approval", fmt.Sprintf("Auto-approval denied: %v", decision.Violations))
		}
		return waiting, nil
	}
	p.logger.Info("approval timed out; starting previously approved carryover", "shift", proposal.ShiftID, "steps", len(narrowed.Steps), "of", len(proposal.Steps))
	return p.begin(ctx, narrowed, shift.Approval{
		ApprovedBy:    PolicyApprover,
		AutoApproved:  true,
		DecisionID:    decision.DecisionID,
		CarryoverFrom: carryoverSource(&proposal),
	}, decision)
}

// begin persists the approved plan and moves the shift to executing. Each
// write is safe to repeat if the invocation dies halfway: the proposal is
// kept until the very end.
func (p *Planner) begin(ctx context.Context, plan models.Plan, approval shift.Approval, decision *policy.PolicyDecision) (Result, error) {
	now := p.now()
	window := plan.WindowEnd.Sub(plan.WindowStart)
	plan.WindowStart = now
	plan.WindowEnd = now.Add(window)
	plan.ApprovedBy = approval.ApprovedBy
	plan.ApprovedAt = &now
	plan.UpdatedAt = now
	for i := range plan.Steps {
		if plan.Steps[i].ApprovedAt == nil {
			at := now
			plan.Steps[i].ApprovedAt = &at
		}
	}
	if err := p.decomposer.ValidatePlan(&plan).Err(); err != nil {
		return Result{}, err
	}

	current, err := p.deps.Plans.Load()
	switch {
	case err == nil:
		if !current.Frozen && current.ShiftID != plan.ShiftID {
			return Result{}, fmt.Errorf("%w: %s has not been archived", ErrUnfinishedPlan, current.ShiftID)
		}
	case errors.Is(err, store.ErrPlanNotFound):
	default:
		return Result{}, fmt.Errorf("load current plan: %w", err)
	}

	if err := p.deps.Plans.Save(plan); err != nil {
		return Result{}, fmt.Errorf("save plan: %w", err)
	}
	if carried := carryoverSteps(&plan); len(carried) > 0 {
		ids := make([]string, len(carried))
		for i, st := range carried {
			ids[i] = st.ID
		}
		if err := p.deps.Drafts.Consume(ids); err != nil {
			return Result{}, fmt.Errorf("consume carryover draft: %w", err)
		}
	}
	if hasNewWork(&plan) {
		if acker, ok := p.deps.Signals.(SignalAcker); ok {
			if err := acker.Ack(ctx, plan.ShiftID); err != nil {
				return Result{}, err
			}
		}
	}

	state, err := p.deps.Tracker.Begin(&plan, approval)
	if err != nil {
		return Result{}, err
	}
	if err := p.cleanup(ctx, plan.ShiftID); err != nil {
		p.logger.Warn("cleanup after start failed", "shift", plan.ShiftID, "error", err)
	}

	if p.deps.Log != nil {
		entry := models.ContextEntry{Timestamp: now, Text: fmt.Sprintf("shift %s (%s) started with %d steps, approved by %s", plan.ShiftID, plan.ShiftName, len(plan.Steps), approval.ApprovedBy)}
		if err := p.deps.Log.Append(entry); err != nil {
			p.logger.Warn("could not append to context log", "error", err)
		}
	}
	p.logger.Info("shift started", "shift", plan.ShiftID, "steps", len(plan.Steps), "approved_by", approval.ApprovedBy, "auto_approved", approval.AutoApproved)
	p.alert(ctx, notify.LevelInfo, plan.ShiftID, "Shift started",
		fmt.Sprintf("%d steps until %s, approved by %s.", len(plan.Steps), plan.WindowEnd.Format(time.RFC3339), approval.ApprovedBy))

	return Result{
		Outcome:      OutcomeStarted,
		ShiftID:      plan.ShiftID,
		Plan:         &plan,
		State:        state,
		AutoApproved: approval.AutoApproved,
		Decision:     decision,
	}, nil
}

// cleanup retires the answered proposal of shiftID.
func (p *Planner) cleanup(ctx context.Context, shiftID string) error {
	proposal, found, err := p.loadProposal()
	if err != nil || !found || proposal.ShiftID != shiftID {
		return err
	}
	if err := p.deps.Approvals.Ack(ctx, shiftID); err != nil {
		return err
	}
	return p.deps.Proposals.Discard()
}

// evaluate runs the auto-approval policy over steps and records the decision.
// Without a policy engine nothing is auto-approved.
func (p *Planner) evaluate(ctx context.Context, plan *models.Plan, steps []models.Step) (*policy.PolicyDecision, error) {
	if p.deps.Policy == nil {
		return nil, nil
	}
	var newTasks []models.Task
	for _, t := range plan.Tasks {
		if !t.Carryover {
			newTasks = append(newTasks, t)
		}
	}
	in := policy.NewAutoApprovalInput(plan.ShiftID, plan.Tasks, steps, newTasks)
	decision, err := p.deps.Policy.EvaluateAutoApproval(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("evaluate auto-approval policy: %w", err)
	}
	if p.deps.Audit != nil {
		if err := p.deps.Audit.SaveDecision(decision); err != nil {
			p.logger.Warn("could not record policy decision", "decision", decision.DecisionID, "error", err)
		}
	}
	p.logger.Info("auto-approval evaluated", "shift", plan.ShiftID, "decision", decision.DecisionID,
		"result", decision.Result, "violations", len(decision.Violations), "warnings", len(decision.Warnings))
	return decision, nil
}

func (p *Planner) alert(ctx context.Context, level notify.Level, shiftID, title, body string) {
	if err := p.deps.Notifier.Notify(ctx, notify.Alert{Level: level, Title: title, Body: body, ShiftID: shiftID, At: p.now()}); err != nil {
		p.logger.Warn("notification failed", "title", title, "error", err)
	}
}

func carryoverSteps(plan *models.Plan) []models.Step {
	var out []models.Step
	for _, st := range plan.Steps {
		if st.Carryover {
			out = append(out, st)
		}
	}
	return out
}

func hasNewWork(plan *models.Plan) bool {
	return slices.ContainsFunc(plan.Tasks, func(t models.Task) bool { return !t.Carryover })
}

// carryoverSource names the most recent shift the carried work came from.
func carryoverSource(plan *models.Plan) string {
	src := ""
	for _, t := range plan.Tasks {
		if t.Carryover && t.SourceShift > src {
			src = t.SourceShift
		}
	}
	return src
}

// subset keeps the tasks in ids and their steps. Dropping a step another kept
// step depends on is refused.
func subset(plan *models.Plan, ids []string) (models.Plan, error) {
	out := *plan
	out.Tasks = nil
	out.Steps = nil
	keep := make(map[string]bool)
	for _, id := range ids {
		t := plan.Task(id)
		if t == nil {
			return models.Plan{}, fmt.Errorf("%w: unknown task %q", ErrInvalidResponse, id)
		}
		out.Tasks = append(out.Tasks, *t)
		for _, sid := range t.StepIDs {
			keep[sid] = true
		}
	}
	for _, st := range plan.Steps {
		if !keep[st.ID] {
			continue
		}
		for _, dep := range st.DependsOn {
			if !keep[dep] {
				return models.Plan{}, fmt.Errorf("%w: step %s of task %s depends on step %s, which is not approved", ErrInvalidResponse, st.ID, st.TaskID, dep)
			}
		}
		out.Steps = append(out.Steps, st)
	}
	return out, nil
}

// narrowToApproved keeps only carryover steps that were approved in an
// earlier shift, and the tasks that still have steps.
func narrowToApproved(plan *models.Plan) models.Plan {
	out := *plan
	out.Tasks = nil
	out.Steps = nil
	keep := make(map[string]bool)
	for _, st := range plan.Steps {
		if st.Carryover && st.ApprovedAt != nil {
			keep[st.ID] = true
		}
	}
	// A kept step whose dependency is dropped can never run; drop it too.
	for changed := true; changed; {
		changed = false
		for _, st := range plan.Steps {
			if !keep[st.ID] {
				continue
			}
			for _, dep := range st.DependsOn {
				if !keep[dep] {
					delete(keep, st.ID)
					changed = true
					break
				}
			}
		}
	}
	for _, t := range plan.Tasks {
		nt := t
		nt.StepIDs = slices.DeleteFunc(slices.Clone(t.StepIDs), func(id string) bool { return !keep[id] })
		if len(nt.StepIDs) > 0 {
			out.Tasks = append(out.Tasks, nt)
		}
	}
	for _, st := range plan.Steps {
		if keep[st.ID] {
			out.Steps = append(out.Steps, st)
		}
	}
	return out
}

// modify applies the approver's edits. Tasks with new sub-actions are
// decomposed again under the current policy.
func (p *Planner) modify(plan models.Plan, mods []TaskModification) (models.Plan, error) {
	for _, m := range mods {
		t := plan.Task(m.TaskID)
		if t == nil {
			return models.Plan{}, fmt.Errorf("%w: unknown task %q", ErrInvalidResponse, m.TaskID)
		}
		oldTitle := t.Title
		if m.Title != "" {
			t.Title = m.Title
		}
		if m.Tier != "" {
			t.Tier = m.Tier
		}

		if len(m.SubActions) == 0 {
			if t.Title != oldTitle {
				for _, sid := range t.StepIDs {
					if st := plan.Step(sid); st != nil && len(st.Description) >= len(oldTitle) && st.Description[:len(oldTitle)] == oldTitle {
						st.Description = t.Title + st.Description[len(oldTitle):]
					}
				}
			}
			continue
		}

		var destructive, visible bool
		oldSteps := slices.Clone(t.StepIDs)
		for _, sid := range oldSteps {
			if st := plan.Step(sid); st != nil {
				destructive = destructive || st.Destructive
				visible = visible || st.ExternallyVisible
			}
		}
		others := slices.DeleteFunc(slices.Clone(plan.Tasks), func(x models.Task) bool { return x.ID == t.ID })
		tasks, steps, err := p.decomposer.Decompose([]TaskProposal{{
			ID:                t.ID,
			Title:             t.Title,
			Tier:              t.Tier,
			Context:           m.Context,
			SubActions:        m.SubActions,
			Destructive:       destructive,
			ExternallyVisible: visible,
		}}, others, t.Order)
		if err != nil {
			return models.Plan{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}

		// Keep the task's incoming dependencies and repoint anything that
		// depended on its old last step.
		var incoming []string
		if first := plan.Step(oldSteps[0]); first != nil {
			incoming = slices.DeleteFunc(slices.Clone(first.DependsOn), func(id string) bool { return slices.Contains(oldSteps, id) })
		}
		steps[0].DependsOn = append(steps[0].DependsOn, incoming...)
		oldLast := oldSteps[len(oldSteps)-1]
		newLast := tasks[len(tasks)-1].StepIDs[len(tasks[len(tasks)-1].StepIDs)-1]

		plan.Steps = slices.DeleteFunc(plan.Steps, func(st models.Step) bool { return slices.Contains(oldSteps, st.ID) })
		for i := range plan.Steps {
			for j, dep := range plan.Steps[i].DependsOn {
				if dep == oldLast {
					plan.Steps[i].DependsOn[j] = newLast
				}
			}
		}
		plan.Tasks = append(others, tasks...)
		plan.Steps = append(plan.Steps, steps...)
	}
	return plan, nil
}
