package planner

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
	"github.com/oklog/ulid/v2"
)

// ErrDecompositionRejected is returned when a plan breaks the decomposition
// policy.
var ErrDecompositionRejected = errors.New("decomposition rejected")

// NewID returns a new lexically sortable id.
func NewID() string {
	return ulid.Make().String()
}

// Decomposer splits task proposals into bounded steps.
type Decomposer struct {
	policy DecompositionPolicy
	newID  func() string
	now    func() time.Time
}

// NewDecomposer creates a decomposer for policy. The policy itself must be
// valid.
func NewDecomposer(policy DecompositionPolicy) (*Decomposer, error) {
	if res := policy.Validate(); !res.Valid {
		return nil, fmt.Errorf("invalid decomposition policy: %s", res.ErrorSummary())
	}
	return &Decomposer{policy: policy, newID: NewID, now: func() time.Time { return time.Now().UTC() }}, nil
}

// WithIDs replaces the id generator. Used by tests.
func (d *Decomposer) WithIDs(newID func() string) *Decomposer {
	d.newID = newID
	return d
}

// Policy returns the bounds the decomposer packs against.
func (d *Decomposer) Policy() DecompositionPolicy {
	return d.policy
}

func minutes(sa SubAction) int {
	if sa.EstimatedMinutes <= 0 {
		return 1
	}
	return sa.EstimatedMinutes
}

// pack groups sub-actions greedily, in order, into chunks that stay within
// both the sub-action and the duration ceiling.
func (d *Decomposer) pack(subs []SubAction) [][]SubAction {
	var chunks [][]SubAction
	var cur []SubAction
	total := 0
	for _, sa := range subs {
		m := minutes(sa)
		if len(cur) > 0 && (len(cur) >= d.policy.MaxSubActionsPerStep || total+m > d.policy.MaxStepMinutes) {
			chunks = append(chunks, cur)
			cur, total = nil, 0
		}
		cur = append(cur, sa)
		total += m
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func describeStep(title, context string, k, n int, subs []SubAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (step %d/%d)", title, k, n)
	if context = strings.TrimSpace(context); context != "" {
		b.WriteString("\nContext: ")
		b.WriteString(context)
	}
	b.WriteString("\nDo:")
	for _, sa := range subs {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(sa.Description))
	}
	return b.String()
}

// Decompose turns proposals into tasks and steps. Task dependencies may point
// at other proposals or at tasks in existing. order is the order given to the
// first produced task.
func (d *Decomposer) Decompose(proposals []TaskProposal, existing []models.Task, order int) ([]models.Task, []models.Step, error) {
	var res ValidationResult
	res.Valid = true
	for i := range proposals {
		p := &proposals[i]
		if r := p.Validate(); !r.Valid {
			res.add("Tasks", "schema", "task %q: %s", p.Title, r.ErrorSummary())
			continue
		}
		for _, sa := range p.SubActions {
			if minutes(sa) > d.policy.MaxStepMinutes {
				res.add("SubActions", "max_step_minutes", "task %q: sub-action %q is estimated at %dm, above the %dm step ceiling; split it",
					p.Title, sa.Description, sa.EstimatedMinutes, d.policy.MaxStepMinutes)
			}
		}
	}
	if err := res.Err(); err != nil {
		return nil, nil, err
	}

	now := d.now()
	lastStep := make(map[string]string, len(existing)+len(proposals))
	for _, t := range existing {
		if len(t.StepIDs) > 0 {
			lastStep[t.ID] = t.StepIDs[len(t.StepIDs)-1]
		}
	}

	type built struct {
		deps      []string
		firstStep int
	}
	var (
		tasks   []models.Task
		steps   []models.Step
		pending []built
	)
	for _, p := range proposals {
		taskID := p.ID
		if taskID == "" {
			taskID = d.newID()
		}
		chunks := d.pack(p.SubActions)
		parts := (len(chunks) + d.policy.MaxStepsPerTask - 1) / d.policy.MaxStepsPerTask
		var prevLast string
		for part := 0; part < parts; part++ {
			lo := part * d.policy.MaxStepsPerTask
			hi := min(lo+d.policy.MaxStepsPerTask, len(chunks))

			t := models.Task{ID: taskID, Title: p.Title, Tier: p.Tier, Order: order}
			if parts > 1 {
				t.Title = fmt.Sprintf("%s (part %d/%d)", p.Title, part+1, parts)
				if part > 0 {
					t.ID = d.newID()
				}
			}
			order++

			first := len(steps)
			for k, chunk := range chunks[lo:hi] {
				st := models.Step{
					ID:                d.newID(),
					TaskID:            t.ID,
					Description:       describeStep(t.Title, p.Context, k+1, hi-lo, chunk),
					MaxSubActions:     d.policy.MaxSubActionsPerStep,
					Status:            models.StepPending,
					Destructive:       p.Destructive,
					ExternallyVisible: p.ExternallyVisible,
					UpdatedAt:         now,
				}
				for _, sa := range chunk {
					st.SubActions = append(st.SubActions, strings.TrimSpace(sa.Description))
					st.EstimatedMinutes += minutes(sa)
				}
				if k == 0 && prevLast != "" {
					st.DependsOn = append(st.DependsOn, prevLast)
				}
				t.StepIDs = append(t.StepIDs, st.ID)
				steps = append(steps, st)
			}
			prevLast = t.StepIDs[len(t.StepIDs)-1]
			if part == 0 {
				pending = append(pending, built{deps: p.DependsOn, firstStep: first})
			}
			tasks = append(tasks, t)
		}
		lastStep[taskID] = prevLast
	}

	for _, b := range pending {
		st := &steps[b.firstStep]
		for _, dep := range b.deps {
			last, ok := lastStep[dep]
			if !ok {
				res.add("DependsOn", "unknown_task", "task %s depends on unknown task %q", st.TaskID, dep)
				continue
			}
			if last == st.ID || slices.Contains(st.DependsOn, last) {
				continue
			}
			st.DependsOn = append(st.DependsOn, last)
		}
	}
	if err := res.Err(); err != nil {
		return nil, nil, err
	}
	return tasks, steps, nil
}

// ValidatePlan checks every bound of the policy against plan. Carryover steps
// were sized under an earlier policy and are held to the sub-action bound
// they were created with.
func (d *Decomposer) ValidatePlan(plan *models.Plan) ValidationResult {
	res := ValidationResult{Valid: true}
	if err := plan.Validate(); err != nil {
		res.add("Plan", "model", "%v", err)
		return res
	}
	for _, t := range plan.Tasks {
		if !t.Carryover && len(t.StepIDs) > d.policy.MaxStepsPerTask {
			res.add("StepIDs", "max_steps_per_task", "task %q has %d steps, the ceiling is %d; split it into several tasks",
				t.Title, len(t.StepIDs), d.policy.MaxStepsPerTask)
		}
		if len(t.StepIDs) == 0 {
			res.add("StepIDs", "required", "task %q has no steps", t.Title)
		}
	}
	if id := findCycle(plan); id != "" {
		res.add("DependsOn", "acyclic", "dependency cycle through step %s", id)
	}
	for _, st := range plan.Steps {
		if strings.TrimSpace(st.Description) == "" {
			res.add("Description", "nonempty", "step %s has no description", st.ID)
		}
		if st.Carryover {
			if st.MaxSubActions > 0 && len(st.SubActions) > st.MaxSubActions {
				res.add("SubActions", "max_sub_actions", "step %s declares %d sub-actions but is bounded to %d", st.ID, len(st.SubActions), st.MaxSubActions)
			}
			continue
		}
		if len(st.SubActions) > d.policy.MaxSubActionsPerStep {
			res.add("SubActions", "max_sub_actions", "step %s has %d sub-actions, the ceiling is %d", st.ID, len(st.SubActions), d.policy.MaxSubActionsPerStep)
		}
		if st.EstimatedMinutes > d.policy.MaxStepMinutes {
			res.add("EstimatedMinutes", "max_step_minutes", "step %s is estimated at %dm, the ceiling is %dm", st.ID, st.EstimatedMinutes, d.policy.MaxStepMinutes)
		}
	}
	return res
}

// findCycle returns a step on a dependency cycle, or "" if there is none.
// Edges are explicit dependencies plus the order of steps within a task.
func findCycle(plan *models.Plan) string {
	edges := make(map[string][]string, len(plan.Steps))
	for _, st := range plan.Steps {
		edges[st.ID] = append(edges[st.ID], st.DependsOn...)
	}
	for _, t := range plan.Tasks {
		for i := 1; i < len(t.StepIDs); i++ {
			edges[t.StepIDs[i]] = append(edges[t.StepIDs[i]], t.StepIDs[i-1])
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(edges))
	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case visited:
			return ""
		}
		state[id] = visiting
		for _, next := range edges[id] {
			if c := visit(next); c != "" {
				return c
			}
		}
		state[id] = visited
		return ""
	}
	for _, st := range plan.Steps {
		if c := visit(st.ID); c != "" {
			return c
		}
	}
	return ""
}
