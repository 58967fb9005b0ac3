package models

import (
	"fmt"
	"sort"
	"time"
)

// Plan is the approved, decomposed work of one shift.
type Plan struct {
	ShiftID     string     `json:"shiftId" yaml:"shiftId" toml:"shiftId" validate:"required"`
	ShiftName   string     `json:"shiftName" yaml:"shiftName" toml:"shiftName" validate:"required"`
	Date        string     `json:"date" yaml:"date" toml:"date" validate:"required,datetime=2006-01-02"`
	WindowStart time.Time  `json:"windowStart" yaml:"windowStart" toml:"windowStart" validate:"required"`
	WindowEnd   time.Time  `json:"windowEnd" yaml:"windowEnd" toml:"windowEnd" validate:"required,gtfield=WindowStart"`
	ApprovedBy  string     `json:"approvedBy,omitempty" yaml:"approvedBy,omitempty" toml:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty" yaml:"approvedAt,omitempty" toml:"approvedAt,omitempty"`
	Tasks       []Task     `json:"tasks" yaml:"tasks" toml:"tasks" validate:"dive"`
	Steps       []Step     `json:"steps" yaml:"steps" toml:"steps" validate:"dive"`
	// Frozen plans belong to a finished shift and are never mutated again.
	Frozen bool `json:"frozen,omitempty" yaml:"frozen,omitempty" toml:"frozen,omitempty"`
	// EndReason is recorded with the freeze so a resumed handoff keeps it.
	EndReason HandoffReason `json:"endReason,omitempty" yaml:"endReason,omitempty" toml:"endReason,omitempty" validate:"omitempty,oneof=exhausted window_expired cancelled"`
	CreatedAt time.Time     `json:"createdAt" yaml:"createdAt" toml:"createdAt" validate:"required"`
	UpdatedAt time.Time     `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt" validate:"required"`
}

// Validate checks field rules plus the cross-record invariants: unique ids,
// consistent task membership, known dependencies and at most one live claim.
func (p *Plan) Validate() error {
	if err := ValidateStruct(p); err != nil {
		return err
	}

	steps := make(map[string]*Step, len(p.Steps))
	claimed := 0
	for i := range p.Steps {
		st := &p.Steps[i]
		if _, dup := steps[st.ID]; dup {
			return fmt.Errorf("duplicate step id %q", st.ID)
		}
		steps[st.ID] = st
		if st.Status == StepClaimed {
			claimed++
		}
	}
	if claimed > 1 {
		return fmt.Errorf("plan %s has %d claimed steps, at most one is allowed", p.ShiftID, claimed)
	}

	tasks := make(map[string]bool, len(p.Tasks))
	owned := make(map[string]string, len(p.Steps))
	for _, t := range p.Tasks {
		if tasks[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		tasks[t.ID] = true
		for _, sid := range t.StepIDs {
			st, ok := steps[sid]
			if !ok {
				return fmt.Errorf("task %s references unknown step %q", t.ID, sid)
			}
			if st.TaskID != t.ID {
				return fmt.Errorf("step %s belongs to task %s but is listed by task %s", sid, st.TaskID, t.ID)
			}
			if prev, seen := owned[sid]; seen {
				return fmt.Errorf("step %s listed by tasks %s and %s", sid, prev, t.ID)
			}
			owned[sid] = t.ID
		}
	}
	for _, st := range p.Steps {
		if _, ok := owned[st.ID]; !ok {
			return fmt.Errorf("step %s is not listed by any task", st.ID)
		}
		for _, dep := range st.DependsOn {
			if _, ok := steps[dep]; !ok {
				return fmt.Errorf("step %s depends on unknown step %q", st.ID, dep)
			}
		}
	}
	return nil
}

// Step returns a pointer to the step with the given id, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Task returns a pointer to the task with the given id, or nil.
func (p *Plan) Task(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// OrderedTasks returns the tasks in selection order: tier, then task order.
func (p *Plan) OrderedTasks() []*Task {
	out := make([]*Task, 0, len(p.Tasks))
	for i := range p.Tasks {
		out = append(out, &p.Tasks[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier.Rank() != out[j].Tier.Rank() {
			return out[i].Tier.Rank() < out[j].Tier.Rank()
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// OrderedSteps returns every step in selection order: tier, task order, then
// step order within its task.
func (p *Plan) OrderedSteps() []*Step {
	out := make([]*Step, 0, len(p.Steps))
	for _, t := range p.OrderedTasks() {
		for _, sid := range t.StepIDs {
			if st := p.Step(sid); st != nil {
				out = append(out, st)
			}
		}
	}
	return out
}

// Predecessors returns the steps that come before id in its own task.
func (p *Plan) Predecessors(id string) []*Step {
	st := p.Step(id)
	if st == nil {
		return nil
	}
	t := p.Task(st.TaskID)
	if t == nil {
		return nil
	}
	var out []*Step
	for _, sid := range t.StepIDs {
		if sid == id {
			break
		}
		if prev := p.Step(sid); prev != nil {
			out = append(out, prev)
		}
	}
	return out
}

// ClaimedStep returns the step currently claimed, or nil.
func (p *Plan) ClaimedStep() *Step {
	for i := range p.Steps {
		if p.Steps[i].Status == StepClaimed {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepCounts tallies steps by status.
type StepCounts struct {
	Total   int `json:"total" yaml:"total" toml:"total"`
	Pending int `json:"pending" yaml:"pending" toml:"pending"`
	Claimed int `json:"claimed" yaml:"claimed" toml:"claimed"`
	Done    int `json:"done" yaml:"done" toml:"done"`
	Blocked int `json:"blocked" yaml:"blocked" toml:"blocked"`
	Skipped int `json:"skipped" yaml:"skipped" toml:"skipped"`
}

// CountSteps derives counters from the plan. Shift counters are always
// produced by this function, never incremented on their own.
func CountSteps(p *Plan) StepCounts {
	var c StepCounts
	if p == nil {
		return c
	}
	for _, st := range p.Steps {
		c.Total++
		switch st.Status {
		case StepPending:
			c.Pending++
		case StepClaimed:
			c.Claimed++
		case StepDone:
			c.Done++
		case StepBlocked:
			c.Blocked++
		case StepSkipped:
			c.Skipped++
		}
	}
	return c
}
