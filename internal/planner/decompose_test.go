package planner

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

func counterIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func newTestDecomposer(t *testing.T, policy DecompositionPolicy) *Decomposer {
	t.Helper()
	d, err := NewDecomposer(policy)
	if err != nil {
		t.Fatalf("NewDecomposer() error = %v", err)
	}
	return d.WithIDs(counterIDs("id"))
}

func subActions(minutes ...int) []SubAction {
	out := make([]SubAction, len(minutes))
	for i, m := range minutes {
		out[i] = SubAction{Description: fmt.Sprintf("action %d", i+1), EstimatedMinutes: m}
	}
	return out
}

func TestDecompositionPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy DecompositionPolicy
		valid  bool
	}{
		{"valid", DecompositionPolicy{MaxSubActionsPerStep: 3, MaxStepsPerTask: 6, MaxStepMinutes: 30}, true},
		{"zero sub-actions", DecompositionPolicy{MaxSubActionsPerStep: 0, MaxStepsPerTask: 6, MaxStepMinutes: 30}, false},
		{"zero steps", DecompositionPolicy{MaxSubActionsPerStep: 3, MaxStepsPerTask: 0, MaxStepMinutes: 30}, false},
		{"zero minutes", DecompositionPolicy{MaxSubActionsPerStep: 3, MaxStepsPerTask: 6, MaxStepMinutes: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Validate(); got.Valid != tt.valid {
				t.Errorf("Validate() valid = %v, want %v (%s)", got.Valid, tt.valid, got.ErrorSummary())
			}
		})
	}
}

func TestDecompose_PacksByCountAndDuration(t *testing.T) {
	d := newTestDecomposer(t, DecompositionPolicy{MaxSubActionsPerStep: 3, MaxStepsPerTask: 10, MaxStepMinutes: 30})

	tasks, steps, err := d.Decompose([]TaskProposal{{
		ID:         "t1",
		Title:      "Rotate certificates",
		Tier:       models.TierP1,
		Context:    "Staging cluster only",
		SubActions: subActions(5, 5, 5, 5, 25, 10),
	}}, nil, 0)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	// 5+5+5 (count), 5+25 (minutes), 10
	wantSizes := []int{3, 2, 1}
	if len(steps) != len(wantSizes) {
		t.Fatalf("got %d steps, want %d", len(steps), len(wantSizes))
	}
	for i, st := range steps {
		if len(st.SubActions) != wantSizes[i] {
			t.Errorf("step %d has %d sub-actions, want %d", i, len(st.SubActions), wantSizes[i])
		}
		if st.EstimatedMinutes > 30 {
			t.Errorf("step %d estimated at %dm, above ceiling", i, st.EstimatedMinutes)
		}
		if st.TaskID != "t1" || st.Status != models.StepPending || st.MaxSubActions != 3 {
			t.Errorf("unexpected step %+v", st)
		}
		if !strings.HasPrefix(st.Description, fmt.Sprintf("Rotate certificates (step %d/3)", i+1)) {
			t.Errorf("description %q is not self-contained", st.Description)
		}
		if !strings.Contains(st.Description, "Context: Staging cluster only") {
			t.Errorf("description %q misses the task context", st.Description)
		}
	}
	if strings.Join(tasks[0].StepIDs, ",") != steps[0].ID+","+steps[1].ID+","+steps[2].ID {
		t.Errorf("task step order %v does not match steps", tasks[0].StepIDs)
	}
}

func TestDecompose_SplitsLargeTasks(t *testing.T) {
	d := newTestDecomposer(t, DecompositionPolicy{MaxSubActionsPerStep: 1, MaxStepsPerTask: 2, MaxStepMinutes: 30})

	tasks, steps, err := d.Decompose([]TaskProposal{{
		ID:         "big",
		Title:      "Migrate tables",
		Tier:       models.TierP2,
		SubActions: subActions(1, 1, 1, 1, 1),
	}}, nil, 4)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if len(tasks) != 3 || len(steps) != 5 {
		t.Fatalf("got %d tasks and %d steps, want 3 and 5", len(tasks), len(steps))
	}
	for i, task := range tasks {
		want := fmt.Sprintf("Migrate tables (part %d/3)", i+1)
		if task.Title != want {
			t.Errorf("task %d title = %q, want %q", i, task.Title, want)
		}
		if task.Order != 4+i {
			t.Errorf("task %d order = %d, want %d", i, task.Order, 4+i)
		}
		if len(task.StepIDs) > 2 {
			t.Errorf("task %d has %d steps", i, len(task.StepIDs))
		}
	}
	if tasks[0].ID != "big" {
		t.Errorf("first part keeps the proposal id, got %q", tasks[0].ID)
	}
	// Each part waits for the previous one.
	second := steps[2]
	if len(second.DependsOn) != 1 || second.DependsOn[0] != tasks[0].StepIDs[1] {
		t.Errorf("part 2 depends on %v, want [%s]", second.DependsOn, tasks[0].StepIDs[1])
	}
}

func TestDecompose_TaskDependencies(t *testing.T) {
	d := newTestDecomposer(t, DecompositionPolicy{MaxSubActionsPerStep: 3, MaxStepsPerTask: 5, MaxStepMinutes: 30})
	existing := []models.Task{{ID: "old", Title: "Old work", Tier: models.TierP3, StepIDs: []string{"o1", "o2"}}}

	_, steps, err := d.Decompose([]TaskProposal{
		{ID: "b", Title: "Deploy", Tier: models.TierP2, SubActions: subActions(5), DependsOn: []string{"a", "old"}},
		{ID: "a", Title: "Build", Tier: models.TierP2, SubActions: subActions(5)},
	}, existing, 1)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	deploy := steps[0]
	if len(deploy.DependsOn) != 2 || deploy.DependsOn[0] != steps[1].ID || deploy.DependsOn[1] != "o2" {
		t.Errorf("deploy depends on %v, want [%s o2]", deploy.DependsOn, steps[1].ID)
	}

	_, _, err = d.Decompose([]TaskProposal{
		{Title: "Deploy", Tier: models.TierP2, SubActions: subActions(5), DependsOn: []string{"missing"}},
	}, nil, 0)
	if !errors.Is(err, ErrDecompositionRejected) {
		t.Errorf("unknown dependency: error = %v, want ErrDecompositionRejected", err)
	}
}

func TestDecompose_RejectsInvalidProposals(t *testing.T) {
	d := newTestDecomposer(t, DecompositionPolicy{MaxSubActionsPerStep: 3, MaxStepsPerTask: 5, MaxStepMinutes: 30})

	tests := []struct {
		name     string
		proposal TaskProposal
		want     string
	}{
		{"oversized sub-action", TaskProposal{Title: "Reindex", Tier: models.TierP3, SubActions: subActions(90)}, "above the 30m step ceiling"},
		{"no sub-actions", TaskProposal{Title: "Reindex", Tier: models.TierP3}, "SubActions is required"},
		{"bad tier", TaskProposal{Title: "Reindex", Tier: "P9", SubActions: subActions(5)}, "Tier must be one of"},
		{"blank title", TaskProposal{Title: "   ", Tier: models.TierP3, SubActions: subActions(5)}, "Title cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := d.Decompose([]TaskProposal{tt.proposal}, nil, 0)
			if !errors.Is(err, ErrDecompositionRejected) {
				t.Fatalf("error = %v, want ErrDecompositionRejected", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func validPlan(steps ...models.Step) models.Plan {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	task := models.Task{ID: "t", Title: "Task", Tier: models.TierP2}
	for i := range steps {
		steps[i].TaskID = "t"
		if steps[i].Status == "" {
			steps[i].Status = models.StepPending
		}
		if steps[i].Description == "" {
			steps[i].Description = "do " + steps[i].ID
		}
		task.StepIDs = append(task.StepIDs, steps[i].ID)
	}
	return models.Plan{
		ShiftID: "s", ShiftName: "night", Date: "2026-03-01",
		WindowStart: now, WindowEnd: now.Add(time.Hour),
		Tasks: []models.Task{task}, Steps: steps,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestValidatePlan(t *testing.T) {
	d := newTestDecomposer(t, DecompositionPolicy{MaxSubActionsPerStep: 2, MaxStepsPerTask: 2, MaxStepMinutes: 30})

	tests := []struct {
		name  string
		plan  models.Plan
		valid bool
		want  string
	}{
		{"within bounds", validPlan(models.Step{ID: "a", SubActions: []string{"x"}, EstimatedMinutes: 10}), true, ""},
		{"too many sub-actions", validPlan(models.Step{ID: "a", SubActions: []string{"x", "y", "z"}}), false, "3 sub-actions"},
		{"too long", validPlan(models.Step{ID: "a", EstimatedMinutes: 45}), false, "estimated at 45m"},
		{"too many steps", validPlan(models.Step{ID: "a"}, models.Step{ID: "b"}, models.Step{ID: "c"}), false, "split it into several tasks"},
		{"carryover keeps its own bound", validPlan(models.Step{ID: "a", SubActions: []string{"x", "y", "z"}, MaxSubActions: 3, Carryover: true}), true, ""},
		{"cycle", validPlan(models.Step{ID: "a", DependsOn: []string{"b"}}, models.Step{ID: "b"}), false, "dependency cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.ValidatePlan(&tt.plan)
			if res.Valid != tt.valid {
				t.Fatalf("ValidatePlan() valid = %v, want %v (%s)", res.Valid, tt.valid, res.ErrorSummary())
			}
			if tt.want != "" && !strings.Contains(res.ErrorSummary(), tt.want) {
				t.Errorf("summary %q does not mention %q", res.ErrorSummary(), tt.want)
			}
		})
	}
}
