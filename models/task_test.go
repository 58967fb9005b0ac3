package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testPlan() Plan {
	return Plan{
		ShiftID:     "shift-1",
		ShiftName:   "morning",
		Date:        "2026-03-02",
		WindowStart: testNow,
		WindowEnd:   testNow.Add(4 * time.Hour),
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
		Tasks: []Task{
			{ID: "t-low", Title: "Tidy docs", Tier: TierP3, Order: 0, StepIDs: []string{"s3"}},
			{ID: "t-high", Title: "Fix login", Tier: TierP1, Order: 1, StepIDs: []string{"s1", "s2"}},
		},
		Steps: []Step{
			{ID: "s1", TaskID: "t-high", Description: "reproduce", Status: StepPending},
			{ID: "s2", TaskID: "t-high", Description: "patch", Status: StepPending},
			{ID: "s3", TaskID: "t-low", Description: "rewrite readme", Status: StepPending},
		},
	}
}

func TestCanTransitionStep(t *testing.T) {
	all := []StepStatus{StepPending, StepClaimed, StepDone, StepBlocked, StepSkipped}
	allowed := map[[2]StepStatus]bool{
		{StepPending, StepClaimed}: true,
		{StepClaimed, StepDone}:    true,
		{StepClaimed, StepBlocked}: true,
		{StepClaimed, StepPending}: true,
		{StepBlocked, StepPending}: true,
		{StepBlocked, StepSkipped}: true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]StepStatus{from, to}]
			if got := CanTransitionStep(from, to); got != want {
				t.Errorf("CanTransitionStep(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStep_Transition(t *testing.T) {
	st := Step{ID: "s1", TaskID: "t1", Description: "do it", Status: StepPending}

	if err := st.Claim("inv-1", testNow); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if st.ClaimedBy != "inv-1" || st.ClaimedAt == nil {
		t.Fatalf("claim metadata not set: %+v", st)
	}
	if err := ValidateStruct(st); err != nil {
		t.Fatalf("claimed step should validate: %v", err)
	}

	if err := st.Block(BlockTransient, "timeout", testNow.Add(time.Minute)); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if st.ClaimedAt != nil || st.ClaimedBy != "" {
		t.Error("leaving claimed should clear the claim")
	}
	if st.BlockKind != BlockTransient || st.BlockReason != "timeout" {
		t.Errorf("block fields not set: %+v", st)
	}

	err := st.Transition(StepDone, testNow, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("blocked -> done should fail with ErrInvalidTransition, got %v", err)
	}

	if err := st.Skip("exhausted", testNow); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if !st.NeedsReview {
		t.Error("skipped step should need review")
	}
	if len(st.Transitions) != 3 {
		t.Errorf("expected 3 recorded transitions, got %d", len(st.Transitions))
	}
}

func TestStep_IsStale(t *testing.T) {
	st := Step{ID: "s1", TaskID: "t1", Description: "x", Status: StepPending}
	_ = st.Claim("inv", testNow)

	if st.IsStale(testNow.Add(5*time.Minute), 10*time.Minute) {
		t.Error("fresh claim reported stale")
	}
	if !st.IsStale(testNow.Add(11*time.Minute), 10*time.Minute) {
		t.Error("old claim not reported stale")
	}
}

func TestValidateStruct_ClaimMetadata(t *testing.T) {
	st := Step{ID: "s1", TaskID: "t1", Description: "x", Status: StepClaimed}
	err := ValidateStruct(st)
	if err == nil {
		t.Fatal("claimed step without claimedAt should not validate")
	}
	if !strings.Contains(err.Error(), "claim_required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr string
	}{
		{name: "valid plan", mutate: func(p *Plan) {}},
		{
			name:    "duplicate step",
			mutate:  func(p *Plan) { p.Steps[1].ID = "s1" },
			wantErr: "duplicate step id",
		},
		{
			name:    "unknown step in task",
			mutate:  func(p *Plan) { p.Tasks[0].StepIDs = append(p.Tasks[0].StepIDs, "ghost") },
			wantErr: "unknown step",
		},
		{
			name:    "orphan step",
			mutate:  func(p *Plan) { p.Tasks[0].StepIDs = nil },
			wantErr: "not listed by any task",
		},
		{
			name:    "unknown dependency",
			mutate:  func(p *Plan) { p.Steps[2].DependsOn = []string{"nope"} },
			wantErr: "depends on unknown step",
		},
		{
			name: "two live claims",
			mutate: func(p *Plan) {
				_ = p.Steps[0].Claim("a", testNow)
				_ = p.Steps[2].Claim("b", testNow)
			},
			wantErr: "at most one",
		},
		{
			name:    "window ends before start",
			mutate:  func(p *Plan) { p.WindowEnd = p.WindowStart.Add(-time.Hour) },
			wantErr: "gtfield",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPlan()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlan_OrderedSteps(t *testing.T) {
	p := testPlan()
	var ids []string
	for _, st := range p.OrderedSteps() {
		ids = append(ids, st.ID)
	}
	want := "s1,s2,s3"
	if got := strings.Join(ids, ","); got != want {
		t.Errorf("OrderedSteps = %s, want %s", got, want)
	}

	preds := p.Predecessors("s2")
	if len(preds) != 1 || preds[0].ID != "s1" {
		t.Errorf("Predecessors(s2) = %v", preds)
	}
	if len(p.Predecessors("s1")) != 0 {
		t.Error("first step should have no predecessors")
	}
}

func TestCountSteps(t *testing.T) {
	p := testPlan()
	_ = p.Steps[0].Claim("inv", testNow)
	_ = p.Steps[0].Transition(StepDone, testNow, "")
	_ = p.Steps[1].Claim("inv", testNow)

	c := CountSteps(&p)
	if c.Total != 3 || c.Done != 1 || c.Claimed != 1 || c.Pending != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}

	var s ShiftState
	s.ApplyCounts(c)
	if s.TotalSteps != 3 || s.Completed != 1 || s.InFlight != 1 || s.Pending != 1 {
		t.Errorf("ApplyCounts produced %+v", s)
	}
}

func TestCanTransitionShift(t *testing.T) {
	tests := []struct {
		from, to ShiftStatus
		want     bool
	}{
		{ShiftIdle, ShiftAwaitingApproval, true},
		{ShiftIdle, ShiftCompleted, false},
		{ShiftAwaitingApproval, ShiftExecuting, true},
		{ShiftAwaitingApproval, ShiftCompleted, false},
		{ShiftExecuting, ShiftCompleted, true},
		{ShiftExecuting, ShiftAwaitingApproval, false},
		{ShiftExecuting, ShiftExecuting, true},
		{ShiftCompleted, ShiftExecuting, true},
		{ShiftCancelled, ShiftCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransitionShift(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionShift(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestShiftState_Validate(t *testing.T) {
	idle := IdleShift()
	if err := ValidateStruct(idle); err != nil {
		t.Errorf("idle shift should validate: %v", err)
	}
	executing := ShiftState{Status: ShiftExecuting}
	if err := ValidateStruct(executing); err == nil {
		t.Error("executing shift without id should not validate")
	}
}
