package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carryStep(id string) models.Step {
	approved := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return models.Step{ID: id, TaskID: "t1", Description: "carry " + id, Status: models.StepPending, Carryover: true, ApprovedAt: &approved}
}

func TestEngine_Evaluate_NoPolicies(t *testing.T) {
	engine := NewEngineWithPolicies(nil)

	decision, err := engine.Evaluate(context.Background(), map[string]any{"steps": []any{}})
	require.NoError(t, err)
	assert.True(t, decision.IsAllowed())
	assert.Empty(t, decision.Violations)
	assert.NotEmpty(t, decision.DecisionID)
}

func TestEngine_DefaultPolicy(t *testing.T) {
	engine, err := NewEngine(EngineConfig{Fs: afero.NewMemMapFs(), PoliciesDir: "/none"})
	require.NoError(t, err)
	require.NoError(t, engine.Check(context.Background()))

	tasks := []models.Task{{ID: "t1", Title: "Carry task", Tier: models.TierP2}}

	tests := []struct {
		name      string
		steps     func() []models.Step
		newTasks  []models.Task
		wantAllow bool
		wantMsg   string
	}{
		{
			name:      "approved carryover is allowed",
			steps:     func() []models.Step { return []models.Step{carryStep("a"), carryStep("b")} },
			wantAllow: true,
		},
		{
			name: "destructive step denied",
			steps: func() []models.Step {
				s := carryStep("a")
				s.Destructive = true
				return []models.Step{s}
			},
			wantMsg: "step a is destructive and needs a fresh approval",
		},
		{
			name: "externally visible step denied",
			steps: func() []models.Step {
				s := carryStep("a")
				s.ExternallyVisible = true
				return []models.Step{s}
			},
			wantMsg: "step a is externally visible and needs a fresh approval",
		},
		{
			name: "never approved denied",
			steps: func() []models.Step {
				s := carryStep("a")
				s.ApprovedAt = nil
				return []models.Step{s}
			},
			wantMsg: "step a was never approved",
		},
		{
			name: "new work denied",
			steps: func() []models.Step {
				s := carryStep("a")
				s.Carryover = false
				return []models.Step{s}
			},
			wantMsg: "step a is new work, not carryover",
		},
		{
			name:     "new P1 task denied",
			steps:    func() []models.Step { return []models.Step{carryStep("a")} },
			newTasks: []models.Task{{ID: "n", Title: "Outage", Tier: models.TierP1}},
			wantMsg:  `new P1 task "Outage" needs a fresh approval`,
		},
		{
			name:      "new P3 task allowed",
			steps:     func() []models.Step { return []models.Step{carryStep("a")} },
			newTasks:  []models.Task{{ID: "n", Title: "Docs", Tier: models.TierP3}},
			wantAllow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewAutoApprovalInput("shift-1", tasks, tt.steps(), tt.newTasks)
			d, err := engine.EvaluateAutoApproval(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllow, d.IsAllowed(), "violations: %v", d.Violations)
			assert.Equal(t, "shift-1", d.ShiftID)
			if tt.wantMsg != "" {
				assert.Contains(t, d.Violations, tt.wantMsg)
			}
		})
	}
}

func TestEngine_EmptyProposalDenied(t *testing.T) {
	engine, err := NewEngine(EngineConfig{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	d, err := engine.EvaluateAutoApproval(context.Background(), NewAutoApprovalInput("s", nil, nil, nil))
	require.NoError(t, err)
	assert.False(t, d.IsAllowed())
}

func TestEngine_Warnings(t *testing.T) {
	engine, err := NewEngine(EngineConfig{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	s := carryStep("a")
	s.AttemptCount = 4
	d, err := engine.EvaluateAutoApproval(context.Background(), NewAutoApprovalInput("s", nil, []models.Step{s}, nil))
	require.NoError(t, err)
	assert.True(t, d.IsAllowed())
	assert.Equal(t, []string{"step a already failed 4 times"}, d.Warnings)
}

func TestEngine_UserPolicyTightens(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/project/.shiftwing/policies"
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "night.rego"), []byte(`package shiftwing.autoapprove

import rego.v1

deny contains msg if {
    some step in input.steps
    contains(step.description, "deploy")
    msg := sprintf("no unattended deploys: %s", [step.id])
}
`), 0o644))

	engine, err := NewEngine(EngineConfig{Fs: fs, PoliciesDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "night"}, engine.PolicyNames())

	s := carryStep("a")
	s.Description = "deploy the api"
	d, err := engine.EvaluateAutoApproval(context.Background(), NewAutoApprovalInput("s", nil, []models.Step{s}, nil))
	require.NoError(t, err)
	assert.False(t, d.IsAllowed())
	assert.Contains(t, d.Violations, "no unattended deploys: a")
}

func TestEngine_CheckReportsSyntaxErrors(t *testing.T) {
	engine := NewEngineWithPolicies([]*PolicyFile{{
		Name:    "broken",
		Path:    "broken.rego",
		Content: "package shiftwing.autoapprove\n\ndeny contains msg if {\n",
	}})
	assert.Error(t, engine.Check(context.Background()))
}

func TestAuditLog_SaveAndList(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "policy_decisions.jsonl"))

	empty, err := log.ListDecisions(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, r := range []string{PolicyResultAllow, PolicyResultDeny, PolicyResultAllow} {
		require.NoError(t, log.SaveDecision(&PolicyDecision{Result: r, ShiftID: "s"}))
	}

	recent, err := log.ListDecisions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, PolicyResultAllow, recent[0].Result)
	assert.Equal(t, PolicyResultDeny, recent[1].Result)

	got, err := log.GetDecision(recent[1].DecisionID)
	require.NoError(t, err)
	assert.Equal(t, PolicyResultDeny, got.Result)
}
