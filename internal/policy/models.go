// Package policy decides, with OPA Rego rules, whether carryover work may
// start without a fresh human approval.
package policy

import (
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// PolicyDecision represents the outcome of evaluating a policy against some input.
// Every decision is appended to the audit log.
type PolicyDecision struct {
	DecisionID  string    `json:"decisionId"`           // UUID for referencing
	PolicyPath  string    `json:"policyPath"`           // Rego package path (e.g., "shiftwing.autoapprove")
	Result      string    `json:"result"`               // "allow" or "deny"
	Violations  []string  `json:"violations,omitempty"` // Deny messages from OPA
	Warnings    []string  `json:"warnings,omitempty"`   // Warn messages from OPA
	Input       any       `json:"input"`                // The input that was evaluated
	ShiftID     string    `json:"shiftId,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// PolicyResult constants.
const (
	PolicyResultAllow = "allow"
	PolicyResultDeny  = "deny"
)

// IsAllowed returns true if the policy decision was "allow".
func (d *PolicyDecision) IsAllowed() bool {
	return d.Result == PolicyResultAllow
}

// AutoApprovalInput is what Rego policies receive in the `input` variable.
type AutoApprovalInput struct {
	ShiftID  string      `json:"shift_id"`
	Steps    []StepInput `json:"steps"`
	NewTasks []TaskInput `json:"new_tasks,omitempty"`
}

// StepInput describes one step proposed for auto-approval.
type StepInput struct {
	ID                 string `json:"id"`
	TaskID             string `json:"task_id"`
	Tier               string `json:"tier"`
	Description        string `json:"description"`
	Carryover          bool   `json:"carryover"`
	PreviouslyApproved bool   `json:"previously_approved"`
	Destructive        bool   `json:"destructive"`
	ExternallyVisible  bool   `json:"externally_visible"`
	Attempts           int    `json:"attempts"`
}

// TaskInput describes work added since the last approval.
type TaskInput struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Tier  string `json:"tier"`
}

// NewAutoApprovalInput builds the policy input for a set of steps.
func NewAutoApprovalInput(shiftID string, tasks []models.Task, steps []models.Step, newTasks []models.Task) *AutoApprovalInput {
	tiers := make(map[string]models.Tier, len(tasks))
	for _, t := range tasks {
		tiers[t.ID] = t.Tier
	}
	in := &AutoApprovalInput{ShiftID: shiftID, Steps: make([]StepInput, 0, len(steps))}
	for _, st := range steps {
		in.Steps = append(in.Steps, StepInput{
			ID:                 st.ID,
			TaskID:             st.TaskID,
			Tier:               string(tiers[st.TaskID]),
			Description:        st.Description,
			Carryover:          st.Carryover,
			PreviouslyApproved: st.ApprovedAt != nil,
			Destructive:        st.Destructive,
			ExternallyVisible:  st.ExternallyVisible,
			Attempts:           st.AttemptCount,
		})
	}
	for _, t := range newTasks {
		in.NewTasks = append(in.NewTasks, TaskInput{ID: t.ID, Title: t.Title, Tier: string(t.Tier)})
	}
	return in
}
