package planner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/policy"
	"github.com/josephgoksu/ShiftWing/models"
	yaml "gopkg.in/yaml.v3"
)

// ApprovalKind is the answer an approver gives to a proposal.
type ApprovalKind string

const (
	ApproveAll      ApprovalKind = "approve-all"
	ApproveSubset   ApprovalKind = "approve-subset"
	ApproveModify   ApprovalKind = "modify"
	ApproveAddTask  ApprovalKind = "add-task"
	ApproveSkip     ApprovalKind = "skip"
	ApproveTimedOut ApprovalKind = "no-response-timeout"
)

// ErrInvalidResponse is returned for an approval response that cannot be
// applied to the proposal. The proposal stays open.
var ErrInvalidResponse = errors.New("invalid approval response")

// TaskModification edits one proposed task. Empty fields are left as they
// are; new sub-actions replace the task's steps.
type TaskModification struct {
	TaskID     string      `json:"task_id" yaml:"taskId" validate:"required"`
	Title      string      `json:"title,omitempty" yaml:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Tier       models.Tier `json:"tier,omitempty" yaml:"tier,omitempty" validate:"omitempty,oneof=P1 P2 P3"`
	Context    string      `json:"context,omitempty" yaml:"context,omitempty"`
	SubActions []SubAction `json:"sub_actions,omitempty" yaml:"subActions,omitempty" validate:"omitempty,dive"`
}

// ApprovalResponse is one answer to a published proposal.
type ApprovalResponse struct {
	ShiftID       string             `json:"shift_id" yaml:"shiftId" validate:"required"`
	Kind          ApprovalKind       `json:"kind" yaml:"kind" validate:"required,oneof=approve-all approve-subset modify add-task skip no-response-timeout"`
	ApprovedBy    string             `json:"approved_by,omitempty" yaml:"approvedBy,omitempty"`
	TaskIDs       []string           `json:"task_ids,omitempty" yaml:"taskIds,omitempty" validate:"required_if=Kind approve-subset,dive,required"`
	Modifications []TaskModification `json:"modifications,omitempty" yaml:"modifications,omitempty" validate:"required_if=Kind modify,dive"`
	AddTasks      []TaskProposal     `json:"add_tasks,omitempty" yaml:"addTasks,omitempty" validate:"required_if=Kind add-task,dive"`
	Reason        string             `json:"reason,omitempty" yaml:"reason,omitempty"`
	RespondedAt   time.Time          `json:"responded_at" yaml:"respondedAt"`
}

// Validate checks the response against the schema rules.
func (r *ApprovalResponse) Validate() ValidationResult {
	return validateStruct(r)
}

// ProposalView is what gets published for an approver to answer.
type ProposalView struct {
	Plan      *models.Plan
	Decision  *policy.PolicyDecision
	Previous  *models.Handoff
	Lessons   []models.ContextEntry
	ExpiresAt time.Time
}

// ApprovalChannel carries proposals to an approver and answers back.
type ApprovalChannel interface {
	// Publish makes the proposal visible. Publishing again replaces it.
	Publish(ctx context.Context, v ProposalView) error

	// Poll returns the response for shiftID, or nil if none has arrived.
	Poll(ctx context.Context, shiftID string) (*ApprovalResponse, error)

	// Ack retires the response and proposal of shiftID once applied.
	Ack(ctx context.Context, shiftID string) error
}

// FileApprovalChannel publishes the proposal as markdown and reads the answer
// from a YAML file dropped next to it.
type FileApprovalChannel struct {
	proposalPath string
	responsePath string
}

// NewFileApprovalChannel creates a channel over the two files.
func NewFileApprovalChannel(proposalPath, responsePath string) *FileApprovalChannel {
	return &FileApprovalChannel{proposalPath: proposalPath, responsePath: responsePath}
}

// Publish writes the proposal markdown.
func (c *FileApprovalChannel) Publish(ctx context.Context, v ProposalView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return replaceFile(c.proposalPath, []byte(RenderProposal(v)))
}

// Poll reads the response file. A response for another shift is ignored.
func (c *FileApprovalChannel) Poll(ctx context.Context, shiftID string) (*ApprovalResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.responsePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read approval: %w", err)
	}
	var resp ApprovalResponse
	if err := yaml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidResponse, c.responsePath, err)
	}
	if resp.ShiftID != shiftID {
		slog.Debug("ignoring approval for another shift", "want", shiftID, "got", resp.ShiftID)
		return nil, nil
	}
	return &resp, nil
}

// Ack moves the applied response into inbox/processed and removes the
// proposal.
func (c *FileApprovalChannel) Ack(ctx context.Context, shiftID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(filepath.Dir(c.responsePath), "processed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(c.responsePath, filepath.Join(dir, "approval-"+shiftID+".yaml")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive approval: %w", err)
	}
	if err := os.Remove(c.proposalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove proposal: %w", err)
	}
	return nil
}

// WriteResponse drops resp into the response file for the planner to pick
// up.
func (c *FileApprovalChannel) WriteResponse(resp ApprovalResponse) error {
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = time.Now().UTC()
	}
	if res := resp.Validate(); !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidResponse, res.ErrorSummary())
	}
	data, err := yaml.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}
	return replaceFile(c.responsePath, data)
}

// ProposalMarkdown returns the published proposal, if any.
func (c *FileApprovalChannel) ProposalMarkdown() (string, error) {
	data, err := os.ReadFile(c.proposalPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func replaceFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RenderProposal formats a proposal for a human approver.
func RenderProposal(v ProposalView) string {
	p := v.Plan
	var b strings.Builder
	fmt.Fprintf(&b, "# Shift proposal: %s (%s)\n\n", p.ShiftName, p.Date)
	fmt.Fprintf(&b, "- Shift ID: `%s`\n", p.ShiftID)
	fmt.Fprintf(&b, "- Window: %s to %s\n", p.WindowStart.Format(time.RFC3339), p.WindowEnd.Format(time.RFC3339))
	if !v.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "- Answer before: %s\n", v.ExpiresAt.Format(time.RFC3339))
	}
	c := models.CountSteps(p)
	fmt.Fprintf(&b, "- Steps: %d\n\n", c.Total)

	b.WriteString("## Tasks\n\n")
	for _, t := range p.OrderedTasks() {
		mark := ""
		if t.Carryover {
			mark = " _(carryover)_"
		}
		fmt.Fprintf(&b, "### [%s] %s%s\n\n`%s`\n\n", t.Tier, t.Title, mark, t.ID)
		for _, sid := range t.StepIDs {
			st := p.Step(sid)
			if st == nil {
				continue
			}
			flags := []string{fmt.Sprintf("%dm", st.EstimatedMinutes)}
			if st.Destructive {
				flags = append(flags, "destructive")
			}
			if st.ExternallyVisible {
				flags = append(flags, "externally visible")
			}
			if st.Status == models.StepBlocked {
				flags = append(flags, "blocked: "+st.BlockReason)
			}
			fmt.Fprintf(&b, "- %s (%s)\n", firstLine(st.Description), strings.Join(flags, ", "))
			for _, sa := range st.SubActions {
				fmt.Fprintf(&b, "  - %s\n", sa)
			}
		}
		b.WriteString("\n")
	}

	if v.Decision != nil {
		b.WriteString("## Auto-approval\n\n")
		if v.Decision.IsAllowed() {
			b.WriteString("Carryover is eligible for auto-approval.\n")
		} else {
			for _, msg := range v.Decision.Violations {
				fmt.Fprintf(&b, "- denied: %s\n", msg)
			}
		}
		for _, msg := range v.Decision.Warnings {
			fmt.Fprintf(&b, "- warning: %s\n", msg)
		}
		b.WriteString("\n")
	}

	if v.Previous != nil {
		fmt.Fprintf(&b, "## Previous shift (%s)\n\n", v.Previous.Reason)
		fmt.Fprintf(&b, "%d done, %d blocked, %d skipped, %d carried over.\n\n",
			len(v.Previous.Completed), len(v.Previous.Blocked), len(v.Previous.Skipped), len(v.Previous.CarriedOver))
	}
	if len(v.Lessons) > 0 {
		b.WriteString("## Context\n\n")
		for _, e := range v.Lessons {
			fmt.Fprintf(&b, "- %s %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Answer\n\n")
	fmt.Fprintf(&b, "Run `shiftwing approve --all`, or write `inbox/approval.yaml` with `shiftId: %s` and a `kind` of ", p.ShiftID)
	b.WriteString("approve-all, approve-subset, modify, add-task or skip.\n")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
