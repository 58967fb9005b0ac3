/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/josephgoksu/ShiftWing/internal/planner"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"
)

var (
	approveAll    bool
	approveTasks  []string
	approveSkip   bool
	approveFile   string
	approveBy     string
	approveReason string
)

// approveCmd represents the approve command
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Answer the proposal waiting for approval",
	Long: `Answer the open proposal and apply the answer right away.

Pick exactly one of:
  --all            approve every proposed task
  --tasks a,b      approve only these task ids
  --skip           skip the shift; carryover waits for the next one
  --file answer.yaml
                   apply a full answer (modify or add-task) written by hand

In a terminal with none of these, an interactive picker opens.
The answer is written to inbox/approval.yaml first, so a crash while
applying it loses nothing.`,
	Example: `  shiftwing approve --all --by alice
  shiftwing approve --tasks 01J8Z3...,01J8Z4...
  shiftwing approve --file ./answer.yaml`,
	RunE: runApprove,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().BoolVar(&approveAll, "all", false, "approve every proposed task")
	approveCmd.Flags().StringSliceVar(&approveTasks, "tasks", nil, "approve only these task ids")
	approveCmd.Flags().BoolVar(&approveSkip, "skip", false, "skip this shift")
	approveCmd.Flags().StringVarP(&approveFile, "file", "f", "", "YAML approval answer to apply")
	approveCmd.Flags().StringVar(&approveBy, "by", "", "approver name recorded on the shift (default planner.approver or $USER)")
	approveCmd.Flags().StringVar(&approveReason, "reason", "", "note recorded with the answer")
	approveCmd.MarkFlagsMutuallyExclusive("all", "tasks", "skip", "file")
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	st, err := a.tracker.Current()
	if err != nil {
		return err
	}
	if st.Status != models.ShiftAwaitingApproval {
		return fmt.Errorf("no proposal is waiting for approval (shift is %s); run 'shiftwing plan' first", st.Status)
	}
	proposal, err := a.proposals.Load()
	if errors.Is(err, store.ErrPlanNotFound) {
		return fmt.Errorf("proposal for shift %s is missing; run 'shiftwing plan' to publish it again", st.ShiftID)
	}
	if err != nil {
		return err
	}

	resp, err := buildResponse(&proposal)
	if errors.Is(err, ui.ErrPickerAborted) {
		say(cmd, "Approval aborted. The proposal is still open.")
		return nil
	}
	if err != nil {
		return err
	}
	if resp.ShiftID == "" {
		resp.ShiftID = proposal.ShiftID
	}
	if resp.ApprovedBy == "" {
		resp.ApprovedBy = approverName(a)
	}
	if resp.Reason == "" {
		resp.Reason = approveReason
	}

	if err := a.approvals.WriteResponse(resp); err != nil {
		return err
	}
	res, err := runPlanner(cmd.Context(), a, planner.Request{})
	if err != nil {
		return err
	}
	return printPlanResult(cmd, a, res)
}

// buildResponse turns the flags, the answer file or the picker into a
// response.
func buildResponse(proposal *models.Plan) (planner.ApprovalResponse, error) {
	switch {
	case approveFile != "":
		data, err := os.ReadFile(approveFile)
		if err != nil {
			return planner.ApprovalResponse{}, fmt.Errorf("read answer: %w", err)
		}
		var resp planner.ApprovalResponse
		if err := yaml.Unmarshal(data, &resp); err != nil {
			return planner.ApprovalResponse{}, fmt.Errorf("parse answer %s: %w", approveFile, err)
		}
		return resp, nil
	case approveAll:
		return planner.ApprovalResponse{Kind: planner.ApproveAll}, nil
	case len(approveTasks) > 0:
		return planner.ApprovalResponse{Kind: planner.ApproveSubset, TaskIDs: approveTasks}, nil
	case approveSkip:
		return planner.ApprovalResponse{Kind: planner.ApproveSkip}, nil
	}

	if !ui.IsInteractive() {
		return planner.ApprovalResponse{}, errors.New("not a terminal: pass --all, --tasks, --skip or --file")
	}
	pick, err := ui.PickApproval(proposal)
	if err != nil {
		return planner.ApprovalResponse{}, err
	}
	switch pick.Kind {
	case ui.PickSubset:
		return planner.ApprovalResponse{Kind: planner.ApproveSubset, TaskIDs: pick.TaskIDs}, nil
	case ui.PickSkip:
		return planner.ApprovalResponse{Kind: planner.ApproveSkip}, nil
	default:
		return planner.ApprovalResponse{Kind: planner.ApproveAll}, nil
	}
}

func approverName(a *app) string {
	if approveBy != "" {
		return approveBy
	}
	if a.cfg.Planner.Approver != "" {
		return a.cfg.Planner.Approver
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
