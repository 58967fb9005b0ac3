/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/josephgoksu/ShiftWing/internal/handoff"
	"github.com/josephgoksu/ShiftWing/internal/planner"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/spf13/cobra"
)

var cancelReason string

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the current shift",
	Long: `Cancel the whole shift. Individual steps cannot be cancelled.

An executing shift is handed off right away: finished work is archived and
everything unfinished is carried over to the next planning round. A
proposal still waiting for approval is skipped. A handoff that a crash
left unfinished is completed.

A step already running in another invocation finishes, but its result is
discarded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		st, err := a.tracker.Current()
		if err != nil {
			return err
		}

		switch st.Status {
		case models.ShiftAwaitingApproval:
			resp := planner.ApprovalResponse{
				ShiftID:    st.ShiftID,
				Kind:       planner.ApproveSkip,
				ApprovedBy: approverName(a),
				Reason:     cancelReason,
			}
			if err := a.approvals.WriteResponse(resp); err != nil {
				return err
			}
			res, err := runPlanner(cmd.Context(), a, planner.Request{})
			if err != nil {
				return err
			}
			return printPlanResult(cmd, a, res)

		case models.ShiftExecuting:
			arch, err := a.archiver()
			if err != nil {
				return err
			}
			h, err := arch.Archive(cmd.Context(), models.HandoffCancelled)
			if errors.Is(err, handoff.ErrNothingToArchive) {
				return fmt.Errorf("shift %s has no plan to archive; check 'shiftwing status'", st.ShiftID)
			}
			if err != nil {
				return err
			}
			trackHandoff(h)
			if cancelReason != "" {
				if err := a.log.Append(models.ContextEntry{Timestamp: h.ArchivedAt, Text: fmt.Sprintf("shift %s cancelled: %s", h.ShiftID, cancelReason)}); err != nil {
					LogError("could not record cancel reason", err)
				}
			}
			return printCancelled(cmd, a, h)

		case models.ShiftCancelled, models.ShiftCompleted:
			// A crash during an earlier handoff can leave a closed shift
			// whose plan is not archived yet.
			arch, err := a.archiver()
			if err != nil {
				return err
			}
			h, resumed, err := arch.Resume(cmd.Context())
			if err != nil {
				return err
			}
			if !resumed {
				return fmt.Errorf("nothing to cancel: shift is %s", st.Status)
			}
			trackHandoff(h)
			return printCancelled(cmd, a, h)

		default:
			return fmt.Errorf("nothing to cancel: shift is %s", st.Status)
		}
	},
}

func printCancelled(cmd *cobra.Command, a *app, h models.Handoff) error {
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), h)
	}
	say(cmd, "%s Shift %s handed off (%s).", ui.Icon("■", ui.StyleWarning), h.ShiftID, h.Reason)
	say(cmd, "  %d done, %d carried over. Handoff: %s", len(h.Completed), len(h.CarriedOver), a.handoffs.MarkdownPath())
	return nil
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "why the shift is cancelled")
}
