/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/planner"
	"github.com/josephgoksu/ShiftWing/internal/telemetry"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/spf13/cobra"
)

var (
	planShiftName string
	planWindow    time.Duration
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Propose the next shift or apply the approval answer",
	Long: `Advance planning by one step and exit.

With no open proposal, plan builds one from the carryover of the last shift
and the tasks in inbox/signals.yaml, then publishes it to inbox/proposal.md.
Carryover the auto-approval policy allows starts right away.

With an open proposal, plan applies the answer in inbox/approval.yaml, or
keeps waiting until planner.approvalTimeout passes.

Safe to run from cron: an executing shift is left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		res, err := runPlanner(cmd.Context(), a, planner.Request{ShiftName: planShiftName, Window: planWindow})
		if err != nil {
			return err
		}
		return printPlanResult(cmd, a, res)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&planShiftName, "name", "", "name of the new shift (default planner.shiftName)")
	planCmd.Flags().DurationVar(&planWindow, "window", 0, "execution window of the new shift (default planner.windowDuration)")
}

func runPlanner(ctx context.Context, a *app, req planner.Request) (planner.Result, error) {
	p, err := a.planner()
	if err != nil {
		return planner.Result{}, err
	}
	res, err := p.Plan(ctx, req)
	if err != nil {
		return planner.Result{}, err
	}
	if res.Outcome == planner.OutcomeStarted {
		steps := 0
		if res.Plan != nil {
			steps = len(res.Plan.Steps)
		}
		track(telemetry.EventShiftStarted, telemetry.Properties{"steps": steps, "auto_approved": res.AutoApproved})
	}
	return res, nil
}

func printPlanResult(cmd *cobra.Command, a *app, res planner.Result) error {
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), res)
	}
	switch res.Outcome {
	case planner.OutcomeNothingToPlan:
		say(cmd, "Nothing to plan: no carryover and no tasks in %s.", a.layout.SignalsFile())
	case planner.OutcomeAlreadyExecuting:
		say(cmd, "Shift %s is executing. Nothing to plan until it hands off.", res.ShiftID)
	case planner.OutcomeSkipped:
		say(cmd, "%s Shift %s skipped. Carryover is kept for the next shift.", ui.Icon("○", ui.StyleWarning), res.ShiftID)
	case planner.OutcomeAwaiting:
		say(cmd, "%s Shift %s is waiting for approval.", ui.Icon("…", ui.StyleWarning), res.ShiftID)
		if res.Message != "" {
			say(cmd, "  %s", ui.StyleSubtle.Render(res.Message))
		}
		if res.Decision != nil && len(res.Decision.Violations) > 0 {
			say(cmd, "  Needs a person because:")
			for _, v := range res.Decision.Violations {
				say(cmd, "    • %s", v)
			}
		}
		if res.Plan != nil {
			say(cmd, "\n%s", ui.RenderSteps(res.Plan))
		}
		say(cmd, "Review %s, then run 'shiftwing approve'.", a.layout.ProposalFile())
	case planner.OutcomeStarted:
		how := "approved"
		if res.AutoApproved {
			how = "auto-approved by policy"
		}
		say(cmd, "%s Shift %s started (%s).", ui.Icon("✓", ui.StyleSuccess), res.ShiftID, how)
		if res.Plan != nil {
			say(cmd, "\n%s", ui.RenderSteps(res.Plan))
		}
	}
	return nil
}
