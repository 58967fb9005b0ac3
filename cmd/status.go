/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/logger"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current shift and its steps",
	Long: `Show where the current shift is: its status, execution window, step
counts and every step with its tier, status and attempts. While a proposal
waits for approval, the proposed steps are shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		st, err := a.tracker.Current()
		if err != nil {
			return err
		}
		plan, err := statusPlan(a, st)
		if err != nil {
			return err
		}

		if isJSON() {
			return printJSON(cmd.OutOrStdout(), map[string]any{"shift": st, "plan": plan})
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderStatus(st, plan, time.Now()))

		if isVerbose() {
			if logs, err := logger.ListCrashLogs(); err == nil && len(logs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s %d crash log(s), newest %s\n",
					ui.Icon("!", ui.StyleWarning), len(logs), logs[len(logs)-1])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusPlan returns the plan status should show: the live plan, or the
// open proposal while approval is pending. It is nil when there is neither.
func statusPlan(a *app, st models.ShiftState) (*models.Plan, error) {
	source := a.plans
	if st.Status == models.ShiftAwaitingApproval {
		source = a.proposals
	}
	plan, err := source.Load()
	if errors.Is(err, store.ErrPlanNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if plan.ShiftID != st.ShiftID && st.Status != models.ShiftIdle {
		return nil, nil
	}
	return &plan, nil
}
