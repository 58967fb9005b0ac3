/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/josephgoksu/ShiftWing/internal/executor"
	"github.com/josephgoksu/ShiftWing/internal/planner"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/internal/watch"
	"github.com/spf13/cobra"
)

var runNoInbox bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep planning and executing until interrupted",
	Long: `Run the planner and the executor on a schedule in the foreground.

Every trigger.cycleInterval a fresh cycle runs, every trigger.planInterval
the planner runs, and when trigger.watchInbox is on an approval or signals
file dropped into the inbox runs the planner right away. Each invocation
reads everything from disk, exactly like 'shiftwing cycle' from cron, so
stopping the process at any point is safe.

Store corruption stops the loop and exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		if _, err := a.executor(); err != nil {
			return err
		}

		cfg := watch.Config{
			CycleInterval: a.cfg.Trigger.CycleInterval,
			PlanInterval:  a.cfg.Trigger.PlanInterval,
		}
		if a.cfg.Trigger.WatchInbox && !runNoInbox {
			cfg.InboxDir = a.layout.InboxDir()
		}

		out := cmd.OutOrStdout()
		planJob := func(ctx context.Context) error {
			res, err := runPlanner(ctx, a, planner.Request{})
			if err != nil {
				return err
			}
			if res.Outcome != planner.OutcomeAlreadyExecuting && res.Outcome != planner.OutcomeNothingToPlan {
				return printPlanResult(cmd, a, res)
			}
			return nil
		}
		cycleJob := func(ctx context.Context) error {
			report, err := runCycle(ctx, a, nil)
			if err != nil {
				return err
			}
			if report.Outcome != executor.OutcomeNoop && report.Outcome != executor.OutcomeBusy && !isQuiet() && !isJSON() {
				fmt.Fprint(out, renderCycleReport(report))
			}
			return nil
		}

		trigger, err := watch.New(cfg, planJob, cycleJob)
		if err != nil {
			return err
		}
		if !isQuiet() && !isJSON() {
			ui.RenderPageHeader(out, "ShiftWing", fmt.Sprintf("cycles every %s, planning every %s, state in %s",
				cfg.CycleInterval, cfg.PlanInterval, a.layout.Root))
		}
		slog.Info("run loop started", "cycleInterval", cfg.CycleInterval, "planInterval", cfg.PlanInterval, "inbox", cfg.InboxDir)
		err = trigger.Run(cmd.Context())
		slog.Info("run loop stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNoInbox, "no-inbox", false, "do not watch the inbox for approvals")
}
