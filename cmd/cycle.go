/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/executor"
	"github.com/josephgoksu/ShiftWing/internal/telemetry"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/internal/worker"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/spf13/cobra"
)

// cycleCmd represents the cycle command
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one execution cycle of the current shift",
	Long: `Run one short, stateless execution cycle and exit.

A cycle reclaims stale claims, picks the highest-priority runnable step,
runs it through worker.command and records the result. Quick steps let it
run another, up to executor.maxStepsPerCycle. When no work can progress or
the window has expired, the cycle hands the shift off: a handoff document is
written, the shift is archived and unfinished work is drafted for the next
planning round.

Running cycles more often than steps finish is safe: a cycle that finds a
live claim exits without touching anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		var spin io.Writer
		if ui.IsInteractive() && !isJSON() && !isQuiet() {
			spin = cmd.ErrOrStderr()
		}
		report, err := runCycle(cmd.Context(), a, spin)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), report)
		}
		if !isQuiet() {
			fmt.Fprint(cmd.OutOrStdout(), renderCycleReport(report))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}

// runCycle runs one cycle and records telemetry. spinOut, when not nil,
// shows a spinner while the cycle runs.
func runCycle(ctx context.Context, a *app, spinOut io.Writer) (executor.CycleReport, error) {
	ex, err := a.executor()
	if err != nil {
		return executor.CycleReport{}, err
	}
	spinner := ui.NewSpinner(spinOut, "Running cycle...")
	spinner.Start()
	start := time.Now()
	report, err := ex.RunCycle(ctx)
	spinner.Stop()
	if err != nil {
		return report, err
	}

	track(telemetry.EventCycleRun, telemetry.CycleProps(string(report.Outcome), len(report.Steps),
		len(report.Reclaimed), len(report.Skipped), time.Since(start)))
	if report.Handoff != nil {
		trackHandoff(*report.Handoff)
	}
	return report, nil
}

func trackHandoff(h models.Handoff) {
	track(telemetry.EventHandoff, telemetry.HandoffProps(string(h.Reason),
		len(h.Completed), len(h.Blocked), len(h.Skipped), len(h.CarriedOver), h.CyclesRun))
}

func renderCycleReport(r executor.CycleReport) string {
	var b strings.Builder
	switch r.Outcome {
	case executor.OutcomeNoop:
		fmt.Fprintf(&b, "No shift is executing (%s).\n", ui.Label(r.State.Status))
		return b.String()
	case executor.OutcomeBusy:
		fmt.Fprintf(&b, "%s Step %s is still running in another invocation.\n", ui.Icon("⟳", ui.StyleActive), ui.TruncateID(r.BusyStepID))
		return b.String()
	}

	for _, id := range r.Reclaimed {
		fmt.Fprintf(&b, "%s reclaimed stale claim on %s\n", ui.Icon("↺", ui.StyleWarning), ui.TruncateID(id))
	}
	for _, s := range r.Steps {
		icon, style := "✓", ui.StyleSuccess
		switch {
		case s.Discarded:
			icon, style = "✗", ui.StyleError
		case s.Outcome != worker.OutcomeSuccess:
			icon, style = "!", ui.StyleWarning
		}
		line := fmt.Sprintf("%s %s %s in %s", ui.Icon(icon, style), ui.TruncateID(s.StepID), ui.Label(s.Status), s.Duration.Round(time.Second))
		if s.Retry {
			line += ui.StyleSubtle.Render(" (retry)")
		}
		if s.Discarded {
			line += ui.StyleError.Render(" result discarded: claim was lost")
		} else if s.Result != "" {
			line += ui.StyleSubtle.Render("  " + ui.Truncate(ui.FirstLine(s.Result), 60))
		}
		b.WriteString(line + "\n")
	}
	for _, id := range r.Skipped {
		fmt.Fprintf(&b, "%s skipped %s after too many attempts\n", ui.Icon("○", ui.StyleError), ui.TruncateID(id))
	}

	switch r.Outcome {
	case executor.OutcomeWaiting:
		b.WriteString(ui.StyleSubtle.Render("Remaining work is waiting on retries or dependencies.") + "\n")
	case executor.OutcomeHandedOff:
		fmt.Fprintf(&b, "%s Shift %s handed off: %s.\n", ui.Icon("■", ui.StylePrimary), r.ShiftID, ui.Label(r.HandoffReason))
		if h := r.Handoff; h != nil {
			fmt.Fprintf(&b, "  %d done, %d blocked, %d skipped, %d carried over\n",
				len(h.Completed), len(h.Blocked), len(h.Skipped), len(h.CarriedOver))
		}
	}
	return b.String()
}
