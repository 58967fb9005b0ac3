/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/spf13/cobra"
)

var (
	unblockNote string
	unblockSkip bool
)

// unblockCmd represents the unblock command
var unblockCmd = &cobra.Command{
	Use:   "unblock <step-id>",
	Short: "Return a blocked step to the queue",
	Long: `Move a blocked step back to pending so the next cycle can run it.

Steps blocked on user input are never retried on their own; this is how
they continue. A --note is added to the context log, where the worker sees
it on its next attempt. Use --skip to give up on the step instead.

The step id may be shortened to any unique suffix, as shown by 'shiftwing
status'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		st, err := a.tracker.Current()
		if err != nil {
			return err
		}
		if st.Status != models.ShiftExecuting {
			return fmt.Errorf("no shift is executing (shift is %s)", st.Status)
		}

		now := time.Now().UTC()
		by := approverName(a)
		var stepID string
		plan, err := a.plans.Update(func(p *models.Plan) error {
			if p.ShiftID != st.ShiftID {
				return fmt.Errorf("plan belongs to shift %s, not %s", p.ShiftID, st.ShiftID)
			}
			step, err := findStep(p, args[0])
			if err != nil {
				return err
			}
			if step.Status != models.StepBlocked {
				return fmt.Errorf("step %s is %s, not blocked", step.ID, step.Status)
			}
			stepID = step.ID
			if unblockSkip {
				return step.Skip("skipped by "+by, now)
			}
			return step.Transition(models.StepPending, now, "unblocked by "+by)
		})
		if err != nil {
			return err
		}
		if _, err := a.tracker.Transition(func(s *models.ShiftState) error {
			s.ApplyCounts(models.CountSteps(&plan))
			return nil
		}); err != nil {
			return err
		}

		if unblockNote != "" {
			entry := models.ContextEntry{Timestamp: now, Text: fmt.Sprintf("step %s: %s", stepID, unblockNote)}
			if err := a.log.Append(entry); err != nil {
				return fmt.Errorf("record note: %w", err)
			}
		}

		if isJSON() {
			return printJSON(cmd.OutOrStdout(), plan.Step(stepID))
		}
		if unblockSkip {
			say(cmd, "%s Step %s skipped.", ui.Icon("○", ui.StyleWarning), stepID)
		} else {
			say(cmd, "%s Step %s is pending again.", ui.Icon("✓", ui.StyleSuccess), stepID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unblockCmd)
	unblockCmd.Flags().StringVarP(&unblockNote, "note", "n", "", "answer or hint for the worker, added to the context log")
	unblockCmd.Flags().BoolVar(&unblockSkip, "skip", false, "skip the step instead of retrying it")
}

// findStep resolves a full step id or a unique suffix of one.
func findStep(p *models.Plan, ref string) (*models.Step, error) {
	if s := p.Step(ref); s != nil {
		return s, nil
	}
	var match *models.Step
	for i := range p.Steps {
		if strings.HasSuffix(p.Steps[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("step id %q is ambiguous", ref)
			}
			match = &p.Steps[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no step %q in shift %s", ref, p.ShiftID)
	}
	return match, nil
}
