/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/josephgoksu/ShiftWing/internal/policy"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/spf13/cobra"
)

// examplePolicy is written by 'policy init'. It adds rules to the built-in
// auto-approval package.
const examplePolicy = `# Local auto-approval rules for ShiftWing.
# Rules here add to the built-in policy; any deny message means the
# proposal waits for a person.
# Learn more: https://www.openpolicyagent.org/docs/latest/policy-language/

package shiftwing.autoapprove

import rego.v1

# Never start P1 carryover without a person looking at it.
# deny contains msg if {
#     some step in input.steps
#     step.tier == "P1"
#     msg := sprintf("P1 step %s needs a fresh approval", [step.id])
# }

# Flag steps that already failed several times.
warn contains msg if {
    some step in input.steps
    step.attempts >= 3
    msg := sprintf("step %s already failed %d times", [step.id, step.attempts])
}
`

var policyDecisionCount int

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the auto-approval policy",
	Long: `Carryover work can start a new shift without a person only when the
auto-approval policy allows it. The policy is written in Rego and evaluated
locally with Open Policy Agent.

The built-in policy refuses destructive, externally visible, new or never
approved steps. Extra .rego files in .shiftwing/policies/ using package
shiftwing.autoapprove add "deny" and "warn" rules.`,
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example local policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		path := filepath.Join(a.layout.PoliciesDir(), "local.rego")
		if _, err := os.Stat(path); err == nil {
			say(cmd, "%s already exists.", path)
			return nil
		}
		if err := os.WriteFile(path, []byte(examplePolicy), 0644); err != nil {
			return fmt.Errorf("write policy: %w", err)
		}
		say(cmd, "%s Wrote %s", ui.Icon("✓", ui.StyleSuccess), path)
		return nil
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		engine, err := a.policyEngine()
		if err != nil {
			return err
		}
		names := engine.PolicyNames()
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), names)
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile the policies and evaluate the open proposal",
	Long: `Compile every policy and report errors. When a proposal is waiting for
approval, evaluate it as if every step were up for auto-approval and show
the result. Nothing is approved and nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		engine, err := a.policyEngine()
		if err != nil {
			return err
		}
		if err := engine.Check(cmd.Context()); err != nil {
			return err
		}

		proposal, err := a.proposals.Load()
		if errors.Is(err, store.ErrPlanNotFound) {
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"compiled": true, "policies": engine.PolicyNames()})
			}
			say(cmd, "%s %d policies compile. No proposal to evaluate.", ui.Icon("✓", ui.StyleSuccess), len(engine.PolicyNames()))
			return nil
		}
		if err != nil {
			return err
		}

		var newTasks []models.Task
		for _, t := range proposal.Tasks {
			if !t.Carryover {
				newTasks = append(newTasks, t)
			}
		}
		decision, err := engine.EvaluateAutoApproval(cmd.Context(),
			policy.NewAutoApprovalInput(proposal.ShiftID, proposal.Tasks, proposal.Steps, newTasks))
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), decision)
		}
		printDecision(cmd, decision)
		return nil
	},
}

var policyLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent auto-approval decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		decisions, err := policy.NewAuditLog(a.layout.PolicyAuditFile()).ListDecisions(policyDecisionCount)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), decisions)
		}
		if len(decisions) == 0 {
			say(cmd, "No decisions recorded yet.")
			return nil
		}
		t := &ui.Table{Headers: []string{"When", "Shift", "Result", "Violations", "Warnings"}, MaxWidth: 40}
		for _, d := range decisions {
			t.Rows = append(t.Rows, []string{
				d.EvaluatedAt.Local().Format("2006-01-02 15:04"),
				d.ShiftID,
				d.Result,
				fmt.Sprint(len(d.Violations)),
				fmt.Sprint(len(d.Warnings)),
			})
		}
		fmt.Fprint(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyInitCmd, policyListCmd, policyCheckCmd, policyLogCmd)
	policyLogCmd.Flags().IntVarP(&policyDecisionCount, "lines", "n", 10, "number of decisions to show")
}

func printDecision(cmd *cobra.Command, d *policy.PolicyDecision) {
	if d.Result == policy.PolicyResultAllow {
		say(cmd, "%s Shift %s would be auto-approved.", ui.Icon("✓", ui.StyleSuccess), d.ShiftID)
	} else {
		say(cmd, "%s Shift %s needs a person:", ui.Icon("✗", ui.StyleError), d.ShiftID)
		for _, v := range d.Violations {
			say(cmd, "  • %s", v)
		}
	}
	for _, w := range d.Warnings {
		say(cmd, "  %s %s", ui.Icon("!", ui.StyleWarning), w)
	}
}
