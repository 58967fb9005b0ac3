/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// handoffCmd represents the handoff command
var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Show the latest handoff document",
	Long: `Print the handoff written when the last shift ended: what was done,
what is blocked and why, what was skipped for review, what was carried over,
and the lessons recorded during the shift.

Older handoffs are kept with their shift under 'shiftwing archive'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		if isJSON() {
			h, found, err := a.handoffs.LoadLatest()
			if err != nil {
				return err
			}
			if !found {
				return printJSON(cmd.OutOrStdout(), nil)
			}
			return printJSON(cmd.OutOrStdout(), h)
		}

		md, err := a.handoffs.LatestMarkdown()
		if err != nil {
			return err
		}
		if md == "" {
			say(cmd, "No shift has been handed off yet.")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handoffCmd)
}
