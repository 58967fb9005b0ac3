/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/handoff"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/spf13/cobra"
)

var (
	archiveShowSteps   bool
	archiveKeepLast    int
	archiveOlderThan   time.Duration
	archivePurgeDryRun bool
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Browse and prune archived shifts",
	Long: `Every finished shift is archived with its frozen plan and handoff under
.shiftwing/archive/YYYY/MM/. Archives are written once and never change.`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived shifts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		items, err := a.archives.List()
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), items)
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderArchives(items))
		return nil
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the handoff of an archived shift",
	Long:  "Show the handoff of an archived shift. The id may be shortened to a unique prefix.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		entry, h, err := a.archives.Get(args[0])
		if errors.Is(err, store.ErrArchiveNotFound) {
			return fmt.Errorf("no archived shift %q; see 'shiftwing archive list'", args[0])
		}
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), map[string]any{"entry": entry, "handoff": h})
		}
		fmt.Fprint(cmd.OutOrStdout(), handoff.RenderMarkdown(h))
		if archiveShowSteps {
			plan, err := a.archives.Plan(entry.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s", ui.RenderSteps(&plan))
		}
		return nil
	},
}

var archivePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old archives",
	Example: `  shiftwing archive purge --older-than 2160h --keep 30
  shiftwing archive purge --older-than 2160h --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if archiveOlderThan <= 0 {
			return errors.New("--older-than is required")
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		res, err := a.archives.Purge(store.PurgeOptions{
			DryRun:    archivePurgeDryRun,
			KeepLast:  archiveKeepLast,
			OlderThan: &archiveOlderThan,
		})
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), res)
		}
		verb := "Deleted"
		if res.DryRun {
			verb = "Would delete"
		}
		say(cmd, "%s %d of %d archived shifts (%.1f KB).", verb, res.ShiftsDeleted, res.ShiftsConsidered, float64(res.BytesFreed)/1024)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveShowCmd, archivePurgeCmd)
	archiveShowCmd.Flags().BoolVar(&archiveShowSteps, "steps", false, "also list every step of the frozen plan")
	archivePurgeCmd.Flags().IntVar(&archiveKeepLast, "keep", 0, "never delete the newest this many archives")
	archivePurgeCmd.Flags().DurationVar(&archiveOlderThan, "older-than", 0, "delete archives older than this (e.g. 2160h)")
	archivePurgeCmd.Flags().BoolVar(&archivePurgeDryRun, "dry-run", false, "only report what would be deleted")
}
