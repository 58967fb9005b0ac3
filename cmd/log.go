/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/josephgoksu/ShiftWing/models"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/spf13/cobra"
)

var (
	logTailCount   int
	logKeepLast    int
	logOlderThan   time.Duration
	logPruneDryRun bool
)

// logCmd represents the log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Read and write the context log",
	Long: `The context log is the memory that survives between cycles and shifts:
one timestamped line per lesson, note or discovery. Workers receive the
recent entries with every step, and lessons they print with a LESSON:
prefix land here.`,
}

var logAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Append an entry to the context log",
	Args:  cobra.MinimumNArgs(1),
	Example: `  shiftwing log add "staging vault moved to vault-2.internal"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return errors.New("entry text is empty")
		}
		entry := models.ContextEntry{Timestamp: time.Now().UTC(), Text: text}
		if err := a.log.Append(entry); err != nil {
			return err
		}
		say(cmd, "%s Added to the context log.", ui.Icon("✓", ui.StyleSuccess))
		return nil
	},
}

var logTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the newest context log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		entries, err := a.log.Tail(logTailCount)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderContext(entries))
		return nil
	},
}

var logPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop old context log entries",
	Example: `  shiftwing log prune --keep 500
  shiftwing log prune --older-than 720h --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logKeepLast <= 0 && logOlderThan <= 0 {
			return errors.New("pass --keep, --older-than or both")
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		removed, err := a.log.Prune(store.PruneOptions{KeepLast: logKeepLast, OlderThan: logOlderThan, DryRun: logPruneDryRun})
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), map[string]any{"removed": removed, "dryRun": logPruneDryRun})
		}
		if logPruneDryRun {
			say(cmd, "Would remove %d entries.", removed)
		} else {
			say(cmd, "Removed %d entries.", removed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logAddCmd, logTailCmd, logPruneCmd)
	logTailCmd.Flags().IntVarP(&logTailCount, "lines", "n", 20, "number of entries to show")
	logPruneCmd.Flags().IntVar(&logKeepLast, "keep", 0, "keep at most this many newest entries")
	logPruneCmd.Flags().DurationVar(&logOlderThan, "older-than", 0, "drop entries older than this (e.g. 720h)")
	logPruneCmd.Flags().BoolVar(&logPruneDryRun, "dry-run", false, "only report what would be removed")
}
