/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/spf13/cobra"
)

var (
	initShiftName string
	initWorker    string
	initFormat    string
	initWindow    time.Duration
)

const stateGitignore = `# ShiftWing local files
*.lock
*.tmp
crash_logs/
alerts/
inbox/processed/
`

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ShiftWing in the current directory",
	Long: `Create the .shiftwing state directory and a starter configuration.

This creates:
  • .shiftwing/.shiftwing.yaml - tunables, worker command, notifications
  • .shiftwing/inbox/          - drop signals.yaml and approval.yaml here
  • .shiftwing/policies/       - extra auto-approval Rego policies

Running init again keeps existing settings and only updates the values
passed as flags.`,
	Example: `  shiftwing init --worker ./scripts/run-step.sh
  shiftwing init --shift-name night --window 6h --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Get()
		if err != nil {
			return err
		}
		format := initFormat
		if format == "" {
			format = cfg.Format
		}
		layout := config.NewLayout(stateDir(cfg), format)
		if err := layout.Ensure(); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}

		path := projectConfigPath(layout.Root)
		created, err := config.WriteProjectConfig(path, config.ProjectSettings{
			ShiftName:      initShiftName,
			Format:         initFormat,
			WindowDuration: initWindow,
			WorkerCommand:  initWorker,
		})
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		ignore := filepath.Join(layout.Root, ".gitignore")
		if _, err := os.Stat(ignore); os.IsNotExist(err) {
			if err := os.WriteFile(ignore, []byte(stateGitignore), 0644); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not create .gitignore: %v\n", err)
			}
		}

		if isJSON() {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"dir":     layout.Root,
				"config":  path,
				"created": created,
			})
		}
		if created {
			say(cmd, "%s ShiftWing initialized in %s", ui.Icon("✓", ui.StyleSuccess), layout.Root)
		} else {
			say(cmd, "%s Updated %s", ui.Icon("✓", ui.StyleSuccess), path)
		}
		say(cmd, "")
		say(cmd, "Next steps:")
		if initWorker == "" && cfg.Worker.Command == "" {
			say(cmd, "  1. Set worker.command in %s", path)
		} else {
			say(cmd, "  1. Check the worker settings in %s", path)
		}
		say(cmd, "  2. Describe work in %s", layout.SignalsFile())
		say(cmd, "  3. Run 'shiftwing plan' and answer with 'shiftwing approve'")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initShiftName, "shift-name", "", "name used for new shifts")
	initCmd.Flags().StringVar(&initWorker, "worker", "", "command that performs one step")
	initCmd.Flags().StringVar(&initFormat, "format", "", "plan and shift file format: json, yaml or toml")
	initCmd.Flags().DurationVar(&initWindow, "window", 0, "length of a shift's execution window")
}
