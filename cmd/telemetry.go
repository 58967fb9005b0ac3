/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/telemetry"
	"github.com/josephgoksu/ShiftWing/internal/ui"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"
)

// configCmd is the parent config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and manage ShiftWing configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after defaults, the config file, SHIFTWING_*
environment variables and flags are merged. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Get()
		if err != nil {
			return err
		}
		shown := *cfg
		shown.Dir = stateDir(cfg)
		shown.Notify.Telegram.Token = mask(shown.Notify.Telegram.Token)
		shown.Telemetry.APIKey = mask(shown.Telemetry.APIKey)
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), shown)
		}
		out, err := yaml.Marshal(shown)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Manage telemetry settings",
	Long: `View and manage ShiftWing's anonymous telemetry settings.

Events carry counts and outcomes only. Task titles, step text and worker
output never leave the machine. Nothing is sent unless telemetry.enabled is
set, an API key is configured and consent was given here.`,
}

var telemetryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current telemetry status",
	RunE: func(cmd *cobra.Command, args []string) error {
		consent, err := telemetry.Load()
		if err != nil {
			return fmt.Errorf("read telemetry status: %w", err)
		}
		path, _ := telemetry.GetConfigPath()
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"enabled":      consent.IsEnabled(),
				"consentAsked": !consent.NeedsConsent(),
				"anonymousId":  consent.AnonymousID,
				"path":         path,
			})
		}
		switch {
		case consent.NeedsConsent():
			say(cmd, "Telemetry: not configured")
			say(cmd, "   To enable: shiftwing config telemetry enable")
		case consent.IsEnabled():
			say(cmd, "Telemetry: enabled")
			say(cmd, "   Anonymous ID: %s", consent.AnonymousID)
			say(cmd, "   To disable: shiftwing config telemetry disable")
		default:
			say(cmd, "Telemetry: disabled")
			say(cmd, "   To enable: shiftwing config telemetry enable")
		}
		if path != "" {
			say(cmd, "   Consent file: %s", path)
		}
		return nil
	},
}

var telemetryEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		consent, err := telemetry.Load()
		if err != nil {
			return fmt.Errorf("enable telemetry: %w", err)
		}
		consent.Enable()
		if err := consent.Save(); err != nil {
			return fmt.Errorf("enable telemetry: %w", err)
		}
		say(cmd, "%s Telemetry enabled.", ui.Icon("✓", ui.StyleSuccess))
		return nil
	},
}

var telemetryDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		consent, err := telemetry.Load()
		if err != nil {
			return fmt.Errorf("disable telemetry: %w", err)
		}
		consent.Disable()
		if err := consent.Save(); err != nil {
			return fmt.Errorf("disable telemetry: %w", err)
		}
		say(cmd, "%s Telemetry disabled.", ui.Icon("✓", ui.StyleSuccess))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, telemetryCmd)
	telemetryCmd.AddCommand(telemetryStatusCmd, telemetryEnableCmd, telemetryDisableCmd)
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
