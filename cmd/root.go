/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/logger"
	"github.com/josephgoksu/ShiftWing/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// version is the application version.
	version = "0.1.0"
)

// invocation is what the current process is doing, kept for telemetry and
// crash reports.
var invocation struct {
	command   string
	started   time.Time
	telemetry telemetry.Client
	closeLog  func() error
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shiftwing",
	Short: "ShiftWing runs approved work in short, crash-tolerant cycles.",
	Long: `ShiftWing plans a shift of work, waits for a person to approve it, then
executes it one small step per invocation. Every invocation starts from the
files under .shiftwing/, so a crash or a killed process loses nothing: the
next cycle picks up where the last one stopped.

A typical setup runs 'shiftwing plan' and 'shiftwing cycle' from cron, or
'shiftwing run' as a long-lived process.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupInvocation,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	code := 0
	if err != nil {
		code = HandleCommandError(context.Background(), err)
	}
	finishInvocation(err)
	if code != 0 {
		os.Exit(code)
	}
}

// GetVersion returns the application version.
func GetVersion() string {
	return version
}

func init() {
	cobra.OnInitialize(InitConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .shiftwing/.shiftwing.yaml, ./.shiftwing.yaml or $HOME/.shiftwing.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("dir", "", "state directory (default .shiftwing)")
	rootCmd.PersistentFlags().Bool("json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "print only errors")
	bindFlags()
}

// bindFlags binds persistent flags to Viper.
func bindFlags() {
	for _, name := range []string{"config", "verbose", "dir", "json", "quiet"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// setupInvocation installs logging, crash reporting and telemetry before any
// command runs.
func setupInvocation(cmd *cobra.Command, args []string) error {
	invocation.command = cmd.CommandPath()
	invocation.started = time.Now()
	logger.SetVersion(version)
	logger.SetCommand(invocation.command)

	cfg, err := config.Get()
	if err != nil {
		return err
	}
	logger.SetCrashDir(config.NewLayout(stateDir(cfg), cfg.Format).CrashDir())

	closeLog, err := logger.Setup(logger.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Verbose: isVerbose(),
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	invocation.closeLog = closeLog

	client, err := telemetry.New(cfg.Telemetry, version)
	if err != nil {
		slog.Debug("telemetry disabled", "error", err)
	}
	invocation.telemetry = client
	return nil
}

func finishInvocation(err error) {
	if invocation.telemetry != nil {
		invocation.telemetry.Track(telemetry.EventCommandExecuted,
			telemetry.CommandProps(invocation.command, time.Since(invocation.started), err))
		_ = invocation.telemetry.Close()
	}
	if invocation.closeLog != nil {
		_ = invocation.closeLog()
	}
}

// track records a telemetry event when telemetry is on.
func track(event string, props telemetry.Properties) {
	if invocation.telemetry != nil {
		invocation.telemetry.Track(event, props)
	}
}
