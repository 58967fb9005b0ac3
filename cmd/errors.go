package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/notify"
	"github.com/josephgoksu/ShiftWing/internal/planner"
	"github.com/josephgoksu/ShiftWing/internal/shift"
	"github.com/josephgoksu/ShiftWing/internal/telemetry"
	"github.com/josephgoksu/ShiftWing/store"
	"github.com/spf13/viper"
)

// Exit codes.
const (
	exitError      = 1
	exitCorruption = 3
)

// HandleCommandError reports err and returns the process exit code. Store
// corruption raises a critical alert before anything else happens: the
// files are left untouched for a person to inspect.
func HandleCommandError(ctx context.Context, err error) int {
	var corrupt *store.CorruptionError
	if errors.As(err, &corrupt) {
		track(telemetry.EventCorruption, telemetry.Properties{"reason": corrupt.Reason})
		if current != nil {
			alert := notify.Alert{
				Level: notify.LevelCritical,
				Title: "State file corrupted",
				Body:  fmt.Sprintf("%s: %s\nNo cycle will run until the file is repaired or restored.", corrupt.Path, corrupt.Reason),
				At:    time.Now().UTC(),
			}
			if nerr := current.notifier.Notify(ctx, alert); nerr != nil {
				LogError("corruption alert not delivered", nerr)
			}
		}
		PrintError(fmt.Sprintf("Error: %s is corrupted (%s). Restore it from backup or the archive; nothing was changed.", corrupt.Path, corrupt.Reason), err)
		return exitCorruption
	}
	PrintError(userMessage(err), err)
	return exitError
}

// userMessage turns known errors into something a person can act on.
func userMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrPlanFrozen):
		return "Error: the plan belongs to a finished shift and can no longer change."
	case errors.Is(err, planner.ErrUnfinishedPlan):
		return "Error: the previous shift has not been handed off yet. Run 'shiftwing cycle' or 'shiftwing cancel'."
	case errors.Is(err, shift.ErrShiftMismatch):
		return "Error: shift state and plan disagree. Check 'shiftwing status' before retrying."
	default:
		return "Error: " + err.Error()
	}
}

// PrintError prints an error message without exiting, allowing for recovery.
func PrintError(userMsg string, technicalErr error) {
	if viper.GetBool("verbose") && technicalErr != nil {
		// In verbose mode, print the detailed, underlying technical error.
		fmt.Fprintf(os.Stderr, "Error: %v\n", technicalErr)
	} else {
		// By default, print the clean, user-friendly message.
		fmt.Fprintln(os.Stderr, userMsg)
	}
}

// LogError logs an error without printing to stderr if verbose mode is off.
func LogError(msg string, err error) {
	if viper.GetBool("verbose") {
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s: %v\n", msg, err)
		} else {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)
		}
	}
}
