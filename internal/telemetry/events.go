package telemetry

import "time"

// Event names.
const (
	EventCommandExecuted = "command_executed"
	EventCycleRun        = "cycle_run"
	EventShiftStarted    = "shift_started"
	EventHandoff         = "shift_handed_off"
	EventCorruption      = "store_corruption"
)

// CommandProps describes one CLI invocation.
func CommandProps(command string, d time.Duration, err error) Properties {
	return Properties{
		"command":     command,
		"duration_ms": d.Milliseconds(),
		"success":     err == nil,
	}
}

// CycleProps describes one executor cycle. Only the outcome and counts are sent.
func CycleProps(outcome string, steps, reclaimed, skipped int, d time.Duration) Properties {
	return Properties{
		"outcome":     outcome,
		"steps":       steps,
		"reclaimed":   reclaimed,
		"skipped":     skipped,
		"duration_ms": d.Milliseconds(),
	}
}

// HandoffProps describes a finished shift.
func HandoffProps(reason string, done, blocked, skipped, carried, cycles int) Properties {
	return Properties{
		"reason":  reason,
		"done":    done,
		"blocked": blocked,
		"skipped": skipped,
		"carried": carried,
		"cycles":  cycles,
	}
}
