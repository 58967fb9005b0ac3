package store

import (
	"errors"
	"fmt"
)

var (
	// ErrPlanNotFound is returned when no plan has been written yet.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanFrozen is returned when mutating a plan whose shift has been archived.
	ErrPlanFrozen = errors.New("plan is frozen")
	// ErrArchiveNotFound is returned when no archive matches an id or prefix.
	ErrArchiveNotFound = errors.New("archive not found")
)

// CorruptionError reports a durable record that failed its integrity check or
// could not be decoded. It is never repaired automatically: the record is left
// untouched for a human to inspect.
type CorruptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store corruption in %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("store corruption in %s: %s", e.Path, e.Reason)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// IsCorruption reports whether err is or wraps a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
