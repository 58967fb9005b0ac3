package store

import (
	"fmt"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// FilePlanStore implements PlanStore on a single checksummed file.
type FilePlanStore struct {
	rec *recordFile
}

// NewFilePlanStore opens the plan file at path. format is json, yaml or toml.
func NewFilePlanStore(path, format string) (*FilePlanStore, error) {
	rec, err := newRecordFile(path, format)
	if err != nil {
		return nil, err
	}
	return &FilePlanStore{rec: rec}, nil
}

// Path returns the plan file location.
func (s *FilePlanStore) Path() string {
	return s.rec.path
}

// loadLocked reads and validates the plan. The caller must hold the lock.
func (s *FilePlanStore) loadLocked() (models.Plan, error) {
	var plan models.Plan
	found, err := s.rec.read(&plan)
	if err != nil {
		return models.Plan{}, err
	}
	if !found {
		return models.Plan{}, ErrPlanNotFound
	}
	if err := plan.Validate(); err != nil {
		return models.Plan{}, &CorruptionError{Path: s.rec.path, Reason: "plan fails validation", Err: err}
	}
	return plan, nil
}

// Load returns the current plan.
func (s *FilePlanStore) Load() (models.Plan, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return models.Plan{}, err
	}
	defer unlock(lk)
	return s.loadLocked()
}

// Save replaces the plan with a new one, typically for a new shift.
func (s *FilePlanStore) Save(plan models.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid plan: %w", err)
	}
	lk, err := s.rec.lock()
	if err != nil {
		return err
	}
	defer unlock(lk)
	return s.rec.write(plan)
}

// Update reads the plan, applies fn to it and writes the result back as one
// locked read-modify-write. Nothing is written if fn returns an error.
func (s *FilePlanStore) Update(fn func(p *models.Plan) error) (models.Plan, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return models.Plan{}, err
	}
	defer unlock(lk)

	plan, err := s.loadLocked()
	if err != nil {
		return models.Plan{}, err
	}
	if plan.Frozen {
		return models.Plan{}, fmt.Errorf("%w: shift %s", ErrPlanFrozen, plan.ShiftID)
	}
	if err := fn(&plan); err != nil {
		return models.Plan{}, err
	}
	plan.UpdatedAt = time.Now().UTC()
	if err := plan.Validate(); err != nil {
		return models.Plan{}, fmt.Errorf("refusing to save invalid plan: %w", err)
	}
	if err := s.rec.write(plan); err != nil {
		return models.Plan{}, err
	}
	return plan, nil
}

// Discard deletes the stored plan. Used for proposals that were answered or
// skipped.
func (s *FilePlanStore) Discard() error {
	lk, err := s.rec.lock()
	if err != nil {
		return err
	}
	defer unlock(lk)
	return s.rec.remove()
}
