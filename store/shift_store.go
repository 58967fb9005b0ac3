package store

import (
	"fmt"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// FileShiftStore implements ShiftStore. The record is small and always read
// and written whole.
type FileShiftStore struct {
	rec *recordFile
}

// NewFileShiftStore opens the shift state file at path.
func NewFileShiftStore(path, format string) (*FileShiftStore, error) {
	rec, err := newRecordFile(path, format)
	if err != nil {
		return nil, err
	}
	return &FileShiftStore{rec: rec}, nil
}

func (s *FileShiftStore) loadLocked() (models.ShiftState, error) {
	var state models.ShiftState
	found, err := s.rec.read(&state)
	if err != nil {
		return models.ShiftState{}, err
	}
	if !found {
		return models.IdleShift(), nil
	}
	if err := models.ValidateStruct(state); err != nil {
		return models.ShiftState{}, &CorruptionError{Path: s.rec.path, Reason: "shift state fails validation", Err: err}
	}
	return state, nil
}

// Load returns the shift state, or an idle state if none was ever written.
func (s *FileShiftStore) Load() (models.ShiftState, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return models.ShiftState{}, err
	}
	defer unlock(lk)
	return s.loadLocked()
}

// Update applies fn to a copy of the full record and writes it back whole.
func (s *FileShiftStore) Update(fn func(st *models.ShiftState) error) (models.ShiftState, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return models.ShiftState{}, err
	}
	defer unlock(lk)

	state, err := s.loadLocked()
	if err != nil {
		return models.ShiftState{}, err
	}
	if err := fn(&state); err != nil {
		return models.ShiftState{}, err
	}
	state.UpdatedAt = time.Now().UTC()
	if err := models.ValidateStruct(state); err != nil {
		return models.ShiftState{}, fmt.Errorf("refusing to save invalid shift state: %w", err)
	}
	if err := s.rec.write(state); err != nil {
		return models.ShiftState{}, err
	}
	return state, nil
}
