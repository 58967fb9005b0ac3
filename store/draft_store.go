package store

import (
	"slices"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// maxCarriedFrom bounds how many merged shift ids a draft remembers.
const maxCarriedFrom = 64

// FileDraftStore holds the carryover draft for the next planning round.
type FileDraftStore struct {
	rec *recordFile
}

// NewFileDraftStore opens the draft at path. Drafts are always JSON.
func NewFileDraftStore(path string) (*FileDraftStore, error) {
	rec, err := newRecordFile(path, formatJSON)
	if err != nil {
		return nil, err
	}
	return &FileDraftStore{rec: rec}, nil
}

func (s *FileDraftStore) loadLocked() (models.CarryoverDraft, error) {
	var d models.CarryoverDraft
	if _, err := s.rec.read(&d); err != nil {
		return models.CarryoverDraft{}, err
	}
	return d, nil
}

// Load returns the draft, which is empty if none was ever written.
func (s *FileDraftStore) Load() (models.CarryoverDraft, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return models.CarryoverDraft{}, err
	}
	defer unlock(lk)
	return s.loadLocked()
}

// Merge adds the unfinished work of shiftID to the draft. A shift already
// merged is ignored, and steps are deduplicated by id, so repeating a merge
// after a crash never duplicates work. It reports whether anything changed.
func (s *FileDraftStore) Merge(shiftID string, tasks []models.Task, steps []models.Step) (bool, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return false, err
	}
	defer unlock(lk)

	d, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	if slices.Contains(d.CarriedFrom, shiftID) {
		return false, nil
	}

	for _, st := range steps {
		if i := slices.IndexFunc(d.Steps, func(x models.Step) bool { return x.ID == st.ID }); i >= 0 {
			d.Steps[i] = st
		} else {
			d.Steps = append(d.Steps, st)
		}
	}
	for _, t := range tasks {
		i := slices.IndexFunc(d.Tasks, func(x models.Task) bool { return x.ID == t.ID })
		if i < 0 {
			d.Tasks = append(d.Tasks, t)
			continue
		}
		for _, sid := range t.StepIDs {
			if !slices.Contains(d.Tasks[i].StepIDs, sid) {
				d.Tasks[i].StepIDs = append(d.Tasks[i].StepIDs, sid)
			}
		}
	}

	d.CarriedFrom = append(d.CarriedFrom, shiftID)
	if len(d.CarriedFrom) > maxCarriedFrom {
		d.CarriedFrom = d.CarriedFrom[len(d.CarriedFrom)-maxCarriedFrom:]
	}
	d.UpdatedAt = time.Now().UTC()
	if err := s.rec.write(d); err != nil {
		return false, err
	}
	return true, nil
}

// Consume empties the draft once its work has been planned. The list of
// merged shifts is kept.
func (s *FileDraftStore) Consume(stepIDs []string) error {
	lk, err := s.rec.lock()
	if err != nil {
		return err
	}
	defer unlock(lk)

	d, err := s.loadLocked()
	if err != nil {
		return err
	}
	d.Steps = slices.DeleteFunc(d.Steps, func(st models.Step) bool { return slices.Contains(stepIDs, st.ID) })
	remaining := make(map[string]bool, len(d.Steps))
	for _, st := range d.Steps {
		remaining[st.ID] = true
	}
	tasks := d.Tasks[:0]
	for _, t := range d.Tasks {
		t.StepIDs = slices.DeleteFunc(t.StepIDs, func(id string) bool { return !remaining[id] })
		if len(t.StepIDs) > 0 {
			tasks = append(tasks, t)
		}
	}
	d.Tasks = tasks
	d.UpdatedAt = time.Now().UTC()
	return s.rec.write(d)
}
