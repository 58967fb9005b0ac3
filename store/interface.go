package store

import (
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// PlanStore persists the plan of the current shift.
type PlanStore interface {
	// Load returns the current plan, ErrPlanNotFound if none exists, or a
	// *CorruptionError if the stored plan fails its integrity check.
	Load() (models.Plan, error)

	// Save replaces the plan wholesale. Used by the planner for a new shift.
	Save(plan models.Plan) error

	// Update performs a locked read-modify-write of the plan. fn receives the
	// freshly loaded plan; if it returns an error nothing is written.
	// Frozen plans cannot be updated.
	Update(fn func(p *models.Plan) error) (models.Plan, error)

	// Discard deletes the stored plan, if any.
	Discard() error
}

// ShiftStore persists the single shift state record.
type ShiftStore interface {
	// Load returns the shift state, or an idle state if none exists.
	Load() (models.ShiftState, error)

	// Update performs a locked read-modify-write of the whole record.
	Update(fn func(st *models.ShiftState) error) (models.ShiftState, error)
}

// ContextLog is the append-only log of facts carried between invocations.
type ContextLog interface {
	Append(entries ...models.ContextEntry) error
	All() ([]models.ContextEntry, error)
	Tail(n int) ([]models.ContextEntry, error)
	Since(t time.Time) ([]models.ContextEntry, error)
	Prune(opts PruneOptions) (int, error)
}

// DraftStore holds carryover work between shifts.
type DraftStore interface {
	Load() (models.CarryoverDraft, error)
	// Merge adds a shift's unfinished work exactly once per shift id.
	Merge(shiftID string, tasks []models.Task, steps []models.Step) (bool, error)
	// Consume removes the given steps once they have been planned.
	Consume(stepIDs []string) error
}

// HandoffStore holds the latest handoff document.
type HandoffStore interface {
	SaveLatest(h models.Handoff, markdown string) error
	LoadLatest() (models.Handoff, bool, error)
}

// ArchiveStore keeps immutable snapshots of finished shifts.
type ArchiveStore interface {
	// Archive is idempotent per shift id.
	Archive(req ArchiveRequest) (models.ArchiveEntry, bool, error)
	Has(shiftID string) (bool, error)
	List() ([]models.ArchiveIndexItem, error)
	Get(id string) (models.ArchiveEntry, models.Handoff, error)
	Plan(id string) (models.Plan, error)
	Purge(opts PurgeOptions) (PurgeResult, error)
}

var (
	_ PlanStore    = (*FilePlanStore)(nil)
	_ ShiftStore   = (*FileShiftStore)(nil)
	_ ContextLog   = (*FileContextLog)(nil)
	_ DraftStore   = (*FileDraftStore)(nil)
	_ HandoffStore = (*FileHandoffStore)(nil)
	_ ArchiveStore = (*FileArchiveStore)(nil)
)
