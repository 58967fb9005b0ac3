package models

import "time"

// ContextEntry is one line of the append-only context log.
type ContextEntry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Text      string    `json:"text" yaml:"text"`
}

// HandoffReason says why a shift stopped executing.
type HandoffReason string

const (
	HandoffExhausted     HandoffReason = "exhausted"
	HandoffWindowExpired HandoffReason = "window_expired"
	HandoffCancelled     HandoffReason = "cancelled"
)

// HandoffStep summarizes one step for the next planner and the human reader.
type HandoffStep struct {
	StepID      string     `json:"stepId"`
	TaskID      string     `json:"taskId"`
	TaskTitle   string     `json:"taskTitle"`
	Tier        Tier       `json:"tier"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	BlockReason string     `json:"blockReason,omitempty"`
	BlockKind   BlockKind  `json:"blockKind,omitempty"`
	Attempts    int        `json:"attempts"`
	Reclaims    int        `json:"reclaims,omitempty"`
}

// Handoff is the document produced when a shift ends.
type Handoff struct {
	ShiftID     string         `json:"shiftId" validate:"required"`
	ShiftName   string         `json:"shiftName"`
	Date        string         `json:"date"`
	Reason      HandoffReason  `json:"reason" validate:"required,oneof=exhausted window_expired cancelled"`
	Completed   []HandoffStep  `json:"completed"`
	Blocked     []HandoffStep  `json:"blocked"`
	Skipped     []HandoffStep  `json:"skipped"`
	CarriedOver []HandoffStep  `json:"carriedOver"`
	Lessons     []ContextEntry `json:"lessons"`
	Counts      StepCounts     `json:"counts"`
	CyclesRun   int            `json:"cyclesRun"`
	ArchiveID   string         `json:"archiveId,omitempty"`
	ArchivedAt  time.Time      `json:"archivedAt"`
}

// CarryoverDraft holds unfinished work waiting for the next planning round.
type CarryoverDraft struct {
	// CarriedFrom lists every shift already merged so a shift is never carried twice.
	CarriedFrom []string  `json:"carriedFrom"`
	Tasks       []Task    `json:"tasks"`
	Steps       []Step    `json:"steps"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Empty reports whether the draft holds no work.
func (d *CarryoverDraft) Empty() bool {
	return len(d.Steps) == 0
}
