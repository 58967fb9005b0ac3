package models

import "time"

// ArchiveEntry is the immutable snapshot of a finished shift.
type ArchiveEntry struct {
	ID         string        `json:"id"`
	ShiftID    string        `json:"shiftId"`
	ShiftName  string        `json:"shiftName"`
	Date       string        `json:"date"`
	Reason     HandoffReason `json:"reason"`
	ArchivedAt time.Time     `json:"archivedAt"`
	// Dir is the archive directory relative to the archive root.
	Dir    string     `json:"dir"`
	Counts StepCounts `json:"counts"`
}

// ArchiveIndex summarizes archive entries for fast listing.
type ArchiveIndex struct {
	Archives   []ArchiveIndexItem `json:"archives"`
	Statistics struct {
		TotalArchives      int `json:"totalArchives"`
		TotalStepsArchived int `json:"totalStepsArchived"`
	} `json:"statistics"`
}

// ArchiveIndexItem is a compact record of an archive entry stored on disk.
type ArchiveIndexItem struct {
	ID         string        `json:"id"`
	ShiftID    string        `json:"shiftId"`
	Date       string        `json:"date"`
	Title      string        `json:"title"`
	Dir        string        `json:"dir"`
	Reason     HandoffReason `json:"reason"`
	Summary    string        `json:"summary,omitempty"`
	ArchivedAt time.Time     `json:"archivedAt"`
}
