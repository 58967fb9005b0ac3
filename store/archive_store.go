package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/josephgoksu/ShiftWing/models"
)

const (
	archivePlanFile     = "plan.json"
	archiveHandoffFile  = "handoff.json"
	archiveMarkdownFile = "handoff.md"
	archiveEntryFile    = "entry.json"
)

// PurgeOptions controls retention behavior.
type PurgeOptions struct {
	DryRun    bool
	OlderThan *time.Duration // e.g., 90*24h
	KeepLast  int            // always keep this many newest archives
}

type PurgeResult struct {
	DryRun           bool
	ShiftsConsidered int
	ShiftsDeleted    int
	BytesFreed       int64
}

// ArchiveRequest is everything written into one shift archive.
type ArchiveRequest struct {
	Plan     models.Plan
	Handoff  models.Handoff
	Markdown string
}

// FileArchiveStore stores each finished shift in its own dated directory and
// keeps an index.json for listing.
type FileArchiveStore struct {
	baseDir   string
	indexPath string
}

// NewFileArchiveStore opens the archive rooted at baseDir.
func NewFileArchiveStore(baseDir string) (*FileArchiveStore, error) {
	if baseDir == "" {
		return nil, errors.New("archive dir cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir %s: %w", baseDir, err)
	}
	return &FileArchiveStore{baseDir: baseDir, indexPath: filepath.Join(baseDir, "index.json")}, nil
}

// BaseDir returns the archive root.
func (s *FileArchiveStore) BaseDir() string {
	return s.baseDir
}

func (s *FileArchiveStore) lock() (*flock.Flock, error) {
	lk := flock.New(s.indexPath + lockSuffix)
	if err := lk.Lock(); err != nil {
		return nil, fmt.Errorf("lock index: %w", err)
	}
	return lk, nil
}

func (s *FileArchiveStore) readIndex() (models.ArchiveIndex, error) {
	var idx models.ArchiveIndex
	if err := readJSON(s.indexPath, &idx); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			idx.Archives = []models.ArchiveIndexItem{}
			return idx, nil
		}
		return models.ArchiveIndex{}, &CorruptionError{Path: s.indexPath, Reason: "cannot parse archive index", Err: err}
	}
	return idx, nil
}

func (s *FileArchiveStore) writeIndex(idx models.ArchiveIndex) error {
	sort.SliceStable(idx.Archives, func(i, j int) bool { return idx.Archives[i].ArchivedAt.After(idx.Archives[j].ArchivedAt) })
	idx.Statistics.TotalArchives = len(idx.Archives)
	if err := writeJSON(s.indexPath, idx); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func slugify(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	re := regexp.MustCompile(`[^a-z0-9]+`)
	s := re.ReplaceAllString(lower, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "shift"
	}
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	return s
}

// entryDir is deterministic for a shift so a repeated archive lands in the
// same place.
func (s *FileArchiveStore) entryDir(date, name, id string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		t = time.Now().UTC()
		date = t.Format("2006-01-02")
	}
	return filepath.Join(t.Format("2006"), t.Format("01"), fmt.Sprintf("%s_%s-%s", date, slugify(name), id))
}

// Archive writes the shift snapshot. A shift already in the index is left as
// is and its existing entry returned with created=false.
func (s *FileArchiveStore) Archive(req ArchiveRequest) (models.ArchiveEntry, bool, error) {
	lk, err := s.lock()
	if err != nil {
		return models.ArchiveEntry{}, false, err
	}
	defer unlock(lk)

	idx, err := s.readIndex()
	if err != nil {
		return models.ArchiveEntry{}, false, err
	}
	for _, it := range idx.Archives {
		if it.ShiftID == req.Plan.ShiftID {
			var existing models.ArchiveEntry
			if err := readJSON(filepath.Join(s.baseDir, it.Dir, archiveEntryFile), &existing); err != nil {
				return models.ArchiveEntry{}, false, fmt.Errorf("read archive entry %s: %w", it.ID, err)
			}
			return existing, false, nil
		}
	}

	now := time.Now().UTC()
	entry := models.ArchiveEntry{
		ID:         req.Plan.ShiftID,
		ShiftID:    req.Plan.ShiftID,
		ShiftName:  req.Plan.ShiftName,
		Date:       req.Plan.Date,
		Reason:     req.Handoff.Reason,
		ArchivedAt: now,
		Counts:     models.CountSteps(&req.Plan),
	}
	entry.Dir = s.entryDir(req.Plan.Date, req.Plan.ShiftName, entry.ID)
	abs := filepath.Join(s.baseDir, entry.Dir)

	req.Handoff.ArchiveID = entry.ID
	if err := writeJSON(filepath.Join(abs, archivePlanFile), req.Plan); err != nil {
		return models.ArchiveEntry{}, false, fmt.Errorf("write archived plan: %w", err)
	}
	if err := writeJSON(filepath.Join(abs, archiveHandoffFile), req.Handoff); err != nil {
		return models.ArchiveEntry{}, false, fmt.Errorf("write archived handoff: %w", err)
	}
	if err := writeAtomic(filepath.Join(abs, archiveMarkdownFile), []byte(req.Markdown)); err != nil {
		return models.ArchiveEntry{}, false, fmt.Errorf("write archived handoff markdown: %w", err)
	}
	if err := writeJSON(filepath.Join(abs, archiveEntryFile), entry); err != nil {
		return models.ArchiveEntry{}, false, fmt.Errorf("write archive entry: %w", err)
	}

	idx.Archives = append(idx.Archives, models.ArchiveIndexItem{
		ID:         entry.ID,
		ShiftID:    entry.ShiftID,
		Date:       entry.Date,
		Title:      entry.ShiftName,
		Dir:        entry.Dir,
		Reason:     entry.Reason,
		Summary:    fmt.Sprintf("%d done, %d blocked, %d skipped of %d", entry.Counts.Done, entry.Counts.Blocked, entry.Counts.Skipped, entry.Counts.Total),
		ArchivedAt: now,
	})
	idx.Statistics.TotalStepsArchived += entry.Counts.Total
	if err := s.writeIndex(idx); err != nil {
		return models.ArchiveEntry{}, false, err
	}
	return entry, true, nil
}

// Has reports whether the shift has been archived.
func (s *FileArchiveStore) Has(shiftID string) (bool, error) {
	items, err := s.List()
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.ShiftID == shiftID {
			return true, nil
		}
	}
	return false, nil
}

// List returns index items, newest first.
func (s *FileArchiveStore) List() ([]models.ArchiveIndexItem, error) {
	lk, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(lk)
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	return idx.Archives, nil
}

// Get resolves an archive by id or id prefix and returns its entry and handoff.
func (s *FileArchiveStore) Get(id string) (models.ArchiveEntry, models.Handoff, error) {
	items, err := s.List()
	if err != nil {
		return models.ArchiveEntry{}, models.Handoff{}, err
	}
	for _, it := range items {
		if it.ID == id || (id != "" && strings.HasPrefix(it.ID, id)) {
			abs := filepath.Join(s.baseDir, it.Dir)
			var e models.ArchiveEntry
			if err := readJSON(filepath.Join(abs, archiveEntryFile), &e); err != nil {
				return models.ArchiveEntry{}, models.Handoff{}, fmt.Errorf("read archive entry %s: %w", it.ID, err)
			}
			var h models.Handoff
			if err := readJSON(filepath.Join(abs, archiveHandoffFile), &h); err != nil {
				return models.ArchiveEntry{}, models.Handoff{}, fmt.Errorf("read archived handoff %s: %w", it.ID, err)
			}
			return e, h, nil
		}
	}
	return models.ArchiveEntry{}, models.Handoff{}, fmt.Errorf("%w: %s", ErrArchiveNotFound, id)
}

// Plan returns the frozen plan stored in an archive.
func (s *FileArchiveStore) Plan(id string) (models.Plan, error) {
	e, _, err := s.Get(id)
	if err != nil {
		return models.Plan{}, err
	}
	var p models.Plan
	if err := readJSON(filepath.Join(s.baseDir, e.Dir, archivePlanFile), &p); err != nil {
		return models.Plan{}, fmt.Errorf("read archived plan %s: %w", e.ID, err)
	}
	return p, nil
}

// Purge removes old archives by age while always keeping the newest KeepLast.
func (s *FileArchiveStore) Purge(opts PurgeOptions) (PurgeResult, error) {
	res := PurgeResult{DryRun: opts.DryRun}
	lk, err := s.lock()
	if err != nil {
		return res, err
	}
	defer unlock(lk)

	idx, err := s.readIndex()
	if err != nil {
		return res, err
	}
	kept := make([]models.ArchiveIndexItem, 0, len(idx.Archives))
	for i, it := range idx.Archives {
		res.ShiftsConsidered++
		remove := false
		if opts.OlderThan != nil && i >= opts.KeepLast {
			cutoff := time.Now().UTC().Add(-*opts.OlderThan)
			remove = it.ArchivedAt.Before(cutoff)
		}
		if !remove {
			kept = append(kept, it)
			continue
		}
		abs := filepath.Join(s.baseDir, it.Dir)
		res.BytesFreed += dirSize(abs)
		res.ShiftsDeleted++
		if !opts.DryRun {
			if err := os.RemoveAll(abs); err != nil {
				return res, fmt.Errorf("remove archive %s: %w", it.ID, err)
			}
		}
	}
	if !opts.DryRun {
		idx.Archives = kept
		if err := s.writeIndex(idx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
