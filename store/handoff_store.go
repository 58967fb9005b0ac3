package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/josephgoksu/ShiftWing/models"
)

const (
	latestHandoffJSON = "latest.json"
	latestHandoffMD   = "latest.md"
)

// FileHandoffStore keeps the most recent handoff where the next planner looks
// for it.
type FileHandoffStore struct {
	dir string
	rec *recordFile
}

// NewFileHandoffStore opens the handoff directory.
func NewFileHandoffStore(dir string) (*FileHandoffStore, error) {
	rec, err := newRecordFile(filepath.Join(dir, latestHandoffJSON), formatJSON)
	if err != nil {
		return nil, err
	}
	return &FileHandoffStore{dir: dir, rec: rec}, nil
}

// SaveLatest writes the markdown rendering first and the JSON record last, so
// a present latest.json always has its matching document.
func (s *FileHandoffStore) SaveLatest(h models.Handoff, markdown string) error {
	lk, err := s.rec.lock()
	if err != nil {
		return err
	}
	defer unlock(lk)

	if err := writeAtomic(filepath.Join(s.dir, latestHandoffMD), []byte(markdown)); err != nil {
		return fmt.Errorf("write handoff markdown: %w", err)
	}
	return s.rec.write(h)
}

// MarkdownPath is where the latest handoff document is written.
func (s *FileHandoffStore) MarkdownPath() string {
	return filepath.Join(s.dir, latestHandoffMD)
}

// LoadLatest returns the last handoff and whether one exists.
func (s *FileHandoffStore) LoadLatest() (models.Handoff, bool, error) {
	lk, err := s.rec.lock()
	if err != nil {
		return models.Handoff{}, false, err
	}
	defer unlock(lk)

	var h models.Handoff
	found, err := s.rec.read(&h)
	if err != nil || !found {
		return models.Handoff{}, false, err
	}
	return h, true, nil
}

// LatestMarkdown returns the rendered handoff document, or "" if none exists.
func (s *FileHandoffStore) LatestMarkdown() (string, error) {
	b, err := os.ReadFile(s.MarkdownPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(b), err
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, b)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
