package planner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// SignalSource supplies the externally prioritized work for the next shift.
type SignalSource interface {
	Signals(ctx context.Context) ([]TaskProposal, error)
}

// signalFile is the layout of inbox/signals.yaml:
//
//	tasks:
//	  - title: Rotate staging certificates
//	    tier: P1
//	    subActions:
//	      - description: Renew the wildcard certificate
//	        estimatedMinutes: 10
type signalFile struct {
	Tasks []TaskProposal `yaml:"tasks"`
}

// FileSignalSource reads task proposals from a YAML file. A missing file
// means no signals.
type FileSignalSource struct {
	path string
}

// NewFileSignalSource creates a signal source over path.
func NewFileSignalSource(path string) *FileSignalSource {
	return &FileSignalSource{path: path}
}

// Signals returns the proposals in the file, in file order.
func (s *FileSignalSource) Signals(ctx context.Context) ([]TaskProposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signals: %w", err)
	}
	var f signalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse signals %s: %w", s.path, err)
	}
	return f.Tasks, nil
}

// Ack moves the signal file aside once shiftID has been planned from it, so
// the same work is not proposed again.
func (s *FileSignalSource) Ack(ctx context.Context, shiftID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(filepath.Dir(s.path), "processed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	err := os.Rename(s.path, filepath.Join(dir, "signals-"+shiftID+".yaml"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive signals: %w", err)
	}
	return nil
}

// SignalAcker is implemented by sources that must be told when their signals
// were planned.
type SignalAcker interface {
	Ack(ctx context.Context, shiftID string) error
}

// StaticSignals is a fixed SignalSource.
type StaticSignals []TaskProposal

// Signals returns the fixed proposals.
func (s StaticSignals) Signals(context.Context) ([]TaskProposal, error) {
	return s, nil
}
