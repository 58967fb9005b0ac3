package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/josephgoksu/ShiftWing/models"
)

// FileContextLog is an append-only log of timestamped facts, one per line:
//
//	2026-03-02T09:15:04.123Z<TAB>fact text
type FileContextLog struct {
	path string
}

// PruneOptions controls which context entries are dropped.
type PruneOptions struct {
	// KeepLast keeps at most this many of the newest entries. Zero disables it.
	KeepLast int
	// OlderThan drops entries older than now minus this duration. Zero disables it.
	OlderThan time.Duration
	DryRun    bool
}

// NewFileContextLog opens the log at path, creating its directory.
func NewFileContextLog(path string) (*FileContextLog, error) {
	if path == "" {
		return nil, errors.New("context log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return &FileContextLog{path: path}, nil
}

func (l *FileContextLog) lock() (*flock.Flock, error) {
	lk := flock.New(l.path + lockSuffix)
	if err := lk.Lock(); err != nil {
		return nil, fmt.Errorf("could not lock %s: %w", l.path, err)
	}
	return lk, nil
}

func formatEntry(e models.ContextEntry) string {
	text := strings.Join(strings.Fields(e.Text), " ")
	return e.Timestamp.UTC().Format(time.RFC3339Nano) + "\t" + text + "\n"
}

// Append writes entries to the end of the log.
func (l *FileContextLog) Append(entries ...models.ContextEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		buf.WriteString(formatEntry(e))
	}
	if buf.Len() == 0 {
		return nil
	}

	lk, err := l.lock()
	if err != nil {
		return err
	}
	defer unlock(lk)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open context log: %w", err)
	}
	defer func() { _ = f.Close() }()
	end, err := l.dropTornTail(f)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(buf.Bytes(), end); err != nil {
		return fmt.Errorf("failed to append to context log: %w", err)
	}
	return f.Sync()
}

// dropTornTail truncates a final line left without its newline by an
// interrupted append, so new entries start on a line of their own. It
// returns the offset to append at.
func (l *FileContextLog) dropTornTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat context log: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("failed to read context log: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return 0, fmt.Errorf("failed to read context log: %w", err)
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	if err := f.Truncate(keep); err != nil {
		return 0, fmt.Errorf("failed to drop torn context log line: %w", err)
	}
	slog.Warn("dropped torn context log line", "path", l.path, "bytes", size-keep)
	return keep, nil
}

// readLocked parses the whole log. A torn final line from an interrupted
// append is ignored; a malformed line anywhere else is corruption.
func (l *FileContextLog) readLocked() ([]models.ContextEntry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read context log: %w", err)
	}

	var entries []models.ContextEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		ts, text, ok := strings.Cut(line, "\t")
		parsed, perr := time.Parse(time.RFC3339Nano, ts)
		if !ok || perr != nil {
			last := !bytes.HasSuffix(data, []byte("\n")) && lineNo == bytes.Count(data, []byte("\n"))+1
			if last {
				slog.Warn("ignoring torn context log line", "path", l.path, "line", lineNo)
				continue
			}
			return nil, &CorruptionError{Path: l.path, Reason: fmt.Sprintf("malformed context log line %d", lineNo), Err: perr}
		}
		entries = append(entries, models.ContextEntry{Timestamp: parsed, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan context log: %w", err)
	}
	return entries, nil
}

// All returns every entry in append order.
func (l *FileContextLog) All() ([]models.ContextEntry, error) {
	lk, err := l.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(lk)
	return l.readLocked()
}

// Tail returns the newest n entries in append order.
func (l *FileContextLog) Tail(n int) ([]models.ContextEntry, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Since returns entries written at or after t.
func (l *FileContextLog) Since(t time.Time) ([]models.ContextEntry, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}
	out := make([]models.ContextEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Prune rewrites the log without the entries opts selects for removal and
// returns how many were (or would be) removed.
func (l *FileContextLog) Prune(opts PruneOptions) (int, error) {
	lk, err := l.lock()
	if err != nil {
		return 0, err
	}
	defer unlock(lk)

	entries, err := l.readLocked()
	if err != nil {
		return 0, err
	}

	kept := entries
	if opts.OlderThan > 0 {
		cutoff := time.Now().UTC().Add(-opts.OlderThan)
		filtered := make([]models.ContextEntry, 0, len(kept))
		for _, e := range kept {
			if !e.Timestamp.Before(cutoff) {
				filtered = append(filtered, e)
			}
		}
		kept = filtered
	}
	if opts.KeepLast > 0 && len(kept) > opts.KeepLast {
		kept = kept[len(kept)-opts.KeepLast:]
	}

	removed := len(entries) - len(kept)
	if removed == 0 || opts.DryRun {
		return removed, nil
	}

	var buf bytes.Buffer
	for _, e := range kept {
		buf.WriteString(formatEntry(e))
	}
	if err := writeAtomic(l.path, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to rewrite context log: %w", err)
	}
	return removed, nil
}
