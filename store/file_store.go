package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	yaml "gopkg.in/yaml.v3"
)

const (
	formatJSON     = "json"
	formatYAML     = "yaml"
	formatTOML     = "toml"
	checksumSuffix = ".checksum"
	tmpSuffix      = ".tmp"
	lockSuffix     = ".lock"
)

// SupportedFormats lists the encodings a record file may use.
var SupportedFormats = []string{formatJSON, formatYAML, formatTOML}

// recordFile is a single whole-record file guarded by a sidecar lock file and
// a sha256 checksum file. Every write goes to a temp file that is renamed into
// place, so readers only ever see a complete record.
type recordFile struct {
	path   string
	format string
}

func newRecordFile(path, format string) (*recordFile, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = formatJSON
	}
	switch format {
	case formatJSON, formatYAML, formatTOML:
	default:
		return nil, fmt.Errorf("unsupported format: %s. Supported formats are json, yaml, toml", format)
	}
	if path == "" {
		return nil, errors.New("record path cannot be empty")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &recordFile{path: path, format: format}, nil
}

// lock takes the exclusive lock for the record. A fresh flock handle is used
// per call so separate goroutines in one process also exclude each other.
func (r *recordFile) lock() (*flock.Flock, error) {
	lk := flock.New(r.path + lockSuffix)
	if err := lk.Lock(); err != nil {
		return nil, fmt.Errorf("could not lock %s: %w", r.path, err)
	}
	return lk, nil
}

func unlock(lk *flock.Flock) {
	if err := lk.Unlock(); err != nil {
		slog.Warn("failed to release store lock", "path", lk.Path(), "error", err)
	}
}

// calculateChecksum computes the SHA256 checksum of the given data.
func calculateChecksum(data []byte) string {
	hasher := sha256.New()
	hasher.Write(data) // Write never returns an error
	return hex.EncodeToString(hasher.Sum(nil))
}

// read loads and verifies the record into v. It reports false when the record
// has never been written. The caller must hold the lock.
func (r *recordFile) read(v any) (bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	if err := r.verify(data); err != nil {
		return false, err
	}
	if err := r.decode(data, v); err != nil {
		return false, &CorruptionError{Path: r.path, Reason: "cannot decode " + r.format, Err: err}
	}
	return true, nil
}

func (r *recordFile) verify(data []byte) error {
	checksumFilePath := r.path + checksumSuffix
	actual := calculateChecksum(data)

	expected, err := os.ReadFile(checksumFilePath)
	if err == nil && strings.TrimSpace(string(expected)) == actual {
		return nil
	}

	// A crash between the data rename and the checksum rename leaves the
	// matching checksum in its temp file. Finish that rename.
	pending, pendingErr := os.ReadFile(checksumFilePath + tmpSuffix)
	if pendingErr == nil && strings.TrimSpace(string(pending)) == actual {
		if renameErr := os.Rename(checksumFilePath+tmpSuffix, checksumFilePath); renameErr != nil {
			return fmt.Errorf("failed to complete interrupted checksum update for %s: %w", r.path, renameErr)
		}
		slog.Warn("completed interrupted checksum update", "path", r.path)
		return nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &CorruptionError{Path: r.path, Reason: "checksum file missing"}
	case err != nil:
		return fmt.Errorf("failed to read checksum file %s: %w", checksumFilePath, err)
	default:
		return &CorruptionError{
			Path:   r.path,
			Reason: fmt.Sprintf("checksum mismatch - expected %s, got %s - file is corrupt or tampered", strings.TrimSpace(string(expected)), actual),
		}
	}
}

func (r *recordFile) decode(data []byte, v any) error {
	switch r.format {
	case formatJSON:
		return json.Unmarshal(data, v)
	case formatYAML:
		return yaml.Unmarshal(data, v)
	case formatTOML:
		return toml.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported data format for loading: %s", r.format)
	}
}

func (r *recordFile) encode(v any) ([]byte, error) {
	switch r.format {
	case formatJSON:
		return json.MarshalIndent(v, "", "  ")
	case formatYAML:
		return yaml.Marshal(v)
	case formatTOML:
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported data format for saving: %s", r.format)
	}
}

// write encodes v and replaces the record, then its checksum. The caller must
// hold the lock.
func (r *recordFile) write(v any) error {
	data, err := r.encode(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record to %s: %w", r.format, err)
	}

	tempFilePath := r.path + tmpSuffix
	checksumFilePath := r.path + checksumSuffix
	tempChecksumFilePath := checksumFilePath + tmpSuffix

	if err := writeFileSync(tempFilePath, data); err != nil {
		return fmt.Errorf("failed to write temporary data file %s: %w", tempFilePath, err)
	}
	if err := writeFileSync(tempChecksumFilePath, []byte(calculateChecksum(data))); err != nil {
		_ = os.Remove(tempFilePath)
		return fmt.Errorf("failed to write temporary checksum file %s: %w", tempChecksumFilePath, err)
	}
	if err := os.Rename(tempFilePath, r.path); err != nil {
		_ = os.Remove(tempFilePath)
		_ = os.Remove(tempChecksumFilePath)
		return fmt.Errorf("failed to rename temporary data file %s to %s: %w", tempFilePath, r.path, err)
	}
	if err := os.Rename(tempChecksumFilePath, checksumFilePath); err != nil {
		return fmt.Errorf("data file %s updated, but failed to update checksum file: %w", r.path, err)
	}
	return nil
}

// remove deletes the record and its checksum. A record that was never
// written is not an error. The caller must hold the lock.
func (r *recordFile) remove() error {
	for _, p := range []string{r.path, r.path + checksumSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// writeFileSync writes data and flushes it to stable storage before returning.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeAtomic replaces path with data through a temp file, without a checksum.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + tmpSuffix
	if err := writeFileSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
