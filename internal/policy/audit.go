package policy

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// AuditLog persists policy decisions as JSON lines for the audit trail.
type AuditLog struct {
	path string
}

// NewAuditLog opens the audit log at path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// SaveDecision appends a decision. If DecisionID is empty, a new UUID is generated.
func (a *AuditLog) SaveDecision(decision *PolicyDecision) error {
	if decision == nil {
		return fmt.Errorf("decision is nil")
	}
	if decision.DecisionID == "" {
		decision.DecisionID = uuid.New().String()
	}
	if decision.EvaluatedAt.IsZero() {
		decision.EvaluatedAt = time.Now().UTC()
	}
	line, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal policy decision: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	lk := flock.New(a.path + ".lock")
	if err := lk.Lock(); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer func() { _ = lk.Unlock() }()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append policy decision: %w", err)
	}
	return nil
}

// ListDecisions returns up to limit of the newest decisions, newest first.
// A limit of zero returns all of them.
func (a *AuditLog) ListDecisions(limit int) ([]*PolicyDecision, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var all []*PolicyDecision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var d PolicyDecision
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			continue
		}
		all = append(all, &d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}

	out := make([]*PolicyDecision, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetDecision finds a decision by id.
func (a *AuditLog) GetDecision(decisionID string) (*PolicyDecision, error) {
	all, err := a.ListDecisions(0)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.DecisionID == decisionID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("policy decision not found: %s", decisionID)
}
