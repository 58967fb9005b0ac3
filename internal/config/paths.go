package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DirName is the per-project state directory.
const DirName = ".shiftwing"

// GetGlobalConfigDir returns the path to the global configuration directory (~/.shiftwing).
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// GetStateDir returns the directory holding all durable stores.
// Resolution order (first match wins):
// 1. Explicit config via "dir" (Viper/env/flag)
// 2. Local project directory: .shiftwing (if exists)
// 3. XDG_DATA_HOME/shiftwing (if XDG_DATA_HOME is set)
// 4. Global fallback: ~/.shiftwing
func GetStateDir() string {
	if path := viper.GetString("dir"); path != "" {
		return path
	}

	if info, err := os.Stat(DirName); err == nil && info.IsDir() {
		return DirName
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "shiftwing")
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return DirName
	}
	return dir
}

// Layout names every file and directory under the state directory.
type Layout struct {
	Root   string
	Format string
}

// NewLayout returns the layout rooted at root; format picks the plan and
// shift file encoding.
func NewLayout(root, format string) Layout {
	if format == "" {
		format = "json"
	}
	return Layout{Root: root, Format: format}
}

func (l Layout) PlanFile() string       { return filepath.Join(l.Root, "plan."+l.Format) }
func (l Layout) ShiftFile() string      { return filepath.Join(l.Root, "shift."+l.Format) }
func (l Layout) ContextLogFile() string { return filepath.Join(l.Root, "context.log") }
func (l Layout) HandoffDir() string     { return filepath.Join(l.Root, "handoff") }
func (l Layout) DraftFile() string      { return filepath.Join(l.Root, "drafts", "next.json") }
func (l Layout) ArchiveDir() string     { return filepath.Join(l.Root, "archive") }
func (l Layout) AlertsDir() string      { return filepath.Join(l.Root, "alerts") }
func (l Layout) InboxDir() string       { return filepath.Join(l.Root, "inbox") }
func (l Layout) ApprovalFile() string   { return filepath.Join(l.InboxDir(), "approval.yaml") }
func (l Layout) SignalsFile() string    { return filepath.Join(l.InboxDir(), "signals.yaml") }
func (l Layout) ProposalFile() string   { return filepath.Join(l.InboxDir(), "proposal.md") }
func (l Layout) PendingPlanFile() string {
	return filepath.Join(l.Root, "drafts", "proposal."+l.Format)
}
func (l Layout) PoliciesDir() string    { return filepath.Join(l.Root, "policies") }
func (l Layout) CrashDir() string       { return filepath.Join(l.Root, "crash_logs") }
func (l Layout) PolicyAuditFile() string {
	return filepath.Join(l.Root, "policy_decisions.jsonl")
}

// Ensure creates the directories the stores write into.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.HandoffDir(), filepath.Dir(l.DraftFile()), l.ArchiveDir(), l.AlertsDir(), l.InboxDir(), l.PoliciesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
