package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestGetStateDir_ExplicitConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("dir", "/custom/state")
	if got := GetStateDir(); got != "/custom/state" {
		t.Errorf("GetStateDir() = %q, want /custom/state", got)
	}
}

func TestGetStateDir_GlobalFallback(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	orig := GetGlobalConfigDir
	defer func() { GetGlobalConfigDir = orig }()
	tmp := t.TempDir()
	GetGlobalConfigDir = func() (string, error) { return filepath.Join(tmp, ".shiftwing"), nil }
	t.Setenv("XDG_DATA_HOME", "")

	wd, _ := os.Getwd()
	defer func() { _ = os.Chdir(wd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	if got := GetStateDir(); got != filepath.Join(tmp, ".shiftwing") {
		t.Errorf("GetStateDir() = %q", got)
	}
}

func TestLayout_Paths(t *testing.T) {
	l := NewLayout("/state", "yaml")
	tests := map[string]string{
		l.PlanFile():        "/state/plan.yaml",
		l.ShiftFile():       "/state/shift.yaml",
		l.ContextLogFile():  "/state/context.log",
		l.DraftFile():       "/state/drafts/next.json",
		l.ApprovalFile():    "/state/inbox/approval.yaml",
		l.PolicyAuditFile(): "/state/policy_decisions.jsonl",
	}
	for got, want := range tests {
		if filepath.ToSlash(got) != want {
			t.Errorf("got %s, want %s", got, want)
		}
	}

	if NewLayout("/x", "").Format != "json" {
		t.Error("empty format should default to json")
	}

	root := filepath.Join(t.TempDir(), "state")
	if err := NewLayout(root, "json").Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "inbox")); err != nil {
		t.Errorf("inbox not created: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Executor.MaxStepsPerCycle != DefaultMaxStepsPerCycle {
		t.Errorf("MaxStepsPerCycle = %d", cfg.Executor.MaxStepsPerCycle)
	}
	if cfg.Executor.StalenessThreshold != DefaultStalenessThreshold {
		t.Errorf("StalenessThreshold = %s", cfg.Executor.StalenessThreshold)
	}
	if !cfg.Planner.AutoApproveOnTimeout {
		t.Error("AutoApproveOnTimeout should default to true")
	}
}

func TestLoad_DurationStringsAndValidation(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("executor.stalenessThreshold", "90m")
	v.Set("executor.stepTimeout", "20m")
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Executor.StalenessThreshold != 90*time.Minute {
		t.Errorf("StalenessThreshold = %s", cfg.Executor.StalenessThreshold)
	}

	v.Set("executor.stalenessThreshold", "10m")
	if _, err := Load(v); err == nil || !strings.Contains(err.Error(), "must exceed") {
		t.Errorf("expected staleness/timeout error, got %v", err)
	}

	v.Set("executor.stalenessThreshold", "90m")
	v.Set("format", "xml")
	if _, err := Load(v); err == nil {
		t.Error("expected invalid format error")
	}
}
