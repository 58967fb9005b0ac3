package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCrashHandler_SetContext(t *testing.T) {
	globalContext = &CrashContext{}

	SetCrashDir("/tmp/test-shiftwing/crash_logs")
	SetVersion("1.0.0-test")
	SetCommand("cycle")
	SetStep("shift-1", "step-7")

	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	if globalContext.crashDir != "/tmp/test-shiftwing/crash_logs" {
		t.Errorf("Expected crashDir '/tmp/test-shiftwing/crash_logs', got '%s'", globalContext.crashDir)
	}
	if globalContext.version != "1.0.0-test" {
		t.Errorf("Expected version '1.0.0-test', got '%s'", globalContext.version)
	}
	if globalContext.command != "cycle" {
		t.Errorf("Expected command 'cycle', got '%s'", globalContext.command)
	}
	if globalContext.shiftID != "shift-1" || globalContext.stepID != "step-7" {
		t.Errorf("Expected step shift-1/step-7, got %s/%s", globalContext.shiftID, globalContext.stepID)
	}
}

func TestCrashHandler_CreateCrashLog(t *testing.T) {
	globalContext = &CrashContext{
		version: "1.0.0",
		command: "run",
		shiftID: "shift-1",
		stepID:  "step-2",
	}

	log := createCrashLog("test panic")

	if log.PanicValue != "test panic" {
		t.Errorf("Expected PanicValue 'test panic', got '%s'", log.PanicValue)
	}
	if log.Command != "run" {
		t.Errorf("Expected Command 'run', got '%s'", log.Command)
	}
	if log.StepID != "step-2" {
		t.Errorf("Expected StepID 'step-2', got '%s'", log.StepID)
	}
	if log.StackTrace == "" {
		t.Error("Expected non-empty StackTrace")
	}
	if log.GoVersion == "" {
		t.Error("Expected non-empty GoVersion")
	}
}

func TestCrashHandler_FormatCrashLog(t *testing.T) {
	log := CrashLog{
		Timestamp:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Version:    "1.0.0",
		Command:    "cycle",
		ShiftID:    "shift-1",
		StepID:     "step-2",
		PanicValue: "test panic",
		StackTrace: "goroutine 1 [running]:\nmain.main()",
		GoVersion:  "go1.24.3",
		OS:         "linux",
		Arch:       "amd64",
	}

	formatted := formatCrashLog(log)

	expectedStrings := []string{
		"SHIFTWING CRASH LOG",
		"Timestamp: 2025-01-01T12:00:00Z",
		"Command:   cycle",
		"Shift:     shift-1",
		"Step:      step-2",
		"OS/Arch:   linux/amd64",
		"PANIC VALUE",
		"test panic",
		"goroutine 1 [running]",
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(formatted, expected) {
			t.Errorf("Expected formatted log to contain '%s'", expected)
		}
	}
}

func TestCrashHandler_WriteCrashLog(t *testing.T) {
	crashDir := filepath.Join(t.TempDir(), ".shiftwing", CrashLogDir)
	globalContext = &CrashContext{crashDir: crashDir}

	log := CrashLog{
		Timestamp:  time.Now(),
		Command:    "cycle",
		PanicValue: "test panic",
		StackTrace: "test stack",
	}
	if err := writeCrashLog(log); err != nil {
		t.Fatalf("writeCrashLog failed: %v", err)
	}

	logs, err := ListCrashLogs()
	if err != nil {
		t.Fatalf("ListCrashLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 crash log, got %d", len(logs))
	}
	content, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatalf("read crash log: %v", err)
	}
	if !strings.Contains(string(content), "test panic") {
		t.Error("Expected crash log to contain panic value")
	}
}

func TestCrashHandler_CleanOldLogs(t *testing.T) {
	crashDir := filepath.Join(t.TempDir(), CrashLogDir)
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		t.Fatalf("Failed to create crash dir: %v", err)
	}
	globalContext = &CrashContext{crashDir: crashDir}

	for i := range MaxCrashLogs + 5 {
		name := filepath.Join(crashDir, "crash_20250101_1200"+string(rune('0'+i/10))+string(rune('0'+i%10))+".log")
		if err := os.WriteFile(name, []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}

	if err := cleanOldCrashLogs(crashDir); err != nil {
		t.Fatalf("cleanOldCrashLogs failed: %v", err)
	}

	logs, err := ListCrashLogs()
	if err != nil {
		t.Fatalf("ListCrashLogs failed: %v", err)
	}
	if len(logs) != MaxCrashLogs {
		t.Fatalf("Expected %d crash logs after cleanup, got %d", MaxCrashLogs, len(logs))
	}
	if filepath.Base(logs[0]) != "crash_20250101_120005.log" {
		t.Errorf("Expected the oldest logs to be removed, first left is %s", filepath.Base(logs[0]))
	}
}

func TestCrashHandler_GetCrashLogPath(t *testing.T) {
	globalContext = &CrashContext{crashDir: "/tmp/test/crash_logs"}

	path := getCrashLogPath(time.Date(2025, 1, 15, 14, 30, 45, 0, time.UTC))

	expectedPath := "/tmp/test/crash_logs/crash_20250115_143045.log"
	if path != expectedPath {
		t.Errorf("Expected path '%s', got '%s'", expectedPath, path)
	}
}

func TestCrashHandler_DefaultCrashDir(t *testing.T) {
	globalContext = &CrashContext{}

	expected := filepath.Join(".shiftwing", "crash_logs")
	if dir := getCrashLogDir(); dir != expected {
		t.Errorf("Expected default dir '%s', got '%s'", expected, dir)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_WritesConsoleAndFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "shiftwing.log")
	closeFn, err := Setup(Options{Level: "warn", File: file, Console: &console})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	slog.Info("hidden")
	slog.Warn("cycle failed", "shift", "shift-1")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if strings.Contains(console.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(console.String(), "cycle failed") {
		t.Errorf("console missing warn record: %q", console.String())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"shift":"shift-1"`) {
		t.Errorf("log file missing JSON record: %q", string(data))
	}
}
