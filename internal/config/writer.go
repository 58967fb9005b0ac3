package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the project configuration file written by init.
const ConfigFileName = ".shiftwing.yaml"

// ProjectSettings are the values init asks for. Empty fields are left out.
type ProjectSettings struct {
	ShiftName      string
	Format         string
	WindowDuration time.Duration
	WorkerCommand  string
	WorkerArgs     []string
}

// quoteYAMLValue quotes a string value for safe YAML serialization.
// Handles special characters: :, #, ", ', newlines, etc.
func quoteYAMLValue(value string) string {
	// If value contains any YAML special characters, wrap in double quotes
	// and escape internal double quotes
	needsQuoting := strings.ContainsAny(value, ":{}[]&*#?|-<>=!%@`\"'\n\r\t ")
	if !needsQuoting {
		return value
	}
	// Escape backslashes first, then double quotes
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

// WriteProjectConfig writes s to path. A new file gets a commented starter
// config; an existing file keeps its other settings. It reports whether the
// file was created.
func WriteProjectConfig(path string, s ProjectSettings) (bool, error) {
	if s.Format != "" && !validFormat(s.Format) {
		return false, fmt.Errorf("unsupported format %q", s.Format)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return true, os.WriteFile(path, []byte(starterConfig(s)), 0600)
	} else if err != nil {
		return false, err
	}
	return false, updateProjectConfig(path, s)
}

func validFormat(f string) bool {
	switch f {
	case "json", "yaml", "toml":
		return true
	}
	return false
}

func starterConfig(s ProjectSettings) string {
	format := s.Format
	if format == "" {
		format = DefaultFormat
	}
	name := s.ShiftName
	if name == "" {
		name = DefaultShiftName
	}
	window := s.WindowDuration
	if window <= 0 {
		window = DefaultWindowDuration
	}

	var b strings.Builder
	b.WriteString("# ShiftWing project configuration\n")
	fmt.Fprintf(&b, "format: %s\n\n", format)
	b.WriteString("planner:\n")
	fmt.Fprintf(&b, "  shiftName: %s\n", quoteYAMLValue(name))
	fmt.Fprintf(&b, "  windowDuration: %s\n", window)
	fmt.Fprintf(&b, "  approvalTimeout: %s\n\n", DefaultApprovalTimeout)
	b.WriteString("executor:\n")
	fmt.Fprintf(&b, "  stalenessThreshold: %s\n", DefaultStalenessThreshold)
	fmt.Fprintf(&b, "  stepTimeout: %s\n", DefaultStepTimeout)
	fmt.Fprintf(&b, "  maxStepsPerCycle: %d\n\n", DefaultMaxStepsPerCycle)
	b.WriteString("worker:\n")
	if s.WorkerCommand == "" {
		b.WriteString("  # command receives one step as JSON on stdin\n")
		b.WriteString("  command: \"\"\n")
	} else {
		fmt.Fprintf(&b, "  command: %s\n", quoteYAMLValue(s.WorkerCommand))
	}
	if len(s.WorkerArgs) > 0 {
		b.WriteString("  args:\n")
		for _, a := range s.WorkerArgs {
			fmt.Fprintf(&b, "    - %s\n", quoteYAMLValue(a))
		}
	}
	b.WriteString("\n# notify:\n#   telegram:\n#     token: \"\"\n#     chatId: 0\n")
	return b.String()
}

func updateProjectConfig(path string, s ProjectSettings) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Read existing to preserve other settings
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if s.Format != "" {
		v.Set("format", s.Format)
	}
	if s.ShiftName != "" {
		v.Set("planner.shiftName", s.ShiftName)
	}
	if s.WindowDuration > 0 {
		v.Set("planner.windowDuration", s.WindowDuration.String())
	}
	if s.WorkerCommand != "" {
		v.Set("worker.command", s.WorkerCommand)
	}
	if len(s.WorkerArgs) > 0 {
		v.Set("worker.args", s.WorkerArgs)
	}
	return v.WriteConfig()
}
