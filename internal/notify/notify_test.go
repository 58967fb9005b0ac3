package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Notify(context.Context, Alert) error { return f.err }

type recorder struct{ got []Alert }

func (r *recorder) Notify(_ context.Context, a Alert) error {
	r.got = append(r.got, a)
	return nil
}

func TestFileNotifier_WritesAlert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "alerts")
	n := FileNotifier{Dir: dir}

	at := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	require.NoError(t, n.Notify(context.Background(), Alert{
		Level:   LevelCritical,
		Title:   "Plan store is corrupt!",
		Body:    "checksum mismatch",
		ShiftID: "01HX",
		At:      at,
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "critical-plan-store-is-corrupt")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# [CRITICAL] Plan store is corrupt!")
	assert.Contains(t, string(data), "checksum mismatch")
	assert.Contains(t, string(data), "`01HX`")
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	m := Multi{failing{err: boom}, nil, rec}

	err := m.Notify(context.Background(), Alert{Level: LevelInfo, Title: "hello"})
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.got, 1)
	assert.False(t, rec.got[0].At.IsZero())
}

func TestLogNotifier_UsesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	n := LogNotifier{Logger: logger}

	require.NoError(t, n.Notify(context.Background(), Alert{Level: LevelInfo, Title: "quiet"}))
	require.NoError(t, n.Notify(context.Background(), Alert{Level: LevelCritical, Title: "loud", ShiftID: "s1"}))

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "shift=s1")
}

func TestTelegramNotifier_DropsBelowMinLevel(t *testing.T) {
	n := NewTelegramNotifier("unused", 42, LevelCritical)
	// Below the threshold nothing is sent, so no bot connection is attempted.
	assert.NoError(t, n.Notify(context.Background(), Alert{Level: LevelWarning, Title: "skip me"}))
}
