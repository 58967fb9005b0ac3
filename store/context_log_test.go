package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

func setupContextLog(t *testing.T) *FileContextLog {
	t.Helper()
	l, err := NewFileContextLog(filepath.Join(t.TempDir(), "context.log"))
	if err != nil {
		t.Fatalf("Failed to create context log: %v", err)
	}
	return l
}

func TestFileContextLog_AppendTailSince(t *testing.T) {
	l := setupContextLog(t)

	for i, text := range []string{"first", "second\nwith newline", "third"} {
		if err := l.Append(models.ContextEntry{Timestamp: testNow.Add(time.Duration(i) * time.Minute), Text: text}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := l.Append(models.ContextEntry{Text: "   "}); err != nil {
		t.Fatalf("blank append should be a no-op: %v", err)
	}

	all, err := l.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[1].Text != "second with newline" {
		t.Errorf("newlines should be folded, got %q", all[1].Text)
	}

	tail, _ := l.Tail(2)
	if len(tail) != 2 || tail[0].Text != "second with newline" || tail[1].Text != "third" {
		t.Errorf("unexpected tail: %+v", tail)
	}

	since, _ := l.Since(testNow.Add(time.Minute))
	if len(since) != 2 {
		t.Errorf("expected 2 entries since +1m, got %d", len(since))
	}
}

func TestFileContextLog_TornLastLineIgnored(t *testing.T) {
	l := setupContextLog(t)
	if err := l.Append(models.ContextEntry{Timestamp: testNow, Text: "complete"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("2026-03-02T09:")
	_ = f.Close()

	entries, err := l.All()
	if err != nil {
		t.Fatalf("torn line should be tolerated: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

func TestFileContextLog_AppendAfterTornLine(t *testing.T) {
	l := setupContextLog(t)
	if err := l.Append(models.ContextEntry{Timestamp: testNow, Text: "complete"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("2026-03-02T09:")
	_ = f.Close()

	for i, text := range []string{"after crash", "and again"} {
		if err := l.Append(models.ContextEntry{Timestamp: testNow.Add(time.Duration(i+1) * time.Minute), Text: text}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := l.All()
	if err != nil {
		t.Fatalf("All failed after appending past a torn line: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].Text != "after crash" || entries[2].Text != "and again" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestFileContextLog_MalformedMiddleLine(t *testing.T) {
	l := setupContextLog(t)
	content := "garbage line\n" + testNow.Format(time.RFC3339Nano) + "\tok\n"
	if err := os.WriteFile(l.path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.All(); !IsCorruption(err) {
		t.Fatalf("expected corruption error, got %v", err)
	}
}

func TestFileContextLog_Prune(t *testing.T) {
	l := setupContextLog(t)
	now := time.Now().UTC()
	_ = l.Append(
		models.ContextEntry{Timestamp: now.Add(-72 * time.Hour), Text: "old"},
		models.ContextEntry{Timestamp: now.Add(-2 * time.Hour), Text: "recent-1"},
		models.ContextEntry{Timestamp: now.Add(-1 * time.Hour), Text: "recent-2"},
		models.ContextEntry{Timestamp: now, Text: "recent-3"},
	)

	n, err := l.Prune(PruneOptions{OlderThan: 24 * time.Hour, DryRun: true})
	if err != nil || n != 1 {
		t.Fatalf("dry run: n=%d err=%v", n, err)
	}
	if all, _ := l.All(); len(all) != 4 {
		t.Fatal("dry run must not modify the log")
	}

	n, err = l.Prune(PruneOptions{OlderThan: 24 * time.Hour, KeepLast: 2})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	all, _ := l.All()
	if len(all) != 2 || all[0].Text != "recent-2" {
		t.Errorf("unexpected entries after prune: %+v", all)
	}
}
