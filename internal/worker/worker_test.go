package worker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/josephgoksu/ShiftWing/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shWorker(t *testing.T, script string) *CommandWorker {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	return NewCommandWorker("sh", []string{"-c", script}, t.TempDir())
}

func testInput() Input {
	return Input{
		InvocationID: "inv-1",
		ShiftID:      "shift-1",
		TaskTitle:    "Rotate certificates",
		Tier:         models.TierP1,
		Step:         models.Step{ID: "step-1", TaskID: "task-1", Description: "Rotate the staging cert", AttemptCount: 2},
		Context:      []models.ContextEntry{{Timestamp: time.Now().UTC(), Text: "staging uses vault"}},
	}
}

func TestCommandWorker_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   Outcome
		result string
	}{
		{"success", "echo working; echo rotated 3 certs", OutcomeSuccess, "rotated 3 certs"},
		{"transient", "echo 'registry timeout'; exit 75", OutcomeTransient, "registry timeout"},
		{"dependency", "echo 'waiting on dns'; exit 76", OutcomeDependency, "waiting on dns"},
		{"needs input", "echo 'which cluster?'; exit 77", OutcomeNeedsInput, "which cluster?"},
		{"other code", "echo 'boom' >&2; exit 3", OutcomeTransient, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := shWorker(t, tt.script)
			out, err := w.Execute(context.Background(), testInput())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Outcome)
			assert.Equal(t, tt.result, out.Result)
		})
	}
}

func TestCommandWorker_Lessons(t *testing.T) {
	w := shWorker(t, "echo 'LESSON: staging certs live in vault'; echo done; echo 'LESSON:   '")
	out, err := w.Execute(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Outcome)
	assert.Equal(t, "done", out.Result)
	assert.Equal(t, []string{"staging certs live in vault"}, out.Lessons)
}

func TestCommandWorker_InputAndEnv(t *testing.T) {
	w := shWorker(t, `cat > input.json; printf '%s %s %s %s' "$SHIFTWING_STEP_ID" "$SHIFTWING_SHIFT_ID" "$SHIFTWING_INVOCATION_ID" "$SHIFTWING_ATTEMPT"`)
	out, err := w.Execute(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "step-1 shift-1 inv-1 3", out.Result)

	data, err := os.ReadFile(filepath.Join(w.Dir, "input.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"description":"Rotate the staging cert"`)
	assert.Contains(t, string(data), `"staging uses vault"`)
}

func TestCommandWorker_Timeout(t *testing.T) {
	w := shWorker(t, "exec sleep 5")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := w.Execute(ctx, testInput())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransient, out.Outcome)
	assert.True(t, strings.HasPrefix(out.Result, "worker stopped"))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandWorker_Unconfigured(t *testing.T) {
	_, err := (&CommandWorker{}).Execute(context.Background(), testInput())
	assert.Error(t, err)

	_, err = NewCommandWorker(filepath.Join(t.TempDir(), "missing"), nil, "").Execute(context.Background(), testInput())
	assert.Error(t, err)
}

func TestParseOutput_TruncatesResult(t *testing.T) {
	result, lessons := ParseOutput(strings.Repeat("x", maxResultLen+10) + "\n")
	assert.Len(t, result, maxResultLen+3)
	assert.Empty(t, lessons)
}

func TestParseOutput_LongLines(t *testing.T) {
	huge := strings.Repeat("y", 2*1024*1024)
	stdout := "LESSON: disk fills up at 02:00\n" + huge + "\nLESSON: rotate logs first\nfinal: ok\n"
	result, lessons := ParseOutput(stdout)
	assert.Equal(t, "final: ok", result)
	assert.Equal(t, []string{"disk fills up at 02:00", "rotate logs first"}, lessons)

	result, _ = ParseOutput("LESSON: kept\n" + huge)
	assert.Len(t, result, maxResultLen+3)
}

func TestParseOutput_TruncatesOnRuneBoundary(t *testing.T) {
	// "é" is two bytes, so byte maxResultLen falls inside a rune.
	line := "a" + strings.Repeat("é", maxResultLen)
	result, _ := ParseOutput(line)
	assert.True(t, utf8.ValidString(result))
	assert.True(t, strings.HasSuffix(result, "..."))
	assert.LessOrEqual(t, len(result), maxResultLen+3)
	assert.Equal(t, maxResultLen-1, len(strings.TrimSuffix(result, "...")))
}
