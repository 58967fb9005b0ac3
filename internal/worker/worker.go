// Package worker runs the work of one step. The executor treats a worker as
// opaque: it hands over the step and the context log and gets an outcome
// back.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/josephgoksu/ShiftWing/models"
)

// Outcome classifies how a step attempt ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeTransient  Outcome = "transient"
	OutcomeDependency Outcome = "dependency"
	OutcomeNeedsInput Outcome = "needs_input"
)

// Exit codes a worker command uses to report failures. Any other non-zero
// code counts as transient.
const (
	ExitTransient  = 75
	ExitDependency = 76
	ExitNeedsInput = 77
)

// LessonPrefix marks worker output lines that go to the context log.
const LessonPrefix = "LESSON:"

const maxResultLen = 2000

// Input is everything a worker may use. It is bounded to one step.
type Input struct {
	InvocationID string                `json:"invocationId"`
	ShiftID      string                `json:"shiftId"`
	TaskTitle    string                `json:"taskTitle"`
	Tier         models.Tier           `json:"tier"`
	Step         models.Step           `json:"step"`
	Context      []models.ContextEntry `json:"context"`
	Deadline     time.Time             `json:"deadline"`
}

// Output is the result of one attempt.
type Output struct {
	Outcome Outcome
	Result  string
	Lessons []string
}

// Worker performs the work of a step.
type Worker interface {
	Execute(ctx context.Context, in Input) (Output, error)
}

// Func adapts a function to the Worker interface.
type Func func(ctx context.Context, in Input) (Output, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// CommandWorker runs an external command per step. The command gets the Input
// as JSON on stdin and SHIFTWING_* variables in its environment. Its exit code
// gives the outcome; the last non-empty stdout line is the result and lines
// starting with LESSON: are lessons.
type CommandWorker struct {
	Command string
	Args    []string
	Dir     string
	// Env is added to the inherited environment.
	Env []string
}

// NewCommandWorker creates a worker for command.
func NewCommandWorker(command string, args []string, dir string) *CommandWorker {
	return &CommandWorker{Command: command, Args: args, Dir: dir}
}

// Execute runs the command until it exits or ctx ends.
func (w *CommandWorker) Execute(ctx context.Context, in Input) (Output, error) {
	if w.Command == "" {
		return Output{}, errors.New("no worker command configured (set worker.command)")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return Output{}, fmt.Errorf("marshal worker input: %w", err)
	}

	cmd := osexec.CommandContext(ctx, w.Command, w.Args...)
	cmd.Dir = w.Dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), w.Env...)
	cmd.Env = append(cmd.Env,
		"SHIFTWING_INVOCATION_ID="+in.InvocationID,
		"SHIFTWING_SHIFT_ID="+in.ShiftID,
		"SHIFTWING_TASK_ID="+in.Step.TaskID,
		"SHIFTWING_STEP_ID="+in.Step.ID,
		"SHIFTWING_ATTEMPT="+strconv.Itoa(in.Step.AttemptCount+1),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	runErr := cmd.Run()
	result, lessons := ParseOutput(stdout.String())
	out := Output{Result: result, Lessons: lessons}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Outcome = OutcomeTransient
		out.Result = "worker stopped: " + ctxErr.Error()
		return out, nil
	}

	var exitErr *osexec.ExitError
	switch {
	case runErr == nil:
		out.Outcome = OutcomeSuccess
		return out, nil
	case errors.As(runErr, &exitErr):
		switch exitErr.ExitCode() {
		case ExitDependency:
			out.Outcome = OutcomeDependency
		case ExitNeedsInput:
			out.Outcome = OutcomeNeedsInput
		default:
			out.Outcome = OutcomeTransient
		}
		if out.Result == "" {
			out.Result = lastLine(stderr.String())
		}
		if out.Result == "" {
			out.Result = exitErr.Error()
		}
		return out, nil
	default:
		return Output{}, fmt.Errorf("run worker %s: %w", w.Command, runErr)
	}
}

// ParseOutput splits worker stdout into its result line and lessons. Lines
// of any length are accepted.
func ParseOutput(stdout string) (string, []string) {
	var result string
	var lessons []string
	for raw := range strings.Lines(stdout) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, LessonPrefix); ok {
			if lesson := strings.TrimSpace(rest); lesson != "" {
				lessons = append(lessons, lesson)
			}
			continue
		}
		result = line
	}
	return truncate(result), lessons
}

func lastLine(s string) string {
	r, _ := ParseOutput(s)
	return r
}

// truncate caps s at maxResultLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxResultLen {
		return s
	}
	cut := maxResultLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
