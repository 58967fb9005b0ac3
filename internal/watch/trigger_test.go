package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/josephgoksu/ShiftWing/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	busy  atomic.Int32
	over  atomic.Bool
}

func (r *recorder) job(name string, err error) Job {
	return func(ctx context.Context) error {
		if r.busy.Add(1) > 1 {
			r.over.Store(true)
		}
		defer r.busy.Add(-1)
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return err
	}
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recorder) first() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[0]
}

func TestNew_RejectsZeroIntervals(t *testing.T) {
	_, err := New(Config{CycleInterval: time.Second}, nil, nil)
	assert.Error(t, err)
}

func TestTrigger_RunsPlanFirstThenCyclesOnInterval(t *testing.T) {
	rec := &recorder{}
	tr, err := New(Config{CycleInterval: 20 * time.Millisecond, PlanInterval: time.Hour}, rec.job("plan", nil), rec.job("cycle", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	assert.Eventually(t, func() bool { return rec.count("cycle") >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "plan", rec.first())
	assert.Equal(t, 1, rec.count("plan"))
	assert.False(t, rec.over.Load(), "jobs never overlap")
}

func TestTrigger_InboxWriteTriggersPlanning(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "inbox")
	rec := &recorder{}
	tr, err := New(Config{
		CycleInterval: time.Hour,
		PlanInterval:  time.Hour,
		InboxDir:      inbox,
		Debounce:      20 * time.Millisecond,
	}, rec.job("plan", nil), rec.job("cycle", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.count("cycle") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "approval.yaml"), []byte("kind: approve-all\n"), 0o644))

	assert.Eventually(t, func() bool { return rec.count("plan") == 2 && rec.count("cycle") == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestTrigger_StopsOnCorruption(t *testing.T) {
	rec := &recorder{}
	corrupt := &store.CorruptionError{Path: "plan.json", Err: errors.New("checksum mismatch")}
	tr, err := New(Config{CycleInterval: 10 * time.Millisecond, PlanInterval: time.Hour}, nil, rec.job("cycle", corrupt))
	require.NoError(t, err)

	err = tr.Run(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsCorruption(err))
	assert.Equal(t, 1, rec.count("cycle"))
}

func TestTrigger_KeepsGoingAfterOrdinaryErrors(t *testing.T) {
	rec := &recorder{}
	tr, err := New(Config{CycleInterval: 10 * time.Millisecond, PlanInterval: time.Hour}, nil, rec.job("cycle", errors.New("worker missing")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	assert.Eventually(t, func() bool { return rec.count("cycle") >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
