// Package watch drives the planner and executor from a long-running process:
// cycles fire on an interval, planning fires on its own interval and
// whenever an approval or signal lands in the inbox.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/josephgoksu/ShiftWing/store"
)

// Job is one invocation of the planner or the executor.
type Job func(ctx context.Context) error

// Config tunes a Trigger.
type Config struct {
	CycleInterval time.Duration
	PlanInterval  time.Duration
	// InboxDir, when set, is watched for approvals and signals.
	InboxDir string
	// Debounce is how long inbox events settle before planning runs.
	Debounce time.Duration
}

// Trigger serializes planner and executor invocations. Only one job runs at
// a time; ticks that arrive while a job runs are coalesced.
type Trigger struct {
	cfg    Config
	plan   Job
	cycle  Job
	logger *slog.Logger
}

// New creates a trigger. Either job may be nil.
func New(cfg Config, plan, cycle Job) (*Trigger, error) {
	if cfg.CycleInterval <= 0 || cfg.PlanInterval <= 0 {
		return nil, errors.New("watch: cycle and plan intervals must be positive")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Trigger{cfg: cfg, plan: plan, cycle: cycle, logger: slog.Default().With("component", "watch")}, nil
}

// Run blocks until ctx is done or a job reports store corruption, which
// needs a person. Other job errors are logged and the loop continues.
func (t *Trigger) Run(ctx context.Context) error {
	planKick := make(chan struct{}, 1)
	cycleKick := make(chan struct{}, 1)
	kick(planKick)
	kick(cycleKick)

	if t.cfg.InboxDir != "" {
		w, err := t.watchInbox(ctx, planKick)
		if err != nil {
			return err
		}
		defer w.stop()
	}

	cycleTicker := time.NewTicker(t.cfg.CycleInterval)
	defer cycleTicker.Stop()
	planTicker := time.NewTicker(t.cfg.PlanInterval)
	defer planTicker.Stop()

	for {
		// Planning goes first so an approval becomes a running shift before
		// the next cycle looks for work.
		select {
		case <-planKick:
			if err := t.run(ctx, "plan", t.plan); err != nil {
				return err
			}
			kick(cycleKick)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-planTicker.C:
			kick(planKick)
		case <-cycleTicker.C:
			kick(cycleKick)
		case <-planKick:
			kick(planKick)
		case <-cycleKick:
			if err := t.run(ctx, "cycle", t.cycle); err != nil {
				return err
			}
		}
	}
}

func (t *Trigger) run(ctx context.Context, name string, job Job) error {
	if job == nil || ctx.Err() != nil {
		return nil
	}
	err := job(ctx)
	switch {
	case err == nil:
	case store.IsCorruption(err):
		return fmt.Errorf("%s stopped: %w", name, err)
	case errors.Is(err, context.Canceled):
	default:
		t.logger.Error("invocation failed", "job", name, "error", err)
	}
	return nil
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

type inboxWatcher struct {
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *Trigger) watchInbox(ctx context.Context, planKick chan struct{}) (*inboxWatcher, error) {
	if err := os.MkdirAll(t.cfg.InboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(t.cfg.InboxDir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch inbox: %w", err)
	}

	w := &inboxWatcher{watcher: fw}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !relevant(ev) {
					continue
				}
				t.logger.Debug("inbox changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
				w.debounce(t.cfg.Debounce, func() { kick(planKick) })
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				t.logger.Warn("inbox watch error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return w, nil
}

// relevant keeps writes of YAML answers and signals; temp files from atomic
// writes and the processed/ directory are ignored.
func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	switch filepath.Ext(ev.Name) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func (w *inboxWatcher) debounce(delay time.Duration, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(delay, fn)
}

func (w *inboxWatcher) stop() {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
	w.wg.Wait()
}
