package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/josephgoksu/ShiftWing/internal/executor"
	"github.com/josephgoksu/ShiftWing/internal/handoff"
	"github.com/josephgoksu/ShiftWing/internal/logger"
	"github.com/josephgoksu/ShiftWing/internal/notify"
	"github.com/josephgoksu/ShiftWing/internal/planner"
	"github.com/josephgoksu/ShiftWing/internal/policy"
	"github.com/josephgoksu/ShiftWing/internal/shift"
	"github.com/josephgoksu/ShiftWing/internal/worker"
	"github.com/josephgoksu/ShiftWing/store"
)

// current is the app of this invocation, once a command opened it.
var current *app

// app bundles the stores and collaborators of one invocation. Nothing in it
// outlives the process; every command re-reads state from disk.
type app struct {
	cfg       *config.Config
	layout    config.Layout
	plans     *store.FilePlanStore
	proposals *store.FilePlanStore
	tracker   *shift.Tracker
	log       *store.FileContextLog
	drafts    *store.FileDraftStore
	handoffs  *store.FileHandoffStore
	archives  *store.FileArchiveStore
	approvals *planner.FileApprovalChannel
	notifier  notify.Notifier
}

// openApp opens every store under the state directory, creating it if needed.
func openApp() (*app, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, err
	}
	layout := config.NewLayout(stateDir(cfg), cfg.Format)
	if err := layout.Ensure(); err != nil {
		return nil, fmt.Errorf("prepare state dir %s: %w", layout.Root, err)
	}

	a := &app{cfg: cfg, layout: layout}
	if a.plans, err = store.NewFilePlanStore(layout.PlanFile(), layout.Format); err != nil {
		return nil, err
	}
	if a.proposals, err = store.NewFilePlanStore(layout.PendingPlanFile(), layout.Format); err != nil {
		return nil, err
	}
	shifts, err := store.NewFileShiftStore(layout.ShiftFile(), layout.Format)
	if err != nil {
		return nil, err
	}
	a.tracker = shift.NewTracker(shifts)
	if a.log, err = store.NewFileContextLog(layout.ContextLogFile()); err != nil {
		return nil, err
	}
	if a.drafts, err = store.NewFileDraftStore(layout.DraftFile()); err != nil {
		return nil, err
	}
	if a.handoffs, err = store.NewFileHandoffStore(layout.HandoffDir()); err != nil {
		return nil, err
	}
	if a.archives, err = store.NewFileArchiveStore(layout.ArchiveDir()); err != nil {
		return nil, err
	}
	a.approvals = planner.NewFileApprovalChannel(layout.ProposalFile(), layout.ApprovalFile())
	a.notifier = newNotifier(cfg, layout)

	current = a
	return a, nil
}

// newNotifier delivers alerts to the log, the alerts directory and, when
// configured, Telegram.
func newNotifier(cfg *config.Config, layout config.Layout) notify.Notifier {
	n := notify.Multi{
		notify.LogNotifier{Logger: slog.Default().With("component", "notify")},
		notify.FileNotifier{Dir: layout.AlertsDir()},
	}
	if tg := cfg.Notify.Telegram; tg.Token != "" && tg.ChatID != 0 {
		n = append(n, notify.NewTelegramNotifier(tg.Token, tg.ChatID, notify.LevelWarning))
	}
	return n
}

func (a *app) policyEngine() (*policy.Engine, error) {
	return policy.NewEngine(policy.EngineConfig{PoliciesDir: a.layout.PoliciesDir()})
}

func (a *app) archiver() (*handoff.Archiver, error) {
	return handoff.New(handoff.Deps{
		Plans:    a.plans,
		Tracker:  a.tracker,
		Archives: a.archives,
		Handoffs: a.handoffs,
		Drafts:   a.drafts,
		Log:      a.log,
		Notifier: a.notifier,
	})
}

func (a *app) planner() (*planner.Planner, error) {
	engine, err := a.policyEngine()
	if err != nil {
		return nil, err
	}
	arch, err := a.archiver()
	if err != nil {
		return nil, err
	}
	return planner.New(planner.Deps{
		Plans:     a.plans,
		Proposals: a.proposals,
		Tracker:   a.tracker,
		Drafts:    a.drafts,
		Handoffs:  a.handoffs,
		Log:       a.log,
		Signals:   planner.NewFileSignalSource(a.layout.SignalsFile()),
		Approvals: a.approvals,
		Policy:    engine,
		Audit:     policy.NewAuditLog(a.layout.PolicyAuditFile()),
		Notifier:  a.notifier,
		Resumer:   arch,
	}, a.cfg.Planner)
}

func (a *app) executor() (*executor.Executor, error) {
	if a.cfg.Worker.Command == "" {
		return nil, fmt.Errorf("no worker configured: set worker.command in %s", projectConfigPath(a.layout.Root))
	}
	arch, err := a.archiver()
	if err != nil {
		return nil, err
	}
	return executor.New(executor.Deps{
		Plans:    a.plans,
		Tracker:  a.tracker,
		Log:      a.log,
		Worker:   crashTracked(worker.NewCommandWorker(a.cfg.Worker.Command, a.cfg.Worker.Args, a.cfg.Worker.Dir)),
		Archiver: arch,
		Notifier: a.notifier,
	}, a.cfg.Executor)
}

// crashTracked records the step in flight so a crash report names it.
func crashTracked(w worker.Worker) worker.Worker {
	return worker.Func(func(ctx context.Context, in worker.Input) (worker.Output, error) {
		logger.SetStep(in.ShiftID, in.Step.ID)
		defer logger.SetStep("", "")
		return w.Execute(ctx, in)
	})
}
