package executor

import (
	"time"

	"github.com/josephgoksu/ShiftWing/models"
)

// selector decides which step of a plan runs next.
type selector struct {
	plan         *models.Plan
	now          time.Time
	retryBackoff time.Duration

	progress map[string]progressMark
}

type progressMark int

const (
	unvisited progressMark = iota
	visiting
	canProgress
	stuck
)

func newSelector(p *models.Plan, now time.Time, retryBackoff time.Duration) *selector {
	return &selector{plan: p, now: now, retryBackoff: retryBackoff, progress: make(map[string]progressMark)}
}

// ready reports whether everything st waits for is done: the earlier steps
// of its task and its declared dependencies.
func (s *selector) ready(st *models.Step) bool {
	for _, prev := range s.plan.Predecessors(st.ID) {
		if prev.Status != models.StepDone {
			return false
		}
	}
	for _, id := range st.DependsOn {
		dep := s.plan.Step(id)
		if dep == nil || dep.Status != models.StepDone {
			return false
		}
	}
	return true
}

func (s *selector) backoffElapsed(st *models.Step) bool {
	return st.LastAttemptAt == nil || s.now.Sub(*st.LastAttemptAt) >= s.retryBackoff
}

// retryable reports whether a blocked step's block condition has cleared.
// Transient blocks clear once the backoff has passed since the last attempt.
// Dependency blocks additionally wait until their dependencies are done.
// User blocks never clear on their own.
func (s *selector) retryable(st *models.Step) bool {
	if st.Status != models.StepBlocked {
		return false
	}
	switch st.BlockKind {
	case models.BlockTransient, models.BlockDependency:
		return s.ready(st) && s.backoffElapsed(st)
	default:
		return false
	}
}

// next returns the first runnable pending step in selection order, or, when
// none is pending, the first blocked step that may be retried. The boolean
// is true when the step comes from the blocked re-check.
func (s *selector) next() (*models.Step, bool) {
	ordered := s.plan.OrderedSteps()
	for _, st := range ordered {
		if st.Status == models.StepPending && s.ready(st) {
			return st, false
		}
	}
	for _, st := range ordered {
		if s.retryable(st) {
			return st, true
		}
	}
	return nil, false
}

// waiting reports whether some step that cannot run now may still run later
// in this shift, for example a transient block inside its backoff.
func (s *selector) waiting() bool {
	for i := range s.plan.Steps {
		st := &s.plan.Steps[i]
		if !st.IsTerminal() && s.mayProgress(st) {
			return true
		}
	}
	return false
}

// mayProgress reports whether st can still reach done without a person.
func (s *selector) mayProgress(st *models.Step) bool {
	switch s.progress[st.ID] {
	case visiting, stuck:
		return false
	case canProgress:
		return true
	}
	s.progress[st.ID] = visiting

	ok := false
	switch st.Status {
	case models.StepDone:
		ok = true
	case models.StepClaimed:
		ok = true
	case models.StepBlocked:
		ok = st.BlockKind != models.BlockUser && s.upstreamMayProgress(st)
	case models.StepPending:
		ok = s.upstreamMayProgress(st)
	}

	if ok {
		s.progress[st.ID] = canProgress
	} else {
		s.progress[st.ID] = stuck
	}
	return ok
}

func (s *selector) upstreamMayProgress(st *models.Step) bool {
	for _, prev := range s.plan.Predecessors(st.ID) {
		if !s.mayProgress(prev) {
			return false
		}
	}
	for _, id := range st.DependsOn {
		dep := s.plan.Step(id)
		if dep == nil || !s.mayProgress(dep) {
			return false
		}
	}
	return true
}
