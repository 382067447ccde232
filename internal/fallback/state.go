package fallback

import (
	"sort"
	"sync"
	"time"

	"docbreak/internal/models"
)

// Performance counts outcomes for one model on one task.
type Performance struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastUsed     time.Time `json:"last_used"`
}

// SuccessRate is successes over attempts, 0 when never attempted.
func (p Performance) SuccessRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

type taskState struct {
	mu     sync.Mutex
	failed map[string]bool
	perf   map[string]*Performance
}

// State remembers, per task, which models have failed and how each model has
// performed for the life of the process. Each task has its own lock so
// documents on different tasks never contend.
type State struct {
	mu    sync.Mutex
	tasks map[models.Task]*taskState
	now   func() time.Time
}

// NewState returns an empty State.
func NewState() *State {
	return &State{tasks: make(map[models.Task]*taskState), now: time.Now}
}

func (s *State) task(task models.Task) *taskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tasks[task]
	if !ok {
		ts = &taskState{failed: make(map[string]bool), perf: make(map[string]*Performance)}
		s.tasks[task] = ts
	}
	return ts
}

// RecordSuccess clears any failure mark on model and counts the success.
func (s *State) RecordSuccess(task models.Task, model string) {
	ts := s.task(task)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.failed, model)
	p := ts.perfLocked(model)
	p.SuccessCount++
	p.LastUsed = s.now()
}

// RecordFailure marks model as failed for task and counts the failure.
func (s *State) RecordFailure(task models.Task, model string) {
	ts := s.task(task)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failed[model] = true
	p := ts.perfLocked(model)
	p.FailureCount++
	p.LastUsed = s.now()
}

func (ts *taskState) perfLocked(model string) *Performance {
	p, ok := ts.perf[model]
	if !ok {
		p = &Performance{}
		ts.perf[model] = p
	}
	return p
}

// IsFailed reports whether model is currently marked failed for task.
func (s *State) IsFailed(task models.Task, model string) bool {
	ts := s.task(task)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.failed[model]
}

// Failed returns the task's failed models, sorted.
func (s *State) Failed(task models.Task) []string {
	ts := s.task(task)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return sortedKeys(ts.failed)
}

// failedSet returns a copy of the failed set extended with extra.
func (s *State) failedSet(task models.Task, extra []string) map[string]bool {
	ts := s.task(task)
	ts.mu.Lock()
	out := make(map[string]bool, len(ts.failed)+len(extra))
	for m := range ts.failed {
		out[m] = true
	}
	ts.mu.Unlock()
	for _, m := range extra {
		out[m] = true
	}
	return out
}

// Performance returns a copy of the task's per-model counters.
func (s *State) Performance(task models.Task) map[string]Performance {
	ts := s.task(task)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make(map[string]Performance, len(ts.perf))
	for m, p := range ts.perf {
		out[m] = *p
	}
	return out
}

// BestPerforming returns the model with the highest success rate among those
// that have succeeded at least once. Ties go to more successes, then to the
// lexically smaller id.
func (s *State) BestPerforming(task models.Task) (string, bool) {
	best, bestPerf := "", Performance{}
	for m, p := range s.Performance(task) {
		if p.SuccessCount == 0 {
			continue
		}
		switch {
		case best == "",
			p.SuccessRate() > bestPerf.SuccessRate(),
			p.SuccessRate() == bestPerf.SuccessRate() && p.SuccessCount > bestPerf.SuccessCount,
			p.SuccessRate() == bestPerf.SuccessRate() && p.SuccessCount == bestPerf.SuccessCount && m < best:
			best, bestPerf = m, p
		}
	}
	return best, best != ""
}

// Reset forgets everything recorded for task.
func (s *State) Reset(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, task)
}

// ResetAll forgets everything.
func (s *State) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[models.Task]*taskState)
}

// TaskSnapshot is a point-in-time copy of one task's state.
type TaskSnapshot struct {
	Failed      []string               `json:"failed_models"`
	Performance map[string]Performance `json:"model_performance"`
}

// Snapshot copies the state of every task that has recorded anything.
func (s *State) Snapshot() map[models.Task]TaskSnapshot {
	s.mu.Lock()
	tasks := make([]models.Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make(map[models.Task]TaskSnapshot, len(tasks))
	for _, t := range tasks {
		out[t] = TaskSnapshot{Failed: s.Failed(t), Performance: s.Performance(t)}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
