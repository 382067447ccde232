package models

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Task names a kind of model call. Each task has its own candidate list.
type Task string

const (
	TaskBreakdown  Task = "breakdown"
	TaskReviewer   Task = "reviewer"
	TaskFinalizer  Task = "finalizer"
	TaskReanalyzer Task = "reanalyzer"
)

// Tasks returns the known tasks in a stable order.
func Tasks() []Task {
	return []Task{TaskBreakdown, TaskReviewer, TaskFinalizer, TaskReanalyzer}
}

// ParseTask validates a task name.
func ParseTask(s string) (Task, error) {
	t := Task(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tasks() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", s)
}

// EnvKey is the environment variable that pins a task's default model.
func EnvKey(task Task) string {
	return strings.ToUpper(string(task)) + "_MODEL"
}

// Registry answers which models to try for a task and in what order. The
// tier tables are read-only after construction; overrides may change at
// runtime.
type Registry struct {
	tiers  Tiers
	getenv func(string) string

	mu        sync.RWMutex
	overrides map[Task]string
}

// New creates a registry over the given tiers. Overrides fall back to the
// process environment.
func New(tiers Tiers) *Registry {
	return &Registry{tiers: tiers, getenv: os.Getenv, overrides: make(map[Task]string)}
}

// NewDefault creates a registry over DefaultTiers.
func NewDefault() *Registry {
	return New(DefaultTiers())
}

// WithEnv replaces the environment lookup, mainly for tests.
func (r *Registry) WithEnv(getenv func(string) string) *Registry {
	r.getenv = getenv
	return r
}

func (r *Registry) known(task Task) bool {
	_, ok := r.tiers.Primary[task]
	return ok
}

// ListModels returns the task's candidates: primary, secondary and fallback
// tiers concatenated with duplicates removed, first occurrence winning. A task
// without tiers gets its legacy model, or GlobalDefault.
func (r *Registry) ListModels(task Task) []string {
	if !r.known(task) {
		if legacy, ok := r.tiers.Legacy[task]; ok && legacy != "" {
			return []string{legacy}
		}
		return []string{GlobalDefault}
	}
	seen := make(map[string]bool)
	var out []string
	for _, tier := range [][]string{r.tiers.Primary[task], r.tiers.Secondary[task], r.tiers.Fallback[task]} {
		for _, m := range tier {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// Legacy returns the task's last-resort model.
func (r *Registry) Legacy(task Task) (string, bool) {
	m, ok := r.tiers.Legacy[task]
	return m, ok && m != ""
}

// NextModel returns the first candidate after current that is not excluded.
// An unknown current model scans from the start. When the list is exhausted
// the legacy model is offered unless it is excluded too.
func (r *Registry) NextModel(task Task, current string, excluded map[string]bool) (string, bool) {
	list := r.ListModels(task)
	idx := -1
	for i, m := range list {
		if m == current {
			idx = i
			break
		}
	}
	for _, m := range list[idx+1:] {
		if !excluded[m] {
			return m, true
		}
	}
	if legacy, ok := r.Legacy(task); ok && !excluded[legacy] {
		return legacy, true
	}
	return "", false
}

// DefaultModel is the model a task starts with: a runtime override, then
// the task's environment variable, then the first candidate.
func (r *Registry) DefaultModel(task Task) string {
	r.mu.RLock()
	m := r.overrides[task]
	r.mu.RUnlock()
	if m != "" {
		return m
	}
	if v := strings.TrimSpace(r.getenv(EnvKey(task))); v != "" {
		return v
	}
	if list := r.ListModels(task); len(list) > 0 {
		return list[0]
	}
	return GlobalDefault
}

// SetOverride pins a task's default model. An empty model clears it.
func (r *Registry) SetOverride(task Task, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model == "" {
		delete(r.overrides, task)
		return
	}
	r.overrides[task] = model
}

// Overrides returns a copy of the runtime overrides.
func (r *Registry) Overrides() map[Task]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Task]string, len(r.overrides))
	for k, v := range r.overrides {
		out[k] = v
	}
	return out
}

// ModelInfo is one row of a task's diagnostic listing.
type ModelInfo struct {
	Model    string    `json:"model"`
	Priority int       `json:"priority"`
	Tier     string    `json:"tier"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Info lists the task's candidates in priority order, legacy last, with
// whatever metadata is known.
func (r *Registry) Info(task Task) []ModelInfo {
	var out []ModelInfo
	add := func(m, tier string) {
		info := ModelInfo{Model: m, Priority: len(out) + 1, Tier: tier}
		if md, ok := LookupMetadata(m); ok {
			info.Metadata = &md
		}
		out = append(out, info)
	}
	for _, m := range r.ListModels(task) {
		add(m, r.tierOf(task, m))
	}
	if legacy, ok := r.Legacy(task); ok && r.known(task) {
		add(legacy, "legacy")
	}
	return out
}

func (r *Registry) tierOf(task Task, model string) string {
	for _, t := range []struct {
		name  string
		items []string
	}{
		{"primary", r.tiers.Primary[task]},
		{"secondary", r.tiers.Secondary[task]},
		{"fallback", r.tiers.Fallback[task]},
	} {
		for _, m := range t.items {
			if m == model {
				return t.name
			}
		}
	}
	if legacy, ok := r.Legacy(task); ok && legacy == model {
		return "legacy"
	}
	return "default"
}
