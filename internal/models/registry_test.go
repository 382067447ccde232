package models

import (
	"reflect"
	"testing"
)

func abcTiers() Tiers {
	return Tiers{
		Primary:   map[Task][]string{"x": {"A", "B"}},
		Secondary: map[Task][]string{"x": {"B", "C"}},
		Fallback:  map[Task][]string{"x": {"A"}},
		Legacy:    map[Task]string{"x": "L", "orphan": "O"},
	}
}

func noEnv(string) string { return "" }

// ========== ListModels ==========

func TestListModels_DedupPreservesOrder(t *testing.T) {
	r := New(abcTiers()).WithEnv(noEnv)
	got := r.ListModels("x")
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListModels = %v, want %v", got, want)
	}
}

func TestListModels_UnknownTask(t *testing.T) {
	r := New(abcTiers()).WithEnv(noEnv)
	if got := r.ListModels("orphan"); !reflect.DeepEqual(got, []string{"O"}) {
		t.Errorf("orphan = %v, want [O]", got)
	}
	if got := r.ListModels("nothing"); !reflect.DeepEqual(got, []string{GlobalDefault}) {
		t.Errorf("nothing = %v, want [%s]", got, GlobalDefault)
	}
}

func TestListModels_DefaultTiers(t *testing.T) {
	r := NewDefault().WithEnv(noEnv)
	for _, task := range Tasks() {
		list := r.ListModels(task)
		if len(list) == 0 {
			t.Fatalf("%s: empty list", task)
		}
		if list[0] != "openai/gpt-4o" {
			t.Errorf("%s: first = %q, want openai/gpt-4o", task, list[0])
		}
		seen := map[string]bool{}
		for _, m := range list {
			if seen[m] {
				t.Errorf("%s: duplicate %q", task, m)
			}
			seen[m] = true
		}
	}
	// mistral-large is primary for reviewer and secondary too; it must appear once.
	if got := len(r.ListModels(TaskReviewer)); got != 14 {
		t.Errorf("reviewer list length = %d, want 14", got)
	}
}

// ========== NextModel ==========

func TestNextModel_Scenario(t *testing.T) {
	r := New(abcTiers()).WithEnv(noEnv)
	if got, ok := r.NextModel("x", "B", nil); !ok || got != "C" {
		t.Errorf("NextModel(B) = %q,%v, want C", got, ok)
	}
	if got, ok := r.NextModel("x", "C", nil); !ok || got != "L" {
		t.Errorf("NextModel(C) = %q,%v, want legacy L", got, ok)
	}
	if got, ok := r.NextModel("x", "C", map[string]bool{"L": true}); ok {
		t.Errorf("NextModel(C, excl L) = %q, want none", got)
	}
}

func TestNextModel_UnknownCurrentStartsFromBeginning(t *testing.T) {
	r := New(abcTiers()).WithEnv(noEnv)
	if got, _ := r.NextModel("x", "zzz", nil); got != "A" {
		t.Errorf("NextModel(zzz) = %q, want A", got)
	}
	if got, _ := r.NextModel("x", "zzz", map[string]bool{"A": true}); got != "B" {
		t.Errorf("NextModel(zzz, excl A) = %q, want B", got)
	}
}

func TestNextModel_NeverReturnsExcluded(t *testing.T) {
	r := NewDefault().WithEnv(noEnv)
	excluded := map[string]bool{}
	current := ""
	for {
		m, ok := r.NextModel(TaskBreakdown, current, excluded)
		if !ok {
			break
		}
		if excluded[m] {
			t.Fatalf("returned excluded model %q", m)
		}
		excluded[m] = true
		current = m
	}
	want := len(r.ListModels(TaskBreakdown)) + 1
	if len(excluded) != want {
		t.Errorf("walked %d models, want %d", len(excluded), want)
	}
}

func TestNextModel_LegacyOnlyAfterTiers(t *testing.T) {
	r := New(abcTiers()).WithEnv(noEnv)
	if got, _ := r.NextModel("x", "A", nil); got == "L" {
		t.Error("legacy returned before tiers were exhausted")
	}
}

// ========== DefaultModel & presets ==========

func TestDefaultModel_Precedence(t *testing.T) {
	env := map[string]string{"BREAKDOWN_MODEL": "env/model"}
	r := NewDefault().WithEnv(func(k string) string { return env[k] })

	if got := r.DefaultModel(TaskBreakdown); got != "env/model" {
		t.Errorf("env default = %q, want env/model", got)
	}
	if got := r.DefaultModel(TaskReviewer); got != "openai/gpt-4o" {
		t.Errorf("tier default = %q, want openai/gpt-4o", got)
	}
	r.SetOverride(TaskBreakdown, "pinned/model")
	if got := r.DefaultModel(TaskBreakdown); got != "pinned/model" {
		t.Errorf("override default = %q, want pinned/model", got)
	}
	r.SetOverride(TaskBreakdown, "")
	if got := r.DefaultModel(TaskBreakdown); got != "env/model" {
		t.Errorf("cleared override = %q, want env/model", got)
	}
}

func TestApplyPreset(t *testing.T) {
	r := NewDefault().WithEnv(noEnv)
	p, err := r.ApplyPreset("FREE")
	if err != nil {
		t.Fatalf("ApplyPreset: %v", err)
	}
	if p.Key != "free" {
		t.Errorf("key = %q", p.Key)
	}
	for _, task := range Tasks() {
		if got := r.DefaultModel(task); got != "mistralai/mistral-small" {
			t.Errorf("%s = %q, want mistralai/mistral-small", task, got)
		}
	}
	if _, err := r.ApplyPreset("luxury"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestPresetEnvVars(t *testing.T) {
	p, _ := LookupPreset("legacy")
	vars := p.EnvVars()
	if vars["REANALYZER_MODEL"] != "openrouter/horizon-beta" {
		t.Errorf("REANALYZER_MODEL = %q", vars["REANALYZER_MODEL"])
	}
	if len(vars) != 4 {
		t.Errorf("len = %d, want 4", len(vars))
	}
}

func TestParseTask(t *testing.T) {
	if got, err := ParseTask(" Reviewer "); err != nil || got != TaskReviewer {
		t.Errorf("ParseTask = %q, %v", got, err)
	}
	if _, err := ParseTask("summarizer"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestInfo(t *testing.T) {
	r := NewDefault().WithEnv(noEnv)
	info := r.Info(TaskBreakdown)
	if info[0].Model != "openai/gpt-4o" || info[0].Tier != "primary" || info[0].Metadata == nil {
		t.Errorf("first = %+v", info[0])
	}
	last := info[len(info)-1]
	if last.Tier != "legacy" || last.Priority != len(info) {
		t.Errorf("last = %+v", last)
	}
}
