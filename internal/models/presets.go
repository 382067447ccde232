package models

import (
	"fmt"
	"strings"
)

// Preset is a named set of per-task default models.
type Preset struct {
	Key    string
	Name   string
	Models map[Task]string
}

var presets = []Preset{
	{
		Key:  "premium",
		Name: "Premium Models (Most Reliable)",
		Models: map[Task]string{
			TaskBreakdown:  "openai/gpt-4o",
			TaskReviewer:   "anthropic/claude-3.5-sonnet",
			TaskFinalizer:  "openai/gpt-4o-mini",
			TaskReanalyzer: "openai/gpt-4o",
		},
	},
	{
		Key:  "standard",
		Name: "Standard Models (Good Balance)",
		Models: map[Task]string{
			TaskBreakdown:  "openai/gpt-3.5-turbo",
			TaskReviewer:   "mistralai/mistral-large",
			TaskFinalizer:  "openai/gpt-3.5-turbo",
			TaskReanalyzer: "openai/gpt-3.5-turbo",
		},
	},
	{
		Key:  "free",
		Name: "Free Models (Basic Performance)",
		Models: map[Task]string{
			TaskBreakdown:  "mistralai/mistral-small",
			TaskReviewer:   "mistralai/mistral-small",
			TaskFinalizer:  "mistralai/mistral-small",
			TaskReanalyzer: "mistralai/mistral-small",
		},
	},
	{
		Key:  "legacy",
		Name: "Legacy Models (Current Setup)",
		Models: map[Task]string{
			TaskBreakdown:  "deepseek/deepseek-r1-0528-qwen3-8b:free",
			TaskReviewer:   "tngtech/deepseek-r1t2-chimera:free",
			TaskFinalizer:  "deepseek/deepseek-r1-0528-qwen3-8b:free",
			TaskReanalyzer: "openrouter/horizon-beta",
		},
	},
}

// Presets returns the available presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by key, case-insensitively.
func LookupPreset(key string) (Preset, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

// EnvVars renders the preset as KEY=model pairs for a .env file.
func (p Preset) EnvVars() map[string]string {
	out := make(map[string]string, len(p.Models))
	for task, m := range p.Models {
		out[EnvKey(task)] = m
	}
	return out
}

// ApplyPreset sets every task override from the named preset.
func (r *Registry) ApplyPreset(key string) (Preset, error) {
	p, ok := LookupPreset(key)
	if !ok {
		return Preset{}, fmt.Errorf("preset %q not found", key)
	}
	for task, m := range p.Models {
		r.SetOverride(task, m)
	}
	return p, nil
}
