package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"docbreak/internal/config"
	"docbreak/internal/crypto"
	"docbreak/internal/llm"
	"docbreak/internal/models"

	"go.uber.org/zap"
)

// liveClient lets saved settings swap provider keys without restarting the
// breakdown service.
type liveClient struct {
	mu  sync.RWMutex
	c   *llm.Client
	log *zap.Logger
}

func (l *liveClient) Call(ctx context.Context, model, prompt string, timeout time.Duration) (string, error) {
	l.mu.RLock()
	c := l.c
	l.mu.RUnlock()
	return c.Call(ctx, model, prompt, timeout)
}

func (l *liveClient) rebuild(cfg llm.Config) {
	c := llm.NewClient(cfg, l.log)
	l.mu.Lock()
	l.c = c
	l.mu.Unlock()
}

// ========== Models ==========

func (s *Server) parseTask(w http.ResponseWriter, r *http.Request) (models.Task, bool) {
	task, err := models.ParseTask(r.PathValue("task"))
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return task, true
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	task, ok := s.parseTask(w, r)
	if !ok {
		return
	}
	jsonResp(w, map[string]interface{}{
		"task":    task,
		"default": s.registry.DefaultModel(task),
		"models":  s.registry.Info(task),
		"failed":  s.orch.State().Failed(task),
	})
}

// handleSetModel pins a task's default model and remembers it in the saved
// settings. An empty model clears the pin.
func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	task, ok := s.parseTask(w, r)
	if !ok {
		return
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	model := strings.TrimSpace(req.Model)
	s.registry.SetOverride(task, model)

	s.mu.Lock()
	if model == "" {
		delete(s.settings.Models, string(task))
	} else {
		s.settings.Models[string(task)] = model
	}
	err := config.SaveSettings(s.cfg.SettingsPath(), s.settings, s.sealer)
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("settings.save_failed", zap.Error(err))
	}
	s.log.Info("models.override", zap.String("task", string(task)), zap.String("model", model))
	jsonResp(w, map[string]string{"task": string(task), "default": s.registry.DefaultModel(task)})
}

// handlePreset applies a model preset at runtime and optionally writes it to
// the .env file so it survives restarts.
func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key      string `json:"key"`
		WriteEnv bool   `json:"write_env"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	p, err := s.registry.ApplyPreset(req.Key)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.WriteEnv {
		if err := config.WritePreset(".env", p); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.log.Info("models.preset", zap.String("preset", p.Key), zap.Bool("write_env", req.WriteEnv))
	jsonResp(w, map[string]interface{}{"preset": p.Key, "name": p.Name, "models": p.Models})
}

// ========== Fallback ==========

func (s *Server) handleFallbackStatus(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, s.orch.State().Snapshot())
}

// handleFallbackReset clears one task's failure memory (?task=) or all of it.
func (s *Server) handleFallbackReset(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("task"); t != "" {
		task, err := models.ParseTask(t)
		if err != nil {
			jsonErr(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.orch.State().Reset(task)
	} else {
		s.orch.State().ResetAll()
	}
	jsonResp(w, map[string]string{"status": "reset"})
}

// ========== Settings ==========

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	keys := make(map[string]string, len(config.Providers))
	for _, p := range config.Providers {
		keys[p.ID] = crypto.Mask(s.cfg.ProviderKeys[p.ID])
	}
	resp := map[string]interface{}{
		"openrouter_key": crypto.Mask(s.cfg.OpenRouterKey),
		"provider_keys":  keys,
		"models":         s.settings.Models,
	}
	s.mu.RUnlock()
	jsonResp(w, resp)
}

// handleSaveSettings stores new provider keys sealed on disk and swaps the
// remote client. Masked values sent back by the UI are ignored.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OpenRouterKey string            `json:"openrouter_key"`
		ProviderKeys  map[string]string `json:"provider_keys"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	isNew := func(k string) bool { return k != "" && !strings.Contains(k, "****") }

	s.mu.Lock()
	if isNew(req.OpenRouterKey) {
		s.settings.OpenRouterKey = req.OpenRouterKey
	}
	for id, k := range req.ProviderKeys {
		if isNew(k) {
			s.settings.ProviderKeys[id] = k
		}
	}
	s.cfg.Apply(s.settings)
	err := config.SaveSettings(s.cfg.SettingsPath(), s.settings, s.sealer)
	llmCfg := s.cfg.LLM()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.client.rebuild(llmCfg)
	s.log.Info("settings.updated", zap.Int("provider_keys", len(llmCfg.Routes)), zap.Bool("openrouter", llmCfg.Default.APIKey != ""))
	jsonResp(w, map[string]string{"status": "saved"})
}
