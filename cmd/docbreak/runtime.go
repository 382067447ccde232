package main

import (
	"docbreak/internal/breakdown"
	"docbreak/internal/citation"
	"docbreak/internal/config"
	"docbreak/internal/crypto"
	"docbreak/internal/extractor"
	"docbreak/internal/fallback"
	"docbreak/internal/llm"
	"docbreak/internal/models"
	"docbreak/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runtime is the component graph shared by the subcommands. Remote pieces are
// built lazily so offline commands work without an API key.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	ext      *extractor.Extractor
	registry *models.Registry
}

func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg := config.Load()
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSealer(cfg.AppSecret)
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(cfg.SettingsPath(), sealer)
	if err != nil {
		return nil, err
	}
	cfg.Apply(settings)

	registry := models.NewDefault()
	for task, m := range cfg.ModelOverrides {
		registry.SetOverride(task, m)
	}
	ext := extractor.New(cfg.Extractor(), extractor.LibreOffice{Bin: cfg.LibreOfficeBin}, log)
	return &runtime{cfg: cfg, log: log, ext: ext, registry: registry}, nil
}

func (rt *runtime) close() {
	_ = rt.log.Sync()
}

func (rt *runtime) client() (*llm.Client, error) {
	if err := rt.cfg.Validate(); err != nil {
		return nil, err
	}
	return llm.NewClient(rt.cfg.LLM(), rt.log), nil
}

// service builds the full breakdown pipeline over the configured data dir.
func (rt *runtime) service() (*breakdown.Service, *store.Store, *citation.Locator, error) {
	client, err := rt.client()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.New(rt.cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	orch := fallback.New(rt.registry, fallback.NewState(), rt.log)
	locator := citation.New(rt.log)
	svc := breakdown.NewService(breakdown.Config{
		Timeout:        rt.cfg.LLMTimeout,
		MaxRetries:     rt.cfg.MaxModelRetries,
		MaxPromptChars: rt.cfg.MaxPromptChars,
	}, rt.ext, client, orch, st, locator, rt.log)
	return svc, st, locator, nil
}
