package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docbreak/internal/breakdown"
	"docbreak/internal/citation"
	"docbreak/internal/config"
	"docbreak/internal/crypto"
	"docbreak/internal/extractor"
	"docbreak/internal/fallback"
	"docbreak/internal/llm"
	"docbreak/internal/models"
	"docbreak/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sealer, err := crypto.NewSealer(cfg.AppSecret)
	if err != nil {
		log.Fatal("crypto.init_failed", zap.Error(err))
	}
	settings, err := config.LoadSettings(cfg.SettingsPath(), sealer)
	if err != nil {
		log.Fatal("settings.load_failed", zap.String("path", cfg.SettingsPath()), zap.Error(err))
	}
	cfg.Apply(settings)
	if err := cfg.Validate(); err != nil {
		log.Fatal("config.invalid", zap.Error(err))
	}

	srv, err := newServer(cfg, settings, sealer, nil, log)
	if err != nil {
		log.Fatal("server.init_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server.listening", zap.String("addr", "http://localhost:"+cfg.Port), zap.Int("workers", cfg.Workers))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server.serve_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server.shutdown_failed", zap.Error(err))
	}
	if err := srv.queue.Shutdown(shutdownCtx); err != nil {
		log.Warn("queue.shutdown_failed", zap.Error(err))
	}
	srv.locator.Close()
}

// newServer wires every component. A nil converter uses LibreOffice.
func newServer(cfg *config.Config, settings *config.Settings, sealer *crypto.Sealer, conv extractor.Converter, log *zap.Logger) (*Server, error) {
	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	registry := models.NewDefault()
	for task, m := range cfg.ModelOverrides {
		registry.SetOverride(task, m)
	}
	orch := fallback.New(registry, fallback.NewState(), log)

	if conv == nil {
		conv = extractor.LibreOffice{Bin: cfg.LibreOfficeBin}
	}
	ext := extractor.New(cfg.Extractor(), conv, log)
	locator := citation.New(log)
	client := &liveClient{c: llm.NewClient(cfg.LLM(), log), log: log}

	svc := breakdown.NewService(breakdown.Config{
		Timeout:        cfg.LLMTimeout,
		MaxRetries:     cfg.MaxModelRetries,
		MaxPromptChars: cfg.MaxPromptChars,
	}, ext, client, orch, st, locator, log)
	s := &Server{
		cfg:      cfg,
		settings: settings,
		sealer:   sealer,
		store:    st,
		ext:      ext,
		registry: registry,
		orch:     orch,
		locator:  locator,
		client:   client,
		svc:      svc,
		hub:      NewHub(log),
		log:      log,
	}
	s.queue = breakdown.NewQueue(documentProcessor{s}, log, breakdown.WithWorkers(cfg.Workers))
	return s, nil
}
