package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ocrr/internal/agent"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
	"ocrr/internal/exporter"
	"ocrr/internal/pipeline"
	"ocrr/internal/server"
	"ocrr/internal/sheets"
	"ocrr/internal/storage"
)

// App holds the long-lived services shared by the CLI, the HTTP server and
// the mail listener.
type App struct {
	Cfg       config.Config
	Log       zerolog.Logger
	DB        *storage.DB
	Catalog   *catalog.Store
	Merger    *pipeline.Merger
	Processor *pipeline.ProcessingService
	Exports   *pipeline.ExportService
}

func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := catalog.NewStore(catalogLoader(cfg, db), cfg.ReferenceLengths, log)
	merger := pipeline.NewMerger(cfg, store, log)

	completer, err := agent.NewCompleter(ctx, cfg, log)
	llmReady := err == nil
	if !llmReady {
		log.Warn().Err(err).Str("provider", cfg.LLMProvider).Msg("llm unavailable, extraction and correction agents disabled")
	}

	var extractor pipeline.LineExtractor
	var corrector exporter.Corrector
	if llmReady && completer != nil {
		extractor = agent.NewExtractor(completer, log)
	}
	if llmReady && cfg.EnableValidationAgent {
		corrector = agent.NewValidator(completer, store, cfg, log)
	}

	var coordinator *exporter.Coordinator
	if sheetsClient := sheets.NewClient(cfg, log); sheetsClient.Enabled() {
		coordinator = exporter.NewCoordinator(merger, sheetsClient, corrector, exporter.OptionsFromConfig(cfg), log)
	}

	return &App{
		Cfg:       cfg,
		Log:       log,
		DB:        db,
		Catalog:   store,
		Merger:    merger,
		Processor: pipeline.NewProcessingService(db, cfg, merger, extractor, log),
		Exports:   pipeline.NewExportService(db, coordinator, cfg.OutputDir, log),
	}, nil
}

func (a *App) Server() *server.Server {
	return server.New(a.Cfg, a.Catalog, a.Processor, a.Exports, a.Log)
}

func (a *App) Close() error {
	return a.DB.Close()
}

func catalogLoader(cfg config.Config, db *storage.DB) catalog.Loader {
	if cfg.CatalogSource == "db" {
		return catalog.DBLoader(db)
	}
	return catalog.FileLoader(cfg.CatalogCandidates()...)
}
