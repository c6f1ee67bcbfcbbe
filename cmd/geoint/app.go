package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/analyst"
	"github.com/hyperjump/geoint/internal/broadcast"
	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/detections"
	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/geo"
	"github.com/hyperjump/geoint/internal/ingest"
	"github.com/hyperjump/geoint/internal/llm"
	"github.com/hyperjump/geoint/internal/metrics"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/internal/prompt"
	"github.com/hyperjump/geoint/internal/retrieval"
	"github.com/hyperjump/geoint/internal/server"
	"github.com/hyperjump/geoint/internal/vision"
	"github.com/hyperjump/geoint/internal/watcher"
)

// App holds the initialized server components.
type App struct {
	Backend  retrieval.Backend
	Ingester *ingest.Ingester
	Hub      *broadcast.Hub
	Metrics  *metrics.Metrics
	Service  *analyst.Service
	Server   *server.Server
	Watcher  *watcher.Watcher
}

// Close releases the hub, watcher and retrieval backend.
func (a *App) Close() {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Backend != nil {
		_ = a.Backend.Close()
	}
}

// openIngester opens the configured retrieval backend and an ingester writing to it.
func openIngester(cfg *config.Config, logger *zap.Logger, opts ...ingest.Option) (retrieval.Backend, *ingest.Ingester, error) {
	backend, err := retrieval.Open(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open retrieval backend: %w", err)
	}
	opts = append([]ingest.Option{ingest.WithLogger(logger)}, opts...)
	return backend, ingest.NewIngester(backend, cfg.Ingest, opts...), nil
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	m := metrics.New()

	backend, ingester, err := openIngester(cfg, logger,
		ingest.WithOnIngested(func(res models.IngestResult) { m.AddIngestedChunks(res.Chunks) }),
	)
	if err != nil {
		return nil, err
	}
	app := &App{Backend: backend, Ingester: ingester, Metrics: m}

	retriever := retrieval.NewRetriever(backend,
		retrieval.WithTimeout(cfg.Retrieval.Timeout),
		retrieval.WithPreviewChars(cfg.Retrieval.PreviewChars),
		retrieval.WithLogger(logger),
	)
	gwOpts := []gateway.Option{gateway.WithLogger(logger), gateway.WithObserver(m)}
	store := detections.NewStore()
	app.Hub = broadcast.NewHub(store.Latest, broadcast.WithLogger(logger))

	app.Service = analyst.New(analyst.Deps{
		Detector:   vision.NewClient(cfg.Vision, gwOpts...),
		Model:      llm.NewClient(cfg.LLM, gwOpts...),
		Normalizer: geo.NewNormalizer(geo.NewProjection(cfg.Projection)),
		Store:      store,
		Retriever:  retriever,
		Assembler: prompt.NewAssembler(
			prompt.WithPersona(cfg.LLM.Persona),
			prompt.WithMaxSnippetChars(cfg.Retrieval.MaxSnippetChars),
		),
		Ingester: ingester,
	},
		analyst.WithLogger(logger),
		analyst.WithBroadcaster(app.Hub),
		analyst.WithRecorder(m),
		analyst.WithContextWindow(cfg.Retrieval.DefaultContextWindow, cfg.Retrieval.MaxContextWindow),
		analyst.WithHealthTimeout(cfg.Vision.HealthTimeout),
		analyst.WithStoragePaths(storagePaths(cfg)...),
	)

	srvOpts := []server.Option{
		server.WithHub(app.Hub),
		server.WithDefaultConfidence(cfg.Vision.DefaultConfidence),
	}
	if cfg.Metrics.EnabledOrDefault() {
		srvOpts = append(srvOpts, server.WithMetrics(m))
	}
	app.Server = server.NewServer(app.Service, &cfg.Server, logger, srvOpts...)

	if cfg.Ingest.Watch && len(cfg.Ingest.ReportsDirs) > 0 {
		app.Watcher = watcher.New(cfg.Ingest.ReportsDirs, cfg.Ingest.Extensions, reportHandler(ingester, logger),
			watcher.WithLogger(logger))
	}
	return app, nil
}

// ingestReportsDirs ingests every configured reports directory; a missing directory is skipped.
func ingestReportsDirs(ctx context.Context, ingester *ingest.Ingester, dirs []string, logger *zap.Logger) {
	for _, dir := range dirs {
		results, err := ingester.IngestDirectory(ctx, dir)
		if err != nil {
			logger.Warn("reports directory ingest incomplete", zap.String("dir", dir), zap.Error(err))
		}
		if len(results) > 0 {
			logger.Info("reports directory ingested", zap.String("dir", dir), zap.Int("reports", len(results)))
		}
	}
}

func reportHandler(ingester *ingest.Ingester, logger *zap.Logger) watcher.Handler {
	return watcher.HandlerFuncs{
		OnChange: func(path string) {
			if _, err := ingester.IngestFile(context.Background(), path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		OnRemove: func(path string) {
			if err := ingester.DeleteFile(context.Background(), path); err != nil {
				logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
			}
		},
	}
}

func storagePaths(cfg *config.Config) []string {
	if cfg.Retrieval.Backend == retrieval.BackendChromem {
		return []string{cfg.Storage.ChromemPath}
	}
	return []string{cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath}
}
