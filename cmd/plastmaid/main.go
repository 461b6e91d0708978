package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/ent0n29/plastmaid/internal/analytics"
	"github.com/ent0n29/plastmaid/internal/config"
	"github.com/ent0n29/plastmaid/internal/detector"
	"github.com/ent0n29/plastmaid/internal/httpapi"
	"github.com/ent0n29/plastmaid/internal/logging"
	"github.com/ent0n29/plastmaid/internal/observability"
	"github.com/ent0n29/plastmaid/internal/pipeline"
	"github.com/ent0n29/plastmaid/internal/workspace"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("load .env", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config error", "err", err)
	}

	if err := os.MkdirAll(cfg.ProcessingDir, 0o755); err != nil {
		log.Fatal("create processing dir", "dir", cfg.ProcessingDir, "err", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Dir:          cfg.ProcessingDir,
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		ReportCaller: cfg.LogReportCaller,
	})
	if err != nil {
		log.Fatal("logging init failed", "err", err)
	}
	defer logCloser.Close()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store := analytics.NewStore(cfg.AnalyticsRetention, cfg.AnalyticsMaxEntries)
	store.SetEvictHook(func(analytics.Record) {
		metrics.AnalyticsEvicted()
		metrics.SetAnalyticsEntries(store.Len())
	})

	det, err := detector.NewDetector(detector.Config{
		Mode:      cfg.DetectorMode,
		CLIPath:   cfg.DetectorCLI,
		ModelPath: cfg.DetectorModelPath,
		Device:    cfg.DetectorDevice,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("detector init failed", "err", err)
	}
	logger.Info("detector ready", "detector", det.Name(), "model", cfg.DetectorModelPath)

	proc := pipeline.NewProcessor(pipeline.Config{
		WorkDir:         cfg.ProcessingDir,
		MaxConcurrent:   cfg.DetectorMaxConcurrency,
		DetectorTimeout: cfg.DetectorTimeout,
	}, det, analyticsRecorder{store: store, metrics: metrics}, metrics, logger)

	api := httpapi.New(cfg, httpapi.Deps{
		Workspaces:   workspace.NewManager(cfg.WorkspaceRoot, logger),
		Processor:    proc,
		Analytics:    store,
		Metrics:      metrics,
		Logger:       logger,
		DetectorName: det.Name(),
	})
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	store.StartJanitor(runCtx, cfg.AnalyticsJanitorInterval)

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr, "cors_origin", cfg.AllowedOrigin)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// analyticsRecorder keeps the entries gauge in step with the store.
type analyticsRecorder struct {
	store   *analytics.Store
	metrics *observability.Metrics
}

func (r analyticsRecorder) RecordProcessingTime(sessionID string, d time.Duration) {
	r.store.RecordProcessingTime(sessionID, d)
	r.metrics.SetAnalyticsEntries(r.store.Len())
}

func (r analyticsRecorder) RecordDetection(sessionID string, count int) {
	r.store.RecordDetection(sessionID, count)
	r.metrics.SetAnalyticsEntries(r.store.Len())
}
