package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muffakir/legal-assistant/internal/bootstrap"
	"github.com/muffakir/legal-assistant/internal/config"
	"github.com/muffakir/legal-assistant/internal/core/ports"
	"github.com/muffakir/legal-assistant/internal/observability/logging"
	"github.com/muffakir/legal-assistant/internal/observability/metrics"
)

const service = "worker"

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		slog.Error("env_file_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: service, Ingestion: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		return processDocument(handlerCtx, logger, app.Repo, app.ProcessUC, workerMetrics, documentID)
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}

func processDocument(
	ctx context.Context,
	logger *slog.Logger,
	repo ports.DocumentRepository,
	processor ports.DocumentProcessor,
	workerMetrics *metrics.WorkerMetrics,
	documentID string,
) error {
	if doc, err := repo.GetByID(ctx, documentID); err == nil {
		workerMetrics.ObserveQueueLag(service, time.Since(doc.CreatedAt))
	}

	start := time.Now()
	workerMetrics.StartDocument()
	err := processor.ProcessByID(ctx, documentID)
	workerMetrics.FinishDocument(service, time.Since(start), err)
	if err != nil {
		return err
	}

	if doc, err := repo.GetByID(ctx, documentID); err == nil {
		workerMetrics.ObserveIndexedPassages(service, doc.ChunkCount)
	}
	logger.Info("document_processed", "document_id", documentID, "duration", time.Since(start))
	return nil
}
