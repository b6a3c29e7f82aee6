// Package main implements the content-generation worker: a
// bounded-runtime process that drains the request queue, drives each
// request through the generation pipeline, and exits so the scheduler
// can start the next invocation.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/metrics"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/notify"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/pipeline"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/gemini"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/logger"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/openai"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/postgres"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/refsvc"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/render"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/queue"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/redact"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

// run wires every dependency explicitly and executes one worker
// invocation. Construction order follows the dependency graph: config,
// logging, storage, transport, backends, orchestrator, loop.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Worker.LogLevel)
	metrics.MustRegister()

	appLogger.Info("configuration loaded",
		slog.String("database", redact.String(cfg.Database.URL)),
		slog.String("queue", redact.String(cfg.Queue.URL)),
		slog.String("stream", cfg.Queue.Stream),
		slog.Int("batch_size", cfg.Worker.BatchSize))

	// SIGINT/SIGTERM cancel the context; the loop observes it between
	// pulls and between messages.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	requestStore := postgres.NewPostgresRequestStore(db, appLogger)

	queueClient, err := queue.Connect(ctx, cfg.Queue, appLogger)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer queueClient.Close()

	consumer, err := queueClient.PullConsumer(ctx, cfg.Worker.MaxDeliveries)
	if err != nil {
		return fmt.Errorf("creating pull consumer: %w", err)
	}

	backends, err := buildBackends(ctx, cfg, queueClient, appLogger)
	if err != nil {
		return err
	}

	// Metrics are scraped out of band on a sidecar listener; the
	// worker itself serves no API.
	if addr := os.Getenv("VIVIDLY_METRICS_ADDR"); addr != "" {
		go serveMetrics(addr, appLogger)
	}

	retry := pipeline.RetryPolicy{
		Attempts:  cfg.Worker.StageAttempts,
		BaseDelay: time.Duration(cfg.Worker.StageRetryDelaySecs) * time.Second,
	}
	orch := pipeline.NewOrchestrator(requestStore, backends, retry, appLogger)
	w := worker.New(consumer, requestStore, orch, cfg.Worker, appLogger)

	stats, err := w.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker loop: %w", err)
	}

	appLogger.Info("invocation finished",
		slog.Int("pulled", stats.Pulled),
		slog.Int("completed", stats.Completed),
		slog.Int("failed", stats.Failed))
	return nil
}

// buildBackends constructs the generation backends. Speech and video
// are optional: a worker without speech or render configuration still
// serves text-only requests.
func buildBackends(ctx context.Context, cfg *config.Config, queueClient *queue.Client, appLogger *slog.Logger) (pipeline.Backends, error) {
	llm, err := gemini.NewClient(ctx, appLogger, cfg.LLM)
	if err != nil {
		return pipeline.Backends{}, fmt.Errorf("creating llm client: %w", err)
	}

	refs, err := refsvc.NewClient(cfg.Retrieval, appLogger)
	if err != nil {
		return pipeline.Backends{}, fmt.Errorf("creating retrieval client: %w", err)
	}

	backends := pipeline.Backends{
		Topics:   gemini.NewTopicExtractor(llm),
		Refs:     refs,
		Scripts:  gemini.NewScriptGenerator(llm),
		Notifier: notify.NewEventNotifier(queueClient, cfg.Queue.NotifySubject, appLogger),
	}

	if cfg.Render.BaseURL != "" {
		renderClient, err := render.NewClient(cfg.Render, appLogger)
		if err != nil {
			return pipeline.Backends{}, fmt.Errorf("creating render client: %w", err)
		}
		backends.Renderer = renderClient
		backends.Processor = renderClient

		if cfg.Speech.OpenAIAPIKey != "" {
			speech, err := openai.NewSpeechSynthesizer(cfg.Speech, renderClient, appLogger)
			if err != nil {
				return pipeline.Backends{}, fmt.Errorf("creating speech synthesizer: %w", err)
			}
			backends.Speech = speech
		}
	}

	return backends, nil
}

func serveMetrics(addr string, appLogger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		appLogger.Warn("metrics listener stopped", slog.String("error", err.Error()))
	}
}
