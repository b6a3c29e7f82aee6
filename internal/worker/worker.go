// Package worker implements the bounded-runtime consumer loop: it
// pulls batches of content-request messages, gates them through
// structural validation and the idempotency guard, and hands survivors
// to the pipeline orchestrator. One Run call is one worker invocation;
// the process exits when the runtime budget or the empty-queue window
// expires, and the scheduler starts the next invocation.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/metrics"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/pipeline"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/queue"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/store"
)

// Stats summarizes one worker invocation. Logged once at exit.
type Stats struct {
	Pulled         int
	Completed      int
	Clarifications int
	Failed         int
	Cancelled      int
	Retried        int
	Invalid        int
	Duplicates     int
	Deferred       int
}

// Processor settles one request. Satisfied by pipeline.Orchestrator.
type Processor interface {
	Process(ctx context.Context, req *domain.ContentRequest) pipeline.Result
}

// Worker drives the consume-validate-orchestrate loop.
type Worker struct {
	consumer queue.Consumer
	store    store.RequestStore
	orch     Processor
	cfg      config.WorkerConfig
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New constructs a worker. The processor, store and consumer must be
// non-nil.
func New(consumer queue.Consumer, st store.RequestStore, orch Processor, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer: consumer,
		store:    st,
		orch:     orch,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "worker")),
		now:      time.Now,
	}
}

// Run consumes until the runtime budget is spent, the queue stays
// empty past the idle window, or the context is cancelled. Messages
// still unprocessed when the budget expires are nacked so the next
// invocation picks them up immediately.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	deadline := w.now().Add(time.Duration(w.cfg.MaxRuntimeSeconds) * time.Second)
	pullTimeout := time.Duration(w.cfg.PullTimeoutSecs) * time.Second
	idleWindow := time.Duration(w.cfg.EmptyQueueSecs) * time.Second

	w.logger.Info("worker starting",
		slog.Int("batch_size", w.cfg.BatchSize),
		slog.Int("max_runtime_seconds", w.cfg.MaxRuntimeSeconds),
		slog.Int("empty_queue_seconds", w.cfg.EmptyQueueSecs))

	var idleSince time.Time

	for {
		if err := ctx.Err(); err != nil {
			w.finishRun("context cancelled", stats)
			return stats, err
		}
		if !w.now().Before(deadline) {
			w.finishRun("runtime budget spent", stats)
			return stats, nil
		}

		msgs, err := w.consumer.Pull(ctx, w.cfg.BatchSize, pullTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.finishRun("context cancelled", stats)
				return stats, err
			}
			metrics.IncPull("error")
			w.logger.Error("queue pull failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		if len(msgs) == 0 {
			metrics.IncPull("empty")
			if idleSince.IsZero() {
				idleSince = w.now()
			}
			if w.now().Sub(idleSince) >= idleWindow {
				w.finishRun("queue idle", stats)
				return stats, nil
			}
			continue
		}

		metrics.IncPull("messages")
		idleSince = time.Time{}
		stats.Pulled += len(msgs)

		for _, msg := range msgs {
			// The budget is re-checked between messages so a long
			// batch cannot blow past it; leftovers are redelivered.
			if !w.now().Before(deadline) {
				w.redeliverLater(msg, &stats)
				continue
			}
			w.handle(ctx, msg, &stats)
		}
	}
}

func (w *Worker) finishRun(reason string, stats Stats) {
	w.logger.Info("worker exiting",
		slog.String("reason", reason),
		slog.Int("pulled", stats.Pulled),
		slog.Int("completed", stats.Completed),
		slog.Int("clarifications", stats.Clarifications),
		slog.Int("failed", stats.Failed),
		slog.Int("cancelled", stats.Cancelled),
		slog.Int("retried", stats.Retried),
		slog.Int("invalid", stats.Invalid),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("deferred", stats.Deferred))
}

func (w *Worker) redeliverLater(msg queue.Message, stats *Stats) {
	stats.Deferred++
	if err := msg.Nak(); err != nil {
		w.logger.Warn("failed to nack deferred message", slog.String("error", err.Error()))
	}
}

// handle processes one delivery end to end. Every path either acks or
// nacks the message exactly once.
func (w *Worker) handle(ctx context.Context, msg queue.Message, stats *Stats) {
	deliveries := msg.Deliveries()
	if deliveries > w.cfg.WarnDeliveries {
		w.logger.Warn("message repeatedly redelivered",
			slog.Int("deliveries", deliveries),
			slog.Int("max_deliveries", w.cfg.MaxDeliveries))
	}

	payload, problems := validatePayload(msg.Data())
	if len(problems) > 0 {
		stats.Invalid++
		metrics.IncMessage("invalid")
		w.logger.Error("rejecting structurally invalid message",
			slog.String("problems", strings.Join(problems, "; ")),
			slog.Int("deliveries", deliveries))
		w.nak(msg)
		return
	}

	id := uuid.MustParse(payload.RequestID)
	log := w.logger.With(
		slog.String("request_id", payload.RequestID),
		slog.String("correlation_id", payload.CorrelationID))

	req, err := w.store.Get(ctx, id)
	if errors.Is(err, store.ErrRequestNotFound) && payload.CorrelationID != "" {
		// Correlation ID is the producer-side idempotency key: a
		// republished message may carry a fresh request ID for a row
		// created under an earlier one.
		req, err = w.store.GetByCorrelationID(ctx, payload.CorrelationID)
	}
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			// The producer commits the row before publishing; absence
			// usually means a read raced the commit. Redeliver.
			stats.Retried++
			metrics.IncMessage("unknown_request")
			log.Warn("no persisted request for message, will retry",
				slog.Int("deliveries", deliveries))
			w.nak(msg)
			return
		}
		stats.Retried++
		metrics.IncMessage("store_error")
		log.Error("failed to load request", slog.String("error", err.Error()))
		w.nak(msg)
		return
	}

	// Idempotency guard: a redelivery of an already-settled request is
	// acked without touching any backend.
	if req.IsTerminal() {
		stats.Duplicates++
		metrics.IncMessage("duplicate")
		log.Info("request already settled, dropping duplicate delivery",
			slog.String("status", string(req.Status)),
			slog.Int("deliveries", deliveries))
		w.ack(msg)
		return
	}

	// A request parked for clarification keeps its questions until the
	// student answers through a fresh message; the stale delivery that
	// raced the park is dropped.
	if req.Status == domain.StatusPending && req.Metadata.Kind == domain.AuxClarification {
		stats.Duplicates++
		metrics.IncMessage("duplicate")
		log.Info("request awaiting clarification, dropping delivery")
		w.ack(msg)
		return
	}

	result := w.orch.Process(ctx, req)
	metrics.IncMessage(result.String())

	switch result {
	case pipeline.ResultCompleted:
		stats.Completed++
		w.ack(msg)
	case pipeline.ResultClarification:
		stats.Clarifications++
		w.ack(msg)
	case pipeline.ResultFailed:
		stats.Failed++
		w.ack(msg)
	case pipeline.ResultCancelled:
		stats.Cancelled++
		w.ack(msg)
	case pipeline.ResultRetry:
		stats.Retried++
		w.nak(msg)
	}
}

func (w *Worker) ack(msg queue.Message) {
	if err := msg.Ack(); err != nil {
		w.logger.Warn("ack failed", slog.String("error", err.Error()))
	}
}

func (w *Worker) nak(msg queue.Message) {
	if err := msg.Nak(); err != nil {
		w.logger.Warn("nack failed", slog.String("error", err.Error()))
	}
}
