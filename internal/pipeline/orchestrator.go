package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/metrics"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/redact"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/store"
)

// Result is how one delivery of a request finished, from the consumer
// loop's point of view: everything except ResultRetry acknowledges the
// message.
type Result int

const (
	// ResultCompleted means the request reached completed.
	ResultCompleted Result = iota

	// ResultClarification means the request stays pending awaiting
	// student input.
	ResultClarification

	// ResultFailed means the request was persisted as failed.
	ResultFailed

	// ResultCancelled means a cancellation signal was observed at a
	// stage boundary.
	ResultCancelled

	// ResultRetry means the delivery could not settle the request
	// (interrupted backoff, concurrent writer): nack the message and
	// let redelivery resume the pipeline.
	ResultRetry
)

// String returns a label for logs and counters.
func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultClarification:
		return "clarification"
	case ResultFailed:
		return "failed"
	case ResultCancelled:
		return "cancelled"
	case ResultRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Failure category codes persisted on terminal failures.
const (
	CodeValidationError = "validation_error"
	CodeRetrievalError  = "retrieval_error"
	CodeGenerationError = "generation_error"
	CodeContentPolicy   = "content_policy"
	CodeSpeechError     = "speech_error"
	CodeRenderError     = "render_error"
	CodeProcessingError = "processing_error"
	CodeStateConflict   = "state_conflict"
)

// Backends bundles the generation backend ports the orchestrator
// drives. Each is constructed once per worker process and passed in
// explicitly.
type Backends struct {
	Topics    backend.TopicExtractor
	Refs      backend.ReferenceRetriever
	Scripts   backend.ScriptGenerator
	Speech    backend.SpeechSynthesizer
	Renderer  backend.VideoRenderer
	Processor backend.VideoProcessor
	Notifier  backend.Notifier
}

// RetryPolicy bounds the in-stage retries applied to transient backend
// failures. The backends themselves never retry; the orchestrator owns
// the whole attempt budget so exhaustion has a single place to turn
// into a terminal failure.
type RetryPolicy struct {
	// Attempts is the total number of tries per stage, including the
	// first.
	Attempts int

	// BaseDelay is the backoff before the second attempt; it doubles
	// for each further attempt.
	BaseDelay time.Duration
}

// Orchestrator advances a content request through the generation
// pipeline one stage at a time, persisting status and artifacts after
// every stage so a crash or redelivery resumes instead of restarting.
type Orchestrator struct {
	store    store.RequestStore
	backends Backends
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewOrchestrator wires an orchestrator. All backends and the store
// must be non-nil except Speech/Renderer/Processor, which may be nil
// on workers that only serve text requests; a video request reaching
// a nil video backend fails terminally rather than panicking.
func NewOrchestrator(st store.RequestStore, backends Backends, retry RetryPolicy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if retry.BaseDelay < 0 {
		retry.BaseDelay = 0
	}
	return &Orchestrator{
		store:    st,
		backends: backends,
		retry:    retry,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// stage is one step of the canonical path. Each stage persists its
// entry status before running and its artifacts after succeeding.
type stage struct {
	status domain.RequestStatus
	// ready reports whether the persisted artifacts satisfy the
	// stage's inputs; resume falls back to an earlier stage otherwise.
	ready func(a domain.Artifacts) bool
	// skip reports whether the stage should be bypassed for this
	// request.
	skip func(req *domain.ContentRequest) bool
	run  func(ctx context.Context, req *domain.ContentRequest, a *domain.Artifacts) StageOutcome
}

func (o *Orchestrator) stages() []stage {
	always := func(domain.Artifacts) bool { return true }
	never := func(*domain.ContentRequest) bool { return false }
	textOnly := func(req *domain.ContentRequest) bool { return req.TextOnly() }

	return []stage{
		{status: domain.StatusValidating, ready: always, skip: never, run: o.runValidate},
		{status: domain.StatusRetrieving, ready: func(a domain.Artifacts) bool { return a.Topic != "" }, skip: never, run: o.runRetrieve},
		{status: domain.StatusGeneratingScript, ready: func(a domain.Artifacts) bool { return a.Topic != "" }, skip: never, run: o.runScript},
		{status: domain.StatusGeneratingVideo, ready: func(a domain.Artifacts) bool { return a.Script != "" }, skip: textOnly, run: o.runVideo},
		{status: domain.StatusProcessingVideo, ready: func(a domain.Artifacts) bool { return a.VideoURL != "" }, skip: textOnly, run: o.runProcess},
		{status: domain.StatusNotifying, ready: always, skip: never, run: nil},
	}
}

// statusStageIndex maps a persisted status to the index of the stage
// that should run next (for pending) or run again (for in-flight
// statuses, whose work may have been interrupted mid-call).
var statusStageIndex = map[domain.RequestStatus]int{
	domain.StatusPending:          0,
	domain.StatusValidating:       0,
	domain.StatusRetrieving:       1,
	domain.StatusGeneratingScript: 2,
	domain.StatusGeneratingVideo:  3,
	domain.StatusProcessingVideo:  4,
	domain.StatusNotifying:        5,
}

// Process drives a request from its current stage to a resting state.
// A redelivered in-flight request resumes from its persisted stage
// after re-validating that the stage's input artifacts exist, falling
// back to the earliest satisfiable stage otherwise.
func (o *Orchestrator) Process(ctx context.Context, req *domain.ContentRequest) Result {
	log := o.logger.With(
		slog.String("request_id", req.ID.String()),
		slog.String("correlation_id", req.CorrelationID),
	)

	stages := o.stages()
	idx, ok := statusStageIndex[req.Status]
	if !ok {
		// Terminal statuses are filtered by the idempotency guard;
		// reaching here means the guard was bypassed.
		log.Warn("request in unexpected status", slog.String("status", string(req.Status)))
		return ResultRetry
	}

	artifacts := req.Metadata.Artifacts

	// Precondition re-validation for resume: drop back until the
	// stage's inputs are satisfied by the persisted artifacts. Stages
	// rerun this way stay behind the persisted status, so their
	// checkpoints are written as same-status updates rather than
	// backward transitions, which the store refuses.
	persistedIdx := idx
	for idx > 0 && !stages[idx].ready(artifacts) {
		idx--
	}
	if idx != persistedIdx {
		log.Info("resume preconditions unmet, falling back",
			slog.String("persisted_status", string(req.Status)),
			slog.String("resumed_stage", string(stages[idx].status)))
	}

	for ; idx < len(stages); idx++ {
		st := stages[idx]

		// Cancellation is observed only at stage boundaries: an
		// in-flight backend call is never interrupted.
		if cancelled, res := o.checkCancelled(ctx, req.ID, log); cancelled {
			return res
		}

		if st.skip(req) {
			log.Info("stage skipped for text-only request",
				slog.String("stage", string(st.status)))
			metrics.IncStage(string(st.status), "skipped")
			continue
		}

		if st.status == domain.StatusNotifying {
			return o.finish(ctx, req, artifacts, log)
		}

		checkpointStatus := st.status
		if idx < persistedIdx {
			checkpointStatus = req.Status
		}

		if ok := o.persist(ctx, req, checkpointStatus, domain.RequestAux{Kind: domain.AuxNone, Artifacts: artifacts}); !ok {
			// A concurrent writer moved the request; redeliver and let
			// the guard re-evaluate.
			log.Warn("stage entry write refused", slog.String("stage", string(st.status)))
			return ResultRetry
		}

		start := time.Now()
		outcome := o.runStage(ctx, st, req, &artifacts, log)
		metrics.IncStage(string(st.status), outcome.Kind.String())
		metrics.ObserveStage(string(st.status), time.Since(start).Seconds())

		switch outcome.Kind {
		case OutcomeSuccess:
			// Checkpoint the stage's artifacts before advancing.
			if ok := o.persist(ctx, req, checkpointStatus, domain.RequestAux{Kind: domain.AuxNone, Artifacts: artifacts}); !ok {
				log.Warn("artifact checkpoint refused", slog.String("stage", string(st.status)))
				return ResultRetry
			}

		case OutcomeClarification:
			return o.parkForClarification(ctx, req, outcome.Clarification, artifacts, log)

		case OutcomeRetryable:
			// Only reachable when the context died during backoff; the
			// next delivery resumes from the persisted checkpoint.
			log.Warn("stage interrupted during retry backoff",
				slog.String("stage", string(st.status)),
				slog.String("error", redact.Error(outcome.Err)))
			return ResultRetry

		case OutcomeTerminal:
			return o.fail(ctx, req, st.status, outcome, artifacts, log)
		}
	}

	// Unreachable: the notifying stage returns.
	return ResultRetry
}

// runStage executes one stage, retrying transient failures in place
// with exponential backoff. Exhausting the attempts converts the
// failure into a terminal outcome under its failure code, so the
// request reaches failed instead of sitting in an in-flight status
// after the transport stops redelivering.
func (o *Orchestrator) runStage(ctx context.Context, st stage, req *domain.ContentRequest, a *domain.Artifacts, log *slog.Logger) StageOutcome {
	var outcome StageOutcome
	for attempt := 1; ; attempt++ {
		outcome = st.run(ctx, req, a)
		if outcome.Kind != OutcomeRetryable {
			return outcome
		}
		if attempt >= o.retry.Attempts {
			break
		}

		delay := o.retry.BaseDelay << (attempt - 1)
		log.Warn("transient stage failure, retrying",
			slog.String("stage", string(st.status)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", redact.Error(outcome.Err)))
		if _, err := o.store.IncrementRetry(ctx, req.ID); err != nil {
			log.Error("failed to increment retry count", slog.String("error", err.Error()))
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return outcome
		}
	}

	return terminal(outcome.Code, fmt.Errorf("exhausted %d attempts: %w", o.retry.Attempts, outcome.Err))
}

// checkCancelled re-reads the request and reports whether an external
// cancellation arrived.
func (o *Orchestrator) checkCancelled(ctx context.Context, id uuid.UUID, log *slog.Logger) (bool, Result) {
	current, err := o.store.Get(ctx, id)
	if err != nil {
		log.Error("failed to re-read request at stage boundary", slog.String("error", err.Error()))
		return true, ResultRetry
	}
	if current.Status == domain.StatusCancelled {
		log.Info("request cancelled, stopping pipeline")
		return true, ResultCancelled
	}
	return false, ResultCompleted
}

// persist writes a status checkpoint, tolerating same-status rewrites.
func (o *Orchestrator) persist(ctx context.Context, req *domain.ContentRequest, status domain.RequestStatus, aux domain.RequestAux) bool {
	updated, err := o.store.UpdateStatus(ctx, req.ID, status, string(status), aux)
	if err != nil {
		o.logger.Error("status persist failed",
			slog.String("request_id", req.ID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return false
	}
	if updated {
		req.Status = status
		req.CurrentStage = string(status)
		req.Metadata = aux
	}
	return updated
}

// parkForClarification leaves the request pending with questions
// attached; the message is acked and a fresh message arrives once the
// student answers.
func (o *Orchestrator) parkForClarification(ctx context.Context, req *domain.ContentRequest, clar *domain.Clarification, artifacts domain.Artifacts, log *slog.Logger) Result {
	aux := domain.NewClarificationAux(clar.Questions, clar.Reasoning, artifacts)
	if ok := o.persist(ctx, req, domain.StatusPending, aux); !ok {
		return ResultRetry
	}
	log.Info("request parked for clarification",
		slog.Int("questions", len(clar.Questions)))
	return ResultClarification
}

// fail persists the terminal failure and emits a best-effort failure
// notification.
func (o *Orchestrator) fail(ctx context.Context, req *domain.ContentRequest, at domain.RequestStatus, outcome StageOutcome, artifacts domain.Artifacts, log *slog.Logger) Result {
	log.Error("stage failed terminally",
		slog.String("stage", string(at)),
		slog.String("code", outcome.Code),
		slog.String("error", redact.Error(outcome.Err)))

	aux := domain.NewFailureAux(outcome.Code, userFacingMessage(outcome), artifacts)
	if ok := o.persist(ctx, req, domain.StatusFailed, aux); !ok {
		return ResultRetry
	}

	o.notify(ctx, req, backend.Outcome{
		Status:       domain.StatusFailed,
		ErrorCode:    outcome.Code,
		ErrorMessage: userFacingMessage(outcome),
	}, log)

	return ResultFailed
}

// finish runs the notifying stage and completes the request. A
// notification failure is logged and swallowed: it never rolls back
// completion.
func (o *Orchestrator) finish(ctx context.Context, req *domain.ContentRequest, artifacts domain.Artifacts, log *slog.Logger) Result {
	if ok := o.persist(ctx, req, domain.StatusNotifying, domain.RequestAux{Kind: domain.AuxNone, Artifacts: artifacts}); !ok {
		return ResultRetry
	}

	o.notify(ctx, req, backend.Outcome{
		Status:        domain.StatusCompleted,
		FinalVideoURL: artifacts.FinalVideoURL,
	}, log)

	if ok := o.persist(ctx, req, domain.StatusCompleted, domain.RequestAux{Kind: domain.AuxNone, Artifacts: artifacts}); !ok {
		return ResultRetry
	}

	log.Info("request completed",
		slog.Bool("video", artifacts.FinalVideoURL != ""))
	return ResultCompleted
}

func (o *Orchestrator) notify(ctx context.Context, req *domain.ContentRequest, outcome backend.Outcome, log *slog.Logger) {
	if o.backends.Notifier == nil {
		return
	}
	if err := o.backends.Notifier.Notify(ctx, req.ID, outcome); err != nil {
		log.Warn("notification delivery failed",
			slog.String("status", string(outcome.Status)),
			slog.String("error", err.Error()))
	}
}

// userFacingMessage maps an outcome to a message safe to surface to
// callers: a category and reason, never an internal stack trace.
func userFacingMessage(outcome StageOutcome) string {
	switch outcome.Code {
	case CodeContentPolicy:
		return "the request could not be fulfilled because the generated content was rejected by safety policy"
	case CodeRetrievalError:
		return "reference material could not be retrieved after multiple attempts"
	case CodeGenerationError:
		return "the lesson script could not be generated after multiple attempts"
	case CodeSpeechError:
		return "narration audio could not be synthesized"
	case CodeRenderError:
		return "the video could not be rendered"
	case CodeProcessingError:
		return "the rendered video could not be processed"
	default:
		return "the request could not be completed"
	}
}
