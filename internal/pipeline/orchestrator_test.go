package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/pipeline"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/store"
)

// fakeStore is an in-memory RequestStore that enforces the same
// transition rules as the SQL guard clause.
type fakeStore struct {
	mu  sync.Mutex
	req *domain.ContentRequest

	statusWrites []domain.RequestStatus
	retryBumps   int

	// cancelAfterGets makes Get report the request cancelled once it
	// has been read this many times, simulating an external writer.
	cancelAfterGets int
	gets            int

	updateErr error
}

func newFakeStore(req *domain.ContentRequest) *fakeStore {
	return &fakeStore{req: req}
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*domain.ContentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.req.ID {
		return nil, store.ErrRequestNotFound
	}
	s.gets++
	if s.cancelAfterGets > 0 && s.gets > s.cancelAfterGets {
		s.req.Status = domain.StatusCancelled
	}
	cp := *s.req
	return &cp, nil
}

func (s *fakeStore) GetByCorrelationID(_ context.Context, correlationID string) (*domain.ContentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if correlationID != s.req.CorrelationID {
		return nil, store.ErrRequestNotFound
	}
	cp := *s.req
	return &cp, nil
}

func (s *fakeStore) Create(_ context.Context, req *domain.ContentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.req = req
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RequestStatus, stage string, aux domain.RequestAux) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return false, s.updateErr
	}
	if id != s.req.ID {
		return false, store.ErrRequestNotFound
	}
	if !domain.CanTransition(s.req.Status, status) {
		return false, nil
	}

	s.req.Status = status
	s.req.CurrentStage = stage
	s.req.Metadata = aux
	s.statusWrites = append(s.statusWrites, status)
	return true, nil
}

func (s *fakeStore) IncrementRetry(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.req.ID {
		return false, store.ErrRequestNotFound
	}
	s.req.RetryCount++
	s.retryBumps++
	return true, nil
}

func (s *fakeStore) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.req.ID {
		return false, store.ErrRequestNotFound
	}
	if s.req.IsTerminal() {
		return false, nil
	}
	s.req.Status = domain.StatusCancelled
	return true, nil
}

// fakeBackends counts calls and lets tests override each port.
type fakeBackends struct {
	topicCalls   int
	refCalls     int
	scriptCalls  int
	speechCalls  int
	renderCalls  int
	processCalls int

	topicFn   func() (*backend.TopicResult, error)
	refFn     func() ([]backend.Reference, error)
	scriptFn  func() (*backend.Script, error)
	speechFn  func() (*backend.AudioAsset, error)
	renderFn  func() (*backend.VideoAsset, error)
	processFn func() (*backend.VideoAsset, error)

	notified []backend.Outcome
	notifyFn func() error
}

func newFakeBackends() *fakeBackends {
	return &fakeBackends{
		topicFn: func() (*backend.TopicResult, error) {
			return &backend.TopicResult{Topic: "volcanoes"}, nil
		},
		refFn: func() ([]backend.Reference, error) {
			return []backend.Reference{{Title: "Volcanoes 101", Snippet: "magma rises"}}, nil
		},
		scriptFn: func() (*backend.Script, error) {
			return &backend.Script{Title: "Volcanoes", Body: "lesson", Narration: "spoken"}, nil
		},
		speechFn: func() (*backend.AudioAsset, error) {
			return &backend.AudioAsset{URL: "https://assets/narration.mp3"}, nil
		},
		renderFn: func() (*backend.VideoAsset, error) {
			return &backend.VideoAsset{URL: "https://assets/raw.mp4"}, nil
		},
		processFn: func() (*backend.VideoAsset, error) {
			return &backend.VideoAsset{URL: "https://assets/final.mp4"}, nil
		},
		notifyFn: func() error { return nil },
	}
}

func (b *fakeBackends) ExtractTopic(context.Context, string, int) (*backend.TopicResult, error) {
	b.topicCalls++
	return b.topicFn()
}

func (b *fakeBackends) RetrieveReferences(context.Context, string, string, int) ([]backend.Reference, error) {
	b.refCalls++
	return b.refFn()
}

func (b *fakeBackends) GenerateScript(context.Context, string, []backend.Reference, string) (*backend.Script, error) {
	b.scriptCalls++
	return b.scriptFn()
}

func (b *fakeBackends) SynthesizeAudio(context.Context, *backend.Script) (*backend.AudioAsset, error) {
	b.speechCalls++
	return b.speechFn()
}

func (b *fakeBackends) RenderVideo(context.Context, *backend.Script, *backend.AudioAsset) (*backend.VideoAsset, error) {
	b.renderCalls++
	return b.renderFn()
}

func (b *fakeBackends) ProcessVideo(context.Context, *backend.VideoAsset) (*backend.VideoAsset, error) {
	b.processCalls++
	return b.processFn()
}

func (b *fakeBackends) Notify(_ context.Context, _ uuid.UUID, outcome backend.Outcome) error {
	b.notified = append(b.notified, outcome)
	return b.notifyFn()
}

func (b *fakeBackends) bundle() pipeline.Backends {
	return pipeline.Backends{
		Topics:    b,
		Refs:      b,
		Scripts:   b,
		Speech:    b,
		Renderer:  b,
		Processor: b,
		Notifier:  b,
	}
}

// fastRetry keeps the in-stage retry budget but drops the backoff so
// tests run instantly.
func fastRetry() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{Attempts: 3}
}

func videoRequest(t *testing.T) *domain.ContentRequest {
	t.Helper()
	req, err := domain.NewContentRequest("corr-video", "student-1", "how do volcanoes work", 5)
	require.NoError(t, err)
	req.PreferredModality = domain.ModalityVideo
	req.RequestedModalities = []domain.Modality{domain.ModalityVideo}
	return req
}

func textRequest(t *testing.T) *domain.ContentRequest {
	t.Helper()
	req, err := domain.NewContentRequest("corr-text", "student-1", "how do volcanoes work", 5)
	require.NoError(t, err)
	return req
}

func TestProcessVideoPath(t *testing.T) {
	t.Parallel()

	req := videoRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCompleted, result)
	assert.Equal(t, domain.StatusCompleted, st.req.Status)

	assert.Equal(t, 1, backends.topicCalls)
	assert.Equal(t, 1, backends.refCalls)
	assert.Equal(t, 1, backends.scriptCalls)
	assert.Equal(t, 1, backends.speechCalls)
	assert.Equal(t, 1, backends.renderCalls)
	assert.Equal(t, 1, backends.processCalls)

	require.Len(t, backends.notified, 1)
	assert.Equal(t, domain.StatusCompleted, backends.notified[0].Status)
	assert.Equal(t, "https://assets/final.mp4", backends.notified[0].FinalVideoURL)

	// Each stage entered in order, each at-most-once forward.
	wantOrder := []domain.RequestStatus{
		domain.StatusValidating,
		domain.StatusRetrieving,
		domain.StatusGeneratingScript,
		domain.StatusGeneratingVideo,
		domain.StatusProcessingVideo,
		domain.StatusNotifying,
		domain.StatusCompleted,
	}
	var entered []domain.RequestStatus
	for _, s := range st.statusWrites {
		if len(entered) == 0 || entered[len(entered)-1] != s {
			entered = append(entered, s)
		}
	}
	assert.Equal(t, wantOrder, entered)

	assert.Equal(t, "https://assets/final.mp4", st.req.Metadata.Artifacts.FinalVideoURL)
	assert.Equal(t, "https://assets/narration.mp3", st.req.Metadata.Artifacts.AudioURL)
}

func TestProcessTextOnlySkipsVideoStages(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCompleted, result)
	assert.Equal(t, domain.StatusCompleted, st.req.Status)

	assert.Zero(t, backends.speechCalls)
	assert.Zero(t, backends.renderCalls)
	assert.Zero(t, backends.processCalls)
	assert.NotContains(t, st.statusWrites, domain.StatusGeneratingVideo)
	assert.NotContains(t, st.statusWrites, domain.StatusProcessingVideo)

	require.Len(t, backends.notified, 1)
	assert.Empty(t, backends.notified[0].FinalVideoURL)
}

func TestProcessPolicyRejectionIsTerminal(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	backends.scriptFn = func() (*backend.Script, error) {
		return nil, fmt.Errorf("%w: safety block", backend.ErrPolicyRejected)
	}
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultFailed, result)
	assert.Equal(t, domain.StatusFailed, st.req.Status)
	assert.Equal(t, 1, backends.scriptCalls)
	assert.Zero(t, st.retryBumps)

	require.Equal(t, domain.AuxFailure, st.req.Metadata.Kind)
	assert.Equal(t, pipeline.CodeContentPolicy, st.req.Metadata.Failure.Code)
	assert.NotContains(t, st.req.Metadata.Failure.Message, "safety block")

	require.Len(t, backends.notified, 1)
	assert.Equal(t, domain.StatusFailed, backends.notified[0].Status)
	assert.Equal(t, pipeline.CodeContentPolicy, backends.notified[0].ErrorCode)
}

func TestProcessTransientFailureRecoversInStage(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	failures := 1
	backends.refFn = func() ([]backend.Reference, error) {
		if failures > 0 {
			failures--
			return nil, fmt.Errorf("%w: connection reset", backend.ErrTransient)
		}
		return []backend.Reference{{Title: "Volcanoes 101", Snippet: "magma rises"}}, nil
	}
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	// The stage retried in place and finished the request on one
	// delivery.
	assert.Equal(t, pipeline.ResultCompleted, result)
	assert.Equal(t, domain.StatusCompleted, st.req.Status)
	assert.Equal(t, 2, backends.refCalls)
	assert.Equal(t, 1, st.retryBumps)
}

func TestProcessTransientExhaustionFailsTerminally(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	backends.refFn = func() ([]backend.Reference, error) {
		return nil, fmt.Errorf("%w: connection reset", backend.ErrTransient)
	}
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	// A persistently failing backend must not strand the request in
	// retrieving once the attempts run out: it lands in failed with the
	// retrieval category, and the failure notification fires.
	assert.Equal(t, pipeline.ResultFailed, result)
	assert.Equal(t, domain.StatusFailed, st.req.Status)
	assert.Equal(t, 3, backends.refCalls)
	assert.Equal(t, 2, st.retryBumps)

	require.Equal(t, domain.AuxFailure, st.req.Metadata.Kind)
	assert.Equal(t, pipeline.CodeRetrievalError, st.req.Metadata.Failure.Code)
	assert.NotContains(t, st.req.Metadata.Failure.Message, "connection reset")

	require.Len(t, backends.notified, 1)
	assert.Equal(t, domain.StatusFailed, backends.notified[0].Status)
	assert.Equal(t, pipeline.CodeRetrievalError, backends.notified[0].ErrorCode)
}

func TestProcessGenerationExhaustionUsesGenerationCode(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	backends.scriptFn = func() (*backend.Script, error) {
		return nil, fmt.Errorf("%w: model overloaded", backend.ErrTransient)
	}
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultFailed, result)
	assert.Equal(t, 3, backends.scriptCalls)
	require.Equal(t, domain.AuxFailure, st.req.Metadata.Kind)
	assert.Equal(t, pipeline.CodeGenerationError, st.req.Metadata.Failure.Code)
}

func TestProcessClarificationParksRequest(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	backends.topicFn = func() (*backend.TopicResult, error) {
		return &backend.TopicResult{
			Clarification: &domain.Clarification{
				Questions: []string{"which kind of volcano?"},
				Reasoning: "the query is ambiguous",
			},
		}, nil
	}
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultClarification, result)
	assert.Equal(t, domain.StatusPending, st.req.Status)
	require.Equal(t, domain.AuxClarification, st.req.Metadata.Kind)
	assert.Equal(t, []string{"which kind of volcano?"}, st.req.Metadata.Clarification.Questions)

	assert.Zero(t, backends.refCalls)
	assert.Empty(t, backends.notified)
}

func TestProcessNotifyFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	backends := newFakeBackends()
	backends.notifyFn = func() error { return errors.New("broker unavailable") }
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCompleted, result)
	assert.Equal(t, domain.StatusCompleted, st.req.Status)
}

func TestProcessObservesCancellationAtStageBoundary(t *testing.T) {
	t.Parallel()

	req := textRequest(t)
	st := newFakeStore(req)
	st.cancelAfterGets = 1
	backends := newFakeBackends()
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCancelled, result)
	assert.Equal(t, domain.StatusCancelled, st.req.Status)
	// The first stage ran; everything after the cancellation did not.
	assert.Equal(t, 1, backends.topicCalls)
	assert.Zero(t, backends.refCalls)
}

func TestProcessResumesFromPersistedStage(t *testing.T) {
	t.Parallel()

	script, err := json.Marshal(&backend.Script{Title: "Volcanoes", Body: "lesson", Narration: "spoken"})
	require.NoError(t, err)

	req := videoRequest(t)
	req.Status = domain.StatusGeneratingVideo
	req.Metadata = domain.RequestAux{
		Kind: domain.AuxNone,
		Artifacts: domain.Artifacts{
			Topic:  "volcanoes",
			Script: string(script),
		},
	}

	st := newFakeStore(req)
	backends := newFakeBackends()
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCompleted, result)

	// Earlier stages are not repeated.
	assert.Zero(t, backends.topicCalls)
	assert.Zero(t, backends.refCalls)
	assert.Zero(t, backends.scriptCalls)

	assert.Equal(t, 1, backends.speechCalls)
	assert.Equal(t, 1, backends.renderCalls)
	assert.Equal(t, 1, backends.processCalls)
}

func TestProcessResumeFallsBackWhenArtifactsMissing(t *testing.T) {
	t.Parallel()

	// Persisted as generating_script, but the topic checkpoint is
	// lost: the pipeline must restart from validation rather than call
	// the script generator with empty inputs.
	req := textRequest(t)
	req.Status = domain.StatusGeneratingScript
	req.Metadata = domain.RequestAux{Kind: domain.AuxNone}

	st := newFakeStore(req)
	backends := newFakeBackends()
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCompleted, result)
	assert.Equal(t, 1, backends.topicCalls)
	assert.Equal(t, 1, backends.refCalls)
	assert.Equal(t, 1, backends.scriptCalls)
}

func TestProcessAudioCheckpointSkipsResynthesis(t *testing.T) {
	t.Parallel()

	script, err := json.Marshal(&backend.Script{Title: "Volcanoes", Body: "lesson", Narration: "spoken"})
	require.NoError(t, err)

	req := videoRequest(t)
	req.Status = domain.StatusGeneratingVideo
	req.Metadata = domain.RequestAux{
		Kind: domain.AuxNone,
		Artifacts: domain.Artifacts{
			Topic:    "volcanoes",
			Script:   string(script),
			AudioURL: "https://assets/narration.mp3",
		},
	}

	st := newFakeStore(req)
	backends := newFakeBackends()
	orch := pipeline.NewOrchestrator(st, backends.bundle(), fastRetry(), nil)

	result := orch.Process(context.Background(), req)

	assert.Equal(t, pipeline.ResultCompleted, result)
	assert.Zero(t, backends.speechCalls)
	assert.Equal(t, 1, backends.renderCalls)
}
