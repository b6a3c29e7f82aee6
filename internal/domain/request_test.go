package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
)

func TestNewContentRequest(t *testing.T) {
	t.Parallel()

	t.Run("creates a pending request with defaults", func(t *testing.T) {
		t.Parallel()

		req, err := domain.NewContentRequest("corr-1", "student-1", "how do volcanoes work", 5)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, req.ID)
		assert.Equal(t, "corr-1", req.CorrelationID)
		assert.Equal(t, domain.StatusPending, req.Status)
		assert.Equal(t, domain.ModalityTextOnly, req.PreferredModality)
		assert.False(t, req.IsTerminal())
	})

	t.Run("defaults correlation id to the request id", func(t *testing.T) {
		t.Parallel()

		req, err := domain.NewContentRequest("", "student-1", "photosynthesis", 7)
		require.NoError(t, err)
		assert.Equal(t, req.ID.String(), req.CorrelationID)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewContentRequest("corr-1", "", "query", 5)
		assert.ErrorIs(t, err, domain.ErrEmptyStudentID)

		_, err = domain.NewContentRequest("corr-1", "student-1", "", 5)
		assert.ErrorIs(t, err, domain.ErrEmptyStudentQuery)

		_, err = domain.NewContentRequest("corr-1", "student-1", "query", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidGradeLevel)
	})
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    domain.RequestStatus
		to      domain.RequestStatus
		allowed bool
	}{
		{"pending to validating", domain.StatusPending, domain.StatusValidating, true},
		{"validating to retrieving", domain.StatusValidating, domain.StatusRetrieving, true},
		{"validating back to pending for clarification", domain.StatusValidating, domain.StatusPending, true},
		{"retrieving to script generation", domain.StatusRetrieving, domain.StatusGeneratingScript, true},
		{"script generation to video", domain.StatusGeneratingScript, domain.StatusGeneratingVideo, true},
		{"script generation straight to notifying", domain.StatusGeneratingScript, domain.StatusNotifying, true},
		{"video to processing", domain.StatusGeneratingVideo, domain.StatusProcessingVideo, true},
		{"processing to notifying", domain.StatusProcessingVideo, domain.StatusNotifying, true},
		{"notifying to completed", domain.StatusNotifying, domain.StatusCompleted, true},
		{"same status re-persist", domain.StatusRetrieving, domain.StatusRetrieving, true},
		{"failure from any active status", domain.StatusGeneratingVideo, domain.StatusFailed, true},
		{"cancellation from any active status", domain.StatusProcessingVideo, domain.StatusCancelled, true},

		{"skipping a stage forward", domain.StatusPending, domain.StatusRetrieving, false},
		{"moving backwards", domain.StatusGeneratingVideo, domain.StatusRetrieving, false},
		{"leaving completed", domain.StatusCompleted, domain.StatusNotifying, false},
		{"leaving failed", domain.StatusFailed, domain.StatusPending, false},
		{"cancelling a cancelled request", domain.StatusCancelled, domain.StatusCancelled, false},
		{"completing without notifying", domain.StatusProcessingVideo, domain.StatusCompleted, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.allowed, domain.CanTransition(tc.from, tc.to))
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	t.Parallel()

	for _, status := range domain.AllStatuses() {
		terminal := status == domain.StatusCompleted ||
			status == domain.StatusFailed ||
			status == domain.StatusCancelled
		assert.Equal(t, terminal, domain.IsTerminalStatus(status), "status %s", status)
	}
}

func TestTextOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		preferred  domain.Modality
		modalities []domain.Modality
		want       bool
	}{
		{
			name:       "text preferred with only text requested",
			preferred:  domain.ModalityTextOnly,
			modalities: []domain.Modality{domain.ModalityTextOnly},
			want:       true,
		},
		{
			name:       "text preferred but video also requested",
			preferred:  domain.ModalityTextOnly,
			modalities: []domain.Modality{domain.ModalityTextOnly, domain.ModalityVideo},
			want:       false,
		},
		{
			name:       "video preferred",
			preferred:  domain.ModalityVideo,
			modalities: []domain.Modality{domain.ModalityVideo},
			want:       false,
		},
		{
			name:       "text preferred with audio requested",
			preferred:  domain.ModalityTextOnly,
			modalities: []domain.Modality{domain.ModalityTextOnly, domain.ModalityAudio},
			want:       true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req, err := domain.NewContentRequest("corr", "student", "query", 5)
			require.NoError(t, err)
			req.PreferredModality = tc.preferred
			req.RequestedModalities = tc.modalities

			assert.Equal(t, tc.want, req.TextOnly())
		})
	}
}
