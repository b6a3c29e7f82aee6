package refsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/refsvc"
)

func newTestClient(t *testing.T, handler http.Handler) *refsvc.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := refsvc.NewClient(config.RetrievalConfig{BaseURL: server.URL, TimeoutSeconds: 5}, nil)
	require.NoError(t, err)
	return client
}

func TestRetrieveReferences(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/references", r.URL.Path)
		assert.Equal(t, "volcanoes", r.URL.Query().Get("topic"))
		assert.Equal(t, "5", r.URL.Query().Get("grade_level"))
		assert.Equal(t, "soccer", r.URL.Query().Get("interest"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"references": []backend.Reference{
				{Title: "Volcanoes 101", Snippet: "magma rises", Source: "encyclopedia"},
			},
		})
	}))

	refs, err := client.RetrieveReferences(context.Background(), "volcanoes", "soccer", 5)
	require.NoError(t, err)

	require.Len(t, refs, 1)
	assert.Equal(t, "Volcanoes 101", refs[0].Title)
	assert.Equal(t, "encyclopedia", refs[0].Source)
}

func TestRetrieveReferencesOmitsEmptyInterest(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("interest"))
		_ = json.NewEncoder(w).Encode(map[string]any{"references": []backend.Reference{}})
	}))

	refs, err := client.RetrieveReferences(context.Background(), "volcanoes", "", 5)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestRetrieveReferencesErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		wantIs error
	}{
		{"server error is transient", http.StatusBadGateway, backend.ErrTransient},
		{"rate limit is transient", http.StatusTooManyRequests, backend.ErrTransient},
		{"bad request is permanent", http.StatusBadRequest, backend.ErrInvalidResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))

			_, err := client.RetrieveReferences(context.Background(), "volcanoes", "", 5)
			assert.ErrorIs(t, err, tc.wantIs)
		})
	}
}

func TestRetrieveReferencesRejectsEmptyTopic(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("the service must not be called with an empty topic")
	}))

	_, err := client.RetrieveReferences(context.Background(), "", "", 5)
	assert.ErrorIs(t, err, backend.ErrInvalidResponse)
}
