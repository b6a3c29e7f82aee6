// Package refsvc is the HTTP client for the reference-retrieval
// service, which ranks source material for a topic personalized by
// interest and grade level.
package refsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
)

// Client implements backend.ReferenceRetriever over the retrieval
// service's JSON API.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

var _ backend.ReferenceRetriever = (*Client)(nil)

// NewClient builds a retrieval client from config.
func NewClient(cfg config.RetrievalConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: retrieval base URL cannot be empty", backend.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		base:   cfg.BaseURL,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "refsvc")),
	}, nil
}

type retrieveResponse struct {
	References []backend.Reference `json:"references"`
}

// RetrieveReferences implements backend.ReferenceRetriever. Transport
// failures and 5xx responses are transient; anything else malformed is
// permanent.
func (c *Client) RetrieveReferences(ctx context.Context, topic, interest string, gradeLevel int) ([]backend.Reference, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: empty topic", backend.ErrInvalidResponse)
	}

	q := url.Values{}
	q.Set("topic", topic)
	q.Set("grade_level", strconv.Itoa(gradeLevel))
	if interest != "" {
		q.Set("interest", interest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/references?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", backend.ErrInvalidConfig, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieval failed: %v", backend.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: retrieval returned %d", backend.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: retrieval returned %d", backend.ErrInvalidResponse, resp.StatusCode)
	}

	var out retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding retrieval response: %v", backend.ErrInvalidResponse, err)
	}

	c.logger.Debug("references retrieved",
		slog.String("topic", topic),
		slog.Int("count", len(out.References)))

	return out.References, nil
}
