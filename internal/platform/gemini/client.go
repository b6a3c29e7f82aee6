// Package gemini implements the topic-extraction and script-generation
// backends on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
)

// Client wraps a genai client shared by both Gemini-backed adapters.
// Each call is a single attempt classified into the backend error
// taxonomy; the pipeline owns the retry budget.
type Client struct {
	logger *slog.Logger
	cfg    config.LLMConfig
	client *genai.Client
}

// NewClient creates a Gemini client from LLM configuration.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", backend.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", backend.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", backend.ErrInvalidConfig, err)
	}

	return &Client{
		logger: logger.With(slog.String("component", "gemini")),
		cfg:    cfg,
		client: client,
	}, nil
}

// generate performs a single API call and classifies its outcome.
// Safety blocks surface as backend.ErrPolicyRejected; API-level
// failures as backend.ErrTransient. The returned string is the raw
// response text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.cfg.ModelName,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		// API-level failures (timeouts, 5xx, rate limits) are assumed
		// transient; the pipeline's retry budget bounds them.
		return "", fmt.Errorf("%w: %v", backend.ErrTransient, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", backend.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		c.logger.Warn("generation blocked by safety filters")
		return "", fmt.Errorf("%w: blocked by safety filters", backend.ErrPolicyRejected)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content in response", backend.ErrInvalidResponse)
	}

	text := ""
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", fmt.Errorf("%w: no text parts in response", backend.ErrInvalidResponse)
	}

	return text, nil
}
