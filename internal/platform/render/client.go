// Package render is the HTTP client for the internal video render
// service. The service exposes a small JSON API: asset upload, render,
// and post-process. It is bespoke, so the client is plain net/http in
// the same style as the other outbound adapters.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
)

// Client talks to the render service. It implements
// backend.VideoRenderer, backend.VideoProcessor and the speech
// adapter's AssetUploader.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

var (
	_ backend.VideoRenderer  = (*Client)(nil)
	_ backend.VideoProcessor = (*Client)(nil)
)

// NewClient builds a render service client from config.
func NewClient(cfg config.RenderConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: render base URL cannot be empty", backend.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		base:   cfg.BaseURL,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "render")),
	}, nil
}

type renderRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Narration string `json:"narration,omitempty"`
	AudioURL  string `json:"audio_url"`
}

type processRequest struct {
	VideoURL string `json:"video_url"`
}

type assetResponse struct {
	URL string `json:"url"`
}

// RenderVideo implements backend.VideoRenderer.
func (c *Client) RenderVideo(ctx context.Context, script *backend.Script, audio *backend.AudioAsset) (*backend.VideoAsset, error) {
	if script == nil || audio == nil {
		return nil, fmt.Errorf("%w: render requires a script and audio", backend.ErrInvalidResponse)
	}

	var out assetResponse
	err := c.postJSON(ctx, "/v1/render", renderRequest{
		Title:     script.Title,
		Body:      script.Body,
		Narration: script.Narration,
		AudioURL:  audio.URL,
	}, &out)
	if err != nil {
		return nil, err
	}

	c.logger.Info("video rendered", slog.String("url", out.URL))
	return &backend.VideoAsset{URL: out.URL}, nil
}

// ProcessVideo implements backend.VideoProcessor: transcoding and
// final placement of a rendered video.
func (c *Client) ProcessVideo(ctx context.Context, video *backend.VideoAsset) (*backend.VideoAsset, error) {
	if video == nil {
		return nil, fmt.Errorf("%w: process requires a video", backend.ErrInvalidResponse)
	}

	var out assetResponse
	if err := c.postJSON(ctx, "/v1/process", processRequest{VideoURL: video.URL}, &out); err != nil {
		return nil, err
	}

	c.logger.Info("video processed", slog.String("url", out.URL))
	return &backend.VideoAsset{URL: out.URL}, nil
}

// UploadAsset stores raw bytes with the render service and returns the
// asset URL. Satisfies the speech adapter's AssetUploader.
func (c *Client) UploadAsset(ctx context.Context, name, contentType string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/v1/assets?name=%s", c.base, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: building upload request: %v", backend.ErrInvalidConfig, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: asset upload failed: %v", backend.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: asset upload returned %d", backend.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: asset upload returned %d", backend.ErrInvalidResponse, resp.StatusCode)
	}

	var out assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding upload response: %v", backend.ErrInvalidResponse, err)
	}
	return out.URL, nil
}

// postJSON posts a JSON body and decodes a JSON response, classifying
// HTTP failures into the backend error taxonomy: 5xx and transport
// errors are transient, 4xx are not.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", backend.ErrInvalidResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", backend.ErrInvalidConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s failed: %v", backend.ErrTransient, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned %d", backend.ErrTransient, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s returned %d", backend.ErrInvalidResponse, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", backend.ErrInvalidResponse, path, err)
	}
	return nil
}
