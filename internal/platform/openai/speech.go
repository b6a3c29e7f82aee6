// Package openai implements the speech-synthesis backend on the
// OpenAI text-to-speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
)

// AssetUploader stores a generated binary asset and returns its URL.
// The render service client satisfies this: rendered assets live next
// to the videos they become part of.
type AssetUploader interface {
	UploadAsset(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// SpeechSynthesizer implements backend.SpeechSynthesizer using OpenAI
// text-to-speech, parking the audio with the asset uploader.
type SpeechSynthesizer struct {
	client openai.Client
	assets AssetUploader
	model  string
	voice  string
	logger *slog.Logger
}

var _ backend.SpeechSynthesizer = (*SpeechSynthesizer)(nil)

// NewSpeechSynthesizer builds the TTS adapter from speech config.
func NewSpeechSynthesizer(cfg config.SpeechConfig, assets AssetUploader, logger *slog.Logger) (*SpeechSynthesizer, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", backend.ErrInvalidConfig)
	}
	if assets == nil {
		return nil, fmt.Errorf("%w: asset uploader cannot be nil", backend.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	model := cfg.Model
	if model == "" {
		model = "tts-1"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}

	return &SpeechSynthesizer{
		client: openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		assets: assets,
		model:  model,
		voice:  voice,
		logger: logger.With(slog.String("component", "speech")),
	}, nil
}

// SynthesizeAudio implements backend.SpeechSynthesizer. The script's
// narration is preferred; the body is the fallback for scripts written
// before narration existed.
func (s *SpeechSynthesizer) SynthesizeAudio(ctx context.Context, script *backend.Script) (*backend.AudioAsset, error) {
	if script == nil {
		return nil, fmt.Errorf("%w: nil script", backend.ErrInvalidResponse)
	}
	input := script.Narration
	if input == "" {
		input = script.Body
	}
	if input == "" {
		return nil, fmt.Errorf("%w: script has no narration or body", backend.ErrInvalidResponse)
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(s.model),
		Voice: openai.AudioSpeechNewParamsVoice(s.voice),
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tts call failed: %v", backend.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tts response: %v", backend.ErrTransient, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio from tts", backend.ErrInvalidResponse)
	}

	url, err := s.assets.UploadAsset(ctx, "narration.mp3", "audio/mpeg", audio)
	if err != nil {
		return nil, err
	}

	s.logger.Info("narration synthesized",
		slog.Int("audio_bytes", len(audio)),
		slog.String("url", url))

	return &backend.AudioAsset{URL: url}, nil
}
