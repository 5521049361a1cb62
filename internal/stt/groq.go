package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/groq"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// GroqTranscriber transcribes clips with Whisper on Groq's
// OpenAI-compatible audio endpoint
type GroqTranscriber struct {
	client openai.Client
	model  string
	policy *resilience.Policy
	logger zerolog.Logger
}

// NewGroqTranscriber creates a Groq Whisper transcriber
func NewGroqTranscriber(cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger, opts ...option.RequestOption) *GroqTranscriber {
	return &GroqTranscriber{
		client: groq.NewClient(cfg, opts...),
		model:  cfg.GroqTranscribeModel,
		policy: policy,
		logger: logger.With().Str("component", "stt").Str("provider", groq.ServiceName).Logger(),
	}
}

// Transcribe uploads the clip and returns the transcript text
func (g *GroqTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", nil
	}

	var text string
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := g.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
			File:  openai.File(bytes.NewReader(clip.Data), clip.FileName("audio"), clip.MIMEType),
			Model: g.model,
		})
		if err != nil {
			return groq.ClassifyError(err)
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("groq transcription: %w", err)
	}

	g.logger.Debug().Int("bytes", clip.Len()).Int("chars", len(text)).Msg("Transcribed clip")
	return text, nil
}
