package tts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// ElevenLabsClient implements Synthesizer using the ElevenLabs
// text-to-speech REST API
type ElevenLabsClient struct {
	apiKey       string
	apiURL       string
	voiceID      string
	modelID      string
	outputFormat string
	httpClient   *http.Client
	policy       *resilience.Policy
	logger       zerolog.Logger
}

// elevenLabsRequest is the request payload for the text-to-speech endpoint
type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewElevenLabsClient creates a new ElevenLabs TTS client
func NewElevenLabsClient(cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:       cfg.ElevenLabsAPIKey,
		apiURL:       "https://api.elevenlabs.io/v1/text-to-speech",
		voiceID:      cfg.ElevenLabsVoiceID,
		modelID:      cfg.ElevenLabsModelID,
		outputFormat: cfg.ElevenLabsOutputFormat,
		httpClient:   &http.Client{},
		policy:       policy,
		logger:       logger.With().Str("component", "tts").Str("provider", "elevenlabs").Logger(),
	}
}

// Synthesize converts text to an MP3 clip
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	if err := validateText(text); err != nil {
		return audio.Clip{}, err
	}

	endpoint := fmt.Sprintf("%s/%s?output_format=%s", c.apiURL, url.PathEscape(c.voiceID), url.QueryEscape(c.outputFormat))
	payload := elevenLabsRequest{Text: text, ModelID: c.modelID}

	var data []byte
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = postForAudio(ctx, c.httpClient, "elevenlabs", endpoint, map[string]string{"xi-api-key": c.apiKey}, payload)
		return err
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs synthesis: %w", err)
	}

	observability.RecordAudioBytes("out", len(data))
	c.logger.Debug().Int("bytes", len(data)).Str("voice_id", c.voiceID).Msg("Synthesized reply")
	return audio.Clip{Data: data, MIMEType: audio.MIMETypeMPEG}, nil
}
