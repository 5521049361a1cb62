package tts

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// cartesiaVersion pins the API revision the payload below targets
const cartesiaVersion = "2024-06-10"

// CartesiaClient implements Synthesizer using Cartesia's /tts/bytes API
type CartesiaClient struct {
	apiKey     string
	apiURL     string
	voiceID    string
	modelID    string
	httpClient *http.Client
	policy     *resilience.Policy
	logger     zerolog.Logger
}

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        CartesiaVoice        `json:"voice"`
	OutputFormat CartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language,omitempty"`
}

// CartesiaVoice selects a voice by ID
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// CartesiaOutputFormat describes the encoded audio container
type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger) *CartesiaClient {
	return &CartesiaClient{
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     "https://api.cartesia.ai/tts/bytes",
		voiceID:    cfg.CartesiaVoiceID,
		modelID:    cfg.CartesiaModelID,
		httpClient: &http.Client{},
		policy:     policy,
		logger:     logger.With().Str("component", "tts").Str("provider", "cartesia").Logger(),
	}
}

// Synthesize converts text to an MP3 clip
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	if err := validateText(text); err != nil {
		return audio.Clip{}, err
	}

	payload := CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      CartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    128000,
		},
		Language: "en",
	}
	headers := map[string]string{
		"X-API-Key":        c.apiKey,
		"Cartesia-Version": cartesiaVersion,
	}

	var data []byte
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = postForAudio(ctx, c.httpClient, "cartesia", c.apiURL, headers, payload)
		return err
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cartesia synthesis: %w", err)
	}

	observability.RecordAudioBytes("out", len(data))
	c.logger.Debug().Int("bytes", len(data)).Str("voice_id", c.voiceID).Msg("Synthesized reply")
	return audio.Clip{Data: data, MIMEType: audio.MIMETypeMPEG}, nil
}
