package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// prerecordedFunc submits one finished recording and returns the raw response
type prerecordedFunc func(ctx context.Context, src io.Reader) (any, error)

// DeepgramTranscriber transcribes finished clips with Deepgram's
// pre-recorded REST API
type DeepgramTranscriber struct {
	transcribe prerecordedFunc
	model      string
	policy     *resilience.Policy
	logger     zerolog.Logger
}

// NewDeepgramTranscriber creates a Deepgram pre-recorded transcriber
func NewDeepgramTranscriber(cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger) *DeepgramTranscriber {
	listenClient.InitWithDefault()

	dg := prerecorded.New(listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{}))
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       cfg.DeepgramModel,
		Language:    cfg.DeepgramLanguage,
		Punctuate:   true,
		SmartFormat: true,
	}

	return newDeepgramTranscriber(cfg.DeepgramModel, policy, logger, func(ctx context.Context, src io.Reader) (any, error) {
		return dg.FromStream(ctx, src, options)
	})
}

func newDeepgramTranscriber(model string, policy *resilience.Policy, logger zerolog.Logger, fn prerecordedFunc) *DeepgramTranscriber {
	return &DeepgramTranscriber{
		transcribe: fn,
		model:      model,
		policy:     policy,
		logger:     logger.With().Str("component", "stt").Str("provider", "deepgram").Logger(),
	}
}

// Transcribe submits the clip and returns the best alternative of the first channel
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", nil
	}

	var text string
	err := d.policy.Do(ctx, func(ctx context.Context) error {
		res, err := d.transcribe(ctx, bytes.NewReader(clip.Data))
		if err != nil {
			return err
		}
		text, err = firstTranscript(res)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}

	d.logger.Debug().Str("model", d.model).Int("bytes", clip.Len()).Int("chars", len(text)).Msg("Transcribed clip")
	return text, nil
}

// prerecordedResult is the subset of the pre-recorded response we read
type prerecordedResult struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// firstTranscript reads results.channels[0].alternatives[0].transcript.
// A response without alternatives means no speech was detected.
func firstTranscript(res any) (string, error) {
	if res == nil {
		return "", nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode deepgram response: %w", err)
	}

	var decoded prerecordedResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode deepgram response: %w", err)
	}

	if len(decoded.Results.Channels) == 0 || len(decoded.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return decoded.Results.Channels[0].Alternatives[0].Transcript, nil
}
