// Package groq builds OpenAI-compatible clients for the Groq API, which
// serves both Whisper transcription and chat completions.
package groq

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// ServiceName labels Groq errors and metrics
const ServiceName = "groq"

// NewClient creates a Groq client. Retries are left to the caller's
// resilience policy, so the SDK's own retry loop is disabled.
func NewClient(cfg *config.Config, opts ...option.RequestOption) openai.Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.GroqAPIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.CollaboratorCallTimeout()}),
	}
	if cfg.GroqBaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.GroqBaseURL))
	}
	return openai.NewClient(append(base, opts...)...)
}

// ClassifyError converts API errors into resilience.StatusError so the
// retry policy can tell throttling and outages from bad requests
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &resilience.StatusError{
			Service:    ServiceName,
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.Message,
		}
	}
	return err
}
