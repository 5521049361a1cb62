package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// ErrEmptyText is returned when asked to synthesize nothing
var ErrEmptyText = errors.New("no text to synthesize")

// ErrEmptyAudio is returned when the service answers with no audio
var ErrEmptyAudio = errors.New("synthesis returned no audio")

// maxErrorBody caps how much of an error response is kept for logs
const maxErrorBody = 512

// Synthesizer renders text as an MP3 clip
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// postForAudio POSTs a JSON payload and returns the binary response body
func postForAudio(ctx context.Context, client *http.Client, service, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", audio.MIMETypeMPEG)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &resilience.StatusError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("failed to read %s audio: %w", service, err))
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return data, nil
}
