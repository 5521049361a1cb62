package stt

import (
	"context"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// Transcriber converts a recorded clip to text. An empty clip yields empty
// text without contacting the service.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
