package capture

import (
	"context"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// Source starts capture sessions on the host's audio primitive
type Source interface {
	Start(ctx context.Context) (Session, error)
}

// Session is one in-progress capture
type Session interface {
	// Finish ends capture and returns the recorded clip
	Finish(ctx context.Context) (audio.Clip, error)
	// Abort ends capture and discards the audio
	Abort() error
}
