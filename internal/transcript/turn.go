// Package transcript holds the ordered conversation transcript and its
// CSV export.
package transcript

import (
	"time"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Status is the lifecycle state of a turn
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Feedback is the user's rating of an assistant reply. It never affects
// the pipeline.
type Feedback string

const (
	FeedbackNone Feedback = "none"
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

// Valid reports whether f is a known feedback value
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackNone, FeedbackUp, FeedbackDown:
		return true
	}
	return false
}

// TurnID orders turns within a session. IDs strictly increase.
type TurnID uint64

// Turn is one utterance in the conversation
type Turn struct {
	ID                TurnID    `json:"id"`
	Speaker           Speaker   `json:"speaker"`
	AudioRef          audio.Ref `json:"audioRef,omitempty"`
	Text              string    `json:"text"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	Feedback          Feedback  `json:"feedback"`
	TranscriptVisible bool      `json:"transcriptVisible"`
}

// HasAudio reports whether the turn carries playable audio
func (t Turn) HasAudio() bool {
	return t.AudioRef != ""
}
