package conversation

import (
	"errors"
	"time"

	"github.com/lexiqai/voice-assistant/internal/capture"
	"github.com/lexiqai/voice-assistant/internal/recorder"
)

var (
	// ErrTranscriptionFailed means the user's clip could not be transcribed
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrGenerationFailed means no reply could be generated
	ErrGenerationFailed = errors.New("reply generation failed")

	// ErrSynthesisFailed means the reply could not be spoken
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrClosed is returned once the controller has shut down
	ErrClosed = errors.New("conversation closed")

	// ErrQueueFull is returned when the serial turn queue cannot take another clip
	ErrQueueFull = errors.New("turn queue full")
)

// User-facing notices
const (
	MessageStartFailed   = "An error occurred while starting the recording."
	MessageStopFailed    = "An error occurred while stopping the recording."
	MessageTranscription = "Transcription error"
	MessageGeneric       = "Something went wrong"
)

// Failure is the most recent error surfaced to the user
type Failure struct {
	Err     error     `json:"-"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure classifies err into a user-facing failure
func newFailure(err error, availability capture.Availability, now time.Time) *Failure {
	f := &Failure{Err: err, At: now, Kind: "internal", Message: MessageGeneric}

	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		f.Kind = "permission_denied"
		f.Message = availability.Message()
		if f.Message == "" {
			f.Message = capture.Denied.Message()
		}
	case errors.Is(err, recorder.ErrBlocked):
		f.Kind = "recording_start"
		f.Message = MessageStartFailed
	case errors.Is(err, recorder.ErrFinalizationFailed):
		f.Kind = "recording_stop"
		f.Message = MessageStopFailed
	case errors.Is(err, ErrTranscriptionFailed):
		f.Kind = "transcription"
		f.Message = MessageTranscription
	case errors.Is(err, ErrGenerationFailed):
		f.Kind = "generation"
	case errors.Is(err, ErrSynthesisFailed):
		f.Kind = "synthesis"
	}
	return f
}
