package conversation

import (
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/transcript"
)

// Session owns everything one conversation needs. It is created by the
// caller and handed to the controller; there is no process-wide instance.
type Session struct {
	Clips        *audio.Store
	Transcript   *transcript.Store
	Recorder     *recorder.Recorder
	Orchestrator *Orchestrator
}

// NewSession assembles an empty session around a recorder and collaborators
func NewSession(rec *recorder.Recorder, collab Collaborators, logger zerolog.Logger) *Session {
	clips := audio.NewStore()
	store := transcript.NewStore(clips)
	return &Session{
		Clips:        clips,
		Transcript:   store,
		Recorder:     rec,
		Orchestrator: NewOrchestrator(collab, store, clips, logger),
	}
}

// Reset discards any recording in progress and starts an empty transcript,
// releasing every audio handle
func (s *Session) Reset() {
	s.Recorder.Abort()
	s.clear()
}

func (s *Session) clear() {
	s.Transcript.Clear()
	s.Clips.ReleaseAll()
}

// Close tears the session down on exit
func (s *Session) Close() {
	s.Reset()
}
