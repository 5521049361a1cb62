// Package recorder turns a capture source into a push-to-talk state
// machine. Every failed transition lands back in Idle so the microphone
// control can never get stuck.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/capture"
	"github.com/lexiqai/voice-assistant/internal/observability"
)

var (
	// ErrBlocked is returned by Start when the microphone is unavailable or
	// the capture primitive refused to start
	ErrBlocked = errors.New("recording blocked")

	// ErrFinalizationFailed is returned by Stop when no clip could be produced
	ErrFinalizationFailed = errors.New("recording finalization failed")
)

// State is the recorder state
type State int

const (
	Idle State = iota
	Recording
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Error:
		return "error"
	}
	return "unknown"
}

// Listener observes state transitions. Error is only ever observed
// transiently, immediately followed by Idle.
type Listener func(State)

// Recorder drives one capture session at a time
type Recorder struct {
	guard  *capture.Guard
	source capture.Source
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	session    capture.Session
	finalizing bool // Stop is finishing a session outside the lock
	aborted    bool // Abort ran while finalizing; the clip is discarded
	listeners  []Listener
}

// New creates an idle recorder
func New(guard *capture.Guard, source capture.Source, logger zerolog.Logger) *Recorder {
	return &Recorder{
		guard:  guard,
		source: source,
		logger: logger.With().Str("component", "recorder").Logger(),
		state:  Idle,
	}
}

// OnStateChange registers a transition listener. Listeners run after the
// recorder lock is released and may call back into the recorder.
func (r *Recorder) OnStateChange(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// State returns the current state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Availability reports the guard's cached microphone state
func (r *Recorder) Availability(ctx context.Context) capture.Availability {
	return r.guard.Check(ctx)
}

// Start begins recording. Starting while already recording, or while a
// stop is still finalizing, is a no-op.
func (r *Recorder) Start(ctx context.Context) (State, error) {
	var published []State
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.notify(published)
	}()

	if r.state == Recording || r.finalizing {
		return r.state, nil
	}

	if avail := r.guard.Check(ctx); avail != capture.Available {
		published = r.fail()
		r.logger.Warn().Str("availability", avail.String()).Msg("Microphone unavailable")
		return r.state, fmt.Errorf("%w: %w", ErrBlocked, avail.Err())
	}

	session, err := r.source.Start(ctx)
	if err != nil {
		published = r.fail()
		r.logger.Error().Err(err).Msg("Failed to start capture")
		return r.state, fmt.Errorf("%w: %w", ErrBlocked, err)
	}

	r.session = session
	published = r.transition(Recording)
	r.logger.Debug().Msg("Recording started")
	return r.state, nil
}

// Stop finalizes the recording into a clip. Stopping while idle is a
// no-op returning a nil clip. The recorder stays Recording until the
// capture session has finished.
func (r *Recorder) Stop(ctx context.Context) (*audio.Clip, State, error) {
	r.mu.Lock()
	if r.state != Recording || r.finalizing {
		state := r.state
		r.mu.Unlock()
		return nil, state, nil
	}
	session := r.session
	r.session = nil
	r.finalizing = true
	r.mu.Unlock()

	clip, err := session.Finish(ctx)
	if err == nil && clip.Empty() {
		err = errors.New("empty recording")
	}

	var published []State
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.notify(published)
	}()

	r.finalizing = false
	if r.aborted {
		r.aborted = false
		r.logger.Debug().Msg("Recording aborted while finalizing")
		return nil, r.state, nil
	}

	if err != nil {
		published = r.fail()
		r.logger.Error().Err(err).Msg("Failed to finalize recording")
		return nil, r.state, fmt.Errorf("%w: %w", ErrFinalizationFailed, err)
	}

	published = r.transition(Idle)
	observability.RecordAudioBytes("in", clip.Len())
	r.logger.Debug().
		Int("bytes", clip.Len()).
		Dur("duration", clip.Duration).
		Msg("Recording finished")
	return &clip, r.state, nil
}

// Abort discards any in-progress recording and returns to Idle
func (r *Recorder) Abort() {
	var published []State
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.notify(published)
	}()

	if r.state != Recording {
		return
	}
	if r.session != nil {
		if err := r.session.Abort(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to abort capture")
		}
		r.session = nil
	}
	if r.finalizing {
		r.aborted = true
	}
	published = r.transition(Idle)
}

// fail publishes the transient Error state and settles in Idle
func (r *Recorder) fail() []State {
	observability.RecordError("recorder", "recorder")
	return append(r.transition(Error), r.transition(Idle)...)
}

func (r *Recorder) transition(to State) []State {
	r.state = to
	observability.RecordRecorderTransition(to.String())
	return []State{to}
}

func (r *Recorder) notify(states []State) {
	if len(states) == 0 {
		return
	}
	r.mu.Lock()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, s := range states {
		for _, l := range listeners {
			l(s)
		}
	}
}
