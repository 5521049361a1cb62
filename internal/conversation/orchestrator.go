package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/llm"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/transcript"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

// Outcome is how a turn ended
type Outcome int

const (
	Completed Outcome = iota
	Silent
	TranscriptionFailed
	GenerationFailed
	SynthesisFailed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Silent:
		return "silent"
	case TranscriptionFailed:
		return "transcription_failed"
	case GenerationFailed:
		return "generation_failed"
	case SynthesisFailed:
		return "synthesis_failed"
	}
	return "unknown"
}

// Result describes one finished turn. Err is set for the failed outcomes
// and wraps the matching sentinel.
type Result struct {
	Outcome       Outcome
	UserTurn      transcript.TurnID
	AssistantTurn transcript.TurnID // zero when no assistant turn was appended
	Err           error
}

// Collaborators are the three remote services a turn calls
type Collaborators struct {
	Transcriber stt.Transcriber
	Generator   llm.Generator
	Synthesizer tts.Synthesizer
}

// Orchestrator runs transcribe, generate and synthesize for one clip and
// records the turns it produces
type Orchestrator struct {
	collab Collaborators
	store  *transcript.Store
	clips  *audio.Store
	logger zerolog.Logger
	now    func() time.Time

	// appendMu keeps store order, ids and timestamps in step
	appendMu sync.Mutex
	lastID   transcript.TurnID
}

// NewOrchestrator creates an orchestrator writing into store and clips
func NewOrchestrator(collab Collaborators, store *transcript.Store, clips *audio.Store, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		collab: collab,
		store:  store,
		clips:  clips,
		logger: logger.With().Str("component", "orchestrator").Logger(),
		now:    time.Now,
	}
}

// appendTurn stamps turn with the next id and the current time and
// appends it
func (o *Orchestrator) appendTurn(turn transcript.Turn) transcript.TurnID {
	o.appendMu.Lock()
	defer o.appendMu.Unlock()

	o.lastID++
	turn.ID = o.lastID
	turn.CreatedAt = o.now()
	o.store.Append(turn)
	return turn.ID
}

// RunTurn processes one clip. It never panics; every failure is recorded
// in the transcript and returned in the result.
func (o *Orchestrator) RunTurn(ctx context.Context, clip audio.Clip) (res Result) {
	correlationID := observability.NewCorrelationID()
	logger := o.logger.With().Str("correlation_id", correlationID).Logger()
	metrics := observability.NewTurnMetrics()

	var userID transcript.TurnID
	outcomeOnPanic := TranscriptionFailed
	userPending := true
	var reply string

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("turn panicked: %v", r)
			logger.Error().Interface("panic", r).Msg("Recovered from panic in turn")
			if userPending && userID != 0 {
				_ = o.store.Resolve(userID, "", transcript.StatusFailed)
			}
			if outcomeOnPanic == SynthesisFailed && res.AssistantTurn == 0 {
				res.AssistantTurn = o.appendAssistant(reply, "", transcript.StatusFailed)
			}
			res.Outcome = outcomeOnPanic
			res.Err = fmt.Errorf("%w: %w", outcomeOnPanic.sentinel(), err)
		}
		metrics.RecordTurnEnd(res.Outcome.String())
		if res.Err != nil {
			observability.RecordError(res.Outcome.String(), "orchestrator")
		}
	}()

	userID = o.appendTurn(transcript.Turn{
		Speaker:  transcript.SpeakerUser,
		AudioRef: o.clips.Put(clip),
		Status:   transcript.StatusPending,
	})
	res.UserTurn = userID
	logger = logger.With().Uint64("turn_id", uint64(userID)).Logger()
	logger.Info().Int("bytes", clip.Len()).Str("mime_type", clip.MIMEType).Msg("Turn started")

	// Transcribe
	started := time.Now()
	text, err := o.collab.Transcriber.Transcribe(ctx, clip)
	metrics.ObserveStage(observability.StageTranscribe, started, err == nil)
	if err != nil {
		userPending = false
		_ = o.store.Resolve(userID, "", transcript.StatusFailed)
		logger.Error().Err(err).Msg("Transcription failed")
		res.Outcome = TranscriptionFailed
		res.Err = fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
		return res
	}
	userPending = false
	if err := o.store.Resolve(userID, text, transcript.StatusReady); err != nil {
		// The transcript was cleared under the turn; a reply would have no user turn
		logger.Warn().Err(err).Msg("User turn gone, abandoning turn")
		res.Outcome = TranscriptionFailed
		res.Err = fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
		return res
	}
	logger.Info().Str("text", text).Dur("latency", time.Since(started)).Msg("Transcribed")

	if strings.TrimSpace(text) == "" {
		logger.Info().Msg("Silent turn, no reply")
		res.Outcome = Silent
		return res
	}

	// Generate
	outcomeOnPanic = GenerationFailed
	started = time.Now()
	reply, err = o.collab.Generator.Generate(ctx, text)
	metrics.ObserveStage(observability.StageGenerate, started, err == nil)
	if err != nil {
		logger.Error().Err(err).Msg("Reply generation failed")
		res.Outcome = GenerationFailed
		res.Err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		return res
	}
	logger.Info().Int("chars", len(reply)).Dur("latency", time.Since(started)).Msg("Reply generated")

	// Synthesize
	outcomeOnPanic = SynthesisFailed
	started = time.Now()
	speech, err := o.collab.Synthesizer.Synthesize(ctx, reply)
	metrics.ObserveStage(observability.StageSynthesize, started, err == nil)

	if err != nil {
		res.AssistantTurn = o.appendAssistant(reply, "", transcript.StatusFailed)
		logger.Error().Err(err).Msg("Speech synthesis failed")
		res.Outcome = SynthesisFailed
		res.Err = fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
		return res
	}

	res.AssistantTurn = o.appendAssistant(reply, o.clips.Put(speech), transcript.StatusReady)
	logger.Info().Int("bytes", speech.Len()).Dur("latency", time.Since(started)).Msg("Turn completed")

	res.Outcome = Completed
	return res
}

func (o *Orchestrator) appendAssistant(text string, ref audio.Ref, status transcript.Status) transcript.TurnID {
	return o.appendTurn(transcript.Turn{
		Speaker:  transcript.SpeakerAssistant,
		AudioRef: ref,
		Text:     text,
		Status:   status,
	})
}

func (o Outcome) sentinel() error {
	switch o {
	case GenerationFailed:
		return ErrGenerationFailed
	case SynthesisFailed:
		return ErrSynthesisFailed
	}
	return ErrTranscriptionFailed
}
