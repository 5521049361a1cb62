package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/playback"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/transcript"
)

// subscriberBuffer is how many events a slow subscriber may lag before
// events are dropped for it
const subscriberBuffer = 32

// Options tune turn scheduling and playback
type Options struct {
	// Mode is config.TurnModeSerial (default) or config.TurnModeConcurrent
	Mode string
	// QueueSize bounds clips waiting in serial mode
	QueueSize int
	// Player plays completed replies when set
	Player playback.Player
	// ExportTimeLayout formats CSV timestamps
	ExportTimeLayout string
}

// EventType names a controller event
type EventType string

const (
	EventState      EventType = "state"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
)

// Event is pushed to subscribers whenever observable state changes
type Event struct {
	Type     EventType         `json:"type"`
	State    *Status           `json:"state,omitempty"`
	Messages []transcript.Turn `json:"messages,omitempty"`
	Error    *Failure          `json:"error,omitempty"`
}

// Status is the presentation-facing controller state
type Status struct {
	Recording  bool     `json:"isRecording"`
	Busy       bool     `json:"isBusy"`
	Microphone string   `json:"microphone"`
	LastError  *Failure `json:"lastError"`
}

// epoch scopes turns to one transcript lifetime; Reset starts a new one.
// Turns of an epoch do not touch the session until ready is closed.
type epoch struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  chan struct{}
}

func newEpoch() *epoch {
	ctx, cancel := context.WithCancel(context.Background())
	return &epoch{ctx: ctx, cancel: cancel, ready: make(chan struct{})}
}

type job struct {
	ep   *epoch
	clip audio.Clip
}

// Controller is the single entry point for the presentation layer. It
// drives the recorder, schedules turns and tracks busy and error state.
type Controller struct {
	session *Session
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	resetMu sync.Mutex

	mu      sync.Mutex
	epoch   *epoch
	pending int
	lastErr *Failure
	closed  bool

	queue      chan job
	done       chan struct{}
	workerDone chan struct{}
	playMu     sync.Mutex
	background sync.WaitGroup

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// NewController wires a controller to session and starts its turn worker
func NewController(session *Session, opts Options, logger zerolog.Logger) *Controller {
	if opts.Mode == "" {
		opts.Mode = config.TurnModeSerial
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}

	c := &Controller{
		session:    session,
		opts:       opts,
		logger:     logger.With().Str("component", "controller").Logger(),
		now:        time.Now,
		epoch:      newEpoch(),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
		subs:       make(map[chan Event]struct{}),
	}

	close(c.epoch.ready)

	session.Recorder.OnStateChange(func(recorder.State) { c.publishState() })
	session.Transcript.OnChange(c.publishTranscript)

	if opts.Mode == config.TurnModeSerial {
		c.queue = make(chan job, opts.QueueSize)
		go c.worker()
	} else {
		close(c.workerDone)
	}
	return c
}

// OnMicPressed toggles recording. Stopping forwards the clip to a new turn.
// It reports whether the recorder is recording afterwards.
func (c *Controller) OnMicPressed(ctx context.Context) (bool, error) {
	if c.IsRecording() {
		return false, c.StopRecording(ctx)
	}
	if err := c.StartRecording(ctx); err != nil {
		return false, err
	}
	return c.IsRecording(), nil
}

// StartRecording starts the recorder
func (c *Controller) StartRecording(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.session.Recorder.Start(ctx); err != nil {
		return c.fail(err)
	}
	return nil
}

// StopRecording stops the recorder and submits the clip. Stopping while
// idle is a no-op.
func (c *Controller) StopRecording(ctx context.Context) error {
	clip, _, err := c.session.Recorder.Stop(ctx)
	if err != nil {
		return c.fail(err)
	}
	if clip == nil {
		return nil
	}
	return c.submit(*clip)
}

// SubmitClip runs a turn for a clip recorded by the client, bypassing the
// local recorder
func (c *Controller) SubmitClip(clip audio.Clip) error {
	if clip.Empty() {
		return c.fail(fmt.Errorf("%w: empty clip", recorder.ErrFinalizationFailed))
	}
	return c.submit(clip)
}

func (c *Controller) submit(clip audio.Clip) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ep := c.epoch
	ep.wg.Add(1)
	c.pending++

	if c.queue != nil {
		select {
		case c.queue <- job{ep: ep, clip: clip}:
		default:
			c.pending--
			c.mu.Unlock()
			ep.wg.Done()
			return c.fail(ErrQueueFull)
		}
		c.mu.Unlock()
	} else {
		c.mu.Unlock()
		go c.run(job{ep: ep, clip: clip})
	}

	c.publishState()
	return nil
}

func (c *Controller) worker() {
	defer close(c.workerDone)
	for {
		select {
		case j := <-c.queue:
			c.run(j)
		case <-c.done:
			for {
				select {
				case j := <-c.queue:
					c.finish(j.ep)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) run(j job) {
	defer c.finish(j.ep)

	select {
	case <-j.ep.ready:
	case <-j.ep.ctx.Done():
	}
	// Clips queued before a reset or shutdown are dropped
	if j.ep.ctx.Err() != nil {
		return
	}

	res := c.session.Orchestrator.RunTurn(j.ep.ctx, j.clip)
	if res.Err != nil {
		if c.current(j.ep) {
			c.fail(res.Err)
		}
		return
	}
	if res.Outcome == Completed && c.opts.Player != nil {
		c.autoplay(j.ep, res.AssistantTurn)
	}
}

func (c *Controller) finish(ep *epoch) {
	c.mu.Lock()
	c.pending--
	c.mu.Unlock()
	ep.wg.Done()
	c.publishState()
}

// autoplay plays a completed reply in the background, one reply at a time
func (c *Controller) autoplay(ep *epoch, id transcript.TurnID) {
	turn, ok := c.session.Transcript.Get(id)
	if !ok || !turn.HasAudio() {
		return
	}
	clip, err := c.session.Clips.Get(turn.AudioRef)
	if err != nil {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.playMu.Lock()
		defer c.playMu.Unlock()

		if err := c.opts.Player.Play(ep.ctx, clip); err != nil && ep.ctx.Err() == nil {
			c.logger.Warn().Err(err).Uint64("turn_id", uint64(id)).Msg("Playback failed")
		}
	}()
}

// IsRecording reports whether the recorder is capturing
func (c *Controller) IsRecording() bool {
	return c.session.Recorder.State() == recorder.Recording
}

// IsBusy reports whether any submitted turn has not finished
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// LastError returns the most recent failure, nil when clear
func (c *Controller) LastError() *Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError dismisses the last failure
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.publishState()
}

// Status returns the presentation-facing state
func (c *Controller) Status() Status {
	mic := c.session.Recorder.Availability(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Recording:  c.session.Recorder.State() == recorder.Recording,
		Busy:       c.pending > 0,
		Microphone: mic.String(),
		LastError:  c.lastErr,
	}
}

// Messages returns the ordered transcript
func (c *Controller) Messages() []transcript.Turn {
	return c.session.Transcript.Snapshot()
}

// ToggleTranscript flips transcript visibility for one message
func (c *Controller) ToggleTranscript(id transcript.TurnID) {
	c.session.Transcript.ToggleVisible(id)
}

// SetFeedback rates one message
func (c *Controller) SetFeedback(id transcript.TurnID, value transcript.Feedback) {
	c.session.Transcript.SetFeedback(id, value)
}

// ExportTranscript renders the transcript as CSV
func (c *Controller) ExportTranscript() []byte {
	return c.session.Transcript.Export(c.opts.ExportTimeLayout)
}

// Audio returns the clip behind a message's audio handle
func (c *Controller) Audio(ref audio.Ref) (audio.Clip, error) {
	return c.session.Clips.Get(ref)
}

// Reset abandons in-flight turns and starts an empty transcript. Clips
// submitted while it runs belong to the new transcript and start once the
// old turns have unwound and the session is cleared.
func (c *Controller) Reset() error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.epoch
	next := newEpoch()
	c.epoch = next
	c.lastErr = nil
	c.mu.Unlock()

	old.cancel()
	c.session.Recorder.Abort()
	old.wg.Wait()
	c.session.clear()
	close(next.ready)

	c.logger.Info().Msg("Conversation reset")
	c.publishState()
	return nil
}

// Close stops accepting clips, cancels in-flight turns and releases the
// session. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ep := c.epoch
	c.mu.Unlock()

	ep.cancel()
	close(c.done)
	c.session.Recorder.Abort()
	ep.wg.Wait()
	<-c.workerDone
	c.background.Wait()
	c.session.Close()

	c.subMu.Lock()
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
	c.subMu.Unlock()

	c.logger.Info().Msg("Conversation closed")
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. The channel is closed on cancel or Close.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subMu.Lock()
	if c.isClosed() {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			c.subMu.Unlock()
		})
	}
}

// fail records err as the last error and returns the recorded failure,
// which unwraps to err
func (c *Controller) fail(err error) *Failure {
	f := newFailure(err, c.session.Recorder.Availability(context.Background()), c.now())

	c.mu.Lock()
	c.lastErr = f
	c.mu.Unlock()

	c.logger.Warn().Err(err).Str("kind", f.Kind).Msg("Conversation error")
	c.publish(Event{Type: EventError, Error: f})
	c.publishState()
	return f
}

func (c *Controller) current(ep *epoch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == ep
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) publishState() {
	st := c.Status()
	c.publish(Event{Type: EventState, State: &st})
}

func (c *Controller) publishTranscript() {
	c.publish(Event{Type: EventTranscript, Messages: c.session.Transcript.Snapshot()})
}

func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
