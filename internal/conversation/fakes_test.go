package conversation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/capture"
	"github.com/lexiqai/voice-assistant/internal/recorder"
)

type fakeTranscriber struct {
	fn    func(ctx context.Context, clip audio.Clip) (string, error)
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, clip)
}

type fakeGenerator struct {
	fn    func(ctx context.Context, input string) (string, error)
	calls atomic.Int32
}

func (f *fakeGenerator) Generate(ctx context.Context, input string) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, input)
}

type fakeSynthesizer struct {
	fn    func(ctx context.Context, text string) (audio.Clip, error)
	calls atomic.Int32
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	f.calls.Add(1)
	return f.fn(ctx, text)
}

// echoCollaborators transcribe a clip to its payload, reply with a fixed
// map and synthesize text to its bytes
func echoCollaborators(replies map[string]string) (*fakeTranscriber, *fakeGenerator, *fakeSynthesizer) {
	tr := &fakeTranscriber{fn: func(_ context.Context, clip audio.Clip) (string, error) {
		return string(clip.Data), nil
	}}
	gen := &fakeGenerator{fn: func(_ context.Context, input string) (string, error) {
		return replies[input], nil
	}}
	syn := &fakeSynthesizer{fn: func(_ context.Context, text string) (audio.Clip, error) {
		return audio.Clip{Data: []byte("mp3:" + text), MIMEType: audio.MIMETypeMPEG}, nil
	}}
	return tr, gen, syn
}

// fakeSource hands out sessions that finish with the next queued clip
type fakeSource struct {
	mu    sync.Mutex
	clips []audio.Clip
}

func (f *fakeSource) push(data string) {
	f.mu.Lock()
	f.clips = append(f.clips, audio.Clip{Data: []byte(data), MIMEType: audio.MIMETypeWebM})
	f.mu.Unlock()
}

func (f *fakeSource) Start(context.Context) (capture.Session, error) {
	return &fakeSession{src: f}, nil
}

type fakeSession struct {
	src *fakeSource
}

func (s *fakeSession) Finish(context.Context) (audio.Clip, error) {
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	if len(s.src.clips) == 0 {
		return audio.Clip{}, nil
	}
	clip := s.src.clips[0]
	s.src.clips = s.src.clips[1:]
	return clip, nil
}

func (s *fakeSession) Abort() error { return nil }

type fakePlayer struct {
	mu     sync.Mutex
	played [][]byte
}

func (p *fakePlayer) Play(_ context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.played = append(p.played, clip.Data)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

type harness struct {
	ctrl    *Controller
	session *Session
	source  *fakeSource
	tr      *fakeTranscriber
	gen     *fakeGenerator
	syn     *fakeSynthesizer
}

func newHarness(avail capture.Availability, opts Options, tr *fakeTranscriber, gen *fakeGenerator, syn *fakeSynthesizer) *harness {
	src := &fakeSource{}
	guard := capture.NewGuard(func(context.Context) capture.Availability { return avail })
	rec := recorder.New(guard, src, zerolog.Nop())

	session := NewSession(rec, Collaborators{Transcriber: tr, Generator: gen, Synthesizer: syn}, zerolog.Nop())
	return &harness{
		ctrl:    NewController(session, opts, zerolog.Nop()),
		session: session,
		source:  src,
		tr:      tr,
		gen:     gen,
		syn:     syn,
	}
}
