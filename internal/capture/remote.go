package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// ErrNoSession is returned when audio arrives while nothing is recording
var ErrNoSession = errors.New("no capture session in progress")

// ErrClipTooLarge is returned when pushed audio exceeds the size limit
var ErrClipTooLarge = errors.New("recording exceeds maximum clip size")

// RemoteSource is fed by a client that owns the microphone (a browser
// MediaRecorder). The client pushes encoded chunks between start and stop.
type RemoteSource struct {
	maxBytes int64

	mu       sync.Mutex
	mimeType string
	current  *remoteSession
}

// NewRemoteSource creates a source accepting up to maxBytes per clip (0 = unlimited)
func NewRemoteSource(maxBytes int64) *RemoteSource {
	return &RemoteSource{maxBytes: maxBytes, mimeType: audio.MIMETypeWebM}
}

// Start opens a session that collects pushed chunks
func (s *RemoteSource) Start(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &remoteSession{source: s, started: time.Now(), mimeType: s.mimeType}
	s.current = sess
	return sess, nil
}

// SetMIMEType sets the container type of subsequently pushed audio
func (s *RemoteSource) SetMIMEType(mimeType string) {
	if mimeType == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mimeType = mimeType
	if s.current != nil {
		s.current.mimeType = mimeType
	}
}

// Write appends a chunk to the in-progress session
func (s *RemoteSource) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0, ErrNoSession
	}
	if s.maxBytes > 0 && int64(s.current.data.Len()+len(p)) > s.maxBytes {
		return 0, ErrClipTooLarge
	}
	return s.current.data.Write(p)
}

func (s *RemoteSource) detach(sess *remoteSession) {
	if s.current == sess {
		s.current = nil
	}
}

type remoteSession struct {
	source   *RemoteSource
	data     bytes.Buffer
	mimeType string
	started  time.Time
}

func (r *remoteSession) Finish(ctx context.Context) (audio.Clip, error) {
	r.source.mu.Lock()
	defer r.source.mu.Unlock()

	r.source.detach(r)
	if r.data.Len() == 0 {
		return audio.Clip{}, errors.New("no audio received")
	}
	return audio.Clip{
		Data:     bytes.Clone(r.data.Bytes()),
		MIMEType: r.mimeType,
		Duration: time.Since(r.started),
	}, nil
}

func (r *remoteSession) Abort() error {
	r.source.mu.Lock()
	defer r.source.mu.Unlock()

	r.source.detach(r)
	r.data.Reset()
	return nil
}
