package audio

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrReleased is returned when reading a handle that was released or never issued
var ErrReleased = errors.New("audio handle released")

// Ref is an opaque handle to a clip held by a Store. The zero value is the null handle.
type Ref string

// Store owns clip payloads behind Ref handles. A handle stays valid until
// it is released; release frees the payload.
type Store struct {
	mu    sync.RWMutex
	clips map[Ref]Clip
	bytes int
}

// NewStore creates an empty clip store
func NewStore() *Store {
	return &Store{clips: make(map[Ref]Clip)}
}

// Put takes ownership of clip and returns its handle
func (s *Store) Put(clip Clip) Ref {
	ref := Ref(uuid.New().String())

	s.mu.Lock()
	s.clips[ref] = clip
	s.bytes += clip.Len()
	s.mu.Unlock()

	return ref
}

// Get returns the clip for ref
func (s *Store) Get(ref Ref) (Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clip, ok := s.clips[ref]
	if !ok {
		return Clip{}, ErrReleased
	}
	return clip, nil
}

// Release frees the clip behind ref. Releasing the null or an unknown handle is a no-op.
func (s *Store) Release(ref Ref) {
	if ref == "" {
		return
	}

	s.mu.Lock()
	if clip, ok := s.clips[ref]; ok {
		s.bytes -= clip.Len()
		delete(s.clips, ref)
	}
	s.mu.Unlock()
}

// ReleaseAll frees every clip
func (s *Store) ReleaseAll() {
	s.mu.Lock()
	s.clips = make(map[Ref]Clip)
	s.bytes = 0
	s.mu.Unlock()
}

// Len returns the number of live handles
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}

// Bytes returns the total payload size held
func (s *Store) Bytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}
