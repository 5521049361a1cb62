package transcript

import (
	"errors"
	"sync"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

var (
	// ErrNotFound is returned when a turn id is not in the store
	ErrNotFound = errors.New("turn not found")

	// ErrNotPending is returned when resolving a turn that already resolved
	ErrNotPending = errors.New("turn is not pending")
)

// ChangeFunc is notified after every mutation
type ChangeFunc func()

// Store is the ordered, append-only list of turns for one session.
// Order is insertion order. Clear releases every turn's audio.
type Store struct {
	clips    *audio.Store
	onChange ChangeFunc

	mu    sync.RWMutex
	turns []Turn
	index map[TurnID]int
}

// NewStore creates an empty transcript whose audio lives in clips
func NewStore(clips *audio.Store) *Store {
	return &Store{
		clips: clips,
		index: make(map[TurnID]int),
	}
}

// OnChange registers the mutation callback. It runs outside the store lock.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Append adds a turn at the end. Feedback defaults to none.
func (s *Store) Append(turn Turn) {
	if turn.Feedback == "" {
		turn.Feedback = FeedbackNone
	}

	s.mu.Lock()
	s.index[turn.ID] = len(s.turns)
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	s.changed()
}

// Resolve completes a pending turn with its text and final status
func (s *Store) Resolve(id TurnID, text string, status Status) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.turns[i].Status != StatusPending {
		s.mu.Unlock()
		return ErrNotPending
	}
	s.turns[i].Text = text
	s.turns[i].Status = status
	s.mu.Unlock()

	s.changed()
	return nil
}

// ToggleVisible flips whether a turn's transcript is shown. Turns without
// text and unknown ids are left alone.
func (s *Store) ToggleVisible(id TurnID) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok || s.turns[i].Text == "" {
		s.mu.Unlock()
		return
	}
	s.turns[i].TranscriptVisible = !s.turns[i].TranscriptVisible
	s.mu.Unlock()

	s.changed()
}

// SetFeedback records the user's rating. Unknown ids are ignored.
func (s *Store) SetFeedback(id TurnID, value Feedback) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.turns[i].Feedback = value
	s.mu.Unlock()

	s.changed()
}

// Get returns a copy of one turn
func (s *Store) Get(id TurnID) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	return s.turns[i], true
}

// Snapshot returns a copy of the ordered turn list
func (s *Store) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Export renders the transcript as CSV over a consistent snapshot
func (s *Store) Export(layout string) []byte {
	return EncodeCSV(s.Snapshot(), layout)
}

// Clear releases every turn's audio and empties the store
func (s *Store) Clear() {
	s.mu.Lock()
	for _, t := range s.turns {
		s.clips.Release(t.AudioRef)
	}
	s.turns = nil
	s.index = make(map[TurnID]int)
	s.mu.Unlock()

	s.changed()
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()

	if fn != nil {
		fn()
	}
}
