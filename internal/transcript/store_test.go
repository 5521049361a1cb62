package transcript

import (
	"bytes"
	"encoding/csv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

var at = time.Date(2025, 3, 14, 14, 5, 0, 0, time.UTC)

func newStore() (*Store, *audio.Store) {
	clips := audio.NewStore()
	return NewStore(clips), clips
}

func TestStore_AppendKeepsInsertionOrder(t *testing.T) {
	s, _ := newStore()

	s.Append(Turn{ID: 2, Speaker: SpeakerUser, Status: StatusPending})
	s.Append(Turn{ID: 1, Speaker: SpeakerAssistant, Status: StatusReady, Text: "hi"})
	s.Append(Turn{ID: 3, Speaker: SpeakerUser, Status: StatusPending})

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []TurnID{2, 1, 3}, []TurnID{snap[0].ID, snap[1].ID, snap[2].ID})
	assert.Equal(t, FeedbackNone, snap[0].Feedback)
	assert.False(t, snap[0].TranscriptVisible)
}

func TestStore_ResolveOnlyPending(t *testing.T) {
	s, _ := newStore()
	s.Append(Turn{ID: 1, Speaker: SpeakerUser, Status: StatusPending})

	require.NoError(t, s.Resolve(1, "hello", StatusReady))
	turn, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "hello", turn.Text)
	assert.Equal(t, StatusReady, turn.Status)

	assert.ErrorIs(t, s.Resolve(1, "changed", StatusFailed), ErrNotPending)
	turn, _ = s.Get(1)
	assert.Equal(t, "hello", turn.Text)

	assert.ErrorIs(t, s.Resolve(99, "x", StatusReady), ErrNotFound)
}

func TestStore_PresentationalFields(t *testing.T) {
	s, _ := newStore()
	s.Append(Turn{ID: 1, Speaker: SpeakerAssistant, Status: StatusReady, Text: "reply"})
	s.Append(Turn{ID: 2, Speaker: SpeakerUser, Status: StatusPending})

	s.ToggleVisible(1)
	turn, _ := s.Get(1)
	assert.True(t, turn.TranscriptVisible)
	s.ToggleVisible(1)
	turn, _ = s.Get(1)
	assert.False(t, turn.TranscriptVisible)

	s.ToggleVisible(2)
	turn, _ = s.Get(2)
	assert.False(t, turn.TranscriptVisible, "turns without text cannot show a transcript")

	s.SetFeedback(1, FeedbackUp)
	turn, _ = s.Get(1)
	assert.Equal(t, FeedbackUp, turn.Feedback)
	assert.Equal(t, StatusReady, turn.Status)
	assert.Equal(t, "reply", turn.Text)

	before := s.Snapshot()
	s.ToggleVisible(42)
	s.SetFeedback(42, FeedbackDown)
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s, _ := newStore()
	s.Append(Turn{ID: 1, Speaker: SpeakerUser, Text: "a", Status: StatusReady})

	snap := s.Snapshot()
	snap[0].Text = "mutated"

	turn, _ := s.Get(1)
	assert.Equal(t, "a", turn.Text)
}

func TestStore_ClearReleasesAudio(t *testing.T) {
	s, clips := newStore()
	userRef := clips.Put(audio.Clip{Data: []byte("in")})
	replyRef := clips.Put(audio.Clip{Data: []byte("out")})

	s.Append(Turn{ID: 1, Speaker: SpeakerUser, AudioRef: userRef, Status: StatusReady})
	s.Append(Turn{ID: 2, Speaker: SpeakerAssistant, AudioRef: replyRef, Status: StatusReady})
	s.Append(Turn{ID: 3, Speaker: SpeakerAssistant, Status: StatusFailed})

	s.Clear()

	assert.Zero(t, s.Len())
	assert.Zero(t, clips.Len())
	_, err := clips.Get(userRef)
	assert.ErrorIs(t, err, audio.ErrReleased)
}

func TestStore_OnChange(t *testing.T) {
	s, _ := newStore()
	var n int
	s.OnChange(func() {
		n++
		_ = s.Len()
	})

	s.Append(Turn{ID: 1, Status: StatusPending})
	_ = s.Resolve(1, "x", StatusReady)
	s.ToggleVisible(1)
	s.SetFeedback(1, FeedbackDown)
	s.Clear()

	assert.Equal(t, 5, n)
}

func TestStore_ConcurrentAppend(t *testing.T) {
	s, _ := newStore()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id TurnID) {
			defer wg.Done()
			s.Append(Turn{ID: id, Speaker: SpeakerUser, Status: StatusPending})
			_ = s.Resolve(id, "t", StatusReady)
		}(TurnID(i))
	}
	wg.Wait()

	snap := s.Snapshot()
	require.Len(t, snap, 50)
	for _, turn := range snap {
		assert.Equal(t, StatusReady, turn.Status)
	}
}

func parseCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestEncodeCSV_WeatherScenario(t *testing.T) {
	turns := []Turn{
		{ID: 1, Speaker: SpeakerUser, Text: "What's the weather?", Status: StatusReady, CreatedAt: at},
		{ID: 2, Speaker: SpeakerAssistant, Text: "I don't have real-time weather access, but I can help with other questions.", Status: StatusReady, CreatedAt: at},
	}

	got := string(EncodeCSV(turns, ""))
	want := `"Sender","Timestamp","Text"` + "\n" +
		`"user","02:05 PM","What's the weather?"` + "\n" +
		`"assistant","02:05 PM","I don't have real-time weather access, but I can help with other questions."`
	assert.Equal(t, want, got)

	records := parseCSV(t, []byte(got))
	require.Len(t, records, 3)
	assert.Equal(t, "I don't have real-time weather access, but I can help with other questions.", records[2][2])
}

func TestEncodeCSV_QuotesCommasAndNewlines(t *testing.T) {
	turns := []Turn{
		{ID: 1, Speaker: SpeakerUser, Text: `She said "hi", then left`, CreatedAt: at},
		{ID: 2, Speaker: SpeakerAssistant, Text: "line one\nline two\r\nline three\rend", CreatedAt: at},
		{ID: 3, Speaker: SpeakerUser, Text: "", CreatedAt: at},
	}

	records := parseCSV(t, EncodeCSV(turns, time.Kitchen))
	require.Len(t, records, 4)
	assert.Equal(t, []string{"Sender", "Timestamp", "Text"}, records[0])
	assert.Equal(t, []string{"user", "2:05PM", `She said "hi", then left`}, records[1])
	assert.Equal(t, "line one line two line three end", records[2][2])
	assert.Equal(t, "", records[3][2])
}

func TestEncodeCSV_EmptyTranscript(t *testing.T) {
	assert.Equal(t, `"Sender","Timestamp","Text"`, string(EncodeCSV(nil, "")))
}

func TestStore_ExportIsIdempotent(t *testing.T) {
	s, _ := newStore()
	s.Append(Turn{ID: 1, Speaker: SpeakerUser, Text: "Tell me a joke.", Status: StatusReady, CreatedAt: at})
	s.Append(Turn{ID: 2, Speaker: SpeakerAssistant, Text: "Why, \"hello\"!", Status: StatusReady, CreatedAt: at})

	first := s.Export(DefaultTimeLayout)
	second := s.Export(DefaultTimeLayout)
	assert.Equal(t, first, second)

	records := parseCSV(t, first)
	require.Len(t, records, 3)
	assert.Equal(t, "assistant", records[2][0])
	assert.Equal(t, `Why, "hello"!`, records[2][2])
}
