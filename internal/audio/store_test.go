package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetRelease(t *testing.T) {
	s := NewStore()

	ref := s.Put(Clip{Data: []byte{1, 2, 3}, MIMEType: MIMETypeMPEG})
	require.NotEmpty(t, ref)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 3, s.Bytes())

	clip, err := s.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, clip.Data)
	assert.Equal(t, MIMETypeMPEG, clip.MIMEType)

	s.Release(ref)
	_, err = s.Get(ref)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Bytes())

	// Double release and null release are no-ops
	s.Release(ref)
	s.Release("")
}

func TestStore_HandlesAreUnique(t *testing.T) {
	s := NewStore()
	a := s.Put(Clip{Data: []byte{1}})
	b := s.Put(Clip{Data: []byte{1}})
	assert.NotEqual(t, a, b)
}

func TestStore_ReleaseAll(t *testing.T) {
	s := NewStore()
	a := s.Put(Clip{Data: []byte{1}})
	s.Put(Clip{Data: []byte{2, 3}})

	s.ReleaseAll()

	assert.Zero(t, s.Len())
	assert.Zero(t, s.Bytes())
	_, err := s.Get(a)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestClip_FileName(t *testing.T) {
	assert.Equal(t, "recording.mp3", Clip{MIMEType: MIMETypeMPEG}.FileName("recording"))
	assert.Equal(t, "recording.webm", Clip{MIMEType: MIMETypeWebM}.FileName("recording"))
	assert.Equal(t, "recording.mp3", Clip{}.FileName("recording"))
	assert.True(t, Clip{}.Empty())
}
