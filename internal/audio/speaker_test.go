package audio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeakerRefusesClipsAfterClose(t *testing.T) {
	s := NewSpeaker(zerolog.Nop())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Start(NewClip([]byte("ID3"), MIMEMP3), PlaybackHooks{})
	assert.ErrorIs(t, err, ErrOutputClosed)
}
