package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSynth struct {
	calls int
	err   error
}

func (s *stubSynth) Synthesize(context.Context, string, string, string) (*audio.Clip, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return audio.NewClip([]byte("mp3"), ""), nil
}

func TestFailoverSwitchesToFallbackAndSticks(t *testing.T) {
	primary := &stubSynth{err: errors.New("backend down")}
	fallback := &stubSynth{}
	f := NewFailover(primary, fallback, zerolog.Nop())

	_, err := f.Synthesize(context.Background(), "Hello", "alloy", "tts-1")
	require.NoError(t, err)
	_, err = f.Synthesize(context.Background(), "Hello again", "alloy", "tts-1")
	require.NoError(t, err)

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, fallback.calls)
	assert.True(t, f.FallbackActive())
}

func TestFailoverRetriesPrimaryWhenFallbackFails(t *testing.T) {
	primary := &stubSynth{err: errors.New("backend down")}
	fallback := &stubSynth{}
	f := NewFailover(primary, fallback, zerolog.Nop())

	_, err := f.Synthesize(context.Background(), "Hello", "alloy", "tts-1")
	require.NoError(t, err)

	primary.err = nil
	fallback.err = errors.New("quota exceeded")
	_, err = f.Synthesize(context.Background(), "Hello", "alloy", "tts-1")
	require.NoError(t, err)
	assert.False(t, f.FallbackActive())
}

func TestFailoverCombinedError(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")
	f := NewFailover(&stubSynth{err: primaryErr}, &stubSynth{err: fallbackErr}, zerolog.Nop())

	_, err := f.Synthesize(context.Background(), "Hello", "alloy", "tts-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, fallbackErr)
	assert.Contains(t, err.Error(), "primary down")
	assert.False(t, f.FallbackActive())
}

func TestFailoverSkipsFallbackWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fallback := &stubSynth{}
	f := NewFailover(&stubSynth{err: context.Canceled}, fallback, zerolog.Nop())

	_, err := f.Synthesize(ctx, "Hello", "alloy", "tts-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.calls)
}

func TestFailoverKeepsPrimaryOnClientError(t *testing.T) {
	rejected := &backend.StatusError{Path: "/tts", Status: 400, Body: "voice not supported"}
	primary := &stubSynth{err: rejected}
	fallback := &stubSynth{}
	f := NewFailover(primary, fallback, zerolog.Nop())

	_, err := f.Synthesize(context.Background(), "Hello", "alloy", "tts-1")
	require.ErrorIs(t, err, backend.ErrBadStatus)
	assert.Zero(t, fallback.calls)
	assert.False(t, f.FallbackActive())

	primary.err = &backend.StatusError{Path: "/tts", Status: 503}
	_, err = f.Synthesize(context.Background(), "Hello", "alloy", "tts-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
	assert.True(t, f.FallbackActive())
}
