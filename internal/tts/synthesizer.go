package tts

import (
	"context"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
)

// Synthesizer turns text into a playable clip. The caller owns the returned
// clip's initial reference.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, model string) (*audio.Clip, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text, voice, model string) (*audio.Clip, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text, voice, model string) (*audio.Clip, error) {
	return f(ctx, text, voice, model)
}
