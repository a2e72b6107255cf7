package tts

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/rs/zerolog"
)

// Failover prefers the primary synthesizer and switches to the fallback when
// the primary fails with a retryable error (see backend.Retryable); a request
// the primary rejected, such as a 4xx, is returned as is. Once the fallback succeeds it stays active until it
// fails; then the primary is retried.
type Failover struct {
	primary  Synthesizer
	fallback Synthesizer
	logger   zerolog.Logger

	fallbackActive atomic.Bool
}

func NewFailover(primary, fallback Synthesizer, logger zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "tts_failover").Logger(),
	}
}

// FallbackActive reports whether the fallback is currently preferred.
func (f *Failover) FallbackActive() bool { return f.fallbackActive.Load() }

func (f *Failover) Synthesize(ctx context.Context, text, voice, model string) (*audio.Clip, error) {
	if f.fallbackActive.Load() {
		clip, fbErr := f.fallback.Synthesize(ctx, text, voice, model)
		if fbErr == nil {
			return clip, nil
		}
		if ctx.Err() != nil {
			return nil, fbErr
		}
		clip, prErr := f.primary.Synthesize(ctx, text, voice, model)
		if prErr == nil {
			f.fallbackActive.Store(false)
			f.logger.Info().Msg("primary synthesizer recovered")
			return clip, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	clip, prErr := f.primary.Synthesize(ctx, text, voice, model)
	if prErr == nil {
		return clip, nil
	}
	if ctx.Err() != nil || !backend.Retryable(prErr) {
		return nil, prErr
	}
	clip, fbErr := f.fallback.Synthesize(ctx, text, voice, model)
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	f.fallbackActive.Store(true)
	f.logger.Warn().Err(prErr).Msg("primary synthesizer failed, using fallback")
	return clip, nil
}
