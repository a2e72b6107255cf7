package tts

import (
	"context"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
)

// BackendSynthesizer calls the NextStep backend POST /tts endpoint.
type BackendSynthesizer struct {
	client *backend.Client
}

func NewBackendSynthesizer(client *backend.Client) *BackendSynthesizer {
	return &BackendSynthesizer{client: client}
}

func (s *BackendSynthesizer) Synthesize(ctx context.Context, text, voice, model string) (*audio.Clip, error) {
	data, mime, err := s.client.Synthesize(ctx, text, voice, model)
	if err != nil {
		return nil, err
	}
	return audio.NewClip(data, mime), nil
}
