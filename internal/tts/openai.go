package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	openai "github.com/sashabaranov/go-openai"
)

// maxSpeechInput is the OpenAI speech endpoint's input limit in characters.
const maxSpeechInput = 4096

// OpenAISynthesizer calls the OpenAI speech API directly.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
}

func NewOpenAISynthesizer(apiKey, model string) *OpenAISynthesizer {
	return NewOpenAISynthesizerWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAISynthesizerWithConfig(cfg openai.ClientConfig, model string) *OpenAISynthesizer {
	model = strings.TrimSpace(model)
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAISynthesizer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, voice, model string) (*audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("openai speech: empty text")
	}
	if r := []rune(text); len(r) > maxSpeechInput {
		text = string(r[:maxSpeechInput])
	}
	if strings.TrimSpace(model) == "" {
		model = s.model
	}
	if strings.TrimSpace(voice) == "" {
		voice = string(openai.VoiceAlloy)
	}

	res, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer res.Close()

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai speech: empty audio")
	}
	return audio.NewClip(data, audio.MIMEMP3), nil
}
