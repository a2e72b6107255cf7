package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber converts one recorded utterance (WAV) to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperTranscriber accepts a BCP 47 locale such as en-US; Whisper only
// takes the language part.
func NewWhisperTranscriber(cfg openai.ClientConfig, model, locale string) *WhisperTranscriber {
	model = strings.TrimSpace(model)
	if model == "" {
		model = openai.Whisper1
	}
	lang, _, _ := strings.Cut(strings.TrimSpace(locale), "-")
	return &WhisperTranscriber{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: strings.ToLower(lang),
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "utterance.wav",
		Format:   openai.AudioResponseFormatJSON,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
