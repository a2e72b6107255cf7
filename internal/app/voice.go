package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/nextstep-health/nextstep-voice/internal/config"
	"github.com/nextstep-health/nextstep-voice/internal/stt"
	"github.com/nextstep-health/nextstep-voice/internal/tts"
)

// mockClipDuration is how long AUDIO_OUTPUT=mock pretends each clip plays.
const mockClipDuration = 1500 * time.Millisecond

type speechSetup struct {
	synthesizer tts.Synthesizer
	output      audio.Output
	detail      string
}

// resolveSpeech picks the synthesizer chain and the host audio output. A nil
// output means clips are streamed to the browser.
func resolveSpeech(cfg config.Config, client *backend.Client, logger zerolog.Logger) (speechSetup, error) {
	setup := speechSetup{}

	primary := tts.NewBackendSynthesizer(client)
	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		setup.synthesizer = tts.NewFailover(primary, tts.NewOpenAISynthesizer(key, cfg.OpenAITTSModel), logger)
		setup.detail = "backend /tts (openai fallback)"
	} else {
		setup.synthesizer = primary
		setup.detail = "backend /tts"
	}

	switch cfg.AudioOutput {
	case "browser":
		setup.detail += ", browser playback"
	case "speaker":
		setup.output = audio.NewSpeaker(logger)
		setup.detail += ", speaker playback"
	case "mock":
		setup.output = audio.NewNullOutput(mockClipDuration)
		setup.detail += ", mock playback"
	default:
		return speechSetup{}, fmt.Errorf("invalid AUDIO_OUTPUT: %q (expected browser|speaker|mock)", cfg.AudioOutput)
	}
	return setup, nil
}

// resolveRecognizer builds on-device recognition for terminal sessions. It
// needs an OpenAI key for Whisper; without one capture is unsupported.
func resolveRecognizer(cfg config.Config, logger zerolog.Logger) (stt.Recognizer, bool) {
	key := strings.TrimSpace(cfg.OpenAIAPIKey)
	if key == "" {
		return stt.Unavailable{}, false
	}
	transcriber := stt.NewWhisperTranscriber(openai.DefaultConfig(key), cfg.WhisperModel, cfg.RecognitionLanguage)
	return stt.NewLocalRecognizer(stt.MicSource{}, transcriber, stt.LocalOptions{
		MaxDuration: cfg.RecognitionMaxDuration,
	}, logger), true
}
