package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.BindAddr)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, "tts-1", cfg.TTSModel)
	assert.Equal(t, "browser", cfg.AudioOutput)
	assert.Equal(t, 50, cfg.AudioCacheSize)
	assert.Equal(t, 500*time.Millisecond, cfg.VoiceWelcomeDelay)
	assert.Equal(t, "friendly", cfg.DefaultTone)
	assert.Equal(t, "en-US", cfg.RecognitionLanguage)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("BACKEND_URL", "http://nextstep.test:9000")
	t.Setenv("AUDIO_OUTPUT", " Speaker ")
	t.Setenv("AUDIO_CACHE_SIZE", "12")
	t.Setenv("VOICE_WELCOME_DELAY", "0s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://nextstep.test:9000", cfg.BackendURL)
	assert.Equal(t, "speaker", cfg.AudioOutput)
	assert.Equal(t, 12, cfg.AudioCacheSize)
	assert.Zero(t, cfg.VoiceWelcomeDelay)
	assert.True(t, cfg.AllowAnyOrigin)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AUDIO_OUTPUT":                   "hdmi",
		"AUDIO_CACHE_SIZE":               "0",
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"BACKEND_TIMEOUT":                "soon",
		"APP_ALLOW_ANY_ORIGIN":           "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_UI_DIR",
		"BACKEND_URL",
		"BACKEND_TIMEOUT",
		"TTS_MODEL",
		"OPENAI_API_KEY",
		"OPENAI_TTS_MODEL",
		"WHISPER_MODEL",
		"RECOGNITION_LANGUAGE",
		"RECOGNITION_MAX_DURATION",
		"AUDIO_OUTPUT",
		"AUDIO_CACHE_SIZE",
		"VOICE_WELCOME_DELAY",
		"DEFAULT_TONE",
		"TONES_FILE",
		"DATABASE_URL",
		"LOG_LEVEL",
		"LOG_FILE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
