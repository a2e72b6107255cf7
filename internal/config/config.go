package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the NextStep voice client.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool
	UIDir          string

	BackendURL     string
	BackendTimeout time.Duration
	TTSModel       string

	OpenAIAPIKey   string
	OpenAITTSModel string
	WhisperModel   string

	RecognitionLanguage    string
	RecognitionMaxDuration time.Duration

	AudioOutput       string
	AudioCacheSize    int
	VoiceWelcomeDelay time.Duration
	DefaultTone       string
	TonesFile         string

	DatabaseURL string

	LogLevel string
	LogFile  string
}

// Load reads environment variables (after an optional .env file) and applies safe defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8090"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "nextstep_voice"),
		UIDir:            stringsTrimSpace("APP_UI_DIR"),
		BackendURL:       envOrDefault("BACKEND_URL", "http://localhost:8000"),
		TTSModel:         envOrDefault("TTS_MODEL", "tts-1"),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		OpenAITTSModel:   envOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		WhisperModel:     envOrDefault("WHISPER_MODEL", "whisper-1"),
		// Recognition runs with one fixed locale per process.
		RecognitionLanguage: envOrDefault("RECOGNITION_LANGUAGE", "en-US"),
		AudioOutput:         envOrDefault("AUDIO_OUTPUT", "browser"),
		DefaultTone:         envOrDefault("DEFAULT_TONE", "friendly"),
		TonesFile:           stringsTrimSpace("TONES_FILE"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFile:             stringsTrimSpace("LOG_FILE"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		BackendTimeout:           60 * time.Second,
		RecognitionMaxDuration:   8 * time.Second,
		AudioCacheSize:           50,
		VoiceWelcomeDelay:        500 * time.Millisecond,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendTimeout, err = durationFromEnv("BACKEND_TIMEOUT", cfg.BackendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognitionMaxDuration, err = durationFromEnv("RECOGNITION_MAX_DURATION", cfg.RecognitionMaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceWelcomeDelay, err = durationFromEnv("VOICE_WELCOME_DELAY", cfg.VoiceWelcomeDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCacheSize, err = intFromEnv("AUDIO_CACHE_SIZE", cfg.AudioCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.AudioOutput = strings.ToLower(strings.TrimSpace(cfg.AudioOutput))
	switch cfg.AudioOutput {
	case "browser", "speaker", "mock":
	default:
		return Config{}, fmt.Errorf("AUDIO_OUTPUT must be one of browser|speaker|mock, got %q", cfg.AudioOutput)
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.AudioCacheSize <= 0 {
		return Config{}, fmt.Errorf("AUDIO_CACHE_SIZE must be positive")
	}
	if cfg.VoiceWelcomeDelay < 0 {
		return Config{}, fmt.Errorf("VOICE_WELCOME_DELAY must be >= 0")
	}
	if cfg.RecognitionMaxDuration <= 0 {
		return Config{}, fmt.Errorf("RECOGNITION_MAX_DURATION must be positive")
	}
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return Config{}, fmt.Errorf("BACKEND_URL must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
