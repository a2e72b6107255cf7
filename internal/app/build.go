package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/nextstep-health/nextstep-voice/internal/config"
	"github.com/nextstep-health/nextstep-voice/internal/httpapi"
	"github.com/nextstep-health/nextstep-voice/internal/observability"
	"github.com/nextstep-health/nextstep-voice/internal/session"
	"github.com/nextstep-health/nextstep-voice/internal/thread"
	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Backend  *backend.Client
	Threads  thread.Store
	Metrics  *observability.Metrics
	// SpeechDetail describes the resolved synthesis and playback chain for logs.
	SpeechDetail string

	// Cleanup should be called on shutdown to release external resources (DB, audio device).
	Cleanup func() error
}

// Build wires the bridge server from configuration.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client, err := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		return nil, fmt.Errorf("backend client init failed: %w", err)
	}

	tones, err := voice.LoadTones(cfg.TonesFile)
	if err != nil {
		return nil, fmt.Errorf("voice tones init failed: %w", err)
	}
	if _, ok := tones.Get(cfg.DefaultTone); !ok {
		return nil, fmt.Errorf("DEFAULT_TONE %q is not a configured tone", cfg.DefaultTone)
	}

	speech, err := resolveSpeech(cfg, client, logger)
	if err != nil {
		return nil, err
	}

	threads, err := thread.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("thread store init failed: %w", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	api := httpapi.New(httpapi.Options{
		Config:      cfg,
		Sessions:    sessions,
		Tones:       tones,
		Chat:        client,
		Catalog:     client,
		Synthesizer: speech.synthesizer,
		Output:      speech.output,
		Threads:     threads,
		Metrics:     metrics,
		Logger:      logger,
	})
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionClosed("expired")
		api.CloseSession(s.ID)
	})

	cleanup := func() error {
		var errs []string
		if c, ok := speech.output.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := threads.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Backend:      client,
		Threads:      threads,
		Metrics:      metrics,
		SpeechDetail: speech.detail,
		Cleanup:      cleanup,
	}, nil
}

type TerminalResult struct {
	SessionID    string
	Orchestrator *voice.Orchestrator
	Backend      *backend.Client
	// Capture reports whether on-device speech recognition is available.
	Capture      bool
	SpeechDetail string
	Cleanup      func() error
}

// BuildTerminal wires a single orchestrator for a terminal session. Audio
// plays on the host speaker unless AUDIO_OUTPUT=mock.
func BuildTerminal(ctx context.Context, cfg config.Config, sink voice.Sink, logger zerolog.Logger) (*TerminalResult, error) {
	if cfg.AudioOutput == "browser" {
		cfg.AudioOutput = "speaker"
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client, err := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		return nil, fmt.Errorf("backend client init failed: %w", err)
	}
	tones, err := voice.LoadTones(cfg.TonesFile)
	if err != nil {
		return nil, fmt.Errorf("voice tones init failed: %w", err)
	}
	speech, err := resolveSpeech(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	threads, err := thread.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("thread store init failed: %w", err)
	}

	sessionID := uuid.NewString()
	recognizer, capture := resolveRecognizer(cfg, logger)
	orch, err := voice.NewOrchestrator(voice.Config{
		Tones:        tones,
		DefaultTone:  cfg.DefaultTone,
		Model:        cfg.TTSModel,
		WelcomeDelay: cfg.VoiceWelcomeDelay,
	}, voice.Dependencies{
		Chat:        client,
		Synthesizer: speech.synthesizer,
		Recognizer:  recognizer,
		Output:      speech.output,
		Sink:        thread.NewRecordingSink(threads, sessionID, sink, logger),
		Cache:       audio.NewCache(cfg.AudioCacheSize),
		Metrics:     metrics,
		Logger:      logger.With().Str("session_id", sessionID).Logger(),
	})
	if err != nil {
		_ = threads.Close()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	if !capture {
		orch.SetCapability(voice.CapabilityUnsupported)
	}

	cleanup := func() error {
		orch.Close()
		var errs []string
		if c, ok := speech.output.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := threads.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &TerminalResult{
		SessionID:    sessionID,
		Orchestrator: orch,
		Backend:      client,
		Capture:      capture,
		SpeechDetail: speech.detail,
		Cleanup:      cleanup,
	}, nil
}
