package thread

import (
	"context"
	"time"

	"github.com/nextstep-health/nextstep-voice/internal/voice"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// RecordingSink persists rendered messages before forwarding every event to
// the next sink. A thread-cleared event clears the stored thread.
type RecordingSink struct {
	store     Store
	sessionID string
	next      voice.Sink
	logger    zerolog.Logger
}

func NewRecordingSink(store Store, sessionID string, next voice.Sink, logger zerolog.Logger) *RecordingSink {
	return &RecordingSink{
		store:     store,
		sessionID: sessionID,
		next:      next,
		logger:    logger.With().Str("component", "thread").Str("session_id", sessionID).Logger(),
	}
}

func (s *RecordingSink) Emit(ev voice.Event) {
	switch ev.Kind {
	case voice.EventUserMessage, voice.EventAssistantMessage:
		if ev.Message != nil {
			s.persist(func(ctx context.Context) error { return s.store.Append(ctx, s.entry(ev.Message)) })
		}
	case voice.EventThreadCleared:
		s.persist(func(ctx context.Context) error { return s.store.Clear(ctx, s.sessionID) })
	}
	if s.next != nil {
		s.next.Emit(ev)
	}
}

func (s *RecordingSink) persist(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("thread write failed")
	}
}

func (s *RecordingSink) entry(m *voice.Message) Entry {
	return Entry{
		ID:             m.ID,
		SessionID:      s.sessionID,
		Role:           string(m.Role),
		Text:           m.Text,
		Voice:          m.Voice,
		ResourcesFound: m.ResourcesFound,
		Resources:      m.Resources,
		CreatedAt:      m.CreatedAt,
	}
}
