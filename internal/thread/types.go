package thread

import (
	"context"
	"errors"
	"time"

	"github.com/nextstep-health/nextstep-voice/internal/backend"
)

var ErrSessionRequired = errors.New("thread: session id is required")

// Entry is one rendered chat message in a session's thread.
type Entry struct {
	ID             string             `json:"id"`
	SessionID      string             `json:"session_id"`
	Role           string             `json:"role"`
	Text           string             `json:"text"`
	Voice          bool               `json:"voice"`
	ResourcesFound int                `json:"resources_found"`
	Resources      []backend.Resource `json:"resources,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Store persists chat threads. List returns entries oldest first; a limit
// <= 0 returns the whole thread.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}
