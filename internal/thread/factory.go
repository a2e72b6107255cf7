package thread

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from the database URL: empty keeps threads in
// memory, postgres:// uses PostgreSQL, sqlite:// and file: use SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "file:"):
		return NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("thread: unsupported DATABASE_URL scheme in %q", redact(url))
	}
}

func redact(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i+3] + "..."
	}
	return "..."
}

func prepare(entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.SessionID) == "" {
		return Entry{}, ErrSessionRequired
	}
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	return entry, nil
}
