package thread

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists threads in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection keeps writes serialized and :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS thread_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	voice INTEGER NOT NULL DEFAULT 0,
	resources_found INTEGER NOT NULL DEFAULT 0,
	resources TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_thread_entries_session ON thread_entries(session_id, seq);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate thread_entries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	resources, err := encodeResources(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO thread_entries (id, session_id, role, text, voice, resources_found, resources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.SessionID,
		entry.Role,
		entry.Text,
		entry.Voice,
		entry.ResourcesFound,
		string(resources),
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append thread entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = maxListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, text, voice, resources_found, resources, created_at
		 FROM thread_entries WHERE session_id = ? ORDER BY seq DESC LIMIT ?`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query thread: %w", err)
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var (
			e         Entry
			resources sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Text, &e.Voice, &e.ResourcesFound, &resources, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan thread row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := decodeResources([]byte(resources.String), &e); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate thread rows: %w", err)
	}
	reverse(items)
	return items, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_entries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlite: clear thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
