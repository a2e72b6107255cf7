package thread

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists threads in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS thread_entries (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			voice BOOLEAN NOT NULL DEFAULT FALSE,
			resources_found INTEGER NOT NULL DEFAULT 0,
			resources JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_thread_entries_session ON thread_entries (session_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	resources, err := encodeResources(entry)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO thread_entries (id, session_id, role, text, voice, resources_found, resources, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.SessionID,
		entry.Role,
		entry.Text,
		entry.Voice,
		entry.ResourcesFound,
		resources,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append thread entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = maxListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, text, voice, resources_found, resources, created_at
		 FROM thread_entries WHERE session_id=$1 ORDER BY seq DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var (
			e         Entry
			resources []byte
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Text, &e.Voice, &e.ResourcesFound, &resources, &createdAt); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		e.CreatedAt = createdAt.UTC()
		if err := decodeResources(resources, &e); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}
	reverse(items)
	return items, nil
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM thread_entries WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("clear thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const maxListLimit = 1000

func encodeResources(e Entry) ([]byte, error) {
	if len(e.Resources) == 0 {
		return nil, nil
	}
	raw, err := sonic.Marshal(e.Resources)
	if err != nil {
		return nil, fmt.Errorf("encode resources: %w", err)
	}
	return raw, nil
}

func decodeResources(raw []byte, e *Entry) error {
	if len(raw) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, &e.Resources); err != nil {
		return fmt.Errorf("decode resources: %w", err)
	}
	return nil
}

// reverse turns newest-first query results into chronological order.
func reverse(items []Entry) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
