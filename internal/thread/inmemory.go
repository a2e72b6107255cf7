package thread

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	newID = uuid.NewString
	now   = func() time.Time { return time.Now().UTC() }
)

// InMemoryStore keeps threads in process memory for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[entry.SessionID] = append(s.threads[entry.SessionID], entry)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.threads[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	return append([]Entry(nil), arr[len(arr)-limit:]...), nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
