package backlog

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

// InMemoryStore is a process-local backlog; undelivered chunks are lost on
// restart.
type InMemoryStore struct {
	mu    sync.Mutex
	items []Item
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Push(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, prepare(item))
	return nil
}

func (s *InMemoryStore) Front(_ context.Context) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return Item{}, ErrEmpty
	}
	return s.items[0], nil
}

func (s *InMemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) Bump(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Attempts++
			return s.items[i].Attempts, nil
		}
	}
	return 0, ErrNotFound
}

func (s *InMemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.items) {
		limit = len(s.items)
	}
	out := make([]Item, limit)
	copy(out, s.items[:limit])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
