package undo

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/pricebook/internal/domain"
)

// MemoryStore is a process-local Store. Windows do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Snapshot
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]Snapshot), now: time.Now}
}

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context, key string, snap Snapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, w := range s.windows {
		if !now.Before(w.ExpiresAt) {
			delete(s.windows, k)
		}
	}
	snap.ExpiresAt = now.Add(ttl)
	s.windows[key] = snap
	return nil
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, key string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return nil, domain.ErrUndoWindowClosed
	}
	delete(s.windows, key)
	if !s.now().Before(w.ExpiresAt) {
		return nil, domain.ErrUndoWindowClosed
	}
	return &w, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !s.now().Before(w.ExpiresAt) {
		return nil, domain.ErrUndoWindowClosed
	}
	return &w, nil
}
