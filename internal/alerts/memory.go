package alerts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps alerts for the lifetime of the process
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]Alert
	paused map[int64]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]Alert),
		paused: make(map[int64]struct{}),
	}
}

func (s *MemoryStore) Add(ctx context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.key()] = a
	return nil
}

func (s *MemoryStore) List(ctx context.Context, chatID int64) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for _, a := range s.alerts {
		if a.ChatID == chatID {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sortAlerts(out)
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, chatID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey(chatID, symbol)
	if _, ok := s.alerts[key]; !ok {
		return ErrNotFound
	}
	delete(s.alerts, key)
	return nil
}

func (s *MemoryStore) MarkChecked(ctx context.Context, chatID int64, symbol string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey(chatID, symbol)
	a, ok := s.alerts[key]
	if !ok {
		return ErrNotFound
	}
	a.LastCheckedAt = at
	s.alerts[key] = a
	return nil
}

func (s *MemoryStore) SetPaused(ctx context.Context, chatID int64, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[chatID] = struct{}{}
	} else {
		delete(s.paused, chatID)
	}
	return nil
}

func (s *MemoryStore) IsPaused(ctx context.Context, chatID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paused[chatID]
	return ok, nil
}
