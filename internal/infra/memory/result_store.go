package memory

import (
	"context"
	"sync"

	"quizduel-service/internal/domain"
)

// ResultStore keeps finished duels keyed by room id. The first save wins.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.DuelResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.DuelResult)}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.DuelResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.RoomID]; ok {
		return nil
	}
	s.results[result.RoomID] = result
	return nil
}

func (s *ResultStore) Result(roomID string) (domain.DuelResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[roomID]
	return r, ok
}

func (s *ResultStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
