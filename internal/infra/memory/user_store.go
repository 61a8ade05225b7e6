package memory

import (
	"context"
	"sync"

	"quizduel-service/internal/domain"
)

// DefaultRating is assigned to users the store has not seen yet.
const DefaultRating = 1200

// UserStore keeps ratings in memory and remembers which duels were already applied.
type UserStore struct {
	mu      sync.Mutex
	users   map[string]domain.Player
	applied map[string]struct{}
}

func NewUserStore(players ...domain.Player) *UserStore {
	s := &UserStore{
		users:   make(map[string]domain.Player),
		applied: make(map[string]struct{}),
	}
	for _, p := range players {
		s.users[p.ID] = p
	}
	return s
}

// Upsert records the display name of a connected user; unknown users start at DefaultRating.
func (s *UserStore) Upsert(_ context.Context, userID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[userID]
	if !ok {
		p = domain.Player{ID: userID, Rating: DefaultRating}
	}
	if displayName != "" {
		p.DisplayName = displayName
	}
	s.users[userID] = p
	return nil
}

func (s *UserStore) GetRatingSnapshot(_ context.Context, userID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.users[userID]; ok {
		return p, nil
	}
	return domain.Player{ID: userID, DisplayName: userID, Rating: DefaultRating}, nil
}

// ApplyRatingDeltas writes all changes or none; a duel already applied is a no-op.
func (s *UserStore) ApplyRatingDeltas(_ context.Context, duelID string, changes []domain.RatingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.applied[duelID]; done {
		return nil
	}
	for _, c := range changes {
		p, ok := s.users[c.UserID]
		if !ok {
			p = domain.Player{ID: c.UserID, DisplayName: c.UserID, Rating: DefaultRating}
		}
		p.Rating += c.Delta
		s.users[c.UserID] = p
	}
	s.applied[duelID] = struct{}{}
	return nil
}
