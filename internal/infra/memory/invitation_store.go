package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizduel-service/internal/domain"
)

// InvitationStore keeps invitations in memory. Transition is atomic under the store lock.
type InvitationStore struct {
	mu          sync.Mutex
	invitations map[string]domain.Invitation
}

func NewInvitationStore() *InvitationStore {
	return &InvitationStore{invitations: make(map[string]domain.Invitation)}
}

func (s *InvitationStore) Create(_ context.Context, inv domain.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[inv.ID] = inv
	return nil
}

func (s *InvitationStore) Get(_ context.Context, invitationID string) (domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	return inv, nil
}

func (s *InvitationStore) Transition(_ context.Context, invitationID string, from, to domain.InvitationStatus, at time.Time) (domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	if inv.Status != from {
		return domain.Invitation{}, domain.ErrAlreadyResolved
	}
	inv.Status = to
	inv.ResolvedAt = &at
	s.invitations[invitationID] = inv
	return inv, nil
}

func (s *InvitationStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Invitation
	for _, inv := range s.invitations {
		if inv.Status == domain.InvitationPending && inv.CreatedAt.Before(cutoff) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
