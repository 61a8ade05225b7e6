package app

import (
	"context"
	"time"

	"quizduel-service/internal/domain"
)

// QuestionRepository loads question content (from cache/backing store).
type QuestionRepository interface {
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
	SampleQuestions(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error)
	QuestionSet(ctx context.Context, setID string) ([]string, error)
}

// UserRepository reads rating snapshots and applies rating deltas. Deltas for
// one duel are applied atomically and at most once per duelID.
type UserRepository interface {
	GetRatingSnapshot(ctx context.Context, userID string) (domain.Player, error)
	ApplyRatingDeltas(ctx context.Context, duelID string, changes []domain.RatingChange) error
}

// InvitationRepository persists invitations. Transition is a compare-and-set on status.
type InvitationRepository interface {
	Create(ctx context.Context, inv domain.Invitation) error
	Get(ctx context.Context, invitationID string) (domain.Invitation, error)
	Transition(ctx context.Context, invitationID string, from, to domain.InvitationStatus, at time.Time) (domain.Invitation, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Invitation, error)
}

// ResultRepository stores finished duels; saving the same room twice is a no-op.
type ResultRepository interface {
	SaveResult(ctx context.Context, result domain.DuelResult) error
}

// RoomRepository abstracts where live rooms are registered (in-memory, Redis-marked, etc).
type RoomRepository interface {
	// Add registers the room; it fails with ErrRoomExists or ErrPlayerBusy.
	Add(room *Room) error
	Get(roomID string) (*Room, bool)
	GetByUser(userID string) (*Room, bool)
	Remove(room *Room)
	Count() int
}

// Presence answers whether a user currently holds a live connection.
type Presence interface {
	IsOnline(userID string) bool
}

// Notifier pushes messages to users. Delivery is best-effort and must not block.
type Notifier interface {
	Notify(userID string, msg domain.Message)
}

// ResultPublisher forwards finished duels to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result domain.DuelResult) error
}

type noopPublisher struct{}

func (noopPublisher) PublishResult(context.Context, domain.DuelResult) error { return nil }
