package app

import (
	"context"
	"math"

	"quizduel-service/internal/domain"
)

const DefaultKFactor = 32

// ExpectedScore is the Elo win expectation of a player rated `rating` against `opponent`.
func ExpectedScore(rating, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
}

// EloChanges computes the rating outcome for both players. winnerID is empty for a draw.
func EloChanges(a, b domain.Player, winnerID string, kFactor float64) []domain.RatingChange {
	actualA := 0.5
	switch winnerID {
	case a.ID:
		actualA = 1
	case b.ID:
		actualA = 0
	}
	return []domain.RatingChange{
		eloChange(a, b, actualA, kFactor),
		eloChange(b, a, 1-actualA, kFactor),
	}
}

func eloChange(p, opponent domain.Player, actual, kFactor float64) domain.RatingChange {
	expected := ExpectedScore(p.Rating, opponent.Rating)
	after := int(math.Round(float64(p.Rating) + kFactor*(actual-expected)))
	return domain.RatingChange{UserID: p.ID, Before: p.Rating, After: after, Delta: after - p.Rating}
}

// RatingUpdater applies both participants' rating changes as one unit.
type RatingUpdater struct {
	users   UserRepository
	kFactor float64
	retry   RetryPolicy
}

func NewRatingUpdater(users UserRepository, kFactor float64, retry RetryPolicy) *RatingUpdater {
	if kFactor <= 0 {
		kFactor = DefaultKFactor
	}
	return &RatingUpdater{users: users, kFactor: kFactor, retry: retry}
}

// Compute returns the changes for a duel between a and b.
func (u *RatingUpdater) Compute(a, b domain.Player, winnerID string) []domain.RatingChange {
	return EloChanges(a, b, winnerID, u.kFactor)
}

// Apply persists the pair of changes, retrying them as a unit. The repository
// keys the write by duelID so a retried write is never applied twice.
func (u *RatingUpdater) Apply(ctx context.Context, duelID string, changes []domain.RatingChange) error {
	return u.retry.Do(ctx, "apply rating", duelID, func() error {
		return u.users.ApplyRatingDeltas(ctx, duelID, changes)
	})
}
