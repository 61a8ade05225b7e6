package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizduel-service/internal/domain"
)

// DefaultRating is the rating of a user seen for the first time.
const DefaultRating = 1200

// UserStore reads and updates player ratings.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Upsert creates the user on first connect and refreshes the display name.
func (s *UserStore) Upsert(ctx context.Context, userID, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, rating) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name)`,
		userID, displayName, DefaultRating)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetRatingSnapshot(ctx context.Context, userID string) (domain.Player, error) {
	p := domain.Player{ID: userID}
	err := s.pool.QueryRow(ctx, `SELECT display_name, rating FROM users WHERE id=$1`, userID).Scan(&p.DisplayName, &p.Rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load rating: %w", err)
	}
	return p, nil
}

// ApplyRatingDeltas applies both changes in one transaction. The
// rating_applications ledger makes a repeated call for the same duel a no-op.
func (s *UserStore) ApplyRatingDeltas(ctx context.Context, duelID string, changes []domain.RatingChange) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rating tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range changes {
		tag, err := tx.Exec(ctx, `
			INSERT INTO rating_applications (duel_id, user_id, delta) VALUES ($1, $2, $3)
			ON CONFLICT (duel_id, user_id) DO NOTHING`, duelID, c.UserID, c.Delta)
		if err != nil {
			return fmt.Errorf("record rating application: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		tag, err = tx.Exec(ctx, `UPDATE users SET rating = rating + $2, updated_at = now() WHERE id=$1`, c.UserID, c.Delta)
		if err != nil {
			return fmt.Errorf("update rating: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update rating for %s: %w", c.UserID, domain.ErrUserNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rating tx: %w", err)
	}
	return nil
}
