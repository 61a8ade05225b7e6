package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizduel-service/internal/domain"
)

// ResultStore persists finished duels. room_id is the primary key, so a
// retried save after a lost acknowledgement does nothing.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.DuelResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var winner *string
	if result.WinnerID != "" {
		winner = &result.WinnerID
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO duel_results (room_id, invitation_id, status, winner_id, draw, data, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		ON CONFLICT (room_id) DO NOTHING`,
		result.RoomID, result.InvitationID, string(result.Status), winner, result.Draw, string(data), result.StartedAt, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// Result loads a stored duel result.
func (s *ResultStore) Result(ctx context.Context, roomID string) (domain.DuelResult, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, `SELECT data FROM duel_results WHERE room_id=$1`, roomID).Scan(&raw); err != nil {
		return domain.DuelResult{}, fmt.Errorf("load result: %w", err)
	}
	var result domain.DuelResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.DuelResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}
