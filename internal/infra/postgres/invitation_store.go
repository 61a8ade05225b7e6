package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizduel-service/internal/domain"
)

// InvitationStore persists invitations. Transition is a conditional UPDATE so
// concurrent accept/decline/expire race on the status column.
type InvitationStore struct {
	pool *pgxpool.Pool
}

func NewInvitationStore(pool *pgxpool.Pool) *InvitationStore {
	return &InvitationStore{pool: pool}
}

const invitationColumns = `id, inviter_id, invitee_id, question_set_id, settings, status, created_at, resolved_at`

func (s *InvitationStore) Create(ctx context.Context, inv domain.Invitation) error {
	settings, err := json.Marshal(inv.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO duel_invitations (id, inviter_id, invitee_id, question_set_id, settings, status, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		inv.ID, inv.InviterID, inv.InviteeID, inv.QuestionSetID, string(settings), string(inv.Status), inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (s *InvitationStore) Get(ctx context.Context, invitationID string) (domain.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM duel_invitations WHERE id=$1`, invitationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("load invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) Transition(ctx context.Context, invitationID string, from, to domain.InvitationStatus, at time.Time) (domain.Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx, `
		UPDATE duel_invitations SET status=$3, resolved_at=$4
		WHERE id=$1 AND status=$2
		RETURNING `+invitationColumns, invitationID, string(from), string(to), at))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Invitation{}, fmt.Errorf("transition invitation: %w", err)
	}
	// Nothing updated: either the id is unknown or someone else resolved it first.
	if _, err := s.Get(ctx, invitationID); err != nil {
		return domain.Invitation{}, err
	}
	return domain.Invitation{}, domain.ErrAlreadyResolved
}

func (s *InvitationStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+` FROM duel_invitations
		WHERE status=$1 AND created_at < $2
		ORDER BY created_at`, string(domain.InvitationPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	var out []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvitation(row pgx.Row) (domain.Invitation, error) {
	var (
		inv      domain.Invitation
		settings []byte
		status   string
	)
	if err := row.Scan(&inv.ID, &inv.InviterID, &inv.InviteeID, &inv.QuestionSetID, &settings, &status, &inv.CreatedAt, &inv.ResolvedAt); err != nil {
		return domain.Invitation{}, err
	}
	if err := json.Unmarshal(settings, &inv.Settings); err != nil {
		return domain.Invitation{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	inv.Status = domain.InvitationStatus(status)
	return inv, nil
}
