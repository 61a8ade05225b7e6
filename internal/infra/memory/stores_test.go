package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizduel-service/internal/domain"
)

func TestInvitationTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewInvitationStore()
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Create(ctx, domain.Invitation{ID: "inv-1", InviterID: "u1", InviteeID: "u2", Status: domain.InvitationPending, CreatedAt: created})

	inv, err := store.Transition(ctx, "inv-1", domain.InvitationPending, domain.InvitationAccepted, created.Add(time.Second))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if inv.Status != domain.InvitationAccepted || inv.ResolvedAt == nil {
		t.Fatalf("unexpected invitation %+v", inv)
	}

	if _, err := store.Transition(ctx, "inv-1", domain.InvitationPending, domain.InvitationDeclined, created); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
	if _, err := store.Transition(ctx, "nope", domain.InvitationPending, domain.InvitationDeclined, created); !errors.Is(err, domain.ErrInvitationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPendingBefore(t *testing.T) {
	ctx := context.Background()
	store := NewInvitationStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Create(ctx, domain.Invitation{ID: "old", Status: domain.InvitationPending, CreatedAt: base})
	_ = store.Create(ctx, domain.Invitation{ID: "new", Status: domain.InvitationPending, CreatedAt: base.Add(time.Hour)})
	_ = store.Create(ctx, domain.Invitation{ID: "done", Status: domain.InvitationDeclined, CreatedAt: base})

	got, _ := store.ListPendingBefore(ctx, base.Add(time.Minute))
	if len(got) != 1 || got[0].ID != "old" {
		t.Fatalf("expected only the old pending invitation, got %+v", got)
	}
}

func TestApplyRatingDeltasOncePerDuel(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(domain.Player{ID: "u1", DisplayName: "Alice", Rating: 1200})
	changes := []domain.RatingChange{
		{UserID: "u1", Before: 1200, After: 1216, Delta: 16},
		{UserID: "u2", Before: 1200, After: 1184, Delta: -16},
	}

	for i := 0; i < 2; i++ {
		if err := store.ApplyRatingDeltas(ctx, "duel-1", changes); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	u1, _ := store.GetRatingSnapshot(ctx, "u1")
	u2, _ := store.GetRatingSnapshot(ctx, "u2")
	if u1.Rating != 1216 || u2.Rating != 1184 {
		t.Fatalf("expected 1216/1184, got %d/%d", u1.Rating, u2.Rating)
	}
}

func TestSaveResultFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	_ = store.SaveResult(ctx, domain.DuelResult{RoomID: "r1", WinnerID: "u1"})
	_ = store.SaveResult(ctx, domain.DuelResult{RoomID: "r1", WinnerID: "u2"})

	got, ok := store.Result("r1")
	if !ok || got.WinnerID != "u1" || store.Count() != 1 {
		t.Fatalf("expected first result kept, got %+v", got)
	}
}
