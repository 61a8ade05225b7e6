package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"quizduel-service/internal/domain"
)

// CreateInvitation validates the request and stores a pending invitation.
// Both parties are notified.
func (s *DuelService) CreateInvitation(ctx context.Context, inviterID, inviteeID, questionSetID string, settings domain.DuelSettings) (domain.Invitation, error) {
	if inviterID == "" || inviteeID == "" {
		return domain.Invitation{}, fmt.Errorf("%w: inviter and invitee are required", domain.ErrInvalidPayload)
	}
	if inviterID == inviteeID {
		return domain.Invitation{}, domain.ErrSelfInvite
	}
	settings, err := s.NormalizeSettings(settings)
	if err != nil {
		return domain.Invitation{}, err
	}
	if !s.presence.IsOnline(inviteeID) {
		return domain.Invitation{}, domain.ErrInviteeOffline
	}
	if s.busy(inviterID, inviteeID) {
		return domain.Invitation{}, domain.ErrPlayerBusy
	}

	inviter, err := s.users.GetRatingSnapshot(ctx, inviterID)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("load inviter: %w", err)
	}

	inv := domain.Invitation{
		ID:            newID(),
		InviterID:     inviterID,
		InviteeID:     inviteeID,
		QuestionSetID: questionSetID,
		Settings:      settings,
		Status:        domain.InvitationPending,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("store invitation: %w", err)
	}

	s.notifier.Notify(inviteeID, domain.Message{Type: domain.MsgInvitationReceived, Payload: domain.InvitationReceivedPayload{
		InvitationID: inv.ID,
		Inviter:      inviter,
		Settings:     settings,
	}})
	s.notifier.Notify(inviterID, domain.Message{Type: domain.MsgInvitationSent, Payload: domain.InvitationSentPayload{
		InvitationID: inv.ID,
		InviteeID:    inviteeID,
	}})
	log.Info().Str("invitation_id", inv.ID).Str("inviter_id", inviterID).Str("invitee_id", inviteeID).Msg("invitation created")
	return inv, nil
}

// AcceptInvitation moves a pending invitation to accepted, loads the questions
// and starts the room. The room id is the invitation id.
func (s *DuelService) AcceptInvitation(ctx context.Context, invitationID, userID string) (domain.RoomSnapshot, error) {
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	if inv.InviteeID != userID {
		return domain.RoomSnapshot{}, domain.ErrNotInvitee
	}
	if inv.Status != domain.InvitationPending {
		return domain.RoomSnapshot{}, domain.ErrAlreadyResolved
	}
	if s.busy(inv.InviterID, inv.InviteeID) {
		return domain.RoomSnapshot{}, domain.ErrPlayerBusy
	}

	inv, err = s.invitations.Transition(ctx, inv.ID, domain.InvitationPending, domain.InvitationAccepted, s.clock.Now())
	if err != nil {
		return domain.RoomSnapshot{}, err
	}

	if !s.presence.IsOnline(inv.InviterID) {
		s.cancelAccepted(ctx, inv, domain.ErrOpponentOffline)
		return domain.RoomSnapshot{}, domain.ErrOpponentOffline
	}

	questions, err := s.questionSequence(ctx, inv)
	if err != nil {
		s.cancelAccepted(ctx, inv, err)
		return domain.RoomSnapshot{}, err
	}

	var players [2]domain.Player
	for i, id := range []string{inv.InviterID, inv.InviteeID} {
		p, err := s.users.GetRatingSnapshot(ctx, id)
		if err != nil {
			s.cancelAccepted(ctx, inv, err)
			return domain.RoomSnapshot{}, fmt.Errorf("load rating snapshot: %w", err)
		}
		players[i] = p
	}

	room := newRoom(s, inv, players, questions)
	if err := s.rooms.Add(room); err != nil {
		s.cancelAccepted(ctx, inv, err)
		return domain.RoomSnapshot{}, err
	}
	return s.launch(room), nil
}

// DeclineInvitation resolves a pending invitation as declined and confirms it to
// both parties.
func (s *DuelService) DeclineInvitation(ctx context.Context, invitationID, userID string) (domain.Invitation, error) {
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if inv.InviteeID != userID {
		return domain.Invitation{}, domain.ErrNotInvitee
	}
	inv, err = s.invitations.Transition(ctx, inv.ID, domain.InvitationPending, domain.InvitationDeclined, s.clock.Now())
	if err != nil {
		return domain.Invitation{}, err
	}
	msg := domain.Message{Type: domain.MsgDeclined, Payload: domain.InvitationClosedPayload{
		InvitationID: inv.ID,
		By:           userID,
	}}
	s.notifier.Notify(inv.InviterID, msg)
	s.notifier.Notify(userID, msg)
	log.Info().Str("invitation_id", inv.ID).Msg("invitation declined")
	return inv, nil
}

// ExpireInvitations expires invitations that stayed pending longer than ttl and
// returns how many were expired.
func (s *DuelService) ExpireInvitations(ctx context.Context, ttl time.Duration) (int, error) {
	now := s.clock.Now()
	pending, err := s.invitations.ListPendingBefore(ctx, now.Add(-ttl))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, inv := range pending {
		inv, err := s.invitations.Transition(ctx, inv.ID, domain.InvitationPending, domain.InvitationExpired, now)
		if errors.Is(err, domain.ErrAlreadyResolved) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		msg := domain.Message{Type: domain.MsgInvitationExpired, Payload: domain.InvitationClosedPayload{InvitationID: inv.ID}}
		s.notifier.Notify(inv.InviterID, msg)
		s.notifier.Notify(inv.InviteeID, msg)
	}
	if expired > 0 {
		log.Info().Int("count", expired).Msg("expired pending invitations")
	}
	return expired, nil
}

// cancelAccepted rolls an accepted invitation that could not start a room
// forward to expired and tells both parties why.
func (s *DuelService) cancelAccepted(ctx context.Context, inv domain.Invitation, cause error) {
	if _, err := s.invitations.Transition(ctx, inv.ID, domain.InvitationAccepted, domain.InvitationExpired, s.clock.Now()); err != nil {
		log.Error().Err(err).Str("invitation_id", inv.ID).Msg("rollback accepted invitation failed")
	}
	msg := domain.Message{Type: domain.MsgInvitationCancelled, Payload: domain.InvitationClosedPayload{
		InvitationID: inv.ID,
		Code:         domain.CodeOf(cause),
	}}
	s.notifier.Notify(inv.InviterID, msg)
	s.notifier.Notify(inv.InviteeID, msg)
	log.Warn().Err(cause).Str("invitation_id", inv.ID).Msg("accepted invitation cancelled")
}

func (s *DuelService) busy(userIDs ...string) bool {
	for _, id := range userIDs {
		if _, ok := s.rooms.GetByUser(id); ok {
			return true
		}
	}
	return false
}

// questionSequence fixes the ordered questions for a duel. A named set is used
// in its stored order; otherwise published questions are sampled by filter.
func (s *DuelService) questionSequence(ctx context.Context, inv domain.Invitation) ([]domain.Question, error) {
	count := inv.Settings.QuestionCount
	questions := make([]domain.Question, 0, count)
	seen := make(map[string]struct{}, count)
	add := func(q domain.Question) {
		if _, dup := seen[q.ID]; dup || !q.Published || len(questions) == count {
			return
		}
		seen[q.ID] = struct{}{}
		questions = append(questions, q)
	}

	if inv.QuestionSetID != "" {
		ids, err := s.questions.QuestionSet(ctx, inv.QuestionSetID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if len(questions) == count {
				break
			}
			q, err := s.questions.GetQuestion(ctx, id)
			if errors.Is(err, domain.ErrQuestionNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			add(q)
		}
	} else {
		sampled, err := s.questions.SampleQuestions(ctx, domain.QuestionFilter{
			Topic:      inv.Settings.TopicFilter,
			Difficulty: inv.Settings.DifficultyFilter,
		}, count)
		if err != nil {
			return nil, err
		}
		for _, q := range sampled {
			add(q)
		}
	}

	if len(questions) < count {
		return nil, fmt.Errorf("%w: found %d of %d", domain.ErrInsufficientQuestions, len(questions), count)
	}
	return questions, nil
}
