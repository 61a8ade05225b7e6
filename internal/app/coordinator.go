package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"quizduel-service/internal/domain"
)

// checkBarrier advances the shared cursor once both players have an entry for
// the current question, then either opens the next question or completes the duel.
func (r *Room) checkBarrier(ctx context.Context) {
	next := r.cursor + 1
	for _, p := range r.players {
		if len(r.answers[p.ID]) != next {
			return
		}
	}
	r.stopTimer()
	r.cursor = next

	if r.cursor == len(r.questions) {
		r.status = domain.RoomCompleted
		r.finishedAt = r.engine.clock.Now()
		r.finalize(ctx, decideWinner(r.players, r.scores, r.answers))
		return
	}

	r.armDeadline()
	r.broadcast(domain.Message{Type: domain.MsgNextQuestion, Payload: domain.NextQuestionPayload{
		RoomID:         r.id,
		QuestionNumber: r.cursor + 1,
		TotalQuestions: len(r.questions),
		Question:       r.questions[r.cursor].Public(),
		Scores:         r.scoreboard(),
	}})
}

// decideWinner ranks by score, then by lower aggregate latency. An empty id is a draw.
func decideWinner(players [2]domain.Player, scores map[string]int, answers map[string][]domain.AnswerRecord) string {
	a, b := players[0].ID, players[1].ID
	if scores[a] != scores[b] {
		if scores[a] > scores[b] {
			return a
		}
		return b
	}
	la, lb := totalLatency(answers[a]), totalLatency(answers[b])
	switch {
	case la < lb:
		return a
	case lb < la:
		return b
	}
	return ""
}

func totalLatency(history []domain.AnswerRecord) int64 {
	var total int64
	for _, rec := range history {
		total += rec.LatencyMs
	}
	return total
}

// finalize runs at most once per room: apply ratings, persist the result,
// announce the outcome and evict the room. Persistence failures are retried
// within the retry budget; once it is spent the room is evicted anyway.
func (r *Room) finalize(ctx context.Context, winnerID string) {
	if r.finalized {
		return
	}
	r.finalized = true
	forfeit := r.status == domain.RoomAbandoned

	var changes []domain.RatingChange
	if r.status == domain.RoomCompleted || winnerID != "" {
		changes = r.engine.rating.Compute(r.players[0], r.players[1], winnerID)
	}
	// The stored result reports only rating changes that were applied.
	if len(changes) > 0 {
		if err := r.engine.rating.Apply(ctx, r.id, changes); err != nil {
			log.Error().Err(err).Str("room_id", r.id).Msg("rating update failed, result is stored without rating changes")
			changes = nil
		}
	}
	result := r.result(winnerID, forfeit, changes)

	err := r.engine.retry.Do(ctx, "save result", r.id, func() error {
		return r.engine.results.SaveResult(ctx, result)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("room_id", r.id).
			Str("winner_id", winnerID).
			Interface("scores", r.scores).
			Interface("rating_changes", changes).
			Msg("unresolved duel: finalize retries exhausted, evicting room")
	} else if err := r.engine.publisher.PublishResult(ctx, result); err != nil {
		log.Warn().Err(err).Str("room_id", r.id).Msg("publish duel result failed")
	}

	var winner *string
	if winnerID != "" {
		winner = &winnerID
	}
	r.broadcast(domain.Message{Type: domain.MsgCompleted, Payload: domain.CompletedPayload{
		RoomID:               r.id,
		Status:               r.status,
		WinnerID:             winner,
		Forfeit:              forfeit,
		FinalScores:          result.FinalScores(),
		RatingChanges:        changes,
		PerQuestionBreakdown: result.Breakdown,
	}})

	r.engine.rooms.Remove(r)
	log.Info().
		Str("room_id", r.id).
		Str("status", string(r.status)).
		Str("winner_id", winnerID).
		Msg("duel finished")
}

func (r *Room) result(winnerID string, forfeit bool, changes []domain.RatingChange) domain.DuelResult {
	after := make(map[string]int, len(changes))
	for _, c := range changes {
		after[c.UserID] = c.After
	}

	players := make([]domain.PlayerResult, 0, len(r.players))
	for _, p := range r.players {
		rating, ok := after[p.ID]
		if !ok {
			rating = p.Rating
		}
		history := make([]domain.AnswerRecord, len(r.answers[p.ID]))
		copy(history, r.answers[p.ID])
		players = append(players, domain.PlayerResult{
			UserID:         p.ID,
			DisplayName:    p.DisplayName,
			Score:          r.scores[p.ID],
			TotalLatencyMs: totalLatency(history),
			RatingBefore:   p.Rating,
			RatingAfter:    rating,
			Answers:        history,
		})
	}

	var breakdown []domain.QuestionBreakdown
	for i, q := range r.questions {
		answers := make(map[string]domain.AnswerRecord, 2)
		for _, p := range r.players {
			if history := r.answers[p.ID]; i < len(history) {
				answers[p.ID] = history[i]
			}
		}
		if len(answers) == 0 {
			break
		}
		breakdown = append(breakdown, domain.QuestionBreakdown{
			QuestionNumber:  i + 1,
			QuestionID:      q.ID,
			CorrectOptionID: q.CorrectOptionID,
			Answers:         answers,
		})
	}

	return domain.DuelResult{
		RoomID:         r.id,
		InvitationID:   r.invitation.ID,
		Status:         r.status,
		WinnerID:       winnerID,
		Draw:           winnerID == "" && r.status == domain.RoomCompleted,
		Forfeit:        forfeit,
		RatingsApplied: len(changes) > 0,
		Players:        players,
		Breakdown:      breakdown,
		StartedAt:      r.startedAt,
		FinishedAt:     r.finishedAt,
	}
}
