package app

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/domain"
)

var errRoomClosed = errors.New("room closed")

// Room is one live duel. Its state is owned by a single goroutine (run); every
// read or write goes through a command so submissions, deadlines and
// disconnects for the same room are strictly ordered.
type Room struct {
	id         string
	invitation domain.Invitation
	players    [2]domain.Player
	questions  []domain.Question
	timeLimit  time.Duration
	engine     *DuelService

	cursor     int
	answers    map[string][]domain.AnswerRecord
	scores     map[string]int
	status     domain.RoomStatus
	startedAt  time.Time
	finishedAt time.Time
	finalized  bool
	timer      clockwork.Timer

	commands chan command
	done     chan struct{}
}

// NewRoom returns an idle room that has no questions and no actor.
// Infrastructure packages use it to exercise their room stores.
func NewRoom(id string, players [2]domain.Player) *Room {
	return newRoom(nil, domain.Invitation{ID: id}, players, nil)
}

func newRoom(engine *DuelService, inv domain.Invitation, players [2]domain.Player, questions []domain.Question) *Room {
	r := &Room{
		id:         inv.ID,
		invitation: inv,
		players:    players,
		questions:  questions,
		timeLimit:  inv.Settings.TimeLimit(),
		engine:     engine,
		answers:    make(map[string][]domain.AnswerRecord, 2),
		scores:     make(map[string]int, 2),
		status:     domain.RoomActive,
		commands:   make(chan command),
		done:       make(chan struct{}),
	}
	for _, p := range players {
		r.answers[p.ID] = make([]domain.AnswerRecord, 0, len(questions))
		r.scores[p.ID] = 0
	}
	return r
}

// ID is the room id; it equals the invitation id.
func (r *Room) ID() string { return r.id }

// ParticipantIDs returns both user ids in invitation order (inviter first).
func (r *Room) ParticipantIDs() []string {
	return []string{r.players[0].ID, r.players[1].ID}
}

// Done is closed once the actor has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

type command interface {
	fail(err error)
}

type submitReply struct {
	ack domain.AnswerAckPayload
	err error
}

type submitCmd struct {
	playerID   string
	submission domain.AnswerSubmission
	reply      chan submitReply
}

func (c submitCmd) fail(err error) { c.reply <- submitReply{err: err} }

type disconnectCmd struct {
	playerID string
	reply    chan error
}

func (c disconnectCmd) fail(err error) { c.reply <- err }

type deadlineCmd struct {
	index int
}

func (deadlineCmd) fail(error) {}

type snapshotCmd struct {
	reply chan domain.RoomSnapshot
}

func (c snapshotCmd) fail(error) { close(c.reply) }

// start announces the duel and arms the first deadline. It runs before the
// actor goroutine so nothing else touches the state yet.
func (r *Room) start() {
	r.startedAt = r.engine.clock.Now()
	r.armDeadline()
	r.broadcast(domain.Message{Type: domain.MsgStarted, Payload: domain.StartedPayload{
		RoomID:         r.id,
		Participants:   r.players[:],
		TotalQuestions: len(r.questions),
		TimeLimitSecs:  r.invitation.Settings.PerQuestionTimeLimitSeconds,
		FirstQuestion:  r.questions[0].Public(),
	}})
}

func (r *Room) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.stopTimer()
			if !r.finalized {
				log.Warn().Str("room_id", r.id).Msg("room stopped before the duel finished")
				r.engine.rooms.Remove(r)
			}
			return
		case cmd := <-r.commands:
			r.dispatch(ctx, cmd)
			if r.finalized {
				return
			}
		}
	}
}

func (r *Room) dispatch(ctx context.Context, cmd command) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("room_id", r.id).Interface("panic", p).Msg("room command panicked")
			cmd.fail(domain.ErrInternal)
		}
	}()

	switch c := cmd.(type) {
	case submitCmd:
		ack, err := r.handleSubmit(ctx, c.playerID, c.submission)
		c.reply <- submitReply{ack: ack, err: err}
	case disconnectCmd:
		c.reply <- r.handleDisconnect(ctx, c.playerID)
	case deadlineCmd:
		r.handleDeadline(ctx, c.index)
	case snapshotCmd:
		c.reply <- r.snapshot()
	}
}

// send hands cmd to the actor. It fails with errRoomClosed once the actor is gone.
func (r *Room) send(ctx context.Context, cmd command) error {
	select {
	case r.commands <- cmd:
		return nil
	case <-r.done:
		return errRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) submit(ctx context.Context, playerID string, sub domain.AnswerSubmission) (domain.AnswerAckPayload, error) {
	reply := make(chan submitReply, 1)
	if err := r.send(ctx, submitCmd{playerID: playerID, submission: sub, reply: reply}); err != nil {
		if errors.Is(err, errRoomClosed) {
			return domain.AnswerAckPayload{}, domain.ErrTooLate
		}
		return domain.AnswerAckPayload{}, err
	}
	select {
	case res := <-reply:
		return res.ack, res.err
	case <-ctx.Done():
		return domain.AnswerAckPayload{}, ctx.Err()
	}
}

func (r *Room) disconnect(ctx context.Context, playerID string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, disconnectCmd{playerID: playerID, reply: reply}); err != nil {
		if errors.Is(err, errRoomClosed) {
			return nil
		}
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) view(ctx context.Context) (domain.RoomSnapshot, error) {
	reply := make(chan domain.RoomSnapshot, 1)
	if err := r.send(ctx, snapshotCmd{reply: reply}); err != nil {
		if errors.Is(err, errRoomClosed) {
			return domain.RoomSnapshot{}, domain.ErrUnknownRoom
		}
		return domain.RoomSnapshot{}, err
	}
	select {
	case snap, ok := <-reply:
		if !ok {
			return domain.RoomSnapshot{}, domain.ErrInternal
		}
		return snap, nil
	case <-ctx.Done():
		return domain.RoomSnapshot{}, ctx.Err()
	}
}

func (r *Room) handleSubmit(ctx context.Context, playerID string, sub domain.AnswerSubmission) (domain.AnswerAckPayload, error) {
	history, ok := r.answers[playerID]
	if !ok {
		return domain.AnswerAckPayload{}, domain.ErrNotParticipant
	}
	if r.status != domain.RoomActive {
		return domain.AnswerAckPayload{}, domain.ErrTooLate
	}
	for _, rec := range history {
		if rec.QuestionID != sub.QuestionID {
			continue
		}
		if rec.TimedOut {
			return domain.AnswerAckPayload{}, domain.ErrTooLate
		}
		return domain.AnswerAckPayload{}, domain.ErrDuplicateAnswer
	}
	// A player who already answered the current question waits at the barrier.
	if len(history) > r.cursor {
		return domain.AnswerAckPayload{}, domain.ErrQuestionMismatch
	}
	question := r.questions[r.cursor]
	if sub.QuestionID != question.ID {
		return domain.AnswerAckPayload{}, domain.ErrQuestionMismatch
	}
	if sub.SelectedOptionID != "" && !question.HasOption(sub.SelectedOptionID) {
		return domain.AnswerAckPayload{}, domain.ErrInvalidPayload
	}

	limitMs := r.timeLimit.Milliseconds()
	latency := sub.ClientLatencyMs
	if latency < 0 {
		latency = 0
	}
	if latency > limitMs {
		latency = limitMs
	}
	correct := sub.SelectedOptionID == question.CorrectOptionID
	ack := r.record(playerID, domain.AnswerRecord{
		QuestionID:       question.ID,
		SelectedOptionID: sub.SelectedOptionID,
		Correct:          correct,
		LatencyMs:        latency,
		Score:            r.engine.scoring.Score(correct, latency, limitMs),
		Timestamp:        r.engine.clock.Now(),
	})

	r.checkBarrier(ctx)
	return ack, nil
}

// record appends to the player's log, acks the player and tells the opponent
// that progress was made without revealing the answer.
func (r *Room) record(playerID string, rec domain.AnswerRecord) domain.AnswerAckPayload {
	questionNumber := len(r.answers[playerID]) + 1
	r.answers[playerID] = append(r.answers[playerID], rec)
	r.scores[playerID] += rec.Score

	ack := domain.AnswerAckPayload{
		RoomID:          r.id,
		QuestionID:      rec.QuestionID,
		Correct:         rec.Correct,
		CorrectOptionID: r.questions[questionNumber-1].CorrectOptionID,
		Score:           rec.Score,
		TotalScore:      r.scores[playerID],
		TimedOut:        rec.TimedOut,
	}
	r.engine.notifier.Notify(playerID, domain.Message{Type: domain.MsgAnswerAck, Payload: ack})
	r.engine.notifier.Notify(r.opponentOf(playerID).ID, domain.Message{
		Type:    domain.MsgOpponentProgressed,
		Payload: domain.OpponentProgressedPayload{RoomID: r.id, QuestionNumber: questionNumber},
	})
	return ack
}

func (r *Room) handleDeadline(ctx context.Context, index int) {
	if r.status != domain.RoomActive || index != r.cursor {
		return
	}
	question := r.questions[r.cursor]
	for _, p := range r.players {
		if len(r.answers[p.ID]) != r.cursor {
			continue
		}
		log.Debug().Str("room_id", r.id).Str("user_id", p.ID).Int("question", r.cursor+1).Msg("answer timed out")
		r.record(p.ID, domain.AnswerRecord{
			QuestionID: question.ID,
			LatencyMs:  r.timeLimit.Milliseconds(),
			TimedOut:   true,
			Timestamp:  r.engine.clock.Now(),
		})
	}
	r.checkBarrier(ctx)
}

func (r *Room) handleDisconnect(ctx context.Context, playerID string) error {
	if _, ok := r.answers[playerID]; !ok {
		return domain.ErrNotParticipant
	}
	if r.status != domain.RoomActive {
		return nil
	}
	r.stopTimer()
	r.status = domain.RoomAbandoned
	r.finishedAt = r.engine.clock.Now()

	remaining := r.opponentOf(playerID)
	r.engine.notifier.Notify(remaining.ID, domain.Message{
		Type:    domain.MsgOpponentDisconnect,
		Payload: domain.OpponentDisconnectedPayload{RoomID: r.id},
	})

	winnerID := ""
	if r.engine.forfeit.awardsWin(len(r.answers[remaining.ID])) {
		winnerID = remaining.ID
	}
	log.Info().Str("room_id", r.id).Str("user_id", playerID).Str("winner_id", winnerID).Msg("duel abandoned")
	r.finalize(ctx, winnerID)
	return nil
}

func (r *Room) armDeadline() {
	index := r.cursor
	r.timer = r.engine.clock.AfterFunc(r.timeLimit, func() {
		// Never block the clock's callback; the actor may be busy.
		go r.enqueue(deadlineCmd{index: index})
	})
}

func (r *Room) enqueue(cmd command) {
	select {
	case r.commands <- cmd:
	case <-r.done:
	}
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) opponentOf(playerID string) domain.Player {
	if r.players[0].ID == playerID {
		return r.players[1]
	}
	return r.players[0]
}

func (r *Room) broadcast(msg domain.Message) {
	for _, p := range r.players {
		r.engine.notifier.Notify(p.ID, msg)
	}
}

func (r *Room) scoreboard() map[string]int {
	scores := make(map[string]int, len(r.scores))
	for id, s := range r.scores {
		scores[id] = s
	}
	return scores
}

func (r *Room) snapshot() domain.RoomSnapshot {
	counts := make(map[string]int, len(r.answers))
	for id, history := range r.answers {
		counts[id] = len(history)
	}
	return domain.RoomSnapshot{
		ID:             r.id,
		InvitationID:   r.invitation.ID,
		Status:         r.status,
		Participants:   []domain.Player{r.players[0], r.players[1]},
		Cursor:         r.cursor,
		TotalQuestions: len(r.questions),
		Scores:         r.scoreboard(),
		AnswerCounts:   counts,
		StartedAt:      r.startedAt,
	}
}
