package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/domain"
)

// ForfeitPolicy decides whether the remaining player wins when the opponent disconnects.
type ForfeitPolicy string

const (
	// ForfeitRequireActivity awards the win only if the remaining player answered at least once.
	ForfeitRequireActivity ForfeitPolicy = "require-activity"
	// ForfeitAlways always awards the win to the remaining player.
	ForfeitAlways ForfeitPolicy = "always"
)

func ParseForfeitPolicy(s string) (ForfeitPolicy, error) {
	switch ForfeitPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ForfeitRequireActivity:
		return ForfeitRequireActivity, nil
	case ForfeitAlways:
		return ForfeitAlways, nil
	}
	return "", fmt.Errorf("unknown forfeit policy %q", s)
}

func (p ForfeitPolicy) awardsWin(remainingAnswers int) bool {
	return p == ForfeitAlways || remainingAnswers > 0
}

// Limits for inviter-chosen settings.
const (
	MinQuestionCount = 1
	MaxQuestionCount = 50
	MinTimeLimitSecs = 5
	MaxTimeLimitSecs = 300
)

// Options tune duel behaviour.
type Options struct {
	Scoring                 ScoringRules
	KFactor                 float64
	Forfeit                 ForfeitPolicy
	Retry                   RetryPolicy
	DefaultQuestionCount    int
	DefaultTimeLimitSeconds int
	DefaultDifficulty       string
}

func DefaultOptions() Options {
	return Options{
		Scoring:                 DefaultScoringRules(),
		KFactor:                 DefaultKFactor,
		Forfeit:                 ForfeitRequireActivity,
		Retry:                   DefaultRetryPolicy(),
		DefaultQuestionCount:    10,
		DefaultTimeLimitSeconds: 30,
		DefaultDifficulty:       "medium",
	}
}

// Dependencies are the ports DuelService talks to. Publisher and Clock are optional.
type Dependencies struct {
	Questions   QuestionRepository
	Users       UserRepository
	Invitations InvitationRepository
	Results     ResultRepository
	Rooms       RoomRepository
	Presence    Presence
	Notifier    Notifier
	Publisher   ResultPublisher
	Clock       clockwork.Clock
}

// DuelService owns the invitation handshake and the set of live rooms.
type DuelService struct {
	questions   QuestionRepository
	users       UserRepository
	invitations InvitationRepository
	results     ResultRepository
	rooms       RoomRepository
	presence    Presence
	notifier    Notifier
	publisher   ResultPublisher
	clock       clockwork.Clock

	opts    Options
	scoring ScoringRules
	rating  *RatingUpdater
	retry   RetryPolicy
	forfeit ForfeitPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDuelService(deps Dependencies, opts Options) *DuelService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if opts.Forfeit == "" {
		opts.Forfeit = ForfeitRequireActivity
	}
	if opts.Scoring.BasePoints == 0 {
		opts.Scoring = DefaultScoringRules()
	}
	if opts.Retry.InitialInterval == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DuelService{
		questions:   deps.Questions,
		users:       deps.Users,
		invitations: deps.Invitations,
		results:     deps.Results,
		rooms:       deps.Rooms,
		presence:    deps.Presence,
		notifier:    deps.Notifier,
		publisher:   deps.Publisher,
		clock:       deps.Clock,
		opts:        opts,
		scoring:     opts.Scoring,
		rating:      NewRatingUpdater(deps.Users, opts.KFactor, opts.Retry),
		retry:       opts.Retry,
		forfeit:     opts.Forfeit,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close stops every room actor and waits for them to exit. Unfinished duels are dropped.
func (s *DuelService) Close() {
	s.cancel()
	s.wg.Wait()
}

// ActiveRooms reports the number of live rooms.
func (s *DuelService) ActiveRooms() int {
	return s.rooms.Count()
}

// NormalizeSettings fills defaults and validates ranges.
func (s *DuelService) NormalizeSettings(settings domain.DuelSettings) (domain.DuelSettings, error) {
	if settings.QuestionCount == 0 {
		settings.QuestionCount = s.opts.DefaultQuestionCount
	}
	if settings.PerQuestionTimeLimitSeconds == 0 {
		settings.PerQuestionTimeLimitSeconds = s.opts.DefaultTimeLimitSeconds
	}
	if settings.DifficultyFilter == "" {
		settings.DifficultyFilter = s.opts.DefaultDifficulty
	}
	if settings.QuestionCount < MinQuestionCount || settings.QuestionCount > MaxQuestionCount {
		return settings, fmt.Errorf("%w: questionCount must be between %d and %d", domain.ErrInvalidSettings, MinQuestionCount, MaxQuestionCount)
	}
	if settings.PerQuestionTimeLimitSeconds < MinTimeLimitSecs || settings.PerQuestionTimeLimitSeconds > MaxTimeLimitSecs {
		return settings, fmt.Errorf("%w: perQuestionTimeLimitSeconds must be between %d and %d", domain.ErrInvalidSettings, MinTimeLimitSecs, MaxTimeLimitSecs)
	}
	return settings, nil
}

// SubmitAnswer forwards an answer to the room actor and returns the ack once the
// answer (and any barrier transition it caused) has been fully processed.
func (s *DuelService) SubmitAnswer(ctx context.Context, roomID, userID string, sub domain.AnswerSubmission) (domain.AnswerAckPayload, error) {
	if sub.QuestionID == "" {
		return domain.AnswerAckPayload{}, fmt.Errorf("%w: questionId is required", domain.ErrInvalidPayload)
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.AnswerAckPayload{}, domain.ErrUnknownRoom
	}
	return room.submit(ctx, userID, sub)
}

// HandleDisconnect abandons the room on behalf of userID. It is a no-op for a
// room that already finished.
func (s *DuelService) HandleDisconnect(ctx context.Context, roomID, userID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil
	}
	return room.disconnect(ctx, userID)
}

// DisconnectUser abandons whatever room the user is playing in, if any.
func (s *DuelService) DisconnectUser(ctx context.Context, userID string) error {
	room, ok := s.rooms.GetByUser(userID)
	if !ok {
		return nil
	}
	return room.disconnect(ctx, userID)
}

// Room returns a snapshot of a live room.
func (s *DuelService) Room(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrUnknownRoom
	}
	return room.view(ctx)
}

// RoomOf returns the id of the room the user is playing in.
func (s *DuelService) RoomOf(userID string) (string, bool) {
	room, ok := s.rooms.GetByUser(userID)
	if !ok {
		return "", false
	}
	return room.ID(), true
}

// launch announces the duel and hands the room to its actor. The snapshot is
// taken before the actor runs.
func (s *DuelService) launch(room *Room) domain.RoomSnapshot {
	room.start()
	snap := room.snapshot()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		room.run(s.ctx)
	}()
	log.Info().
		Str("room_id", room.ID()).
		Strs("participants", room.ParticipantIDs()).
		Int("questions", len(room.questions)).
		Msg("duel started")
	return snap
}

func newID() string {
	return uuid.NewString()
}
