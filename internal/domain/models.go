package domain

import "time"

// Player is a duel participant. Rating is a snapshot taken when the duel starts.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
}

// InvitationStatus tracks the invite/accept/decline handshake.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// DuelSettings are chosen by the inviter and fixed for the whole duel.
type DuelSettings struct {
	QuestionCount               int    `json:"questionCount"`
	PerQuestionTimeLimitSeconds int    `json:"perQuestionTimeLimitSeconds"`
	TopicFilter                 string `json:"topicFilter,omitempty"`
	DifficultyFilter            string `json:"difficultyFilter,omitempty"`
}

// TimeLimit returns the per-question deadline as a duration.
func (s DuelSettings) TimeLimit() time.Duration {
	return time.Duration(s.PerQuestionTimeLimitSeconds) * time.Second
}

// Invitation is the persisted pre-duel handshake record.
type Invitation struct {
	ID            string           `json:"id"`
	InviterID     string           `json:"inviterId"`
	InviteeID     string           `json:"inviteeId"`
	QuestionSetID string           `json:"questionSetId,omitempty"`
	Settings      DuelSettings     `json:"settings"`
	Status        InvitationStatus `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	ResolvedAt    *time.Time       `json:"resolvedAt,omitempty"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID              string   `json:"id"`
	Prompt          string   `json:"prompt"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correctOptionId"`
	Topic           string   `json:"topic,omitempty"`
	Difficulty      string   `json:"difficulty,omitempty"`
	Published       bool     `json:"published"`
}

// Public strips the correct answer so the question can be sent to a client.
func (q Question) Public() PublicQuestion {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return PublicQuestion{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Options:    opts,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
	}
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// PublicQuestion is the client-facing view of a question. It never carries the answer.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []Option `json:"options"`
	Topic      string   `json:"topic,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
}

// QuestionFilter narrows random sampling of published questions.
type QuestionFilter struct {
	Topic      string
	Difficulty string
}

// RoomStatus is the lifecycle state of a duel room.
type RoomStatus string

const (
	RoomActive    RoomStatus = "active"
	RoomCompleted RoomStatus = "completed"
	RoomAbandoned RoomStatus = "abandoned"
)

// AnswerSubmission models an answer event from a client.
type AnswerSubmission struct {
	QuestionID       string
	SelectedOptionID string
	ClientLatencyMs  int64
}

// AnswerRecord is one entry of a player's answer log.
type AnswerRecord struct {
	QuestionID       string    `json:"questionId"`
	SelectedOptionID string    `json:"selectedOptionId"`
	Correct          bool      `json:"correct"`
	LatencyMs        int64     `json:"latencyMs"`
	Score            int       `json:"score"`
	TimedOut         bool      `json:"timedOut,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// RatingChange is the Elo outcome for one participant.
type RatingChange struct {
	UserID string `json:"userId"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Delta  int    `json:"delta"`
}

// PlayerResult summarizes one participant in a finished duel.
type PlayerResult struct {
	UserID         string         `json:"userId"`
	DisplayName    string         `json:"displayName"`
	Score          int            `json:"score"`
	TotalLatencyMs int64          `json:"totalLatencyMs"`
	RatingBefore   int            `json:"ratingBefore"`
	RatingAfter    int            `json:"ratingAfter"`
	Answers        []AnswerRecord `json:"answers"`
}

// QuestionBreakdown is the per-question view of a finished duel.
type QuestionBreakdown struct {
	QuestionNumber  int                     `json:"questionNumber"`
	QuestionID      string                  `json:"questionId"`
	CorrectOptionID string                  `json:"correctOptionId"`
	Answers         map[string]AnswerRecord `json:"answers"`
}

// DuelResult is persisted exactly once per room, keyed by RoomID.
type DuelResult struct {
	RoomID       string     `json:"roomId"`
	InvitationID string     `json:"invitationId"`
	Status       RoomStatus `json:"status"`
	WinnerID     string     `json:"winnerId,omitempty"`
	Draw         bool       `json:"draw"`
	Forfeit      bool       `json:"forfeit"`
	// RatingsApplied is false when no rating change was written for this duel.
	RatingsApplied bool                `json:"ratingsApplied"`
	Players        []PlayerResult      `json:"players"`
	Breakdown      []QuestionBreakdown `json:"breakdown"`
	StartedAt      time.Time           `json:"startedAt"`
	FinishedAt     time.Time           `json:"finishedAt"`
}

// FinalScores maps user id to total score.
func (r DuelResult) FinalScores() map[string]int {
	scores := make(map[string]int, len(r.Players))
	for _, p := range r.Players {
		scores[p.UserID] = p.Score
	}
	return scores
}

// RoomSnapshot is a read-only view of a live room.
type RoomSnapshot struct {
	ID             string         `json:"id"`
	InvitationID   string         `json:"invitationId"`
	Status         RoomStatus     `json:"status"`
	Participants   []Player       `json:"participants"`
	Cursor         int            `json:"cursor"`
	TotalQuestions int            `json:"totalQuestions"`
	Scores         map[string]int `json:"scores"`
	AnswerCounts   map[string]int `json:"answerCounts"`
	StartedAt      time.Time      `json:"startedAt"`
}
