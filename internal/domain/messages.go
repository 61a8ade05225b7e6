package domain

// Inbound message types.
const (
	MsgInvite  = "duel.invite"
	MsgAccept  = "duel.accept"
	MsgDecline = "duel.decline"
	MsgAnswer  = "duel.answer"
)

// Outbound message types.
const (
	MsgInvitationReceived  = "duel.invitation_received"
	MsgInvitationSent      = "duel.invitation_sent"
	MsgInvitationExpired   = "duel.invitation_expired"
	MsgInvitationCancelled = "duel.invitation_cancelled"
	MsgDeclined            = "duel.declined"
	MsgStarted             = "duel.started"
	MsgNextQuestion        = "duel.next_question"
	MsgAnswerAck           = "duel.answer_ack"
	MsgOpponentProgressed  = "duel.opponent_progressed"
	MsgCompleted           = "duel.completed"
	MsgOpponentDisconnect  = "duel.opponent_disconnected"
	MsgSessionReplaced     = "duel.session_replaced"
	MsgError               = "duel.error"
)

// Message is the envelope pushed to a connection.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// InvitationReceivedPayload is sent to the invitee.
type InvitationReceivedPayload struct {
	InvitationID string       `json:"invitationId"`
	Inviter      Player       `json:"inviter"`
	Settings     DuelSettings `json:"settings"`
}

// InvitationSentPayload confirms an invitation to the inviter.
type InvitationSentPayload struct {
	InvitationID string `json:"invitationId"`
	InviteeID    string `json:"inviteeId"`
}

// InvitationClosedPayload reports an invitation that ended without a duel.
type InvitationClosedPayload struct {
	InvitationID string `json:"invitationId"`
	By           string `json:"by,omitempty"`
	Code         string `json:"code,omitempty"`
}

// StartedPayload opens the duel for both participants.
type StartedPayload struct {
	RoomID         string         `json:"roomId"`
	Participants   []Player       `json:"participants"`
	TotalQuestions int            `json:"totalQuestions"`
	TimeLimitSecs  int            `json:"timeLimitSeconds"`
	FirstQuestion  PublicQuestion `json:"firstQuestion"`
}

// NextQuestionPayload is broadcast once both players cleared the barrier.
type NextQuestionPayload struct {
	RoomID         string         `json:"roomId"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
	Question       PublicQuestion `json:"question"`
	Scores         map[string]int `json:"scores"`
}

// AnswerAckPayload is sent to the answering player only.
type AnswerAckPayload struct {
	RoomID          string `json:"roomId"`
	QuestionID      string `json:"questionId"`
	Correct         bool   `json:"correct"`
	CorrectOptionID string `json:"correctOptionId"`
	Score           int    `json:"score"`
	TotalScore      int    `json:"totalScore"`
	TimedOut        bool   `json:"timedOut,omitempty"`
}

// OpponentProgressedPayload carries no answer content on purpose.
type OpponentProgressedPayload struct {
	RoomID         string `json:"roomId"`
	QuestionNumber int    `json:"questionNumber"`
}

// CompletedPayload closes the duel.
type CompletedPayload struct {
	RoomID               string              `json:"roomId"`
	Status               RoomStatus          `json:"status"`
	WinnerID             *string             `json:"winnerId"`
	Forfeit              bool                `json:"forfeit,omitempty"`
	FinalScores          map[string]int      `json:"finalScores"`
	RatingChanges        []RatingChange      `json:"ratingChanges,omitempty"`
	PerQuestionBreakdown []QuestionBreakdown `json:"perQuestionBreakdown"`
}

// OpponentDisconnectedPayload tells the remaining player the duel was cut short.
type OpponentDisconnectedPayload struct {
	RoomID string `json:"roomId"`
}

// ErrorPayload is the body of duel.error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorMessage builds a duel.error envelope for err.
func ErrorMessage(err error) Message {
	return Message{Type: MsgError, Payload: ErrorPayload{Code: CodeOf(err), Message: PublicMessage(err)}}
}
