package domain

import "errors"

var (
	// ErrInvalidPayload is returned for malformed client messages.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrInvalidSettings is returned when duel settings are out of range.
	ErrInvalidSettings = errors.New("invalid duel settings")
	// ErrSelfInvite is returned when a user invites themselves.
	ErrSelfInvite = errors.New("cannot invite yourself")

	// ErrInviteeOffline is returned when the invited user has no live connection.
	ErrInviteeOffline = errors.New("cannot duel, opponent offline")
	// ErrOpponentOffline is returned when the inviter left before the invitation was accepted.
	ErrOpponentOffline = errors.New("opponent is no longer online")
	// ErrInsufficientQuestions is returned when the question pool cannot fill the duel.
	ErrInsufficientQuestions = errors.New("not enough questions for the selected settings")

	// ErrInvitationNotFound indicates an unknown invitation id.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrNotInvitee is returned when someone other than the invitee answers an invitation.
	ErrNotInvitee = errors.New("only the invitee can respond to this invitation")
	// ErrAlreadyResolved is returned when the invitation is no longer pending.
	ErrAlreadyResolved = errors.New("invitation already resolved")
	// ErrPlayerBusy is returned when a participant is already in an active duel.
	ErrPlayerBusy = errors.New("player is already in a duel")

	// ErrUnknownRoom indicates the room does not exist or was already destroyed.
	ErrUnknownRoom = errors.New("duel room not found")
	// ErrNotParticipant is returned when a non-participant acts on a room.
	ErrNotParticipant = errors.New("not a participant of this duel")
	// ErrQuestionMismatch is returned when the answer is not for the player's current question.
	ErrQuestionMismatch = errors.New("answer does not match the current question")
	// ErrDuplicateAnswer is returned when a question is answered twice.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrTooLate is returned when an answer arrives after the deadline or after the duel ended.
	ErrTooLate = errors.New("answer arrived too late")

	// ErrQuestionNotFound indicates a question id is unknown.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionSetNotFound indicates a question set id is unknown.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrUserNotFound indicates a user id is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoomExists is returned when a second room is registered for the same invitation.
	ErrRoomExists = errors.New("duel room already exists")

	// ErrInternal hides unexpected failures from clients.
	ErrInternal = errors.New("internal error")
)

// ErrorKind groups errors by how they are handled.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindResource   ErrorKind = "resource"
	KindInternal   ErrorKind = "internal"
)

type errorClass struct {
	err  error
	code string
	kind ErrorKind
}

var errorClasses = []errorClass{
	{ErrInvalidPayload, "INVALID_PAYLOAD", KindValidation},
	{ErrInvalidSettings, "INVALID_SETTINGS", KindValidation},
	{ErrSelfInvite, "SELF_INVITE", KindValidation},
	{ErrNotInvitee, "NOT_INVITEE", KindValidation},
	{ErrNotParticipant, "NOT_PARTICIPANT", KindValidation},
	{ErrQuestionMismatch, "QUESTION_MISMATCH", KindValidation},
	{ErrInvitationNotFound, "INVITATION_NOT_FOUND", KindValidation},
	{ErrUnknownRoom, "UNKNOWN_ROOM", KindValidation},
	{ErrAlreadyResolved, "ALREADY_RESOLVED", KindConflict},
	{ErrDuplicateAnswer, "DUPLICATE_ANSWER", KindConflict},
	{ErrTooLate, "TOO_LATE", KindConflict},
	{ErrPlayerBusy, "PLAYER_BUSY", KindConflict},
	{ErrRoomExists, "ROOM_EXISTS", KindConflict},
	{ErrInviteeOffline, "INVITEE_OFFLINE", KindResource},
	{ErrOpponentOffline, "OPPONENT_OFFLINE", KindResource},
	{ErrInsufficientQuestions, "INSUFFICIENT_QUESTIONS", KindResource},
	{ErrQuestionNotFound, "QUESTION_NOT_FOUND", KindResource},
	{ErrQuestionSetNotFound, "QUESTION_SET_NOT_FOUND", KindResource},
	{ErrUserNotFound, "USER_NOT_FOUND", KindResource},
}

// CodeOf maps an error to the code reported in duel.error.
func CodeOf(err error) string {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// KindOf reports the error kind; unknown errors are internal.
func KindOf(err error) ErrorKind {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}

// PublicMessage returns a message safe to show to clients.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return ErrInternal.Error()
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.err.Error()
		}
	}
	return err.Error()
}
