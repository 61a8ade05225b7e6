package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
	"quizduel-service/internal/session"
)

// UserDirectory records users as they connect so rating snapshots can find them.
type UserDirectory interface {
	Upsert(ctx context.Context, userID, displayName string) error
}

type WSHandler struct {
	service  *app.DuelService
	registry *session.Registry
	users    UserDirectory
	upgrader websocket.Upgrader
}

// NewWSHandler wires the socket protocol to the duel service. An empty or "*"
// origin list accepts any origin.
func NewWSHandler(service *app.DuelService, registry *session.Registry, users UserDirectory, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		service:  service,
		registry: registry,
		users:    users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type invitePayload struct {
	InviteeID     string              `json:"inviteeId"`
	QuestionSetID string              `json:"questionSetId"`
	Settings      domain.DuelSettings `json:"settings"`
}

type invitationPayload struct {
	InvitationID string `json:"invitationId"`
}

type answerPayload struct {
	RoomID           string `json:"roomId"`
	QuestionID       string `json:"questionId"`
	SelectedOptionID string `json:"selectedOptionId"`
	ClientLatencyMs  int64  `json:"clientLatencyMs"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the duel use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	if displayName == "" {
		displayName = userID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("ws upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if h.users != nil {
		if err := h.users.Upsert(r.Context(), userID, displayName); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("record user failed")
		}
	}

	c := newClient(uuid.NewString(), userID, conn)
	go c.writePump()

	if prev, replaced := h.registry.Register(userID, c); replaced {
		log.Info().Str("user_id", userID).Str("connection_id", prev.ID()).Msg("session replaced")
		if old, ok := prev.(*client); ok {
			old.replace()
		}
	}
	log.Info().Str("user_id", userID).Str("connection_id", c.id).Msg("connected")

	h.readLoop(r.Context(), c)

	c.shutdown()
	if h.registry.Unregister(userID, c) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := h.service.DisconnectUser(ctx, userID); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("abandon duel on disconnect failed")
		}
		cancel()
	}
	log.Info().Str("user_id", userID).Str("connection_id", c.id).Msg("disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, c *client) {
	for {
		var inbound inboundMessage
		if err := c.conn.ReadJSON(&inbound); err != nil {
			if isDecodeError(err) {
				h.reportError(c, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
				continue
			}
			return
		}
		if err := h.dispatch(ctx, c.userID, inbound); err != nil {
			h.reportError(c, inbound.Type, err)
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, userID string, in inboundMessage) error {
	switch in.Type {
	case domain.MsgInvite:
		var p invitePayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		_, err := h.service.CreateInvitation(ctx, userID, p.InviteeID, p.QuestionSetID, p.Settings)
		return err
	case domain.MsgAccept:
		var p invitationPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		_, err := h.service.AcceptInvitation(ctx, p.InvitationID, userID)
		return err
	case domain.MsgDecline:
		var p invitationPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		_, err := h.service.DeclineInvitation(ctx, p.InvitationID, userID)
		return err
	case domain.MsgAnswer:
		var p answerPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		roomID := p.RoomID
		if roomID == "" {
			id, ok := h.service.RoomOf(userID)
			if !ok {
				return domain.ErrUnknownRoom
			}
			roomID = id
		}
		_, err := h.service.SubmitAnswer(ctx, roomID, userID, domain.AnswerSubmission{
			QuestionID:       p.QuestionID,
			SelectedOptionID: p.SelectedOptionID,
			ClientLatencyMs:  p.ClientLatencyMs,
		})
		return err
	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidPayload, in.Type)
	}
}

func (h *WSHandler) reportError(c *client, msgType string, err error) {
	evt := log.Debug()
	if domain.KindOf(err) == domain.KindInternal {
		evt = log.Error()
	}
	evt.Err(err).
		Str("user_id", c.userID).
		Str("connection_id", c.id).
		Str("type", msgType).
		Str("code", domain.CodeOf(err)).
		Msg("request rejected")
	c.Send(domain.ErrorMessage(err))
}

// isDecodeError reports a well-framed message whose body was not valid JSON.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
