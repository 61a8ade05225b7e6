package http

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

// client is one websocket connection. It implements session.Handle: Send never
// blocks, and a single writer goroutine owns the outbound side of the socket.
type client struct {
	id     string
	userID string
	conn   *websocket.Conn

	send      chan domain.Message
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

func newClient(id, userID string, conn *websocket.Conn) *client {
	return &client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan domain.Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(msg domain.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		log.Warn().Str("user_id", c.userID).Str("connection_id", c.id).Str("type", msg.Type).Msg("send buffer full, dropping message")
		return false
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("ws write error")
				c.shutdown()
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) write(msg domain.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// replace tells a superseded connection why it is being closed, then closes it.
func (c *client) replace() {
	if err := c.write(domain.Message{Type: domain.MsgSessionReplaced, Payload: struct{}{}}); err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("notify replaced session failed")
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session replaced"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.shutdown()
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
