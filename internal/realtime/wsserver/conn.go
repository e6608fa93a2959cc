package wsserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relay/internal/realtime"
)

// Frame is the JSON envelope of every server-to-client message.
type Frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// conn is one upgraded websocket. Emit never blocks: frames go through a
// bounded buffer drained by the write pump.
type conn struct {
	id     string
	userID string
	device string
	wc     *websocket.Conn

	mu     sync.Mutex
	send   chan Frame
	closed bool
}

var _ realtime.Socket = (*conn)(nil)

func newConn(id, userID, device string, wc *websocket.Conn, buffer int) *conn {
	return &conn{
		id:     id,
		userID: userID,
		device: device,
		wc:     wc,
		send:   make(chan Frame, buffer),
	}
}

func (c *conn) ID() string     { return c.id }
func (c *conn) UserID() string { return c.userID }

func (c *conn) Emit(channel string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return realtime.ErrSocketClosed
	}
	select {
	case c.send <- Frame{Channel: channel, Payload: payload}:
		return nil
	default:
		return realtime.ErrSendBufferFull
	}
}

// shutdown stops accepting frames and ends the write pump.
func (c *conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *conn) writePump(pingInterval, writeTimeout time.Duration) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wc.Close()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := c.wc.WriteJSON(frame); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// readLoop consumes client frames until the connection fails or closes. Client
// frames carry no meaning yet and are discarded; reading keeps pong and close
// handling alive.
func (c *conn) readLoop(readLimit int64, pongWait time.Duration) error {
	c.wc.SetReadLimit(readLimit)
	_ = c.wc.SetReadDeadline(time.Now().Add(pongWait))
	c.wc.SetPongHandler(func(string) error {
		return c.wc.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.wc.NextReader(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return err
		}
		_ = c.wc.SetReadDeadline(time.Now().Add(pongWait))
	}
}
