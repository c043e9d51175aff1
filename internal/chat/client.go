package chat

import (
	"context"
	"sync"
	"time"

	"world-chat/internal/auth"
	"world-chat/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type PumpConfig struct {
	PingPeriod    time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	MaxFrameBytes int64
}

func DefaultPumpConfig() PumpConfig {
	return PumpConfig{
		PingPeriod:    10 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     5 * time.Second,
		MaxFrameBytes: 8192,
	}
}

// Client is one live connection. Conn may be nil when the client is driven
// directly through the Dispatcher.
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Principal *auth.Principal

	mu     sync.Mutex
	closed bool
	gone   sync.Once
	log    zerolog.Logger
}

func NewClient(conn *websocket.Conn, buffer int, principal *auth.Principal, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:        id,
		Conn:      conn,
		Send:      make(chan []byte, buffer),
		Principal: principal,
		log:       log.With().Str("component", "client").Str("conn", id).Logger(),
	}
}

// Enqueue hands a frame to the write pump without blocking. It reports false
// if the buffer is full or the client is closed.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// Emit sends one event to this connection only.
func (c *Client) Emit(event string, payload any) bool {
	frame, err := types.Encode(event, payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return false
	}
	return c.Enqueue(frame)
}

// Close stops further sends. The write pump drains, sends a close frame and
// tears the socket down, which ends the read pump and runs the disconnect path.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) WritePump(cfg PumpConfig) {
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump feeds frames to the dispatcher one at a time, so a client's own
// events are handled in arrival order. Any read error ends the connection.
func (c *Client) ReadPump(ctx context.Context, d *Dispatcher, cfg PumpConfig) {
	defer func() {
		d.Disconnect(ctx, c)
		c.Close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(cfg.MaxFrameBytes)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info().Err(err).Msg("unexpected close")
			}
			return
		}
		d.Handle(ctx, c, message)
	}
}
