package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callhub/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed = errors.New("gateway: client closed")
	ErrSlowClient   = errors.New("gateway: send queue full")
)

// Frame is the envelope used in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one WebSocket connection. It implements presence.Channel.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	cfg    Config

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	log     *slog.Logger
	metrics *metrics.Metrics
}

func newClient(conn *websocket.Conn, userID string, cfg Config, log *slog.Logger, m *metrics.Metrics) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		conn:    conn,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendQueue),
		done:    make(chan struct{}),
		log:     log.With("conn_id", id, "user_id", userID),
		metrics: m,
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues one frame. It never blocks: when the queue is full the frame is
// dropped and the connection closed, since the peer can no longer keep up.
func (c *Client) Send(event string, payload any) error {
	b, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.metrics.FrameDropped()
		c.log.Warn("send queue full, closing slow client", "event", event)
		c.Close()
		return ErrSlowClient
	}
}

// Close stops the write loop and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop hands every well-formed frame to handle, in arrival order, until
// the socket fails or is closed.
func (c *Client) readLoop(handle func(Frame)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.log.Warn("dropping malformed frame", "err", err)
			continue
		}
		handle(f)
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(c.cfg.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait),
			)
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("write failed", "err", err)
				c.Close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
