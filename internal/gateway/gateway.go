// Package gateway accepts WebSocket connections and feeds their frames to the
// signaling dispatcher.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callhub/internal/auth"
	"callhub/internal/metrics"
	"callhub/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Identifier resolves the user behind a handshake request.
type Identifier interface {
	Identify(r *http.Request) (auth.Claims, error)
}

type Config struct {
	// AllowedOrigins empty accepts any Origin.
	AllowedOrigins []string
	SendQueue      int

	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	out := c
	if out.SendQueue <= 0 {
		out.SendQueue = 64
	}
	if out.WriteWait <= 0 {
		out.WriteWait = 10 * time.Second
	}
	if out.PongWait <= 0 {
		out.PongWait = 60 * time.Second
	}
	if out.PingPeriod <= 0 || out.PingPeriod >= out.PongWait {
		out.PingPeriod = out.PongWait * 9 / 10
	}
	if out.MaxMessageSize <= 0 {
		// SDP blobs with many candidates run to tens of KB.
		out.MaxMessageSize = 256 << 10
	}
	return out
}

type Deps struct {
	Identifier Identifier
	Lifecycle  *Lifecycle
	Dispatcher *signaling.Dispatcher
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// Gateway is the /ws endpoint.
type Gateway struct {
	ident      Identifier
	lifecycle  *Lifecycle
	dispatcher *signaling.Dispatcher
	metrics    *metrics.Metrics
	log        *slog.Logger
	cfg        Config
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
	wg      sync.WaitGroup
}

func New(d Deps, cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		ident:      d.Identifier,
		lifecycle:  d.Lifecycle,
		dispatcher: d.Dispatcher,
		metrics:    d.Metrics,
		log:        log.With("component", "gateway"),
		cfg:        cfg,
		clients:    make(map[string]*Client),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return g
}

// ServeWS authenticates the handshake, upgrades it and serves the connection
// until it closes.
func (g *Gateway) ServeWS(c *gin.Context) {
	claims, err := g.ident.Identify(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied to the client.
		g.log.Warn("websocket upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}

	client := newClient(conn, claims.UserID, g.cfg, g.log, g.metrics)
	if !g.track(client) {
		client.Close()
		return
	}
	defer g.untrack(client)

	go client.writeLoop()
	g.lifecycle.Connect(client.UserID(), client)

	// Hijacked connections outlive the request context.
	ctx := context.Background()
	client.readLoop(func(f Frame) {
		err := g.dispatcher.Dispatch(ctx, client.UserID(), f.Event, f.Data)
		switch {
		case err == nil:
		case errors.Is(err, signaling.ErrUnknownEvent):
			client.log.Debug("ignoring unknown event", "event", f.Event)
		default:
			client.log.Warn("event rejected", "event", f.Event, "err", err)
		}
	})

	g.lifecycle.Disconnect(ctx, client.UserID(), client)
	client.Close()
}

// Connections returns the number of open sockets.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Shutdown closes every socket and waits for their disconnect handling to
// finish or for ctx to expire. New handshakes are refused afterwards.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	open := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		open = append(open, c)
	}
	g.mu.Unlock()

	for _, c := range open {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) track(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.clients[c.ID()] = c
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(c *Client) {
	g.mu.Lock()
	delete(g.clients, c.ID())
	g.mu.Unlock()
	g.wg.Done()
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and, when a list is configured, browser origins on it.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
