package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

func (c NATSConfig) withDefaults() NATSConfig {
	out := c
	if out.Name == "" {
		out.Name = "callhub"
	}
	if out.SubjectPrefix == "" {
		out.SubjectPrefix = "callhub"
	}
	if out.ReconnectWait <= 0 {
		out.ReconnectWait = 2 * time.Second
	}
	if out.MaxReconnects == 0 {
		out.MaxReconnects = -1
	}
	return out
}

// NATSPublisher publishes events as JSON on <prefix>.<event type>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS dials the server and wraps the connection in a publisher.
func ConnectNATS(cfg NATSConfig, log *slog.Logger) (*NATSPublisher, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("events: nats url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "nats")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("nats connection closed")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	return NewNATSPublisher(conn, cfg.SubjectPrefix), nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "callhub"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(t EventType) string {
	return p.prefix + "." + string(t)
}

// Publish hands the event to the NATS client buffer. It does not wait for
// the server; ctx is only checked before encoding.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn == nil {
		return fmt.Errorf("events: nats connection is nil")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
