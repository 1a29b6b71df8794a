package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/docsmith-platform/docsmith/internal/config"
)

// Client wraps a NATS connection with the events stream ensured.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects to NATS and ensures the events stream exists.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamEvents,
		Subjects:  []string{"docsmith.events.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring events stream: %w", err)
	}

	slog.Info("connected to NATS", "url", cfg.URL)
	return &Client{conn: nc, js: js}, nil
}

// Healthy returns true if the NATS connection is active.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains and closes the NATS connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}

// Publisher provides typed, nil-safe publishing of lifecycle events. A nil
// Publisher drops everything, so callers never guard their emit sites.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a Publisher from a connected Client. Returns nil for a
// nil client, which disables publishing.
func NewPublisher(c *Client) *Publisher {
	if c == nil {
		return nil
	}
	return &Publisher{js: c.js}
}

// JobFinished publishes a job terminal-state event.
func (p *Publisher) JobFinished(ctx context.Context, event JobEvent) {
	p.publish(ctx, SubjectJobEvent, event)
}

// BatchFinished publishes a batch outcome event.
func (p *Publisher) BatchFinished(ctx context.Context, event BatchEvent) {
	p.publish(ctx, SubjectBatchEvent, event)
}

// Audit publishes a quota/audit event.
func (p *Publisher) Audit(ctx context.Context, event AuditEvent) {
	p.publish(ctx, SubjectAuditEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("marshaling event", "subject", subject, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		// Event loss is tolerable; the ledger is the source of truth.
		slog.Warn("publishing event", "subject", subject, "error", err)
	}
}
