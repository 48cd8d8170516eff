// Package events publishes job lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/ports"
)

// DefaultSubject prefixes every event subject.
const DefaultSubject = "persona.collection"

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends CollectionEvents as JSON to <subject>.<event type>.
type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
	closeFn func()
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Connect dials NATS and keeps reconnecting in the background.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("persona-collector"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := newPublisher(nc, subject, logger)
	p.closeFn = func() { _ = nc.Drain() }
	return p, nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// Subject returns the full subject an event is published on.
func (p *Publisher) Subject(t domain.EventType) string {
	return p.subject + "." + string(t)
}

// Publish is fire-and-forget; the connection buffers while reconnecting.
func (p *Publisher) Publish(ctx context.Context, event domain.CollectionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	if p.logger != nil {
		p.logger.Debug("event published", "type", event.Type, "job_id", event.JobID, "source", event.Source)
	}
	return nil
}

// Close drains pending messages.
func (p *Publisher) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

var _ ports.EventPublisher = Noop{}

func (Noop) Publish(context.Context, domain.CollectionEvent) error { return nil }
