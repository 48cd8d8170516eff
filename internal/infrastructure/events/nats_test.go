package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"PersonaCollector/internal/domain"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return c.err
}

func TestPublishEncodesEvent(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{}
	p := newPublisher(conn, " persona.collection. ", nil)

	err := p.Publish(context.Background(), domain.CollectionEvent{
		Type:      domain.EventSourceFinished,
		JobID:     "job-1",
		Source:    domain.SourceReviews,
		Status:    domain.StatusCompletedNoData,
		ItemCount: 0,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if conn.subjects[0] != "persona.collection."+string(domain.EventSourceFinished) {
		t.Fatalf("unexpected subject %q", conn.subjects[0])
	}

	var got domain.CollectionEvent
	if err := json.Unmarshal(conn.payloads[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != "job-1" || got.Status != domain.StatusCompletedNoData || got.At.IsZero() {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	p := newPublisher(&recordingConn{err: errors.New("closed")}, "", nil)
	if p.Subject(domain.EventJobStarted) != DefaultSubject+"."+string(domain.EventJobStarted) {
		t.Fatalf("empty subject must fall back to the default")
	}
	if err := p.Publish(context.Background(), domain.CollectionEvent{Type: domain.EventJobStarted}); err == nil {
		t.Fatalf("connection errors must surface")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, domain.CollectionEvent{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}

	if err := (Noop{}).Publish(context.Background(), domain.CollectionEvent{}); err != nil {
		t.Fatalf("noop must not fail")
	}
}
