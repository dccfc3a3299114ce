package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/structlog"
)

// DefaultSubject is the NATS subject reports are published on.
const DefaultSubject = "cti.reports"

// NATSConn is the subset of *nats.Conn used for publishing.
type NATSConn interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher publishes reports as JSON with routing headers.
type NATSPublisher struct {
	conn    NATSConn
	subject string
}

// NewNATSPublisher returns a publisher on subject (DefaultSubject when empty).
func NewNATSPublisher(conn NATSConn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// Name implements Sink.
func (p *NATSPublisher) Name() string { return "nats" }

// Emit implements Sink.
func (p *NATSPublisher) Emit(ctx context.Context, r event.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	headers := nats.Header{}
	headers.Set("x-event-id", r.EventID)
	headers.Set("x-risk-level", r.RiskLevel)
	headers.Set("x-threat-type", r.ThreatType)
	if corrID := structlog.CorrelationID(ctx); corrID != "" {
		headers.Set("x-correlation-id", corrID)
	}
	msg := &nats.Msg{Subject: p.subject, Data: payload, Header: headers}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}
