// Package client holds outbound integrations.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes workflow events to NATS for consumption by
// the notification service.
//
// Subject convention: notifications.procurement.<event_type>
// Event types mirror the workflow action names (approve_team, consult_it,
// review_finance, approve_director, start_purchasing, confirm_payment,
// confirm_goods_received, confirm_handover, confirm_invoice, reject).
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt a workflow action.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// ProposalEvent is the JSON schema published to NATS.
type ProposalEvent struct {
	EventType  string         `json:"event_type"`
	ProposalID string         `json:"proposal_id"`
	ActorID    string         `json:"actor_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection yields a no-op publisher.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishProposalEvent publishes one workflow event.
// Subject: notifications.procurement.<eventType>
func (p *NotificationPublisher) PublishProposalEvent(ctx context.Context, eventType, proposalID, actorID string, payload map[string]any) {
	if p.conn == nil {
		return
	}

	event := &ProposalEvent{
		EventType:  eventType,
		ProposalID: proposalID,
		ActorID:    actorID,
		OccurredAt: time.Now(),
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.procurement.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("proposal_id", proposalID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("proposal_id", proposalID).
		Msg("notification: event published")
}
