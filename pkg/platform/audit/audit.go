// Package audit defines the audit event model and publishers for the stars
// ledger. Every credit and every refused credit produces one event so the
// reward history stays reconstructable independently of the ledger itself.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	IdentityKey string         `json:"identity_key"`
	Action      string         `json:"action"`
	Amount      int            `json:"amount,omitempty"`
	Outcome     string         `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Outcomes for Event.Outcome.
const (
	OutcomeCredited = "credited"
	OutcomeRefused  = "refused"
	OutcomeDeduped  = "deduped"
	OutcomeDebited  = "debited"
)

// Publisher delivers audit events to a durable sink. Publish must not block
// request handling on sink latency; implementations buffer or fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Log emits an audit event through the publisher when one is configured, and
// always mirrors it to the structured log. Services call this instead of
// talking to the publisher directly so a nil publisher stays valid.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if logger != nil {
		logger.InfoContext(ctx, "audit",
			"action", event.Action,
			"identity_key", event.IdentityKey,
			"amount", event.Amount,
			"outcome", event.Outcome,
			"reason", event.Reason,
			"request_id", event.RequestID,
		)
	}
	if publisher != nil {
		publisher.Publish(ctx, event)
	}
}
