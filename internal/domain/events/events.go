// Package events defines the domain events the engine emits on its internal
// bus. Delivery (websocket, email, anything else) is a subscriber concern;
// the core never depends on how these travel.
package events

import "time"

// DomainEvent is the envelope published on the bus.
type DomainEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenantId"`
	UserID     string         `json:"userId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// Domain event types.
const (
	TypeSessionStarted   = "session.started"
	TypeSessionResumed   = "session.resumed"
	TypeSessionEnded     = "session.ended"
	TypePlanChanged      = "plan.changed"
	TypePlanCanceled     = "plan.canceled"
	TypeRetentionApplied = "retention.applied"
	TypeRetentionPurged  = "retention.purged"
)
