// Package analytics defines the analytics event model. Each event kind
// carries its own typed payload rather than a free-form bag, so downstream
// consumers never inspect untyped maps.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed set of recordable events. The /track surface
// rejects anything outside it.
type EventType string

const (
	EventSessionStart           EventType = "session_start"
	EventSessionEnd             EventType = "session_end"
	EventPageView               EventType = "page_view"
	EventProjectOpen            EventType = "project_open"
	EventFieldEdit              EventType = "field_edit"
	EventFeatureUsed            EventType = "feature_used"
	EventError                  EventType = "error"
	EventPerformance            EventType = "performance"
	EventUIInteraction          EventType = "ui_interaction"
	EventNavigation             EventType = "navigation"
	EventSearch                 EventType = "search"
	EventUserSignup             EventType = "user_signup"
	EventPlanUpgrade            EventType = "plan_upgrade"
	EventPlanDowngrade          EventType = "plan_downgrade"
	EventSubscriptionCanceled   EventType = "subscription_canceled"
	EventSubscriptionReactivate EventType = "subscription_reactivated"
)

var allowedEventTypes = map[EventType]struct{}{
	EventSessionStart: {}, EventSessionEnd: {}, EventPageView: {},
	EventProjectOpen: {}, EventFieldEdit: {}, EventFeatureUsed: {},
	EventError: {}, EventPerformance: {}, EventUIInteraction: {},
	EventNavigation: {}, EventSearch: {}, EventUserSignup: {},
	EventPlanUpgrade: {}, EventPlanDowngrade: {},
	EventSubscriptionCanceled: {}, EventSubscriptionReactivate: {},
}

// IsAllowed reports whether t belongs to the closed event set.
func (t EventType) IsAllowed() bool {
	_, ok := allowedEventTypes[t]
	return ok
}

// Payload is the tagged per-kind event body.
type Payload interface {
	Kind() EventType
}

type SessionStartPayload struct {
	Resumed bool `json:"resumed"`
}

func (SessionStartPayload) Kind() EventType { return EventSessionStart }

type SessionEndPayload struct {
	DurationSeconds int64 `json:"durationSeconds"`
}

func (SessionEndPayload) Kind() EventType { return EventSessionEnd }

type PageViewPayload struct {
	Page string `json:"page"`
}

func (PageViewPayload) Kind() EventType { return EventPageView }

type ProjectOpenPayload struct {
	ProjectID string `json:"projectId"`
}

func (ProjectOpenPayload) Kind() EventType { return EventProjectOpen }

type FieldEditPayload struct {
	ProjectID string `json:"projectId"`
	Field     string `json:"field"`
}

func (FieldEditPayload) Kind() EventType { return EventFieldEdit }

type FeatureUsedPayload struct {
	Feature string `json:"feature"`
}

func (FeatureUsedPayload) Kind() EventType { return EventFeatureUsed }

type ErrorPayload struct {
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

func (ErrorPayload) Kind() EventType { return EventError }

type PerformancePayload struct {
	Metric  string  `json:"metric"`
	ValueMs float64 `json:"valueMs"`
}

func (PerformancePayload) Kind() EventType { return EventPerformance }

type UIInteractionPayload struct {
	Element string `json:"element"`
	Action  string `json:"action"`
}

func (UIInteractionPayload) Kind() EventType { return EventUIInteraction }

type NavigationPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

func (NavigationPayload) Kind() EventType { return EventNavigation }

type SearchPayload struct {
	Query string `json:"query"`
}

func (SearchPayload) Kind() EventType { return EventSearch }

type UserSignupPayload struct {
	Tier string `json:"tier"`
}

func (UserSignupPayload) Kind() EventType { return EventUserSignup }

// PlanChangePayload serves the four subscription event kinds; kind carries
// the direction.
type PlanChangePayload struct {
	kind    EventType
	OldTier string `json:"oldTier,omitempty"`
	NewTier string `json:"newTier,omitempty"`
}

// NewPlanChangePayload builds a payload for one of the plan_* /
// subscription_* kinds.
func NewPlanChangePayload(kind EventType, oldTier, newTier string) PlanChangePayload {
	return PlanChangePayload{kind: kind, OldTier: oldTier, NewTier: newTier}
}

func (p PlanChangePayload) Kind() EventType { return p.kind }

// RawPayload carries fields from /track ingestion for kinds whose body is
// client-defined.
type RawPayload struct {
	kind   EventType
	Fields map[string]any
}

func NewRawPayload(kind EventType, fields map[string]any) RawPayload {
	return RawPayload{kind: kind, Fields: fields}
}

func (p RawPayload) Kind() EventType { return p.kind }

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

// Event is one append-only analytics row.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId,omitempty"`
	Type      EventType `json:"eventType"`
	Payload   Payload   `json:"eventData"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
}

// EncodePayload serializes the payload for storage.
func (e *Event) EncodePayload() (string, error) {
	if e.Payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", e.Type, err)
	}
	return string(data), nil
}

// DecodePayload rebuilds a typed payload from a stored body.
func DecodePayload(kind EventType, body string) (Payload, error) {
	raw := []byte(body)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	unmarshal := func(v Payload) (Payload, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return v, nil
	}

	switch kind {
	case EventSessionStart:
		return unmarshal(&SessionStartPayload{})
	case EventSessionEnd:
		return unmarshal(&SessionEndPayload{})
	case EventPageView:
		return unmarshal(&PageViewPayload{})
	case EventProjectOpen:
		return unmarshal(&ProjectOpenPayload{})
	case EventFieldEdit:
		return unmarshal(&FieldEditPayload{})
	case EventFeatureUsed:
		return unmarshal(&FeatureUsedPayload{})
	case EventError:
		return unmarshal(&ErrorPayload{})
	case EventPerformance:
		return unmarshal(&PerformancePayload{})
	case EventUIInteraction:
		return unmarshal(&UIInteractionPayload{})
	case EventNavigation:
		return unmarshal(&NavigationPayload{})
	case EventSearch:
		return unmarshal(&SearchPayload{})
	case EventUserSignup:
		return unmarshal(&UserSignupPayload{})
	case EventPlanUpgrade, EventPlanDowngrade, EventSubscriptionCanceled, EventSubscriptionReactivate:
		p := PlanChangePayload{kind: kind}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return p, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return RawPayload{kind: kind, Fields: fields}, nil
}

// PayloadFromRequest builds a payload for an allow-listed kind from untyped
// request fields. Kinds with a known schema are decoded strictly into their
// typed form; the rest keep their fields raw.
func PayloadFromRequest(kind EventType, fields map[string]any) (Payload, error) {
	if !kind.IsAllowed() {
		return nil, fmt.Errorf("event type not allowed: %q", kind)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize event data: %w", err)
	}
	return DecodePayload(kind, string(data))
}
