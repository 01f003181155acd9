// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Account events
	EventAccountRegistered EventType = "account.registered"
	EventAccountLocked     EventType = "account.locked"

	// Enrollment events
	EventLegSettled   EventType = "enrollment.leg_settled"
	EventIntentPaid   EventType = "enrollment.intent_paid"
	EventIntentFailed EventType = "enrollment.intent_failed"

	// Progress events
	EventModuleCompleted EventType = "progress.module_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Account Events
// ═══════════════════════════════════════════════════════════════════════════

// AccountLockedEvent is emitted when repeated failures lock an account.
type AccountLockedEvent struct {
	BaseEvent
	Email       string    `json:"email"`
	LockedUntil time.Time `json:"locked_until"`
	Origin      string    `json:"origin"`
}

// Payload implements Event interface.
func (e AccountLockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"email":        e.Email,
		"locked_until": e.LockedUntil.Format(time.RFC3339),
		"origin":       e.Origin,
	}
}

// AccountRegisteredEvent is emitted after a successful registration.
type AccountRegisteredEvent struct {
	BaseEvent
	Email string `json:"email"`
}

// Payload implements Event interface.
func (e AccountRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"email": e.Email}
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// IntentEvent carries the state of a payment intent after a transition.
type IntentEvent struct {
	BaseEvent
	AccountID  string `json:"account_id"`
	CourseID   string `json:"course_id"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	AmountPaid int64  `json:"amount_paid"`
}

// Payload implements Event interface.
func (e IntentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id":  e.AccountID,
		"course_id":   e.CourseID,
		"reference":   e.Reference,
		"status":      e.Status,
		"amount_paid": e.AmountPaid,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ModuleCompletedEvent is emitted the first time a module is completed.
type ModuleCompletedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	CourseID  string `json:"course_id"`
	ModuleID  string `json:"module_id"`
}

// Payload implements Event interface.
func (e ModuleCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id": e.AccountID,
		"course_id":  e.CourseID,
		"module_id":  e.ModuleID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Publishing
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
