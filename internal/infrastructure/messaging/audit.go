package messaging

import (
	"log/slog"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// AuditSubscriber writes every domain event to the structured log.
// Lockouts and failed intents are logged at warn level.
type AuditSubscriber struct {
	logger *slog.Logger
}

// NewAuditSubscriber creates an audit subscriber.
func NewAuditSubscriber(logger *slog.Logger) *AuditSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSubscriber{logger: logger.With("component", "audit")}
}

// Register subscribes to all events on bus.
func (a *AuditSubscriber) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(a.Handle)
}

// Handle implements shared.EventHandler.
func (a *AuditSubscriber) Handle(event shared.Event) error {
	attrs := make([]any, 0, 6+2*len(event.Payload()))
	attrs = append(attrs,
		"event_type", string(event.EventType()),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	)
	for k, v := range event.Payload() {
		attrs = append(attrs, k, v)
	}

	switch event.EventType() {
	case shared.EventAccountLocked, shared.EventIntentFailed:
		a.logger.Warn("domain event", attrs...)
	default:
		a.logger.Info("domain event", attrs...)
	}
	return nil
}
