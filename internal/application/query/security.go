package query

import (
	"context"
	"fmt"
	"time"

	"github.com/ndmx/upscale/internal/domain/security"
)

const (
	// DefaultSecurityEventsLimit - размер страницы по умолчанию.
	DefaultSecurityEventsLimit = 20
	// MaxSecurityEventsLimit - верхняя граница страницы.
	MaxSecurityEventsLimit = 100
)

// SecurityEventView - запись журнала безопасности для владельца аккаунта.
type SecurityEventView struct {
	Kind       string    `json:"kind"`
	Origin     string    `json:"origin"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SecurityEventsHandler отдаёт аккаунту его собственные события безопасности.
type SecurityEventsHandler struct {
	log security.Log
}

// NewSecurityEventsHandler создаёт обработчик.
func NewSecurityEventsHandler(log security.Log) *SecurityEventsHandler {
	return &SecurityEventsHandler{log: log}
}

// List возвращает последние события аккаунта, новые первыми.
// limit вне диапазона (0, MaxSecurityEventsLimit] заменяется значением по умолчанию или границей.
func (h *SecurityEventsHandler) List(ctx context.Context, accountID string, limit int) ([]SecurityEventView, error) {
	switch {
	case limit <= 0:
		limit = DefaultSecurityEventsLimit
	case limit > MaxSecurityEventsLimit:
		limit = MaxSecurityEventsLimit
	}

	events, err := h.log.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	out := make([]SecurityEventView, 0, len(events))
	for _, e := range events {
		out = append(out, SecurityEventView{
			Kind:       string(e.Kind),
			Origin:     e.Origin,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}
