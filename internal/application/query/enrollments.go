package query

import (
	"context"
	"fmt"
)

// EnrollmentsHandler возвращает намерения оплаты аккаунта.
type EnrollmentsHandler struct {
	intents IntentReader
}

// NewEnrollmentsHandler создаёт обработчик.
func NewEnrollmentsHandler(intents IntentReader) *EnrollmentsHandler {
	return &EnrollmentsHandler{intents: intents}
}

// List возвращает все намерения аккаунта, новые первыми.
func (h *EnrollmentsHandler) List(ctx context.Context, accountID string) ([]IntentView, error) {
	intents, err := h.intents.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	out := make([]IntentView, 0, len(intents))
	for _, i := range intents {
		out = append(out, NewIntentView(i))
	}
	return out, nil
}

// Get возвращает намерение аккаунта по ID.
func (h *EnrollmentsHandler) Get(ctx context.Context, accountID, intentID string) (IntentView, error) {
	intent, err := h.intents.Get(ctx, accountID, intentID)
	if err != nil {
		return IntentView{}, err
	}
	return NewIntentView(intent), nil
}
