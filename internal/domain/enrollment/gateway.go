package enrollment

import (
	"context"
	"time"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT GATEWAY PORT
// Реализация: infrastructure/external/paystack.
// ══════════════════════════════════════════════════════════════════════════════

// TransactionStatus - статус транзакции по данным шлюза.
type TransactionStatus string

const (
	TxSuccess   TransactionStatus = "success"
	TxFailed    TransactionStatus = "failed"
	TxAbandoned TransactionStatus = "abandoned"
	TxReversed  TransactionStatus = "reversed"
	TxPending   TransactionStatus = "pending"
	TxUnknown   TransactionStatus = "unknown"
)

// InitializeRequest - запрос на создание транзакции.
type InitializeRequest struct {
	Email       string
	Amount      shared.Kobo
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// InitializeResult - ответ шлюза на создание транзакции.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult - состояние транзакции по данным шлюза.
type VerifyResult struct {
	Reference       string
	Status          TransactionStatus
	Amount          shared.Kobo
	Currency        string
	PaidAt          time.Time
	GatewayResponse string
}

// Gateway - внешний платёжный шлюз.
//
// Ошибки транспорта, таймауты и открытый предохранитель возвращаются как
// ошибки, совместимые с shared.ErrServiceUnavailable. Отказ шлюза признать
// транзакцию возвращается как VerifyResult с неуспешным статусом.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (InitializeResult, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
}
