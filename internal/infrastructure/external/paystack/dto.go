package paystack

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// envelope is the common Paystack response wrapper.
type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeRequestDTO struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeDataDTO struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyDataDTO struct {
	ID              int64      `json:"id"`
	Status          string     `json:"status"`
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	PaidAt          *time.Time `json:"paid_at"`
	GatewayResponse string     `json:"gateway_response"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func toInitializeDTO(req enrollment.InitializeRequest) initializeRequestDTO {
	return initializeRequestDTO{
		Email:       req.Email,
		Amount:      req.Amount.Int64(),
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}
}

func (d verifyDataDTO) toResult() enrollment.VerifyResult {
	res := enrollment.VerifyResult{
		Reference:       d.Reference,
		Status:          mapStatus(d.Status),
		Amount:          shared.Kobo(d.Amount),
		Currency:        strings.ToUpper(d.Currency),
		GatewayResponse: d.GatewayResponse,
	}
	if d.PaidAt != nil {
		res.PaidAt = d.PaidAt.UTC()
	}
	return res
}

func mapStatus(s string) enrollment.TransactionStatus {
	switch strings.ToLower(s) {
	case "success":
		return enrollment.TxSuccess
	case "failed":
		return enrollment.TxFailed
	case "abandoned":
		return enrollment.TxAbandoned
	case "reversed":
		return enrollment.TxReversed
	case "pending", "ongoing", "processing", "queued":
		return enrollment.TxPending
	default:
		return enrollment.TxUnknown
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx answer from Paystack.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("paystack: status %d", e.StatusCode)
	}
	return fmt.Sprintf("paystack: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap reports every answer except a refusal as shared.ErrServiceUnavailable.
func (e *APIError) Unwrap() error {
	if e.Refusal() {
		return nil
	}
	return shared.ErrServiceUnavailable
}

// Temporary reports whether the same request may succeed on retry.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Refusal reports whether Paystack answered about the transaction itself.
// 401 and 403 mean the secret key is wrong, not that the payment failed.
func (e *APIError) Refusal() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusNotFound
}
