package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT COMMANDS
// Начало оплаты, следующий платёж рассрочки и подтверждение по reference.
// ══════════════════════════════════════════════════════════════════════════════

// Ledger - операции журнала записи.
type Ledger interface {
	Initiate(ctx context.Context, in enrollment.InitiateInput) (*enrollment.PaymentIntent, error)
	PayNextInstallment(ctx context.Context, accountID, email, intentID, callbackURL string) (*enrollment.PaymentIntent, error)
	Confirm(ctx context.Context, reference string) (*enrollment.PaymentIntent, error)
}

// InitiateEnrollmentCommand - запрос на оплату курса.
type InitiateEnrollmentCommand struct {
	AccountID   string
	CourseID    string
	Plan        enrollment.Plan
	CallbackURL string
}

// Validate проверяет команду.
func (c InitiateEnrollmentCommand) Validate() error {
	if c.AccountID == "" {
		return errors.New("initiate: account_id is required")
	}
	if c.CourseID == "" {
		return errors.New("initiate: course_id is required")
	}
	if !c.Plan.IsValid() {
		return shared.ErrInvalidPlan
	}
	return nil
}

// PayInstallmentCommand - запрос на следующий платёж рассрочки.
type PayInstallmentCommand struct {
	AccountID   string
	IntentID    string
	CallbackURL string
}

// EnrollmentResult - результат команды: намерение и ссылка на оплату.
type EnrollmentResult struct {
	Intent      query.IntentView `json:"intent"`
	CheckoutURL string           `json:"checkout_url,omitempty"`
}

// EnrollmentHandler обрабатывает команды оплаты.
type EnrollmentHandler struct {
	ledger      Ledger
	credentials Credentials
	log         *logger.Logger
}

// NewEnrollmentHandler создаёт обработчик.
func NewEnrollmentHandler(ledger Ledger, credentials Credentials, log *logger.Logger) *EnrollmentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EnrollmentHandler{
		ledger:      ledger,
		credentials: credentials,
		log:         log.With(logger.Component("enrollment")),
	}
}

// Initiate создаёт намерение и возвращает ссылку на оплату первого платежа.
//
// Если шлюз недоступен, намерение сохраняется как failed и возвращается
// вместе с ошибкой: повторный запрос создаст новое.
func (h *EnrollmentHandler) Initiate(ctx context.Context, cmd InitiateEnrollmentCommand) (*EnrollmentResult, error) {
	if err := cmd.Validate(); err != nil {
		if errors.Is(err, shared.ErrInvalidPlan) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	acc, err := h.credentials.Get(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}

	intent, err := h.ledger.Initiate(ctx, enrollment.InitiateInput{
		AccountID:   acc.ID,
		Email:       acc.Email.String(),
		CourseID:    cmd.CourseID,
		Plan:        cmd.Plan,
		CallbackURL: cmd.CallbackURL,
	})
	if err != nil {
		h.log.Warn("initiate failed",
			logger.AccountID(cmd.AccountID),
			logger.CourseID(cmd.CourseID),
			logger.Err(err),
		)
		return nil, err
	}

	h.log.Info("enrollment initiated",
		logger.AccountID(acc.ID),
		logger.CourseID(cmd.CourseID),
		logger.IntentID(intent.ID),
		logger.String("plan", string(cmd.Plan)),
	)
	return newEnrollmentResult(intent), nil
}

// PayInstallment открывает следующий платёж рассрочки.
func (h *EnrollmentHandler) PayInstallment(ctx context.Context, cmd PayInstallmentCommand) (*EnrollmentResult, error) {
	if cmd.AccountID == "" || cmd.IntentID == "" {
		return nil, fmt.Errorf("%w: pay installment: account_id and intent_id are required", shared.ErrValidation)
	}

	acc, err := h.credentials.Get(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}

	intent, err := h.ledger.PayNextInstallment(ctx, acc.ID, acc.Email.String(), cmd.IntentID, cmd.CallbackURL)
	if err != nil {
		return nil, err
	}

	h.log.Info("installment opened",
		logger.AccountID(acc.ID),
		logger.IntentID(intent.ID),
		logger.Int("leg", len(intent.Legs)),
	)
	return newEnrollmentResult(intent), nil
}

// ConfirmPaymentCommand - подтверждение платежа по reference из колбэка.
type ConfirmPaymentCommand struct {
	Reference string
}

// ConfirmResult - состояние намерения после подтверждения.
type ConfirmResult struct {
	Intent   query.IntentView `json:"intent"`
	Verified bool             `json:"verified"`
}

// Confirm перепроверяет платёж в шлюзе. Данным колбэка, кроме reference,
// не доверяем. При shared.ErrVerificationFailed результат тоже заполнен.
func (h *EnrollmentHandler) Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmResult, error) {
	if cmd.Reference == "" {
		return nil, fmt.Errorf("%w: confirm: reference is required", shared.ErrValidation)
	}

	intent, err := h.ledger.Confirm(ctx, cmd.Reference)
	switch {
	case err == nil:
		h.log.Info("payment confirmed",
			logger.Reference(cmd.Reference),
			logger.IntentID(intent.ID),
			logger.String("status", string(intent.Status)),
		)
		return &ConfirmResult{Intent: query.NewIntentView(intent), Verified: true}, nil

	case errors.Is(err, shared.ErrVerificationFailed) && intent != nil:
		h.log.Warn("payment rejected", logger.Reference(cmd.Reference), logger.IntentID(intent.ID))
		return &ConfirmResult{Intent: query.NewIntentView(intent)}, err

	default:
		h.log.Error("confirm failed", logger.Reference(cmd.Reference), logger.Err(err))
		return nil, err
	}
}

func newEnrollmentResult(intent *enrollment.PaymentIntent) *EnrollmentResult {
	v := query.NewIntentView(intent)
	return &EnrollmentResult{Intent: v, CheckoutURL: v.CheckoutURL()}
}
