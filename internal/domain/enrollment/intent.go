package enrollment

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Plan - способ оплаты курса.
type Plan string

const (
	// PlanFull - один платёж на полную сумму.
	PlanFull Plan = "full"
	// PlanInstallment - рассрочка равными частями.
	PlanInstallment Plan = "installment"
)

// IsValid проверяет, что план известен.
func (p Plan) IsValid() bool {
	return p == PlanFull || p == PlanInstallment
}

// LegStatus - состояние отдельного платежа.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegSucceeded LegStatus = "succeeded"
	LegFailed    LegStatus = "failed"
)

// Pricing - цены курса в копейках (kobo).
type Pricing struct {
	FullAmount shared.Kobo
	LegAmount  shared.Kobo
	LegCount   int
}

// DefaultPricing: ₦150 000 сразу или 3 платежа по ₦50 000.
func DefaultPricing() Pricing {
	return Pricing{
		FullAmount: shared.Naira(150_000),
		LegAmount:  shared.Naira(50_000),
		LegCount:   3,
	}
}

// Terms возвращает ожидаемую сумму, сумму одного платежа и число платежей для плана.
func (p Pricing) Terms(plan Plan) (expected, leg shared.Kobo, count int) {
	if plan == PlanInstallment {
		return p.LegAmount * shared.Kobo(p.LegCount), p.LegAmount, p.LegCount
	}
	return p.FullAmount, p.FullAmount, 1
}

// NewReference строит внешний идентификатор платежа:
// upscale_<первые 8 символов ID аккаунта>_<16 hex>.
func NewReference(accountID string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)

	prefix := strings.ReplaceAll(accountID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "upscale_" + prefix + "_" + hex.EncodeToString(buf)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// PaymentLeg - одна транзакция в платёжном шлюзе. Reference уникален
// и служит ключом идемпотентности подтверждения.
type PaymentLeg struct {
	Reference        string
	IntentID         string
	Sequence         int
	Amount           shared.Kobo
	Status           LegStatus
	AuthorizationURL string
	AccessCode       string
	FailureReason    string
	VerifiedAt       time.Time
	CreatedAt        time.Time
}

// IsSettled возвращает true, если платёж больше не ждёт подтверждения.
func (l *PaymentLeg) IsSettled() bool {
	return l.Status != LegPending
}

// PaymentIntent - намерение оплатить курс. Управляющее намерение пары
// (аккаунт, курс) и есть запись на курс.
type PaymentIntent struct {
	ID             string
	AccountID      string
	CourseID       string
	Plan           Plan
	AmountExpected shared.Kobo
	AmountPaid     shared.Kobo
	LegAmount      shared.Kobo
	LegCount       int
	Status         Status
	Legs           []PaymentLeg
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewIntent создаёт намерение в состоянии created с первым ожидающим платежом.
func NewIntent(accountID, courseID string, plan Plan, pricing Pricing, reference string, now time.Time) *PaymentIntent {
	expected, leg, count := pricing.Terms(plan)
	intent := &PaymentIntent{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		CourseID:       courseID,
		Plan:           plan,
		AmountExpected: expected,
		LegAmount:      leg,
		LegCount:       count,
		Status:         StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	intent.addLeg(reference, leg, now)
	return intent
}

func (i *PaymentIntent) addLeg(reference string, amount shared.Kobo, now time.Time) *PaymentLeg {
	i.Legs = append(i.Legs, PaymentLeg{
		Reference: reference,
		IntentID:  i.ID,
		Sequence:  len(i.Legs) + 1,
		Amount:    amount,
		Status:    LegPending,
		CreatedAt: now,
	})
	i.UpdatedAt = now
	return &i.Legs[len(i.Legs)-1]
}

// Leg возвращает платёж по reference.
func (i *PaymentIntent) Leg(reference string) (*PaymentLeg, bool) {
	for k := range i.Legs {
		if i.Legs[k].Reference == reference {
			return &i.Legs[k], true
		}
	}
	return nil, false
}

// PendingLeg возвращает ожидающий подтверждения платёж, если он есть.
func (i *PaymentIntent) PendingLeg() (*PaymentLeg, bool) {
	for k := range i.Legs {
		if i.Legs[k].Status == LegPending {
			return &i.Legs[k], true
		}
	}
	return nil, false
}

// SucceededLegs возвращает число подтверждённых платежей.
func (i *PaymentIntent) SucceededLegs() int {
	n := 0
	for _, l := range i.Legs {
		if l.Status == LegSucceeded {
			n++
		}
	}
	return n
}

// Outstanding возвращает остаток к оплате.
func (i *PaymentIntent) Outstanding() shared.Kobo {
	if i.AmountPaid >= i.AmountExpected {
		return 0
	}
	return i.AmountExpected - i.AmountPaid
}

// NextLegAmount возвращает сумму следующего платежа рассрочки.
func (i *PaymentIntent) NextLegAmount() shared.Kobo {
	if out := i.Outstanding(); out < i.LegAmount {
		return out
	}
	return i.LegAmount
}

// IsActive возвращает true, если намерение не провалено.
func (i *PaymentIntent) IsActive() bool {
	return i.Status.IsActive()
}

// transitionTo меняет статус через таблицу переходов.
func (i *PaymentIntent) transitionTo(to Status, now time.Time) error {
	if err := Transition(i.Status, to); err != nil {
		return err
	}
	i.Status = to
	i.UpdatedAt = now
	return nil
}

// applySuccess засчитывает подтверждённый платёж.
func (i *PaymentIntent) applySuccess(leg *PaymentLeg, now time.Time) error {
	if leg.IsSettled() {
		return shared.ErrInvalidTransition
	}
	next := StatusPartiallyPaid
	if i.AmountPaid+leg.Amount >= i.AmountExpected {
		next = StatusPaid
	}
	if err := i.transitionTo(next, now); err != nil {
		return err
	}
	leg.Status = LegSucceeded
	leg.VerifiedAt = now
	i.AmountPaid += leg.Amount
	return nil
}

// applyFailure отмечает платёж проваленным. Если по намерению уже были
// подтверждённые платежи, оно остаётся partially_paid, иначе переходит в failed.
func (i *PaymentIntent) applyFailure(leg *PaymentLeg, reason string, now time.Time) error {
	if leg.IsSettled() {
		return shared.ErrInvalidTransition
	}
	if i.SucceededLegs() == 0 {
		if err := i.transitionTo(StatusFailed, now); err != nil {
			return err
		}
	}
	leg.Status = LegFailed
	leg.FailureReason = reason
	leg.VerifiedAt = now
	i.UpdatedAt = now
	return nil
}
