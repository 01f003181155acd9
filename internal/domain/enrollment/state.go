// Package enrollment содержит журнал записи на курсы: намерения оплаты,
// их части (платежи) и единственную таблицу переходов состояний.
package enrollment

import (
	"fmt"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - состояние намерения оплаты.
type Status string

const (
	// StatusCreated - намерение сохранено, платёжный шлюз ещё не вызван.
	StatusCreated Status = "created"
	// StatusPendingVerification - пользователь отправлен на оплату, ждём подтверждения.
	StatusPendingVerification Status = "pending_verification"
	// StatusPartiallyPaid - подтверждена часть платежей рассрочки.
	StatusPartiallyPaid Status = "partially_paid"
	// StatusPaid - оплачено полностью. Конечное состояние.
	StatusPaid Status = "paid"
	// StatusFailed - оплата не состоялась. Конечное состояние, запись хранится для аудита.
	StatusFailed Status = "failed"
)

// transitions - единственный источник допустимых переходов.
var transitions = map[Status][]Status{
	StatusCreated:             {StatusPendingVerification, StatusFailed},
	StatusPendingVerification: {StatusPartiallyPaid, StatusPaid, StatusFailed},
	StatusPartiallyPaid:       {StatusPartiallyPaid, StatusPaid},
	StatusPaid:                {},
	StatusFailed:              {},
}

// IsValid проверяет, что статус известен.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsActive возвращает true для всех состояний, кроме failed.
// У пары (аккаунт, курс) может быть не более одного активного намерения.
func (s Status) IsActive() bool {
	return s != StatusFailed
}

// CanTransition сообщает, разрешён ли переход from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition проверяет переход и возвращает shared.ErrInvalidTransition, если он запрещён.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return shared.WrapError("enrollment", "Transition", shared.ErrStateTransition,
			"transition is not allowed", fmt.Errorf("%s -> %s", from, to))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS POLICY
// ══════════════════════════════════════════════════════════════════════════════

// AccessPolicy определяет, какие состояния открывают доступ к курсу.
type AccessPolicy struct {
	// PartialGrantsAccess - первый подтверждённый платёж рассрочки открывает курс,
	// остальные платежи только биллинговые.
	PartialGrantsAccess bool
}

// DefaultAccessPolicy открывает курс после первого подтверждённого платежа.
func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{PartialGrantsAccess: true}
}

// Grants сообщает, открывает ли статус доступ.
func (p AccessPolicy) Grants(s Status) bool {
	switch s {
	case StatusPaid:
		return true
	case StatusPartiallyPaid:
		return p.PartialGrantsAccess
	default:
		return false
	}
}
