// Package security содержит журнал событий безопасности и периметровые проверки:
// ограничение частоты запросов по адресу клиента и блокировку сканерских путей.
package security

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет тип события безопасности.
type Kind string

const (
	// KindLoginSuccess - успешный вход.
	KindLoginSuccess Kind = "login_success"
	// KindLoginFailure - неудачная попытка входа (в том числе для неизвестного email).
	KindLoginFailure Kind = "login_failure"
	// KindLockoutTriggered - аккаунт заблокирован после серии неудач.
	KindLockoutTriggered Kind = "lockout_triggered"
	// KindSuspiciousPath - запрос к пути из списка сканерских шаблонов.
	KindSuspiciousPath Kind = "suspicious_path"
	// KindRateLimited - запрос отклонён ограничителем частоты.
	KindRateLimited Kind = "rate_limited"
	// KindAccountRegistered - создан новый аккаунт.
	KindAccountRegistered Kind = "account_registered"
)

// IsValid проверяет, что тип события известен.
func (k Kind) IsValid() bool {
	switch k {
	case KindLoginSuccess, KindLoginFailure, KindLockoutTriggered,
		KindSuspiciousPath, KindRateLimited, KindAccountRegistered:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Event - неизменяемая запись журнала безопасности.
// AccountID пуст для попыток без опознанного аккаунта.
type Event struct {
	ID         string
	AccountID  string
	Kind       Kind
	Origin     string
	Detail     string
	OccurredAt time.Time
}

// NewEvent создаёт событие с новым идентификатором.
func NewEvent(kind Kind, accountID, origin, detail string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Kind:       kind,
		Origin:     origin,
		Detail:     detail,
		OccurredAt: at.UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Log - журнал только на добавление. Операций изменения и удаления нет.
type Log interface {
	// Append добавляет событие в журнал.
	Append(ctx context.Context, event Event) error

	// ListByAccount возвращает последние события аккаунта, новые первыми.
	// Пустой accountID выбирает события без опознанного аккаунта.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Event, error)
}
