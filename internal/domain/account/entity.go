// Package account содержит доменную модель учётной записи и политику блокировки.
// Хеширование паролей вынесено за интерфейс PasswordHasher.
package account

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// MinPasswordLength - минимальная длина пароля при регистрации.
const MinPasswordLength = 8

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Account - учётная запись пользователя. Никогда не удаляется физически.
type Account struct {
	ID           string
	Email        shared.Email
	Name         string
	PasswordHash string

	// FailedAttempts - число подряд неудачных попыток входа.
	FailedAttempts int
	// LockedUntil - момент окончания блокировки; нулевое значение - блокировки нет.
	LockedUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New создаёт учётную запись с уже вычисленным хешем пароля.
func New(email shared.Email, name, passwordHash string, now time.Time) *Account {
	return &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsLocked возвращает true, если now строго раньше окончания блокировки.
func (a *Account) IsLocked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// DisplayName возвращает имя или email, если имя не задано.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// PASSWORD HASHING
// ══════════════════════════════════════════════════════════════════════════════

// PasswordHasher вычисляет и проверяет хеши паролей.
// Compare обязан сравнивать за постоянное время.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(encoded, password string) bool
}
