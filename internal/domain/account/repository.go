package account

import (
	"context"

	"github.com/ndmx/upscale/internal/domain/security"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// LoginMutation изменяет аккаунт внутри блокировки строки и возвращает
// события безопасности, которые сохраняются в той же транзакции.
type LoginMutation func(a *Account) []security.Event

// Repository определяет операции хранения учётных записей.
type Repository interface {
	// Create сохраняет новую учётную запись.
	// Возвращает shared.ErrDuplicateAccount, если email уже занят.
	Create(ctx context.Context, a *Account) error

	// GetByID возвращает учётную запись по ID.
	// Возвращает shared.ErrAccountNotFound, если запись не найдена.
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByEmail возвращает учётную запись по email.
	// Возвращает shared.ErrAccountNotFound, если запись не найдена.
	GetByEmail(ctx context.Context, email shared.Email) (*Account, error)

	// UpdateLoginState сериализует попытки входа по одному аккаунту:
	// читает запись под блокировкой, применяет fn, сохраняет изменённый
	// аккаунт и возвращённые события атомарно.
	// Возвращает shared.ErrAccountNotFound, если запись не найдена.
	UpdateLoginState(ctx context.Context, email shared.Email, fn LoginMutation) (*Account, error)
}
