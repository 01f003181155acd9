// Package command содержит операции записи (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/domain/account"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER / LOGIN COMMANDS
// Регистрация и вход. Сессию выдаёт транспортный слой по результату.
// ══════════════════════════════════════════════════════════════════════════════

// Credentials - операции хранилища учётных данных.
type Credentials interface {
	Register(ctx context.Context, in account.RegisterInput) (*account.Account, error)
	Verify(ctx context.Context, email, password, origin string) (*account.Account, error)
	Get(ctx context.Context, id string) (*account.Account, error)
}

// RegisterCommand - данные регистрации.
type RegisterCommand struct {
	Email    string
	Name     string
	Password string

	// Origin - адрес клиента, попадает в журнал безопасности.
	Origin string
}

// Validate проверяет обязательные поля. Формат email и длину пароля
// проверяет домен.
func (c RegisterCommand) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return errors.New("register: email is required")
	}
	if c.Password == "" {
		return errors.New("register: password is required")
	}
	return nil
}

// LoginCommand - данные входа.
type LoginCommand struct {
	Email    string
	Password string
	Origin   string
}

// AuthHandler обрабатывает регистрацию и вход.
type AuthHandler struct {
	credentials Credentials
	log         *logger.Logger
}

// NewAuthHandler создаёт обработчик.
func NewAuthHandler(credentials Credentials, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{credentials: credentials, log: log.With(logger.Component("auth"))}
}

// Register создаёт учётную запись.
func (h *AuthHandler) Register(ctx context.Context, cmd RegisterCommand) (query.AccountView, error) {
	if err := cmd.Validate(); err != nil {
		return query.AccountView{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	acc, err := h.credentials.Register(ctx, account.RegisterInput{
		Email:    cmd.Email,
		Name:     cmd.Name,
		Password: cmd.Password,
		Origin:   cmd.Origin,
	})
	if err != nil {
		return query.AccountView{}, err
	}

	h.log.Info("account registered", logger.AccountID(acc.ID), logger.Origin(cmd.Origin))
	return query.NewAccountView(acc), nil
}

// Login проверяет пароль с учётом блокировки.
// Ошибки домена (InvalidCredentials, AccountLocked) возвращаются как есть.
func (h *AuthHandler) Login(ctx context.Context, cmd LoginCommand) (query.AccountView, error) {
	acc, err := h.credentials.Verify(ctx, cmd.Email, cmd.Password, cmd.Origin)
	if err != nil {
		h.log.Warn("login rejected", logger.Origin(cmd.Origin), logger.Err(err))
		return query.AccountView{}, err
	}
	return query.NewAccountView(acc), nil
}

// Me возвращает данные аккаунта по ID из сессии.
func (h *AuthHandler) Me(ctx context.Context, accountID string) (query.AccountView, error) {
	acc, err := h.credentials.Get(ctx, accountID)
	if err != nil {
		return query.AccountView{}, err
	}
	return query.NewAccountView(acc), nil
}
