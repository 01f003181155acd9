package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ndmx/upscale/internal/domain/security"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIAL STORE
// ══════════════════════════════════════════════════════════════════════════════

// RegisterInput - данные для регистрации.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Origin   string
}

// rehasher реализуют хешеры, умеющие определять устаревший коэффициент работы.
type rehasher interface {
	NeedsRehash(encoded string) bool
}

// CredentialStore регистрирует пользователей и проверяет пароли
// с учётом политики блокировки.
type CredentialStore struct {
	repo      Repository
	log       security.Log
	hasher    PasswordHasher
	policy    LockoutPolicy
	clock     shared.Clock
	publisher shared.EventPublisher

	// dummyHash сравнивается для неизвестных email, чтобы время ответа
	// не выдавало существование аккаунта.
	dummyHash string
}

// NewCredentialStore создаёт хранилище учётных данных.
func NewCredentialStore(
	repo Repository,
	log security.Log,
	hasher PasswordHasher,
	policy LockoutPolicy,
	clock shared.Clock,
	publisher shared.EventPublisher,
) (*CredentialStore, error) {
	if clock == nil {
		clock = shared.SystemClock
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if policy.Threshold <= 0 || policy.Cooldown <= 0 {
		policy = DefaultLockoutPolicy()
	}
	dummy, err := hasher.Hash("upscale-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("compute dummy hash: %w", err)
	}
	return &CredentialStore{
		repo:      repo,
		log:       log,
		hasher:    hasher,
		policy:    policy,
		clock:     clock,
		publisher: publisher,
		dummyHash: dummy,
	}, nil
}

// Register создаёт учётную запись.
// Возвращает shared.ErrDuplicateAccount, если email уже зарегистрирован.
func (s *CredentialStore) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	email, err := shared.NewEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, shared.ErrWeakPassword
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, shared.ErrDuplicateAccount
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock()
	acc := New(email, in.Name, hash, now)
	if err := s.repo.Create(ctx, acc); err != nil {
		return nil, err
	}

	if err := s.log.Append(ctx, security.NewEvent(security.KindAccountRegistered, acc.ID, in.Origin, "", now)); err != nil {
		return nil, fmt.Errorf("append account_registered event: %w", err)
	}
	_ = s.publisher.Publish(shared.AccountRegisteredEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventAccountRegistered, acc.ID, now),
		Email:     email.String(),
	})

	return acc, nil
}

// Verify проверяет пароль.
//
// Заблокированный аккаунт сразу получает shared.ErrAccountLocked: счётчик
// не меняется, хеш не сравнивается. Неверный пароль увеличивает счётчик,
// на пороге включается блокировка. Успех обнуляет счётчик.
// Чтение, изменение счётчика и запись событий выполняются под блокировкой
// строки аккаунта, поэтому параллельные попытки не теряют инкременты.
func (s *CredentialStore) Verify(ctx context.Context, rawEmail, password, origin string) (*Account, error) {
	email, err := shared.NewEmail(rawEmail)
	if err != nil {
		return nil, s.rejectUnknown(ctx, rawEmail, password, origin)
	}

	var outcome error
	acc, err := s.repo.UpdateLoginState(ctx, email, func(a *Account) []security.Event {
		now := s.clock()

		if a.IsLocked(now) {
			outcome = shared.ErrAccountLocked
			return []security.Event{
				security.NewEvent(security.KindLoginFailure, a.ID, origin, "account locked", now),
			}
		}
		s.policy.ClearExpired(a, now)

		if !s.hasher.Compare(a.PasswordHash, password) {
			outcome = shared.ErrInvalidCredentials
			events := []security.Event{
				security.NewEvent(security.KindLoginFailure, a.ID, origin,
					fmt.Sprintf("failed_attempts=%d", a.FailedAttempts+1), now),
			}
			if s.policy.RegisterFailure(a, now) {
				events = append(events, security.NewEvent(security.KindLockoutTriggered, a.ID, origin,
					"locked_until="+a.LockedUntil.Format(time.RFC3339), now))
			}
			return events
		}

		s.policy.RegisterSuccess(a, now)
		if rh, ok := s.hasher.(rehasher); ok && rh.NeedsRehash(a.PasswordHash) {
			if fresh, err := s.hasher.Hash(password); err == nil {
				a.PasswordHash = fresh
			}
		}
		return []security.Event{security.NewEvent(security.KindLoginSuccess, a.ID, origin, "", now)}
	})
	if errors.Is(err, shared.ErrNotFound) {
		return nil, s.rejectUnknown(ctx, email.String(), password, origin)
	}
	if err != nil {
		return nil, fmt.Errorf("update login state: %w", err)
	}

	if outcome != nil {
		if errors.Is(outcome, shared.ErrInvalidCredentials) && acc.IsLocked(s.clock()) {
			_ = s.publisher.Publish(shared.AccountLockedEvent{
				BaseEvent:   shared.NewBaseEvent(shared.EventAccountLocked, acc.ID, s.clock()),
				Email:       acc.Email.String(),
				LockedUntil: acc.LockedUntil,
				Origin:      origin,
			})
		}
		return nil, outcome
	}
	return acc, nil
}

// rejectUnknown тратит столько же времени, сколько проверка настоящего
// пароля, и пишет неудачу без привязки к аккаунту.
func (s *CredentialStore) rejectUnknown(ctx context.Context, email, password, origin string) error {
	s.hasher.Compare(s.dummyHash, password)

	ev := security.NewEvent(security.KindLoginFailure, "", origin, "unknown account "+email, s.clock())
	if err := s.log.Append(ctx, ev); err != nil {
		return fmt.Errorf("append login_failure event: %w", err)
	}
	return shared.ErrInvalidCredentials
}

// Get возвращает учётную запись по ID.
func (s *CredentialStore) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}
