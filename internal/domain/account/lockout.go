package account

import "time"

// LockoutPolicy описывает, после скольких подряд неудач и на какой срок
// блокируется вход.
type LockoutPolicy struct {
	Threshold int
	Cooldown  time.Duration
}

// DefaultLockoutPolicy - 5 неудач, блокировка на 15 минут.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Cooldown: 15 * time.Minute}
}

// ClearExpired сбрасывает истёкшую блокировку вместе со счётчиком,
// чтобы после окончания блокировки отсчёт начинался с нуля.
func (p LockoutPolicy) ClearExpired(a *Account, now time.Time) {
	if !a.LockedUntil.IsZero() && !now.Before(a.LockedUntil) {
		a.LockedUntil = time.Time{}
		a.FailedAttempts = 0
		a.UpdatedAt = now
	}
}

// RegisterFailure увеличивает счётчик и при достижении порога блокирует аккаунт.
// Возвращает true, если именно эта неудача включила блокировку.
func (p LockoutPolicy) RegisterFailure(a *Account, now time.Time) bool {
	a.FailedAttempts++
	a.UpdatedAt = now
	if a.FailedAttempts >= p.Threshold {
		a.LockedUntil = now.Add(p.Cooldown)
		return true
	}
	return false
}

// RegisterSuccess обнуляет счётчик и снимает блокировку.
func (p LockoutPolicy) RegisterSuccess(a *Account, now time.Time) {
	a.FailedAttempts = 0
	a.LockedUntil = time.Time{}
	a.UpdatedAt = now
}
