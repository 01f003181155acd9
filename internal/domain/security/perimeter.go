package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE GUARD
// ══════════════════════════════════════════════════════════════════════════════

// Decision - результат проверки частоты запросов.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateGuard ограничивает число запросов с одного адреса в скользящем окне.
// Реализации: ratelimit.SlidingWindow (в процессе) и redis.RateGuard.
type RateGuard interface {
	Allow(ctx context.Context, origin string) (Decision, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIMETER
// ══════════════════════════════════════════════════════════════════════════════

// Perimeter объединяет проверку пути и проверку частоты и пишет их исходы в журнал.
type Perimeter struct {
	paths *PathGuard
	rate  RateGuard
	log   Log
	clock shared.Clock
}

// NewPerimeter создаёт периметр.
func NewPerimeter(paths *PathGuard, rate RateGuard, log Log, clock shared.Clock) *Perimeter {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Perimeter{paths: paths, rate: rate, log: log, clock: clock}
}

// Check проверяет запрос. Сначала путь: заблокированный запрос не учитывается
// в счётчике частоты. Затем частота.
//
// Возвращает ErrSuspiciousPath или ErrOriginRateLimited, даже если запись
// в журнал не удалась. Ошибка хранилища счётчика возвращается вместе
// с разрешающим решением: решение о пропуске остаётся за вызывающим.
func (p *Perimeter) Check(ctx context.Context, origin, path string) (Decision, error) {
	if pattern, blocked := p.paths.Match(path); blocked {
		detail := fmt.Sprintf("path=%s pattern=%s", path, pattern)
		if err := p.log.Append(ctx, NewEvent(KindSuspiciousPath, "", origin, detail, p.clock())); err != nil {
			return Decision{}, errors.Join(shared.ErrSuspiciousPath, fmt.Errorf("append suspicious_path event: %w", err))
		}
		return Decision{}, shared.ErrSuspiciousPath
	}

	decision, err := p.rate.Allow(ctx, origin)
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate guard: %w", err)
	}
	if !decision.Allowed {
		detail := fmt.Sprintf("path=%s retry_after=%s", path, decision.RetryAfter)
		if err := p.log.Append(ctx, NewEvent(KindRateLimited, "", origin, detail, p.clock())); err != nil {
			return decision, errors.Join(shared.ErrOriginRateLimited, fmt.Errorf("append rate_limited event: %w", err))
		}
		return decision, shared.ErrOriginRateLimited
	}
	return decision, nil
}
