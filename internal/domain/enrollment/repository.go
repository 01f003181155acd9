package enrollment

import (
	"context"
	"time"

	"github.com/ndmx/upscale/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит намерения оплаты вместе с платежами.
type Repository interface {
	// Create сохраняет новое намерение с его платежами.
	// Возвращает shared.ErrDuplicateActiveIntent, если у пары (аккаунт, курс)
	// уже есть активное намерение.
	Create(ctx context.Context, intent *PaymentIntent) error

	// Save сохраняет статус и суммы намерения и добавляет/обновляет платежи.
	Save(ctx context.Context, intent *PaymentIntent) error

	// Settle атомарно сохраняет намерение, если платёж reference всё ещё
	// pending в хранилище. Возвращает false, если платёж уже закрыт
	// другим вызовом; в этом случае ничего не меняется.
	Settle(ctx context.Context, intent *PaymentIntent, reference string) (bool, error)

	// Get возвращает намерение по ID.
	// Возвращает shared.ErrIntentNotFound, если намерение не найдено.
	Get(ctx context.Context, id string) (*PaymentIntent, error)

	// GetByReference возвращает намерение, которому принадлежит платёж.
	// Возвращает shared.ErrLegNotFound, если платёж не найден.
	GetByReference(ctx context.Context, reference string) (*PaymentIntent, error)

	// FindActive возвращает активное намерение пары (аккаунт, курс).
	// Возвращает shared.ErrIntentNotFound, если его нет.
	FindActive(ctx context.Context, accountID, courseID string) (*PaymentIntent, error)

	// ListByAccount возвращает все намерения аккаунта, новые первыми.
	ListByAccount(ctx context.Context, accountID string) ([]*PaymentIntent, error)

	// ListWithPendingLegs возвращает намерения, у которых есть платёж
	// в состоянии pending, созданный раньше before.
	ListWithPendingLegs(ctx context.Context, before time.Time) ([]*PaymentIntent, error)
}

// Locker сериализует операции по ключу. Реализации: KeyedMutex в памяти
// и блокировка в Redis для нескольких экземпляров.
type Locker interface {
	// Lock блокирует ключ и возвращает функцию освобождения.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// CourseReader читает курс из каталога.
type CourseReader interface {
	GetCourse(ctx context.Context, courseID string) (*catalog.Course, error)
}
