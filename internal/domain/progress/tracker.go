// Package progress учитывает завершение модулей. Отметка возможна только
// при наличии доступа к курсу и идемпотентна.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/recommendation"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Progress - отметка о завершении модуля. Не более одной на (аккаунт, модуль).
type Progress struct {
	AccountID   string    `json:"account_id"`
	CourseID    string    `json:"course_id"`
	ModuleID    string    `json:"module_id"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит отметки прогресса.
type Repository interface {
	// Insert сохраняет отметку, если её ещё нет.
	// Возвращает сохранённую запись и true, если запись создана этим вызовом.
	Insert(ctx context.Context, p Progress) (Progress, bool, error)

	// ListForCourse возвращает отметки аккаунта по курсу.
	ListForCourse(ctx context.Context, accountID, courseID string) ([]Progress, error)
}

// AccessChecker отвечает, открыт ли аккаунту курс. Реализуется журналом записи.
type AccessChecker interface {
	HasAccess(ctx context.Context, accountID, courseID string) (bool, error)
}

// CourseReader читает курс из каталога.
type CourseReader interface {
	GetCourse(ctx context.Context, courseID string) (*catalog.Course, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Tracker отмечает модули и считает долю завершения.
type Tracker struct {
	repo      Repository
	access    AccessChecker
	courses   CourseReader
	clock     shared.Clock
	publisher shared.EventPublisher
}

// NewTracker создаёт трекер прогресса.
func NewTracker(repo Repository, access AccessChecker, courses CourseReader, clock shared.Clock, publisher shared.EventPublisher) *Tracker {
	if clock == nil {
		clock = shared.SystemClock
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &Tracker{repo: repo, access: access, courses: courses, clock: clock, publisher: publisher}
}

// MarkComplete отмечает модуль курса как завершённый.
//
// Возвращает shared.ErrCourseNotFound или shared.ErrModuleNotFound для
// неизвестных ссылок и shared.ErrNotEnrolled без доступа к курсу.
// Повторный вызов возвращает исходную отметку без изменений.
func (t *Tracker) MarkComplete(ctx context.Context, accountID, courseID string, position int) (Progress, error) {
	course, err := t.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Progress{}, err
	}
	module, ok := course.Module(position)
	if !ok {
		return Progress{}, shared.ErrModuleNotFound
	}

	allowed, err := t.access.HasAccess(ctx, accountID, courseID)
	if err != nil {
		return Progress{}, fmt.Errorf("check access: %w", err)
	}
	if !allowed {
		return Progress{}, shared.ErrNotEnrolled
	}

	now := t.clock()
	saved, created, err := t.repo.Insert(ctx, Progress{
		AccountID:   accountID,
		CourseID:    courseID,
		ModuleID:    module.ID,
		Completed:   true,
		CompletedAt: now,
	})
	if err != nil {
		return Progress{}, fmt.Errorf("insert progress: %w", err)
	}

	if created {
		_ = t.publisher.Publish(shared.ModuleCompletedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventModuleCompleted, accountID, now),
			AccountID: accountID,
			CourseID:  courseID,
			ModuleID:  module.ID,
		})
	}
	return saved, nil
}

// CompletedSet возвращает множество ID завершённых модулей курса.
func (t *Tracker) CompletedSet(ctx context.Context, accountID, courseID string) (map[string]bool, error) {
	rows, err := t.repo.ListForCourse(ctx, accountID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	set := make(map[string]bool, len(rows))
	for _, p := range rows {
		if p.Completed {
			set[p.ModuleID] = true
		}
	}
	return set, nil
}

// CompletionRatio возвращает долю завершённых модулей курса в [0, 1].
func (t *Tracker) CompletionRatio(ctx context.Context, accountID, courseID string) (float64, error) {
	course, err := t.courses.GetCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	set, err := t.CompletedSet(ctx, accountID, courseID)
	if err != nil {
		return 0, err
	}
	return recommendation.CompletionRatio(course.Modules, set), nil
}
