package command

import (
	"context"
	"fmt"
	"time"

	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/progress"
	"github.com/ndmx/upscale/internal/domain/recommendation"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE MODULE COMMAND
// Отмечает модуль пройденным и сразу возвращает следующий рекомендуемый.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressTracker - операции трекера прогресса.
type ProgressTracker interface {
	MarkComplete(ctx context.Context, accountID, courseID string, position int) (progress.Progress, error)
	CompletedSet(ctx context.Context, accountID, courseID string) (map[string]bool, error)
}

// CourseReader читает курс из каталога.
type CourseReader interface {
	GetCourse(ctx context.Context, courseID string) (*catalog.Course, error)
}

// CompleteModuleCommand - отметка модуля.
type CompleteModuleCommand struct {
	AccountID string
	CourseID  string
	Position  int
}

// CompleteModuleResult - результат отметки.
type CompleteModuleResult struct {
	ModuleID        string               `json:"module_id"`
	CompletedAt     time.Time            `json:"completed_at"`
	CompletionRatio float64              `json:"completion_ratio"`
	NextModule      *query.ModuleSummary `json:"next_module,omitempty"`
	Finished        bool                 `json:"finished"`
}

// CompleteModuleHandler обрабатывает отметку модуля.
type CompleteModuleHandler struct {
	tracker ProgressTracker
	courses CourseReader
}

// NewCompleteModuleHandler создаёт обработчик.
func NewCompleteModuleHandler(tracker ProgressTracker, courses CourseReader) *CompleteModuleHandler {
	return &CompleteModuleHandler{tracker: tracker, courses: courses}
}

// Handle отмечает модуль. Повторная отметка возвращает исходное время.
// Возвращает shared.ErrNotEnrolled без доступа к курсу.
func (h *CompleteModuleHandler) Handle(ctx context.Context, cmd CompleteModuleCommand) (*CompleteModuleResult, error) {
	if cmd.AccountID == "" || cmd.CourseID == "" || cmd.Position < 1 {
		return nil, fmt.Errorf("%w: complete module: account, course and position are required", shared.ErrValidation)
	}

	p, err := h.tracker.MarkComplete(ctx, cmd.AccountID, cmd.CourseID, cmd.Position)
	if err != nil {
		return nil, err
	}

	course, err := h.courses.GetCourse(ctx, cmd.CourseID)
	if err != nil {
		return nil, err
	}
	completed, err := h.tracker.CompletedSet(ctx, cmd.AccountID, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("complete module: read progress: %w", err)
	}

	res := &CompleteModuleResult{
		ModuleID:        p.ModuleID,
		CompletedAt:     p.CompletedAt,
		CompletionRatio: recommendation.CompletionRatio(course.Modules, completed),
	}
	if next := recommendation.Recommend(course.Modules, completed); next != nil {
		res.NextModule = &query.ModuleSummary{ID: next.ID, Position: next.Position, Title: next.Title}
	} else {
		res.Finished = true
	}
	return res, nil
}
