package query

import (
	"context"
	"fmt"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSES QUERIES
// Каталог открыт всем; содержимое модуля - только записанным на курс.
// ══════════════════════════════════════════════════════════════════════════════

// CourseCatalog - чтение каталога.
type CourseCatalog interface {
	ListCourses(ctx context.Context) ([]catalog.Course, error)
	GetCourse(ctx context.Context, courseID string) (*catalog.Course, error)
	GetModule(ctx context.Context, courseID string, position int) (catalog.Module, error)
}

// AccessChecker отвечает, открыт ли курс аккаунту.
type AccessChecker interface {
	HasAccess(ctx context.Context, accountID, courseID string) (bool, error)
}

// CoursesHandler обрабатывает запросы каталога.
type CoursesHandler struct {
	catalog CourseCatalog
	access  AccessChecker
}

// NewCoursesHandler создаёт обработчик.
func NewCoursesHandler(c CourseCatalog, access AccessChecker) *CoursesHandler {
	return &CoursesHandler{catalog: c, access: access}
}

// List возвращает все курсы.
func (h *CoursesHandler) List(ctx context.Context) ([]CourseView, error) {
	courses, err := h.catalog.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]CourseView, 0, len(courses))
	for i := range courses {
		out = append(out, NewCourseView(&courses[i]))
	}
	return out, nil
}

// Get возвращает курс по ID.
func (h *CoursesHandler) Get(ctx context.Context, courseID string) (CourseView, error) {
	course, err := h.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return CourseView{}, err
	}
	return NewCourseView(course), nil
}

// GetModuleQuery - запрос содержимого модуля.
type GetModuleQuery struct {
	AccountID string
	CourseID  string
	Position  int
}

// ModuleView - модуль с содержимым.
type ModuleView struct {
	ModuleSummary
	CourseID string `json:"course_id"`
	Content  string `json:"content"`
}

// GetModule возвращает содержимое модуля.
// Возвращает shared.ErrNotEnrolled, если курс не открыт аккаунту.
func (h *CoursesHandler) GetModule(ctx context.Context, q GetModuleQuery) (ModuleView, error) {
	module, err := h.catalog.GetModule(ctx, q.CourseID, q.Position)
	if err != nil {
		return ModuleView{}, err
	}

	ok, err := h.access.HasAccess(ctx, q.AccountID, q.CourseID)
	if err != nil {
		return ModuleView{}, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return ModuleView{}, shared.ErrNotEnrolled
	}

	return ModuleView{
		ModuleSummary: summarize(module),
		CourseID:      module.CourseID,
		Content:       module.Content,
	}, nil
}
