package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/recommendation"
)

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD QUERY
// Все курсы с доступом, долей завершения и рекомендуемым модулем.
// Рекомендация пересчитывается на каждый запрос и не кешируется.
// ══════════════════════════════════════════════════════════════════════════════

// CompletionReader читает отметки прогресса.
type CompletionReader interface {
	CompletedSet(ctx context.Context, accountID, courseID string) (map[string]bool, error)
}

// IntentReader читает намерения аккаунта.
type IntentReader interface {
	ListForAccount(ctx context.Context, accountID string) ([]*enrollment.PaymentIntent, error)
	Get(ctx context.Context, accountID, intentID string) (*enrollment.PaymentIntent, error)
}

// DashboardCourse - строка дашборда.
type DashboardCourse struct {
	Course          CourseView     `json:"course"`
	HasAccess       bool           `json:"has_access"`
	CompletionRatio float64        `json:"completion_ratio"`
	Completed       int            `json:"completed"`
	Finished        bool           `json:"finished"`
	NextModule      *ModuleSummary `json:"next_module,omitempty"`
	Enrollment      *IntentView    `json:"enrollment,omitempty"`
}

// Dashboard - результат запроса.
type Dashboard struct {
	AccountID string            `json:"account_id"`
	Courses   []DashboardCourse `json:"courses"`
}

// DashboardHandler собирает дашборд.
type DashboardHandler struct {
	catalog  CourseCatalog
	access   AccessChecker
	progress CompletionReader
	intents  IntentReader
}

// NewDashboardHandler создаёт обработчик.
func NewDashboardHandler(c CourseCatalog, access AccessChecker, progress CompletionReader, intents IntentReader) *DashboardHandler {
	return &DashboardHandler{catalog: c, access: access, progress: progress, intents: intents}
}

// Handle строит дашборд аккаунта. Прогресс и рекомендация считаются только
// по открытым курсам.
func (h *DashboardHandler) Handle(ctx context.Context, accountID string) (*Dashboard, error) {
	if accountID == "" {
		return nil, errors.New("dashboard: account_id is required")
	}

	courses, err := h.catalog.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list courses: %w", err)
	}

	intents, err := h.intents.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list intents: %w", err)
	}
	active := make(map[string]*enrollment.PaymentIntent, len(intents))
	for _, i := range intents {
		if i.IsActive() {
			active[i.CourseID] = i
		}
	}

	out := &Dashboard{AccountID: accountID, Courses: make([]DashboardCourse, 0, len(courses))}
	for i := range courses {
		course := &courses[i]
		row := DashboardCourse{Course: NewCourseView(course)}

		if intent, ok := active[course.ID]; ok {
			v := NewIntentView(intent)
			row.Enrollment = &v
		}

		row.HasAccess, err = h.access.HasAccess(ctx, accountID, course.ID)
		if err != nil {
			return nil, fmt.Errorf("dashboard: access %s: %w", course.ID, err)
		}
		if !row.HasAccess {
			out.Courses = append(out.Courses, row)
			continue
		}

		completed, err := h.progress.CompletedSet(ctx, accountID, course.ID)
		if err != nil {
			return nil, fmt.Errorf("dashboard: progress %s: %w", course.ID, err)
		}
		row.Completed = len(completed)
		row.CompletionRatio = recommendation.CompletionRatio(course.Modules, completed)
		if next := recommendation.Recommend(course.Modules, completed); next != nil {
			s := summarize(*next)
			row.NextModule = &s
		} else {
			row.Finished = len(course.Modules) > 0
		}
		out.Courses = append(out.Courses, row)
	}
	return out, nil
}
