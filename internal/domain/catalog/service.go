package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// ModuleSeed - содержимое модуля для начального заполнения.
type ModuleSeed struct {
	Title   string
	Content string
}

// CourseSeed - содержимое курса для начального заполнения.
type CourseSeed struct {
	Title       string
	Description string
	Modules     []ModuleSeed
}

// Catalog - сервис чтения каталога.
type Catalog struct {
	repo Repository
}

// NewCatalog создаёт сервис каталога.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// ListCourses возвращает все курсы.
func (c *Catalog) ListCourses(ctx context.Context) ([]Course, error) {
	return c.repo.List(ctx)
}

// GetCourse возвращает курс или shared.ErrCourseNotFound.
func (c *Catalog) GetCourse(ctx context.Context, courseID string) (*Course, error) {
	return c.repo.Get(ctx, courseID)
}

// GetModule возвращает модуль курса по позиции или shared.ErrModuleNotFound.
func (c *Catalog) GetModule(ctx context.Context, courseID string, position int) (Module, error) {
	course, err := c.repo.Get(ctx, courseID)
	if err != nil {
		return Module{}, err
	}
	m, ok := course.Module(position)
	if !ok {
		return Module{}, shared.ErrModuleNotFound
	}
	return m, nil
}

// Seed заполняет пустой каталог. Если хотя бы один курс уже есть, ничего не делает.
// Возвращает число созданных курсов.
func (c *Catalog) Seed(ctx context.Context, seeds []CourseSeed) (int, error) {
	n, err := c.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	for _, s := range seeds {
		course := BuildCourse(s)
		if err := c.repo.Create(ctx, course); err != nil {
			return 0, fmt.Errorf("create course %q: %w", s.Title, err)
		}
	}
	return len(seeds), nil
}

// BuildCourse превращает описание курса в сущность с новыми ID
// и позициями модулей по порядку, начиная с 1.
func BuildCourse(s CourseSeed) *Course {
	course := &Course{
		ID:          uuid.NewString(),
		Slug:        Slugify(s.Title),
		Title:       s.Title,
		Description: s.Description,
		Modules:     make([]Module, 0, len(s.Modules)),
	}
	for i, m := range s.Modules {
		course.Modules = append(course.Modules, Module{
			ID:       uuid.NewString(),
			CourseID: course.ID,
			Position: i + 1,
			Title:    m.Title,
			Content:  m.Content,
		})
	}
	return course
}
