package catalog

import "context"

// Repository определяет хранение каталога. Каталог в основном читается;
// запись происходит только при начальном заполнении.
type Repository interface {
	// List возвращает все курсы с модулями, упорядоченными по позиции.
	List(ctx context.Context) ([]Course, error)

	// Get возвращает курс по ID.
	// Возвращает shared.ErrCourseNotFound, если курс не найден.
	Get(ctx context.Context, courseID string) (*Course, error)

	// Count возвращает количество курсов.
	Count(ctx context.Context) (int, error)

	// Create сохраняет курс вместе с модулями.
	Create(ctx context.Context, course *Course) error
}
