package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/progress"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Repository for PostgreSQL.
type CatalogRepository struct {
	conn *Connection
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// List returns all courses with their modules ordered by position.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Course, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT c.id, c.slug, c.title, c.description,
		       m.id, m.position, m.title, m.content
		FROM courses c
		LEFT JOIN modules m ON m.course_id = c.id
		ORDER BY c.created_at, c.title, m.position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	courses, err := scanCourses(rows)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Course, 0, len(courses))
	for _, c := range courses {
		out = append(out, *c)
	}
	return out, nil
}

// Get returns a course by ID.
func (r *CatalogRepository) Get(ctx context.Context, courseID string) (*catalog.Course, error) {
	if !isUUID(courseID) {
		return nil, shared.ErrCourseNotFound
	}

	rows, err := r.conn.Query(ctx, `
		SELECT c.id, c.slug, c.title, c.description,
		       m.id, m.position, m.title, m.content
		FROM courses c
		LEFT JOIN modules m ON m.course_id = c.id
		WHERE c.id = $1
		ORDER BY m.position
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	courses, err := scanCourses(rows)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, shared.ErrCourseNotFound
	}
	return courses[0], nil
}

// Count returns the number of courses.
func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM courses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return n, nil
}

// Create inserts a course and its modules in one transaction.
func (r *CatalogRepository) Create(ctx context.Context, course *catalog.Course) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO courses (id, slug, title, description) VALUES ($1, $2, $3, $4)
		`, course.ID, course.Slug, course.Title, course.Description)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.NewDomainError("catalog", "Create", shared.ErrAlreadyExists, "course already exists")
			}
			return fmt.Errorf("failed to create course: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range course.Modules {
			batch.Queue(`
				INSERT INTO modules (id, course_id, position, title, content) VALUES ($1, $2, $3, $4, $5)
			`, m.ID, course.ID, m.Position, m.Title, m.Content)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to create modules: %w", err)
		}
		return nil
	})
}

// scanCourses folds joined course/module rows into courses, preserving order.
func scanCourses(rows pgx.Rows) ([]*catalog.Course, error) {
	defer rows.Close()

	var (
		out   []*catalog.Course
		index = make(map[string]*catalog.Course)
	)
	for rows.Next() {
		var (
			c                       catalog.Course
			moduleID                *string
			position                *int
			moduleTitle, moduleBody *string
		)
		if err := rows.Scan(&c.ID, &c.Slug, &c.Title, &c.Description, &moduleID, &position, &moduleTitle, &moduleBody); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}

		course, ok := index[c.ID]
		if !ok {
			course = &c
			index[c.ID] = course
			out = append(out, course)
		}
		if moduleID != nil {
			course.Modules = append(course.Modules, catalog.Module{
				ID:       *moduleID,
				CourseID: course.ID,
				Position: *position,
				Title:    *moduleTitle,
				Content:  *moduleBody,
			})
		}
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Insert stores the mark unless one already exists for (account, module).
// The second return value reports whether this call created it.
func (r *ProgressRepository) Insert(ctx context.Context, p progress.Progress) (progress.Progress, bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO progress (account_id, course_id, module_id, completed, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, module_id) DO NOTHING
	`, p.AccountID, p.CourseID, p.ModuleID, p.Completed, p.CompletedAt)
	if err != nil {
		return progress.Progress{}, false, fmt.Errorf("failed to insert progress: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return p, true, nil
	}

	var existing progress.Progress
	err = r.conn.QueryRow(ctx, `
		SELECT account_id, course_id, module_id, completed, completed_at
		FROM progress WHERE account_id = $1 AND module_id = $2
	`, p.AccountID, p.ModuleID).Scan(
		&existing.AccountID, &existing.CourseID, &existing.ModuleID, &existing.Completed, &existing.CompletedAt,
	)
	if err != nil {
		return progress.Progress{}, false, fmt.Errorf("failed to read existing progress: %w", err)
	}
	return existing, false, nil
}

// ListForCourse returns the account's marks for a course, oldest first.
func (r *ProgressRepository) ListForCourse(ctx context.Context, accountID, courseID string) ([]progress.Progress, error) {
	if !isUUID(accountID) || !isUUID(courseID) {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT account_id, course_id, module_id, completed, completed_at
		FROM progress
		WHERE account_id = $1 AND course_id = $2
		ORDER BY completed_at
	`, accountID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var out []progress.Progress
	for rows.Next() {
		var p progress.Progress
		if err := rows.Scan(&p.AccountID, &p.CourseID, &p.ModuleID, &p.Completed, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
