package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ndmx/upscale/internal/domain/catalog"
)

// CatalogCache is a read-through cache in front of a catalog.Repository.
// Cache errors fall back to the repository.
type CatalogCache struct {
	next   catalog.Repository
	cache  *Cache
	logger *slog.Logger
}

var _ catalog.Repository = (*CatalogCache)(nil)

// NewCatalogCache wraps next.
func NewCatalogCache(next catalog.Repository, cache *Cache, logger *slog.Logger) *CatalogCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogCache{next: next, cache: cache, logger: logger}
}

const catalogListKey = PrefixCatalog + "courses"

func catalogCourseKey(id string) string { return PrefixCatalog + "course:" + id }

// List implements catalog.Repository.
func (c *CatalogCache) List(ctx context.Context) ([]catalog.Course, error) {
	var courses []catalog.Course
	err := c.cache.Get(ctx, catalogListKey, &courses)
	if err == nil {
		return courses, nil
	}
	c.logMiss(err, catalogListKey)

	courses, err = c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, catalogListKey, courses)
	return courses, nil
}

// Get implements catalog.Repository.
func (c *CatalogCache) Get(ctx context.Context, courseID string) (*catalog.Course, error) {
	key := catalogCourseKey(courseID)

	var course catalog.Course
	err := c.cache.Get(ctx, key, &course)
	if err == nil {
		return &course, nil
	}
	c.logMiss(err, key)

	found, err := c.next.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, found)
	return found, nil
}

// Count implements catalog.Repository. Always served by the repository.
func (c *CatalogCache) Count(ctx context.Context) (int, error) {
	return c.next.Count(ctx)
}

// Create implements catalog.Repository and invalidates the cached list.
func (c *CatalogCache) Create(ctx context.Context, course *catalog.Course) error {
	if err := c.next.Create(ctx, course); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, catalogListKey, catalogCourseKey(course.ID)); err != nil {
		c.logger.Warn("catalog cache invalidation failed", "error", err)
	}
	return nil
}

func (c *CatalogCache) store(ctx context.Context, key string, v any) {
	if err := c.cache.Set(ctx, key, v, TTLCatalogCache); err != nil {
		c.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
}

func (c *CatalogCache) logMiss(err error, key string) {
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("catalog cache read failed", "key", key, "error", err)
	}
}
