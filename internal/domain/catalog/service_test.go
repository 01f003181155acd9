package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/memory"
)

func TestSeed_OnlyFillsEmptyCatalog(t *testing.T) {
	c := catalog.NewCatalog(memory.NewStore().Courses())
	ctx := context.Background()

	n, err := c.Seed(ctx, catalog.DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, len(catalog.DefaultSeed), n)

	n, err = c.Seed(ctx, catalog.DefaultSeed)
	require.NoError(t, err)
	assert.Zero(t, n)

	courses, err := c.ListCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, len(catalog.DefaultSeed))
}

func TestBuildCourse_PositionsFromOne(t *testing.T) {
	course := catalog.BuildCourse(catalog.DefaultSeed[0])

	assert.Equal(t, "cybersecurity-with-ai", course.Slug)
	for i, m := range course.Modules {
		assert.Equal(t, i+1, m.Position)
		assert.Equal(t, course.ID, m.CourseID)
		assert.NotEmpty(t, m.ID)
	}
}

func TestGetModule(t *testing.T) {
	store := memory.NewStore()
	c := catalog.NewCatalog(store.Courses())
	ctx := context.Background()
	course := catalog.BuildCourse(catalog.DefaultSeed[1])
	require.NoError(t, store.Courses().Create(ctx, course))

	m, err := c.GetModule(ctx, course.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Cloud Integration and Scalability", m.Title)

	_, err = c.GetModule(ctx, course.ID, 0)
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)

	_, err = c.GetCourse(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}
