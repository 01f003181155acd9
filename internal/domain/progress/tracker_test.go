package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/progress"
	"github.com/ndmx/upscale/internal/domain/recommendation"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/memory"
)

type accessMap map[string]bool

func (a accessMap) HasAccess(_ context.Context, accountID, courseID string) (bool, error) {
	return a[accountID+"/"+courseID], nil
}

type brokenAccess struct{}

func (brokenAccess) HasAccess(context.Context, string, string) (bool, error) {
	return false, errors.New("db down")
}

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func setup(t *testing.T, access progress.AccessChecker) (*progress.Tracker, *catalog.Course, *recorder) {
	t.Helper()
	store := memory.NewStore()
	course := catalog.BuildCourse(catalog.DefaultSeed[0])
	require.NoError(t, store.Courses().Create(context.Background(), course))

	events := &recorder{}
	now := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	tr := progress.NewTracker(
		store.Progress(),
		access,
		catalog.NewCatalog(store.Courses()),
		func() time.Time { return now },
		events,
	)
	return tr, course, events
}

func TestMarkComplete_RequiresAccess(t *testing.T) {
	tr, course, events := setup(t, accessMap{})

	_, err := tr.MarkComplete(context.Background(), "acc-1", course.ID, 1)

	assert.ErrorIs(t, err, shared.ErrNotEnrolled)
	assert.Empty(t, events.events)
}

func TestMarkComplete_Idempotent(t *testing.T) {
	access := accessMap{}
	tr, course, events := setup(t, access)
	access["acc-1/"+course.ID] = true
	ctx := context.Background()

	first, err := tr.MarkComplete(ctx, "acc-1", course.ID, 1)
	require.NoError(t, err)
	second, err := tr.MarkComplete(ctx, "acc-1", course.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, events.events, 1)
	assert.Equal(t, shared.EventModuleCompleted, events.events[0].EventType())

	set, err := tr.CompletedSet(ctx, "acc-1", course.ID)
	require.NoError(t, err)
	assert.Len(t, set, 1)
}

func TestMarkComplete_UnknownReferences(t *testing.T) {
	tr, course, _ := setup(t, accessMap{"acc-1/" + "missing": true})
	ctx := context.Background()

	_, err := tr.MarkComplete(ctx, "acc-1", "missing", 1)
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	_, err = tr.MarkComplete(ctx, "acc-1", course.ID, 99)
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)
}

func TestMarkComplete_AccessCheckFailure(t *testing.T) {
	tr, course, _ := setup(t, brokenAccess{})

	_, err := tr.MarkComplete(context.Background(), "acc-1", course.ID, 1)

	assert.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrNotEnrolled)
}

func TestProgress_DrivesRecommendation(t *testing.T) {
	access := accessMap{}
	tr, course, _ := setup(t, access)
	access["acc-1/"+course.ID] = true
	ctx := context.Background()

	_, err := tr.MarkComplete(ctx, "acc-1", course.ID, 1)
	require.NoError(t, err)

	set, err := tr.CompletedSet(ctx, "acc-1", course.ID)
	require.NoError(t, err)
	next := recommendation.Recommend(course.Modules, set)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Position)
	assert.Equal(t, "Defensive AI Tools", next.Title)

	ratio, err := tr.CompletionRatio(ctx, "acc-1", course.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, ratio, 1e-9)

	_, _ = tr.MarkComplete(ctx, "acc-1", course.ID, 2)
	_, _ = tr.MarkComplete(ctx, "acc-1", course.ID, 3)
	set, _ = tr.CompletedSet(ctx, "acc-1", course.ID)
	assert.Nil(t, recommendation.Recommend(course.Modules, set))
}
