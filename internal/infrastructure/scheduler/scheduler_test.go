package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	err  error
	runs atomic.Int32
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, "@every 5m"))
	assert.ErrorIs(t, s.Register(job, "@every 5m"), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, "not a schedule"), ErrInvalidSchedule)
	assert.ErrorIs(t, s.Register(nil, "@hourly"), ErrNilJob)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 5m", jobs[0].Schedule)
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	s := newTestScheduler()
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.Register(failing, "*/5 * * * *"))

	var failed string
	s.OnJobError(func(name string, _ error) { failed = name })

	res, err := s.RunNow(context.Background(), "failing")
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)
	assert.Equal(t, "failing", failed)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "failing", history[0].JobName)
	assert.EqualError(t, history[0].Error, "boom")
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunAll(t *testing.T) {
	s := newTestScheduler()
	a := &countingJob{name: "a"}
	b := &countingJob{name: "b", err: errors.New("boom")}
	require.NoError(t, s.Register(a, "@hourly"))
	require.NoError(t, s.Register(b, "@hourly"))

	err := s.RunAll(context.Background())

	assert.ErrorContains(t, err, "b: boom")
	assert.EqualValues(t, 1, a.runs.Load())
	assert.EqualValues(t, 1, b.runs.Load())

	history := s.GetHistory(1)
	require.Len(t, history, 1)
	assert.Equal(t, "b", history[0].JobName)
	assert.Len(t, s.GetHistory(0), 2)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
