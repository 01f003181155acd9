package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

var errRemote = errors.New("remote down")

func fail(context.Context) error { return errRemote }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []string
	cb := New("test",
		WithFailureThreshold(3),
		WithClock(clock.Now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		}),
	)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail), errRemote)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
	assert.Equal(t, []string{"closed>open"}, transitions)
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithClock(clock.Now),
	)

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.Now))

	_ = cb.Execute(context.Background(), fail)
	clock.now = clock.now.Add(time.Second)
	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, IsRejection(cb.Execute(context.Background(), ok)))
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))

	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.counts.TotalFailures)
}
