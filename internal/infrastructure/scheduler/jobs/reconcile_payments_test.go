package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
)

type fakeLedger struct {
	intents   []*enrollment.PaymentIntent
	outcomes  map[string]error
	paid      map[string]bool
	confirmed []string
	expired   []string
	staleArg  time.Duration
}

func (f *fakeLedger) StalePending(_ context.Context, olderThan time.Duration) ([]*enrollment.PaymentIntent, error) {
	f.staleArg = olderThan
	return f.intents, nil
}

func (f *fakeLedger) Confirm(_ context.Context, reference string) (*enrollment.PaymentIntent, error) {
	f.confirmed = append(f.confirmed, reference)
	return nil, f.outcomes[reference]
}

func (f *fakeLedger) Expire(_ context.Context, reference string) (*enrollment.PaymentIntent, error) {
	f.expired = append(f.expired, reference)
	status := enrollment.LegFailed
	if f.paid[reference] {
		status = enrollment.LegSucceeded
	}
	return intentWith(enrollment.PaymentLeg{Reference: reference, Status: status}), f.outcomes[reference]
}

var now = time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)

func intentWith(legs ...enrollment.PaymentLeg) *enrollment.PaymentIntent {
	return &enrollment.PaymentIntent{ID: "intent", Legs: legs}
}

func pending(ref string, age time.Duration) enrollment.PaymentLeg {
	return enrollment.PaymentLeg{Reference: ref, Status: enrollment.LegPending, CreatedAt: now.Add(-age)}
}

func newJob(l Ledger, cfg ReconcileConfig) *ReconcilePaymentsJob {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewReconcilePaymentsJob(l, func() time.Time { return now }, logger, cfg)
}

func TestReconcile_ConfirmsAndExpires(t *testing.T) {
	ledger := &fakeLedger{
		intents: []*enrollment.PaymentIntent{
			intentWith(
				enrollment.PaymentLeg{Reference: "done", Status: enrollment.LegSucceeded},
				pending("fresh-ok", time.Hour),
			),
			intentWith(pending("fresh-bad", 2*time.Hour)),
			intentWith(pending("abandoned", 25*time.Hour)),
			intentWith(pending("paid-late", 30*time.Hour)),
		},
		outcomes: map[string]error{"fresh-bad": shared.ErrVerificationFailed},
		paid:     map[string]bool{"paid-late": true},
	}
	job := newJob(ledger, ReconcileConfig{})

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 30*time.Minute, ledger.staleArg)
	assert.Equal(t, []string{"fresh-ok", "fresh-bad"}, ledger.confirmed)
	assert.Equal(t, []string{"abandoned", "paid-late"}, ledger.expired)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.Checked)
	assert.Equal(t, 2, stats.Settled)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Expired)
}

func TestReconcile_AgedLegSurvivesGatewayOutage(t *testing.T) {
	ledger := &fakeLedger{
		intents: []*enrollment.PaymentIntent{
			intentWith(pending("old", 48*time.Hour)),
			intentWith(pending("b", time.Hour)),
		},
		outcomes: map[string]error{"old": fmt.Errorf("%w: timeout", shared.ErrGatewayUnavailable)},
	}
	job := newJob(ledger, ReconcileConfig{})

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []string{"old"}, ledger.expired)
	assert.Empty(t, ledger.confirmed)
	assert.Equal(t, 0, job.LastRunStats().Expired)
	assert.Equal(t, 1, job.LastRunStats().Unavailable)
}

func TestReconcile_StopsOnGatewayOutage(t *testing.T) {
	ledger := &fakeLedger{
		intents: []*enrollment.PaymentIntent{
			intentWith(pending("a", time.Hour)),
			intentWith(pending("b", time.Hour)),
		},
		outcomes: map[string]error{"a": fmt.Errorf("%w: timeout", shared.ErrGatewayUnavailable)},
	}
	job := newJob(ledger, ReconcileConfig{})

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []string{"a"}, ledger.confirmed)
	assert.Equal(t, 1, job.LastRunStats().Unavailable)
}

func TestReconcile_RespectsBatchLimit(t *testing.T) {
	ledger := &fakeLedger{intents: []*enrollment.PaymentIntent{
		intentWith(pending("a", time.Hour)),
		intentWith(pending("b", time.Hour)),
		intentWith(pending("c", time.Hour)),
	}}
	job := newJob(ledger, ReconcileConfig{MaxLegsPerRun: 2})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, ledger.confirmed, 2)
}

func TestReconcile_ReportsUnexpectedErrors(t *testing.T) {
	ledger := &fakeLedger{
		intents:  []*enrollment.PaymentIntent{intentWith(pending("a", time.Hour))},
		outcomes: map[string]error{"a": errors.New("db down")},
	}
	job := newJob(ledger, ReconcileConfig{})

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, 1, job.LastRunStats().Errors)
}
