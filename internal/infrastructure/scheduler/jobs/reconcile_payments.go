// Package jobs contains the background jobs run by the scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE PAYMENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Ledger is the part of enrollment.Ledger the job drives.
type Ledger interface {
	StalePending(ctx context.Context, olderThan time.Duration) ([]*enrollment.PaymentIntent, error)
	Confirm(ctx context.Context, reference string) (*enrollment.PaymentIntent, error)
	Expire(ctx context.Context, reference string) (*enrollment.PaymentIntent, error)
}

// ReconcilePaymentsJob re-verifies payment legs the user never returned
// from. Legs past ExpireAfter get one last verify and are closed as failed
// unless the gateway reports them paid.
type ReconcilePaymentsJob struct {
	ledger Ledger
	clock  shared.Clock
	logger *slog.Logger
	config ReconcileConfig

	lastRunStats atomic.Pointer[ReconcileStats]
}

// ReconcileConfig contains configuration for the reconcile job.
type ReconcileConfig struct {
	// StaleAfter is how long a leg stays pending before the job checks it.
	StaleAfter time.Duration

	// ExpireAfter is how long a leg may stay pending before it is failed.
	ExpireAfter time.Duration

	// MaxLegsPerRun bounds gateway calls per run.
	MaxLegsPerRun int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultReconcileConfig returns the default configuration.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		StaleAfter:    30 * time.Minute,
		ExpireAfter:   24 * time.Hour,
		MaxLegsPerRun: 100,
		Timeout:       5 * time.Minute,
	}
}

// ReconcileStats describes one run.
type ReconcileStats struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Checked     int           `json:"checked"`
	Settled     int           `json:"settled"`
	Failed      int           `json:"failed"`
	Expired     int           `json:"expired"`
	Unavailable int           `json:"unavailable"`
	Errors      int           `json:"errors"`
}

// NewReconcilePaymentsJob creates the job.
func NewReconcilePaymentsJob(ledger Ledger, clock shared.Clock, logger *slog.Logger, config ReconcileConfig) *ReconcilePaymentsJob {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultReconcileConfig()
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.ExpireAfter <= 0 {
		config.ExpireAfter = def.ExpireAfter
	}
	if config.MaxLegsPerRun <= 0 {
		config.MaxLegsPerRun = def.MaxLegsPerRun
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &ReconcilePaymentsJob{
		ledger: ledger,
		clock:  clock,
		logger: logger.With("job", "reconcile_payments"),
		config: config,
	}
}

// Name implements scheduler.Job.
func (j *ReconcilePaymentsJob) Name() string { return "reconcile_payments" }

// Description implements scheduler.Job.
func (j *ReconcilePaymentsJob) Description() string {
	return "Re-verifies stale pending payment legs and expires abandoned ones"
}

// Run implements scheduler.Job. A gateway outage stops the run early and
// leaves the remaining legs for the next run.
func (j *ReconcilePaymentsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &ReconcileStats{StartedAt: j.clock()}
	defer func() {
		stats.Duration = j.clock().Sub(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	intents, err := j.ledger.StalePending(ctx, j.config.StaleAfter)
	if err != nil {
		return fmt.Errorf("list stale legs: %w", err)
	}

	now := j.clock()
	for _, intent := range intents {
		for _, leg := range intent.Legs {
			if leg.Status != enrollment.LegPending {
				continue
			}
			if stats.Checked >= j.config.MaxLegsPerRun {
				j.logStats(stats)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.Checked++

			settle := j.ledger.Confirm
			aged := now.Sub(leg.CreatedAt) >= j.config.ExpireAfter
			if aged {
				settle = j.ledger.Expire
			}

			settled, err := settle(ctx, leg.Reference)
			switch {
			case err == nil && aged && !legSucceeded(settled, leg.Reference):
				stats.Expired++
			case err == nil:
				stats.Settled++
			case errors.Is(err, shared.ErrVerificationFailed):
				stats.Failed++
			case errors.Is(err, shared.ErrGatewayUnavailable):
				stats.Unavailable++
				j.logger.Warn("gateway unavailable, stopping run", "reference", leg.Reference, "error", err)
				j.logStats(stats)
				return nil
			default:
				stats.Errors++
				j.logger.Error("confirm leg", "reference", leg.Reference, "error", err)
			}
		}
	}

	j.logStats(stats)
	if stats.Errors > 0 {
		return fmt.Errorf("reconcile: %d legs failed with errors", stats.Errors)
	}
	return nil
}

func legSucceeded(intent *enrollment.PaymentIntent, reference string) bool {
	if intent == nil {
		return false
	}
	leg, ok := intent.Leg(reference)
	return ok && leg.Status == enrollment.LegSucceeded
}

// LastRunStats returns the stats of the last run, or nil before the first run.
func (j *ReconcilePaymentsJob) LastRunStats() *ReconcileStats {
	return j.lastRunStats.Load()
}

func (j *ReconcilePaymentsJob) logStats(s *ReconcileStats) {
	j.logger.Info("reconcile finished",
		"checked", s.Checked,
		"settled", s.Settled,
		"failed", s.Failed,
		"expired", s.Expired,
		"unavailable", s.Unavailable,
		"errors", s.Errors,
	)
}
