// Package main - точка входа фонового воркера Upscale.
//
// Воркер сверяет с Paystack платежи, которые слишком долго ждут проверки:
// оплаченные подтверждает, брошенные переводит в failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ndmx/upscale/config"
	"github.com/ndmx/upscale/internal/bootstrap"
	"github.com/ndmx/upscale/internal/infrastructure/scheduler"
	"github.com/ndmx/upscale/internal/infrastructure/scheduler/jobs"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	log.Info("starting Upscale worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
	)

	if !cfg.UsesPostgres() {
		// В памяти у воркера своё пустое хранилище: сверять нечего.
		log.Warn("DB_URL is not set, the worker has no shared state to reconcile")
	}

	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	ledger := infra.Ledger(infra.Catalog())

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log.Slog()
	schedCfg.Timezone = cfg.App.Location()
	sched := scheduler.NewScheduler(schedCfg)
	sched.OnJobError(func(name string, err error) {
		log.Error("job failed", logger.String("job", name), logger.Err(err))
	})

	rc := jobs.DefaultReconcileConfig()
	rc.StaleAfter = cfg.Scheduler.StaleAfter
	rc.ExpireAfter = cfg.Scheduler.ExpireAfter
	rc.MaxLegsPerRun = cfg.Scheduler.MaxLegsPerRun
	rc.Timeout = cfg.Scheduler.JobTimeout

	reconcile := jobs.NewReconcilePaymentsJob(ledger, infra.Clock, log.Slog(), rc)
	if err := sched.Register(reconcile, cfg.Scheduler.ReconcileSchedule); err != nil {
		return fmt.Errorf("register %s: %w", reconcile.Name(), err)
	}

	if once {
		err := sched.RunAll(ctx)
		// Итог прогона печатается в stdout для внешнего cron.
		if stats := reconcile.LastRunStats(); stats != nil {
			if encErr := json.NewEncoder(os.Stdout).Encode(stats); encErr != nil {
				log.Warn("failed to print reconcile stats", logger.Err(encErr))
			}
		}
		return err
	}

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	for _, j := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", j.Name),
			logger.String("schedule", j.Schedule),
			logger.Time("next_run", j.NextRun),
		)
	}

	<-ctx.Done()
	log.Info("received shutdown signal, waiting for running jobs")

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", logger.Err(err))
		return err
	}
	logHistory(log, sched.GetHistory(historyOnShutdown))
	log.Info("shutdown completed successfully")
	return nil
}

// historyOnShutdown - сколько последних запусков попадает в лог при остановке.
const historyOnShutdown = 20

func logHistory(log *logger.Logger, history []scheduler.JobResult) {
	failed := 0
	for _, r := range history {
		if !r.Success {
			failed++
		}
	}
	log.Info("job history",
		logger.Int("runs", len(history)),
		logger.Int("failed", failed),
	)
	for _, r := range history {
		if !r.Success {
			log.Warn("job run failed",
				logger.String("job", r.JobName),
				logger.Time("started_at", r.StartedAt),
				logger.Err(r.Error),
			)
		}
	}
}
