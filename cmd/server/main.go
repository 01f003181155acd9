// Package main - точка входа API-сервера Upscale: учётные записи, каталог
// курсов, прогресс и оплата курсов через Paystack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ndmx/upscale/config"
	"github.com/ndmx/upscale/internal/application/command"
	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/bootstrap"
	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/progress"
	httpserver "github.com/ndmx/upscale/internal/interface/http"
	"github.com/ndmx/upscale/internal/interface/http/handlers"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg)
	log.Info("starting Upscale API",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ДОМЕН
	// ─────────────────────────────────────────────────────────────────────────
	cat := infra.Catalog()
	if n, err := cat.Seed(ctx, catalog.DefaultSeed); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	} else if n > 0 {
		log.Info("catalog seeded", logger.Int("courses", n))
	}

	creds, err := infra.CredentialStore()
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	ledger := infra.Ledger(cat)
	tracker := progress.NewTracker(infra.Progress, ledger, cat, infra.Clock, infra.Bus)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewDatabaseCheck(infra.Store))
	if infra.Cache != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(infra.Cache))
	}
	health.AddOptionalCheck("paystack", handlers.NewBreakerCheck(func() string {
		return infra.Gateway.BreakerState().String()
	}))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.RequestTimeout = cfg.HTTP.RequestTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.TrustProxyHeaders = cfg.HTTP.TrustProxyHeaders
	httpConfig.PublicBaseURL = cfg.HTTP.PublicBaseURL
	httpConfig.PaymentRedirectURL = cfg.HTTP.PaymentRedirectURL
	httpConfig.Version = cfg.App.Version

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Auth:           command.NewAuthHandler(creds, log),
		Enrollment:     command.NewEnrollmentHandler(ledger, creds, log),
		CompleteModule: command.NewCompleteModuleHandler(tracker, cat),
		Courses:        query.NewCoursesHandler(cat, ledger),
		Dashboard:      query.NewDashboardHandler(cat, ledger, tracker, ledger),
		Enrollments:    query.NewEnrollmentsHandler(ledger),
		Security:       query.NewSecurityEventsHandler(infra.SecurityLog),
		Perimeter:      infra.Perimeter(),
		Sessions:       handlers.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL),
		HealthChecker:  health,
		Logger:         log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	log.Info("Upscale API is running",
		logger.String("address", httpConfig.Address()),
		logger.String("callback_url", httpConfig.CallbackURL()),
	)

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := bootstrap.ShutdownContext(cfg)
	defer cancel()

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
