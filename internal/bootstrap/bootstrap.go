// Package bootstrap собирает инфраструктуру, общую для API-сервера и воркера:
// хранилище (PostgreSQL или память), Redis, платёжный шлюз и шину событий.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ndmx/upscale/config"
	"github.com/ndmx/upscale/internal/domain/account"
	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/progress"
	"github.com/ndmx/upscale/internal/domain/security"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/infrastructure/crypto"
	"github.com/ndmx/upscale/internal/infrastructure/external/paystack"
	"github.com/ndmx/upscale/internal/infrastructure/messaging"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/memory"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/postgres"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/redis"
	"github.com/ndmx/upscale/internal/infrastructure/ratelimit"
	"github.com/ndmx/upscale/pkg/logger"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Infra - собранная инфраструктура процесса.
type Infra struct {
	Config *config.Config
	Log    *logger.Logger
	Clock  shared.Clock

	Accounts    account.Repository
	SecurityLog security.Log
	Courses     catalog.Repository
	Progress    progress.Repository
	Intents     enrollment.Repository

	// Locker и RateGuard равны nil без Redis: домен берёт реализации в памяти.
	Locker    enrollment.Locker
	RateGuard security.RateGuard

	Gateway *paystack.Client
	Bus     *messaging.InMemoryEventBus

	// Store - основное хранилище, Cache - Redis или nil.
	Store Pinger
	Cache Pinger

	closers []func()
}

// Open подключает хранилища по конфигурации. Без DB_URL работает на памяти,
// без REDIS_URL - без распределённых блокировок и общего счётчика запросов.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	in := &Infra{Config: cfg, Log: log, Clock: shared.SystemClock}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ОСНОВНОЕ ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.UsesPostgres() {
		if err := in.openPostgres(ctx); err != nil {
			in.Close()
			return nil, err
		}
	} else {
		log.Warn("DB_URL is not set, using in-memory store")
		store := memory.NewStore()
		in.Accounts = store.Accounts()
		in.SecurityLog = store.SecurityLog()
		in.Courses = store.Courses()
		in.Progress = store.Progress()
		in.Intents = store.Intents()
		in.Store = store
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.UsesRedis() {
		cache, err := redis.Connect(ctx, cfg.Redis.URL, log.Slog())
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.closers = append(in.closers, func() { _ = cache.Close() })
		in.Cache = cache
		in.Courses = redis.NewCatalogCache(in.Courses, cache, log.Slog())
		in.Locker = redis.NewLocker(cache, cfg.Redis.LockTTL, log.Slog())
		in.RateGuard = redis.NewRateGuard(cache, cfg.Security.RateLimit, cfg.Security.RateWindow, nil)
		log.Info("redis connection established")
	} else {
		in.RateGuard = ratelimit.NewSlidingWindow(ratelimit.Config{
			Limit:  cfg.Security.RateLimit,
			Window: cfg.Security.RateWindow,
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАТЁЖНЫЙ ШЛЮЗ И ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Paystack.SecretKey == "" {
		log.Warn("PAYSTACK_SECRET_KEY is not set, payments will be rejected by the gateway")
	}
	pc := paystack.DefaultClientConfig(cfg.Paystack.SecretKey)
	pc.BaseURL = cfg.Paystack.BaseURL
	pc.Timeout = cfg.Paystack.Timeout
	pc.RequestsPerSecond = cfg.Paystack.RequestsPerSecond
	pc.Burst = cfg.Paystack.Burst
	pc.Logger = log.Slog()
	in.Gateway = paystack.NewClient(pc)

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log.Slog()
	in.Bus = messaging.NewInMemoryEventBus(busCfg)
	in.closers = append(in.closers, func() { _ = in.Bus.Close() })
	if err := messaging.NewAuditSubscriber(log.Slog()).Register(in.Bus); err != nil {
		in.Close()
		return nil, fmt.Errorf("register audit subscriber: %w", err)
	}

	return in, nil
}

func (in *Infra) openPostgres(ctx context.Context) error {
	cfg := in.Config.Database
	pool := postgres.DefaultPoolConfig()
	pool.MaxConns = cfg.MaxConns
	pool.MinConns = cfg.MinConns
	pool.MaxConnLifetime = cfg.ConnMaxLifetime
	pool.MaxConnIdleTime = cfg.ConnMaxIdleTime

	in.Log.Info("connecting to database...")
	conn, err := postgres.Connect(ctx, cfg.URL, pool, in.Log.Slog())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	in.closers = append(in.closers, conn.Close)

	if cfg.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		in.Log.Info("migrations completed", logger.Int("applied", applied))
	} else {
		// Без автомиграции только предупреждаем о неприменённых версиях.
		migrations, err := postgres.NewMigrator(conn).Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		for _, m := range migrations {
			if !m.IsApplied {
				in.Log.Warn("migration pending", logger.Int("version", m.Version), logger.String("name", m.Name))
			}
		}
	}

	in.Accounts = postgres.NewAccountRepository(conn)
	in.SecurityLog = postgres.NewSecurityLogRepository(conn)
	in.Courses = postgres.NewCatalogRepository(conn)
	in.Progress = postgres.NewProgressRepository(conn)
	in.Intents = postgres.NewIntentRepository(conn)
	in.Store = conn
	return nil
}

// Close освобождает ресурсы в обратном порядке.
func (in *Infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}

// Catalog возвращает каталог поверх выбранного хранилища.
func (in *Infra) Catalog() *catalog.Catalog {
	return catalog.NewCatalog(in.Courses)
}

// Ledger собирает журнал записи с ценами из конфигурации.
func (in *Infra) Ledger(courses enrollment.CourseReader) *enrollment.Ledger {
	ec := in.Config.Enrollment
	lc := enrollment.DefaultConfig()
	lc.Pricing = enrollment.Pricing{
		FullAmount: shared.Naira(ec.FullPriceNaira),
		LegAmount:  shared.Naira(ec.InstallmentPriceNaira),
		LegCount:   ec.InstallmentCount,
	}
	lc.Access = enrollment.AccessPolicy{PartialGrantsAccess: ec.PartialGrantsAccess}
	lc.GatewayTimeout = ec.GatewayTimeout

	return enrollment.NewLedger(in.Intents, in.Gateway, courses, in.Locker, lc, in.Clock, in.Bus)
}

// CredentialStore собирает хранилище учётных данных.
func (in *Infra) CredentialStore() (*account.CredentialStore, error) {
	ac := in.Config.Auth
	return account.NewCredentialStore(
		in.Accounts,
		in.SecurityLog,
		crypto.NewPBKDF2Hasher(ac.PBKDF2Iterations),
		account.LockoutPolicy{Threshold: ac.LockoutThreshold, Cooldown: ac.LockoutCooldown},
		in.Clock,
		in.Bus,
	)
}

// Perimeter собирает проверку путей и частоты запросов.
func (in *Infra) Perimeter() *security.Perimeter {
	return security.NewPerimeter(
		security.NewPathGuard(in.Config.Security.SuspiciousPaths),
		in.RateGuard,
		in.SecurityLog,
		in.Clock,
	)
}

// ShutdownContext - контекст с таймаутом graceful shutdown из конфигурации.
func ShutdownContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// NewLogger создаёт логгер процесса по конфигурации.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}
