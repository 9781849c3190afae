// Package bootstrap wires the infrastructure shared by the server and the
// worker: logging, metrics, the backend client, Redis and the archive.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gjc-vemulawada/attendance-hub/config"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/command"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/roster"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/external/backend"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/messaging"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/metrics"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/persistence/postgres"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/gjc-vemulawada/attendance-hub/internal/interface/http/handlers"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// NewLogger builds the process logger from the observability settings and
// installs it as the slog default.
func NewLogger(cfg *config.Config, service string) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.ParseFormat(cfg.Observability.LogFormat)
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}
	opts.Attrs = []slog.Attr{
		slog.String("service", service),
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
	}

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}

// Infrastructure holds the long-lived clients. Cache, Relay, Snapshots and DB
// are nil when their backing service is disabled or unreachable.
type Infrastructure struct {
	Metrics   *metrics.Metrics
	Backend   *backend.Client
	Source    *redis.AttendanceCache
	Cache     *redis.Cache
	Snapshots *redis.SnapshotStore
	Relay     *messaging.RedisRelay
	DB        *postgres.Connection
	Archiver  *command.Archiver
	Exports   archive.ExportRepository

	log       *slog.Logger
	closeOnce sync.Once
}

// Open connects everything cfg enables. Redis is optional and degrades to a
// warning; the database is required whenever it is configured.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{
		Metrics: metrics.New(),
		log:     log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Attendance backend
	// ─────────────────────────────────────────────────────────────────────────
	bc := backend.DefaultClientConfig(cfg.Backend.BaseURL)
	bc.ServiceToken = cfg.Backend.ServiceToken
	bc.Timeout = cfg.Backend.RequestTimeout
	bc.RateLimiterConfig.RequestsPerSecond = cfg.Backend.RequestsPerSecond
	bc.RateLimiterConfig.BurstSize = cfg.Backend.Burst
	bc.MaxAttempts = cfg.Backend.MaxRetries
	bc.RetryBaseDelay = cfg.Backend.RetryBaseDelay
	bc.RetryMaxDelay = cfg.Backend.RetryMaxDelay
	bc.BreakerThreshold = cfg.Backend.CircuitBreakerThreshold
	bc.BreakerTimeout = cfg.Backend.CircuitBreakerTimeout
	bc.Logger = log
	bc.Observer = infra.Metrics
	infra.Backend = backend.NewClient(bc)
	log.Info("backend client configured", "base_url", cfg.Backend.BaseURL)

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, running without cache", logger.Err(err))
		} else {
			infra.Cache = cache
			infra.Snapshots = redis.NewSnapshotStore(cache)
			infra.Relay = messaging.NewRedisRelay(cache.Client(), "", log)
			log.Info("redis connected")
		}
	}
	infra.Source = redis.NewAttendanceCache(infra.Backend, infra.Cache, cfg.Roster.CacheTTL, log)

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL archive (optional outside production)
	// ─────────────────────────────────────────────────────────────────────────
	var runs archive.LoadRunRepository
	if !cfg.Database.Disabled && cfg.Database.URL != "" {
		conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		infra.DB = conn

		migrator := postgres.NewMigrator(conn)
		if err := migrator.Up(ctx); err != nil {
			infra.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if status, err := migrator.Status(ctx); err != nil {
			log.Warn("failed to read migration status", logger.Err(err))
		} else {
			applied := 0
			for _, m := range status {
				if m.IsApplied {
					applied++
				}
			}
			log.Info("database ready", "migrations_applied", applied, "migrations_total", len(status))
		}

		infra.Exports = postgres.NewExportRepository(conn)
		runs = postgres.NewLoadRunRepository(conn)
	} else {
		log.Warn("database disabled, exports and load runs are not archived")
	}
	infra.Archiver = command.NewArchiver(infra.Exports, runs, log)

	return infra, nil
}

// NewOrchestrator builds a roster orchestrator over the cached source. With
// persist set, fully loaded snapshots are saved to Redis when it is available.
func (i *Infrastructure) NewOrchestrator(cfg *config.Config, log *slog.Logger, persist bool) *roster.Orchestrator {
	opts := []roster.Option{
		roster.WithRecorder(i.Metrics),
		roster.WithLogger(log),
	}
	if persist && i.Snapshots != nil {
		opts = append(opts, roster.WithSnapshotSaver(i.Snapshots))
	}
	return roster.New(i.Source, roster.Config{
		FirstMonthBatchSize: cfg.Roster.FirstMonthBatchSize,
		RemainingBatchSize:  cfg.Roster.RemainingBatchSize,
		MaxInFlight:         cfg.Roster.MaxInFlight,
		FetchTimeout:        cfg.Roster.FetchTimeout,
	}, opts...)
}

// RegisterHealthChecks adds the backend breaker as a required check and the
// optional stores as optional ones.
func (i *Infrastructure) RegisterHealthChecks(checker handlers.HealthChecker) {
	checker.AddCheck("backend", handlers.NewBackendCheck(i.Backend), false)
	if i.Cache != nil {
		checker.AddCheck("redis", handlers.NewPingCheck(i.Cache), true)
	}
	if i.DB != nil {
		checker.AddCheck("postgres", handlers.NewPingCheck(i.DB), true)
	}
}

// Close releases every connection. It is safe to call more than once.
func (i *Infrastructure) Close() {
	i.closeOnce.Do(func() {
		if i.Cache != nil {
			if err := i.Cache.Close(); err != nil {
				i.log.Warn("failed to close redis", logger.Err(err))
			}
		}
		if i.DB != nil {
			i.DB.Close()
		}
	})
}

// RevertLastMigration rolls the archive schema back by one migration, so an
// earlier release can be deployed. Open reapplies it on the next start.
func RevertLastMigration(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Database.Disabled || cfg.Database.URL == "" {
		return fmt.Errorf("database is not configured")
	}
	conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer conn.Close()

	reverted, err := postgres.NewMigrator(conn).Down(ctx)
	if err != nil {
		return err
	}
	if reverted == nil {
		log.Info("no migrations applied, nothing to revert")
		return nil
	}
	log.Info("migration reverted", "version", reverted.Version, "name", reverted.Name)
	return nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	rc.MinIdleConns = c.MinIdleConns
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	return rc
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig(c.URL)
	if c.MaxConns > 0 {
		pc.MaxConns = int32(c.MaxConns)
	}
	if c.MinConns >= 0 {
		pc.MinConns = int32(c.MinConns)
	}
	if c.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = c.ConnMaxIdleTime
	}
	if c.QueryTimeout > 0 {
		pc.QueryTimeout = c.QueryTimeout
	}
	return pc
}
