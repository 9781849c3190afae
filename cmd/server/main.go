// Command server runs the attendance hub HTTP API: roster loads with live
// snapshots, class and low-attendance reports, attendance updates, and the
// spreadsheet and progress-report exports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/config"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/command"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/query"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/roster"
	"github.com/gjc-vemulawada/attendance-hub/internal/bootstrap"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/export"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/messaging"
	httpserver "github.com/gjc-vemulawada/attendance-hub/internal/interface/http"
	"github.com/gjc-vemulawada/attendance-hub/internal/interface/http/handlers"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg, "attendance-hub-server")
	log.Info("starting attendance hub server",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"college", cfg.Roster.CollegeName,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. INFRASTRUCTURE
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ROSTER ORCHESTRATOR
	// ─────────────────────────────────────────────────────────────────────────
	orchestrator := infra.NewOrchestrator(cfg, log, true)
	defer orchestrator.Stop()

	if infra.Snapshots != nil {
		restoreSnapshot(ctx, infra, orchestrator, log)
	}

	if infra.Relay != nil {
		go func() {
			err := infra.Relay.Listen(ctx, func(n messaging.LoadNotice) {
				log.Info("roster load finished on another instance",
					"instance_id", n.InstanceID,
					"source", n.Source,
					"label", n.Label,
					"academic_year", n.AcademicYear,
					"state", n.State,
					"students", n.Students,
					"failures", n.Failures,
				)
			})
			if err != nil {
				log.Warn("load notice listener stopped", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. COMMANDS AND QUERIES
	// ─────────────────────────────────────────────────────────────────────────
	renderer := export.NewRenderer(cfg.Roster.CollegeName)

	deps := httpserver.Dependencies{
		Roster:   orchestrator,
		Students: infra.Backend,

		SetWorkingDays:   command.NewSetWorkingDaysHandler(infra.Source, log),
		UpdateAttendance: command.NewUpdateStudentAttendanceHandler(infra.Source, log),
		Archiver:         infra.Archiver,

		ClassReport:       query.NewClassReportHandler(infra.Source),
		LowAttendance:     query.NewLowAttendanceHandler(infra.Source),
		ProgressReport:    query.NewProgressReportHandler(infra.Backend, orchestrator, infra.Backend, renderer, log),
		RosterSpreadsheet: query.NewRosterSpreadsheetHandler(orchestrator, renderer),
		Exports:           query.NewExportsHandler(infra.Exports),

		Logger: log,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = infra.Metrics
	}

	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	infra.RegisterHealthChecks(checker)
	deps.HealthChecker = checker

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerSecond = cfg.HTTP.RateLimitRPS
	httpCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes
	httpCfg.Version = cfg.App.Version

	server := httpserver.NewServer(httpCfg, deps)
	errCh := server.StartAsync()

	log.Info("attendance hub server is running",
		"address", httpCfg.Address(),
		"api_key_guard", len(cfg.HTTP.APIKeyHashes) > 0,
		"redis", infra.Cache != nil,
		"archive", infra.Archiver.Enabled(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", logger.Err(err))
			return err
		}
	}

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = cfg.App.ShutdownTimeout
	}
	log.Info("starting graceful shutdown", "timeout", timeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop http server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// restoreSnapshot installs the last complete snapshot so a restarted server
// answers roster reads before its first load.
func restoreSnapshot(ctx context.Context, infra *bootstrap.Infrastructure, o *roster.Orchestrator, log *slog.Logger) {
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	snap, ok, err := infra.Snapshots.LatestSnapshot(readCtx)
	switch {
	case err != nil:
		log.Warn("failed to read persisted snapshot", logger.Err(err))
	case !ok:
		log.Info("no persisted snapshot to restore")
	case o.Restore(snap):
		log.Info("restored persisted snapshot",
			logger.Generation(snap.Generation),
			logger.AcademicYear(snap.AcademicYear.String()),
			"students", len(snap.Entries),
		)
	}
}
