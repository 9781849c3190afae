// Command worker runs the attendance hub's scheduled jobs. Today that is the
// roster export: every configured class is loaded for the current academic
// year and its spreadsheet archived.
//
// Run with -once to execute the jobs a single time and exit, or with
// -migrate-down to revert the latest archive migration and exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/config"
	"github.com/gjc-vemulawada/attendance-hub/internal/bootstrap"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/external/backend"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/export"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/scheduler"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/scheduler/jobs"
	"github.com/gjc-vemulawada/attendance-hub/internal/interface/http/handlers"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
	"github.com/gjc-vemulawada/attendance-hub/pkg/timeutil"
)

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	migrateDown := flag.Bool("migrate-down", false, "revert the latest archive migration and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, *once, *migrateDown); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once, migrateDown bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg, "attendance-hub-worker")
	log.Info("starting attendance hub worker",
		"env", cfg.App.Environment,
		"export_cron", cfg.Scheduler.ExportRostersCron,
		"classes", cfg.Scheduler.Classes,
	)

	if migrateDown {
		return bootstrap.RevertLastMigration(ctx, cfg, log)
	}

	if !cfg.Scheduler.Enabled && !once {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. INFRASTRUCTURE
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	// The worker's loads must not replace the server's persisted snapshot.
	orchestrator := infra.NewOrchestrator(cfg, log, false)
	defer orchestrator.Stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	classes, err := jobs.ParseClasses(cfg.Scheduler.Classes)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_CLASSES: %w", err)
	}

	exportCfg := jobs.DefaultExportRostersConfig()
	exportCfg.Classes = classes
	if cfg.Scheduler.JobTimeout > 0 {
		exportCfg.LockTTL = cfg.Scheduler.JobTimeout
	}

	var locker jobs.Locker
	var announcer jobs.Announcer
	if infra.Cache != nil {
		locker = infra.Cache
	}
	if infra.Relay != nil {
		announcer = infra.Relay
	}

	exportJob := jobs.NewExportRostersJob(
		infra.Backend,
		orchestrator,
		export.NewRenderer(cfg.Roster.CollegeName),
		infra.Archiver,
		locker,
		announcer,
		log,
		exportCfg,
	)

	sched := scheduler.New(scheduler.Config{
		Logger:            log,
		Timezone:          timeutil.IST,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		Recorder:          infra.Metrics,
	})

	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.ExportRostersCron, timeutil.IST)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_EXPORT_CRON: %w", err)
	}
	if err := sched.Register(exportJob, schedule); err != nil {
		return err
	}

	if once {
		var errs []error
		for _, info := range sched.Jobs() {
			if _, err := sched.RunNow(ctx, info.Name); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS AND HEALTH LISTENER
	// ─────────────────────────────────────────────────────────────────────────
	var statusServer *http.Server
	if cfg.Scheduler.MetricsAddr != "" {
		checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
		infra.RegisterHealthChecks(checker)

		mux := http.NewServeMux()
		if cfg.Observability.MetricsEnabled {
			mux.Handle("GET /metrics", infra.Metrics.Handler())
		}
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			status := checker.Check(r.Context())
			code := http.StatusOK
			if !status.Ready {
				code = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(struct {
				handlers.HealthStatus
				Backend backend.ClientStatus  `json:"backend"`
				Jobs    []scheduler.JobStatus `json:"jobs"`
				Recent  []scheduler.Run       `json:"recent_runs"`
			}{status, infra.Backend.Status(), sched.Jobs(), sched.History(20)})
		})

		statusServer = &http.Server{
			Addr:              cfg.Scheduler.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status listener failed", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return err
	}
	for _, info := range sched.Jobs() {
		log.Info("job scheduled",
			"job", info.Name,
			"schedule", info.Schedule,
			"next_run", timeutil.FormatDateTime(info.NextRun),
		)
	}

	<-ctx.Done()
	log.Info("received shutdown signal", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to stop status listener", logger.Err(err))
		}
	}

	// Stop cancels running jobs; wait for them within the shutdown budget.
	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			log.Warn("scheduler stop returned error", logger.Err(err))
		}
	case <-shutdownCtx.Done():
		log.Warn("jobs did not stop before the shutdown timeout")
	}

	log.Info("shutdown completed successfully")
	return nil
}
