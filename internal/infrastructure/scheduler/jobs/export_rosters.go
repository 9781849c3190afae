// Package jobs contains the hub's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gjc-vemulawada/attendance-hub/config"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/command"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/query"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/messaging"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
	"github.com/gjc-vemulawada/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RosterLoader runs a complete roster load.
type RosterLoader interface {
	LoadSync(ctx context.Context, students []student.Student, ay attendance.AcademicYear) (attendance.RosterSnapshot, error)
}

// Locker is a distributed lock, so that only one worker exports a class.
type Locker interface {
	TryLock(ctx context.Context, resource, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, resource, token string) error
}

// Announcer tells other instances a load finished.
type Announcer interface {
	Announce(ctx context.Context, notice messaging.LoadNotice) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSES
// ══════════════════════════════════════════════════════════════════════════════

// Class is one year and group combination. The zero Class means every student.
type Class struct {
	Year  int
	Group student.Group
}

// ParseClass parses "year:group", for example "1:mpc".
func ParseClass(s string) (Class, error) {
	year, g, err := config.ParseClass(s)
	if err != nil {
		return Class{}, err
	}
	group, valid := student.ParseGroup(g)
	if !valid {
		return Class{}, fmt.Errorf("class %q: unknown group %q", s, g)
	}
	return Class{Year: year, Group: group}, nil
}

// ParseClasses parses a list of classes. An empty list yields the single
// all-students class.
func ParseClasses(values []string) ([]Class, error) {
	if len(values) == 0 {
		return []Class{{}}, nil
	}
	classes := make([]Class, 0, len(values))
	for _, v := range values {
		c, err := ParseClass(v)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// Label names the class in file names and lock keys.
func (c Class) Label() string {
	if c.Year == 0 {
		return "all"
	}
	return strconv.Itoa(c.Year) + "_" + string(c.Group)
}

func (c Class) filter() student.Filter {
	return student.Filter{Year: c.Year, Group: c.Group}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT ROSTERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ExportRostersConfig contains configuration for the export job.
type ExportRostersConfig struct {
	Classes []Class

	// LockTTL bounds how long a crashed worker can hold a class.
	LockTTL time.Duration

	// AcademicYear overrides the current academic year. Used by tests.
	AcademicYear attendance.AcademicYear
}

// DefaultExportRostersConfig exports every student as one class.
func DefaultExportRostersConfig() ExportRostersConfig {
	return ExportRostersConfig{
		Classes: []Class{{}},
		LockTTL: 30 * time.Minute,
	}
}

// ExportStats contains statistics from one run.
type ExportStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Classes     int
	Exported    int
	Skipped     int
	Failed      int
	Students    int
	Failures    int
}

// ExportRostersJob loads each configured class for the current academic year
// and archives its spreadsheet. Classes are processed one after another on
// the loader, and a failing class does not stop the rest.
type ExportRostersJob struct {
	directory student.Directory
	loader    RosterLoader
	renderer  query.SpreadsheetRenderer
	archiver  *command.Archiver
	locker    Locker
	announcer Announcer
	logger    *slog.Logger
	config    ExportRostersConfig
	now       func() time.Time

	lastStats atomic.Pointer[ExportStats]
}

// NewExportRostersJob creates the job. locker and announcer may be nil.
func NewExportRostersJob(
	directory student.Directory,
	loader RosterLoader,
	renderer query.SpreadsheetRenderer,
	archiver *command.Archiver,
	locker Locker,
	announcer Announcer,
	log *slog.Logger,
	config ExportRostersConfig,
) *ExportRostersJob {
	if log == nil {
		log = slog.Default()
	}
	if len(config.Classes) == 0 {
		config.Classes = []Class{{}}
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Minute
	}
	return &ExportRostersJob{
		directory: directory,
		loader:    loader,
		renderer:  renderer,
		archiver:  archiver,
		locker:    locker,
		announcer: announcer,
		logger:    log.With("job", "export-rosters"),
		config:    config,
		now:       timeutil.Now,
	}
}

// Name returns the job name.
func (j *ExportRostersJob) Name() string {
	return "export-rosters"
}

// Description returns the job description.
func (j *ExportRostersJob) Description() string {
	return "Loads every configured class for the current academic year and archives its attendance spreadsheet"
}

// LastStats returns the statistics of the previous run, or nil.
func (j *ExportRostersJob) LastStats() *ExportStats {
	return j.lastStats.Load()
}

// Summary describes the previous run for the scheduler's run history.
func (j *ExportRostersJob) Summary() string {
	stats := j.LastStats()
	if stats == nil {
		return ""
	}
	return fmt.Sprintf("%d of %d classes exported, %d skipped, %d failed, %d students, %d substituted fetches",
		stats.Exported, stats.Classes, stats.Skipped, stats.Failed, stats.Students, stats.Failures)
}

// Run executes the job.
func (j *ExportRostersJob) Run(ctx context.Context) error {
	stats := &ExportStats{StartedAt: time.Now(), Classes: len(j.config.Classes)}
	defer func() {
		stats.CompletedAt = time.Now()
		j.lastStats.Store(stats)
	}()

	ay := j.config.AcademicYear
	if ay == "" {
		ay = attendance.AcademicYear(timeutil.AcademicYearOf(j.now()))
	}

	var errs []error
	for _, class := range j.config.Classes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		exported, err := j.exportClass(ctx, class, ay, stats)
		switch {
		case err != nil:
			stats.Failed++
			errs = append(errs, fmt.Errorf("class %s: %w", class.Label(), err))
			j.logger.Error("class export failed", "class", class.Label(), logger.Err(err))
		case exported:
			stats.Exported++
		default:
			stats.Skipped++
		}
	}

	j.logger.Info("roster export finished",
		"academic_year", ay,
		"classes", stats.Classes,
		"exported", stats.Exported,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"students", stats.Students,
		"substituted_fetches", stats.Failures,
	)
	return errors.Join(errs...)
}

// exportClass returns false without error when another worker holds the
// class lock or the class has no students.
func (j *ExportRostersJob) exportClass(ctx context.Context, class Class, ay attendance.AcademicYear, stats *ExportStats) (bool, error) {
	log := j.logger.With("class", class.Label(), "academic_year", ay)

	if j.locker != nil {
		resource := "export:" + ay.String() + ":" + class.Label()
		token := uuid.NewString()
		ok, err := j.locker.TryLock(ctx, resource, token, j.config.LockTTL)
		if err != nil {
			return false, fmt.Errorf("lock: %w", err)
		}
		if !ok {
			log.Info("class locked by another worker, skipping")
			return false, nil
		}
		defer func() {
			if err := j.locker.Unlock(context.WithoutCancel(ctx), resource, token); err != nil {
				log.Warn("failed to release class lock", logger.Err(err))
			}
		}()
	}

	listed, err := j.directory.ListStudents(ctx, class.filter())
	if err != nil {
		return false, fmt.Errorf("list students: %w", err)
	}
	if len(listed) == 0 {
		log.Info("class has no students, skipping")
		return false, nil
	}
	students := make([]student.Student, 0, len(listed))
	for _, s := range listed {
		if s != nil {
			students = append(students, *s)
		}
	}

	run := archive.NewLoadRun(archive.TriggerScheduler, ay.String(), len(students))
	run.ClassYear = class.Year
	run.ClassGroup = string(class.Group)
	j.archiver.StartRun(ctx, run)

	snap, loadErr := j.loader.LoadSync(ctx, students, ay)
	j.archiver.FinishRun(context.WithoutCancel(ctx), run, snap, loadErr)
	if loadErr != nil {
		return false, fmt.Errorf("load: %w", loadErr)
	}
	stats.Students += len(snap.Entries)
	stats.Failures += snap.Failures

	rendered, err := query.RenderRosterSpreadsheet(snap, j.renderer, j.now())
	if err != nil {
		return false, fmt.Errorf("render: %w", err)
	}
	rendered.FileName = query.RosterFileName(ay, class.Label(), j.now())

	exp := archive.NewExport(archive.KindSpreadsheet, ay.String(), rendered.FileName, rendered.Content)
	exp.Generation = snap.Generation
	if err := j.archiver.SaveExport(ctx, exp); err != nil {
		return false, err
	}

	if j.announcer != nil {
		notice := messaging.NoticeFromSnapshot(snap, "scheduler", class.Label())
		if err := j.announcer.Announce(ctx, notice); err != nil {
			log.Warn("failed to announce export", logger.Err(err))
		}
	}

	log.Info("class exported",
		"students", len(snap.Entries),
		"substituted_fetches", snap.Failures,
		"file_name", rendered.FileName,
		"size_bytes", len(rendered.Content),
	)
	return true, nil
}
