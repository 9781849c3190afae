// Package scheduler runs the hub's background jobs, such as the nightly
// roster exports, on cron or interval schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOBS AND SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of background work. Run's context is cancelled when the
// scheduler stops or the execution exceeds the job timeout.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Summarizer is implemented by jobs that can describe their last execution,
// for example how many classes an export covered. The summary is attached to
// the run record and logged.
type Summarizer interface {
	Summary() string
}

// Schedule yields the activation after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// Recorder receives one observation per execution.
type Recorder interface {
	JobFinished(job string, elapsed time.Duration, ok bool)
}

// Run records one execution.
type Run struct {
	Job       string        `json:"job"`
	Manual    bool          `json:"manual"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Summary   string        `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// OK reports whether the execution returned no error.
func (r Run) OK() bool { return r.Error == "" }

// JobStatus describes a registered job.
type JobStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	Running     bool      `json:"running"`
	NextRun     time.Time `json:"next_run"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	Last        *Run      `json:"last,omitempty"`
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	Logger *slog.Logger

	// Timezone schedules are evaluated in. Defaults to UTC.
	Timezone *time.Location

	// MaxHistorySize bounds the kept run records.
	MaxHistorySize int

	// MaxConcurrentJobs caps how many jobs run at once. Zero means no cap.
	MaxConcurrentJobs int

	// JobTimeout bounds a single execution. Zero means no timeout.
	JobTimeout time.Duration

	Recorder Recorder
}

// Scheduler launches due jobs once a second. A job never overlaps with
// itself: a slot that comes due while it runs is skipped.
type Scheduler struct {
	log      *slog.Logger
	loc      *time.Location
	recorder Recorder
	timeout  time.Duration
	keep     int
	slots    chan struct{}

	mu        sync.Mutex
	entries   map[string]*entry
	history   []Run
	cancel    context.CancelFunc
	startedAt time.Time
	wg        sync.WaitGroup
}

type entry struct {
	job      Job
	schedule Schedule
	next     time.Time
	busy     bool
	runs     int64
	failures int64
	last     *Run
}

// New creates a Scheduler.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 200
	}

	s := &Scheduler{
		log:      config.Logger.With(logger.Component("scheduler")),
		loc:      config.Timezone,
		recorder: config.Recorder,
		timeout:  config.JobTimeout,
		keep:     config.MaxHistorySize,
		entries:  make(map[string]*entry),
	}
	if config.MaxConcurrentJobs > 0 {
		s.slots = make(chan struct{}, config.MaxConcurrentJobs)
	}
	return s
}

// Register adds a job. Its first run is the schedule's next activation.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, next: schedule.Next(time.Now().In(s.loc))}
	s.entries[name] = e

	s.log.Info("job registered", "job", name, "schedule", schedule.String(), "next_run", e.next.Format(time.RFC3339))
	return nil
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick launches every due job. The entry is claimed under mu, so a slow job
// cannot be launched twice by consecutive ticks.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		if e.next.IsZero() || now.Before(e.next) {
			continue
		}
		if e.busy {
			e.next = e.schedule.Next(now)
			s.log.Warn("job still running, slot skipped", "job", name, "next_run", e.next.Format(time.RFC3339))
			continue
		}
		if !s.takeSlot() {
			continue // retried on the next tick
		}
		e.busy = true
		e.next = e.schedule.Next(now)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.releaseSlot()
			run, _ := s.execute(ctx, e.job, false)
			s.finish(e, run)
		}()
	}
}

func (s *Scheduler) takeSlot() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}

// execute runs job under the job timeout, reports it to the recorder and
// logs the outcome.
func (s *Scheduler) execute(ctx context.Context, job Job, manual bool) (Run, error) {
	name := job.Name()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.log.Info("job started", "job", name, "manual", manual)
	run := Run{Job: name, Manual: manual, StartedAt: time.Now()}
	err := job.Run(ctx)
	run.Duration = time.Since(run.StartedAt)
	if sum, ok := job.(Summarizer); ok {
		run.Summary = sum.Summary()
	}

	if s.recorder != nil {
		s.recorder.JobFinished(name, run.Duration, err == nil)
	}

	log := s.log.With("job", name, "duration", run.Duration.String(), "summary", run.Summary)
	if err != nil {
		run.Error = err.Error()
		log.Error("job failed", logger.Err(err))
	} else {
		log.Info("job completed")
	}
	return run, err
}

func (s *Scheduler) finish(e *entry, run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.busy = false
	e.runs++
	if !run.OK() {
		e.failures++
	}
	e.last = &run

	s.history = append(s.history, run)
	if len(s.history) > s.keep {
		s.history = s.history[len(s.history)-s.keep:]
	}
}

// RunNow executes a job immediately in the caller's goroutine, ignoring its
// schedule. It fails with ErrJobRunning while another execution is active.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*Run, error) {
	s.mu.Lock()
	e, exists := s.entries[name]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if e.busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.busy = true
	s.mu.Unlock()

	run, err := s.execute(ctx, e.job, true)
	s.finish(e, run)
	return &run, err
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobStatus{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			Running:     e.busy,
			NextRun:     e.next,
			Runs:        e.runs,
			Failures:    e.failures,
			Last:        e.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns up to limit of the most recent runs, newest first. A
// non-positive limit returns all kept runs.
func (s *Scheduler) History(limit int) []Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Run, 0, limit)
	for i := len(s.history) - 1; i >= len(s.history)-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}
