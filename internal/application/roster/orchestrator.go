// Package roster runs roster loads: it fetches every student's twelve months
// from the attendance backend in two phases and publishes progressively more
// complete snapshots while it goes.
package roster

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/messaging"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// ErrSuperseded is returned by LoadSync when a newer load replaced it.
var ErrSuperseded = errors.New("roster load superseded by a newer load")

// Phase names used in logs and metrics.
const (
	PhaseFirstMonth = "first_month"
	PhaseRemaining  = "remaining"
)

// Config controls batching.
type Config struct {
	// FirstMonthBatchSize is the number of students per first-month batch. Default: 10
	FirstMonthBatchSize int

	// RemainingBatchSize is the number of students per remaining-months batch. Default: 5
	RemainingBatchSize int

	// MaxInFlight caps concurrent requests inside one batch. Default: 64
	MaxInFlight int

	// FetchTimeout bounds a single (student, month) request. Zero means no bound.
	FetchTimeout time.Duration
}

// DefaultConfig returns the standard batch sizes.
func DefaultConfig() Config {
	return Config{
		FirstMonthBatchSize: 10,
		RemainingBatchSize:  5,
		MaxInFlight:         64,
		FetchTimeout:        15 * time.Second,
	}
}

// Recorder receives load metrics.
type Recorder interface {
	FetchFinished(ok bool)
	LoadEvent(event string)
	BatchFinished(phase string, elapsed time.Duration)
	SnapshotPublished(generation uint64)
}

// SnapshotSaver persists fully loaded snapshots.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap attendance.RosterSnapshot) error
}

// Orchestrator owns the current roster snapshot. It is safe for concurrent use.
type Orchestrator struct {
	source  attendance.Source
	bus     *messaging.SnapshotBus
	saver   SnapshotSaver
	metrics Recorder
	logger  *slog.Logger
	config  Config

	mu         sync.Mutex
	generation uint64
	current    attendance.RosterSnapshot
	cancel     context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSnapshotSaver persists every fully loaded snapshot.
func WithSnapshotSaver(s SnapshotSaver) Option {
	return func(o *Orchestrator) { o.saver = s }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithBus publishes snapshots to bus instead of a private one.
func WithBus(bus *messaging.SnapshotBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator reading from source.
func New(source attendance.Source, config Config, opts ...Option) *Orchestrator {
	defaults := DefaultConfig()
	if config.FirstMonthBatchSize <= 0 {
		config.FirstMonthBatchSize = defaults.FirstMonthBatchSize
	}
	if config.RemainingBatchSize <= 0 {
		config.RemainingBatchSize = defaults.RemainingBatchSize
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = defaults.MaxInFlight
	}

	o := &Orchestrator{
		source:  source,
		config:  config,
		current: attendance.EmptySnapshot(),
		metrics: nopRecorder{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = messaging.NewSnapshotBus(messaging.SnapshotBusConfig{Logger: o.logger})
	}
	o.logger = o.logger.With(logger.Component("roster"))
	return o
}

// StudentsFromIDs wraps bare identifiers for a load.
func StudentsFromIDs(ids []string) []student.Student {
	out := make([]student.Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, student.Student{ID: id})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADS
// ══════════════════════════════════════════════════════════════════════════════

// Load starts a roster load in the background and supersedes any running one.
// The channel yields this load's snapshots in publication order and closes
// when the load finishes or is superseded. The load outlives ctx's
// cancellation but keeps its values, such as the caller's backend token.
func (o *Orchestrator) Load(ctx context.Context, students []student.Student, ay attendance.AcademicYear) (uint64, <-chan attendance.RosterSnapshot, error) {
	if _, err := attendance.ParseAcademicYear(string(ay)); err != nil {
		return 0, nil, err
	}
	gen, runCtx := o.begin(context.WithoutCancel(ctx))
	out := make(chan attendance.RosterSnapshot, o.batchCount(len(students))+1)
	go o.run(runCtx, gen, students, ay, out)
	return gen, out, nil
}

// LoadSync runs a load to completion in the caller's goroutine and returns the
// last snapshot it published. Cancelling ctx stops the load.
func (o *Orchestrator) LoadSync(ctx context.Context, students []student.Student, ay attendance.AcademicYear) (attendance.RosterSnapshot, error) {
	if _, err := attendance.ParseAcademicYear(string(ay)); err != nil {
		return attendance.RosterSnapshot{}, err
	}
	gen, runCtx := o.begin(ctx)
	out := make(chan attendance.RosterSnapshot, o.batchCount(len(students))+1)
	o.run(runCtx, gen, students, ay, out)

	last := attendance.RosterSnapshot{Generation: gen, State: attendance.StateEmpty, AcademicYear: ay}
	for snap := range out {
		last = snap
	}
	if last.State == attendance.StateFullyLoaded {
		return last, nil
	}
	if err := ctx.Err(); err != nil {
		return last, err
	}
	return last, ErrSuperseded
}

// Current returns the last published snapshot.
func (o *Orchestrator) Current() attendance.RosterSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Generation returns the newest generation started.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Restore installs a persisted snapshot as the current one. It only applies
// before any load has started.
func (o *Orchestrator) Restore(snap attendance.RosterSnapshot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.generation != 0 || snap.State == attendance.StateEmpty {
		return false
	}
	o.generation = snap.Generation
	o.current = snap
	return true
}

// Subscribe registers a listener for every future publication.
func (o *Orchestrator) Subscribe() (*messaging.Subscription, error) {
	return o.bus.Subscribe()
}

// Unsubscribe removes a listener.
func (o *Orchestrator) Unsubscribe(sub *messaging.Subscription) {
	o.bus.Unsubscribe(sub)
}

// Stop cancels the running load, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) begin(parent context.Context) (uint64, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
		o.metrics.LoadEvent("superseded")
		o.logger.Info("superseding running roster load", logger.Generation(o.generation))
	}
	o.generation++
	o.cancel = cancel
	o.metrics.LoadEvent("started")
	return o.generation, ctx
}

func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation == gen && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// commit installs snap as current and delivers it unless a newer load has
// started. Delivery happens under the lock so that no listener sees a stale
// generation after a newer one. out is sized to never block.
func (o *Orchestrator) commit(snap attendance.RosterSnapshot, out chan<- attendance.RosterSnapshot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if snap.Generation != o.generation {
		return false
	}
	o.current = snap
	out <- snap
	o.bus.Publish(snap)
	return true
}

func (o *Orchestrator) batchCount(students int) int {
	return ceilDiv(students, o.config.FirstMonthBatchSize) + ceilDiv(students, o.config.RemainingBatchSize)
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNNING A LOAD
// ══════════════════════════════════════════════════════════════════════════════

type loadState struct {
	gen      uint64
	ay       attendance.AcademicYear
	entries  []attendance.StudentRosterEntry
	loaded   int
	failures int
}

type fetchResult struct {
	index  int
	record attendance.AttendanceRecord
	ok     bool
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, students []student.Student, ay attendance.AcademicYear, out chan<- attendance.RosterSnapshot) {
	defer close(out)
	defer o.finish(gen)

	start := time.Now()
	log := o.logger.With(logger.Generation(gen), logger.AcademicYear(ay.String()))
	log.Info("roster load started", "students", len(students))

	st := &loadState{gen: gen, ay: ay, entries: make([]attendance.StudentRosterEntry, len(students))}
	for i, s := range students {
		st.entries[i] = attendance.NewRosterEntry(s)
	}

	if len(students) == 0 {
		o.publish(ctx, st, attendance.StateFullyLoaded, out)
		o.metrics.LoadEvent("completed")
		return
	}

	firstMonth := []attendance.Month{attendance.FirstMonth}
	remaining := attendance.Months[1:]

	phases := []struct {
		name   string
		size   int
		months []attendance.Month
	}{
		{PhaseFirstMonth, o.config.FirstMonthBatchSize, firstMonth},
		{PhaseRemaining, o.config.RemainingBatchSize, remaining},
	}

	for pi, phase := range phases {
		batches := chunk(len(students), phase.size)
		for bi, b := range batches {
			batchStart := time.Now()
			results := o.fetchBatch(ctx, log, students[b.lo:b.hi], b.lo, ay, phase.months)
			if ctx.Err() != nil {
				log.Info("roster load stopped", "phase", phase.name, "batch", bi)
				return
			}
			for _, r := range results {
				st.entries[r.index].Put(r.record)
				st.loaded++
				if !r.ok {
					st.failures++
				}
			}
			o.metrics.BatchFinished(phase.name, time.Since(batchStart))
			log.Debug("roster batch fetched", logger.Batch(pi+1, bi+1), "students", b.hi-b.lo, logger.Latency(time.Since(batchStart)))

			state := attendance.StatePartiallyLoaded
			if pi == len(phases)-1 && bi == len(batches)-1 {
				state = attendance.StateFullyLoaded
			}
			if !o.publish(ctx, st, state, out) {
				log.Info("roster load superseded")
				return
			}
		}
	}

	o.metrics.LoadEvent("completed")
	log.Info("roster load completed",
		"students", len(students),
		"failures", st.failures,
		logger.Latency(time.Since(start)),
	)
}

// fetchBatch fetches months for every student of the batch concurrently.
// Failures are substituted with zero records.
func (o *Orchestrator) fetchBatch(ctx context.Context, log *slog.Logger, batch []student.Student, offset int, ay attendance.AcademicYear, months []attendance.Month) []fetchResult {
	results := make([]fetchResult, len(batch)*len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxInFlight)
	for si, s := range batch {
		for mi, m := range months {
			slot := si*len(months) + mi
			g.Go(func() error {
				rec, ok := o.fetchOne(gctx, log, s.ID, ay, m)
				results[slot] = fetchResult{index: offset + si, record: rec, ok: ok}
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, log *slog.Logger, studentID string, ay attendance.AcademicYear, m attendance.Month) (attendance.AttendanceRecord, bool) {
	if o.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.FetchTimeout)
		defer cancel()
	}

	rec, err := o.source.GetAttendance(ctx, studentID, ay, m)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return attendance.ZeroRecord(m), false
		}
		level := slog.LevelWarn
		if shared.IsAuthorization(err) {
			level = slog.LevelError
		}
		log.Log(ctx, level, "attendance fetch failed, using zero record",
			logger.StudentID(studentID),
			logger.Month(m.String()),
			logger.Err(err),
		)
		o.metrics.FetchFinished(false)
		return attendance.ZeroRecord(m), false
	}
	rec.Month = m
	o.metrics.FetchFinished(true)
	return rec, true
}

func (o *Orchestrator) publish(ctx context.Context, st *loadState, state attendance.LoadState, out chan<- attendance.RosterSnapshot) bool {
	entries := make([]attendance.StudentRosterEntry, len(st.entries))
	for i, e := range st.entries {
		entries[i] = e.Clone()
	}
	snap := attendance.RosterSnapshot{
		Generation:   st.gen,
		State:        state,
		AcademicYear: st.ay,
		Entries:      entries,
		LoadedMonths: st.loaded,
		Failures:     st.failures,
		PublishedAt:  time.Now().UTC(),
	}
	if !o.commit(snap, out) {
		return false
	}
	o.metrics.SnapshotPublished(snap.Generation)

	if state == attendance.StateFullyLoaded && o.saver != nil {
		if err := o.saver.SaveSnapshot(ctx, snap); err != nil {
			o.logger.Warn("failed to persist roster snapshot", logger.Generation(st.gen), logger.Err(err))
		}
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// SINGLE STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// FetchStudentYear fetches all twelve months of one student concurrently,
// substituting zero records for failed months. The second result counts them.
func (o *Orchestrator) FetchStudentYear(ctx context.Context, studentID string, ay attendance.AcademicYear) (map[attendance.Month]attendance.AttendanceRecord, int) {
	log := o.logger.With(logger.AcademicYear(ay.String()))
	results := o.fetchBatch(ctx, log, []student.Student{{ID: studentID}}, 0, ay, attendance.Months[:])

	records := make(map[attendance.Month]attendance.AttendanceRecord, len(results))
	failures := 0
	for _, r := range results {
		records[r.record.Month] = r.record
		if !r.ok {
			failures++
		}
	}
	return records, failures
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type span struct{ lo, hi int }

func chunk(n, size int) []span {
	if size <= 0 {
		size = n
	}
	spans := make([]span, 0, ceilDiv(n, size))
	for lo := 0; lo < n; lo += size {
		spans = append(spans, span{lo: lo, hi: min(lo+size, n)})
	}
	return spans
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

type nopRecorder struct{}

func (nopRecorder) FetchFinished(bool)                  {}
func (nopRecorder) LoadEvent(string)                    {}
func (nopRecorder) BatchFinished(string, time.Duration) {}
func (nopRecorder) SnapshotPublished(uint64)            {}
