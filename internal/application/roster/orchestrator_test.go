package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

const ay = attendance.AcademicYear("2024-2025")

// fakeSource returns 20 working days and 15 present for every month unless
// fail says otherwise. Students whose ID starts with "slow" block until the
// context ends.
type fakeSource struct {
	mu    sync.Mutex
	calls []attendance.Month
	fail  func(id string, m attendance.Month) error
}

func (f *fakeSource) GetAttendance(ctx context.Context, id string, _ attendance.AcademicYear, m attendance.Month) (attendance.AttendanceRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, m)
	f.mu.Unlock()

	if strings.HasPrefix(id, "slow") {
		<-ctx.Done()
		return attendance.AttendanceRecord{}, ctx.Err()
	}
	if f.fail != nil {
		if err := f.fail(id, m); err != nil {
			return attendance.AttendanceRecord{}, err
		}
	}
	return attendance.MustRecord(m, 20, 15), nil
}

func (f *fakeSource) GetClassAttendance(context.Context, int, string, attendance.AcademicYear, attendance.Month) (*attendance.ClassAttendance, error) {
	return nil, errors.New("not used")
}

func (f *fakeSource) GetLowAttendance(context.Context, attendance.LowAttendanceQuery) ([]attendance.LowAttendanceStudent, error) {
	return nil, errors.New("not used")
}

func (f *fakeSource) monthCalls() []attendance.Month {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.Month(nil), f.calls...)
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []attendance.RosterSnapshot
}

func (s *fakeSaver) SaveSnapshot(_ context.Context, snap attendance.RosterSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return nil
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return out
}

func newOrchestrator(src attendance.Source, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return New(src, DefaultConfig(), opts...)
}

func drain(t *testing.T, ch <-chan attendance.RosterSnapshot) []attendance.RosterSnapshot {
	t.Helper()
	var out []attendance.RosterSnapshot
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, snap)
		case <-timeout:
			t.Fatal("roster load did not finish")
			return out
		}
	}
}

func TestOrchestrator_InitialState(t *testing.T) {
	o := newOrchestrator(&fakeSource{})

	snap := o.Current()
	assert.Equal(t, attendance.StateEmpty, snap.State)
	assert.Zero(t, snap.Generation)
	assert.Empty(t, snap.Entries)
}

func TestLoad_PublishesFirstMonthThenRemaining(t *testing.T) {
	src := &fakeSource{}
	o := newOrchestrator(src)

	gen, ch, err := o.Load(context.Background(), StudentsFromIDs(ids("s", 12)), ay)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	snaps := drain(t, ch)

	// Two first-month batches (10 + 2), three remaining batches (5 + 5 + 2).
	require.Len(t, snaps, 5)
	assert.Equal(t, 10, snaps[0].LoadedMonths)
	assert.Equal(t, 12, snaps[1].LoadedMonths)
	assert.Equal(t, 12+5*11, snaps[2].LoadedMonths)
	assert.Equal(t, 12*12, snaps[4].LoadedMonths)

	for _, s := range snaps[:4] {
		assert.Equal(t, attendance.StatePartiallyLoaded, s.State)
	}
	assert.Equal(t, attendance.StateFullyLoaded, snaps[4].State)

	first := snaps[0].Entries
	assert.True(t, first[0].HasMonth(attendance.January))
	assert.False(t, first[0].HasMonth(attendance.February))
	assert.False(t, first[10].HasMonth(attendance.January))

	// Every first-month request precedes every other request.
	calls := src.monthCalls()
	require.Len(t, calls, 144)
	for i, m := range calls {
		if i < 12 {
			assert.Equal(t, attendance.January, m)
		} else {
			assert.NotEqual(t, attendance.January, m)
		}
	}

	final := snaps[4].Entries[3]
	assert.Equal(t, 240, final.Summary.TotalWorkingDays)
	assert.Equal(t, 180, final.Summary.TotalDaysPresent)
	assert.Equal(t, snaps[4], o.Current())
}

func TestLoad_KeepsCallerOrder(t *testing.T) {
	o := newOrchestrator(&fakeSource{})
	students := StudentsFromIDs([]string{"c", "a", "b"})

	snap, err := o.LoadSync(context.Background(), students, ay)
	require.NoError(t, err)

	got := make([]string, 0, 3)
	for _, e := range snap.Entries {
		got = append(got, e.Student.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestLoad_FailedMonthBecomesZeroRecord(t *testing.T) {
	src := &fakeSource{fail: func(id string, m attendance.Month) error {
		if id == "s01" && m == attendance.March {
			return shared.ErrServiceUnavailable
		}
		return nil
	}}
	o := newOrchestrator(src)

	snap, err := o.LoadSync(context.Background(), StudentsFromIDs(ids("s", 3)), ay)
	require.NoError(t, err)

	entry, ok := snap.Entry("s01")
	require.True(t, ok)
	assert.Equal(t, attendance.ZeroRecord(attendance.March), entry.Record(attendance.March))
	assert.Equal(t, attendance.MustRecord(attendance.April, 20, 15), entry.Record(attendance.April))
	assert.Equal(t, 11, entry.Summary.PopulatedMonths)
	assert.Equal(t, 1, snap.Failures)
	assert.Equal(t, attendance.StateFullyLoaded, snap.State)
}

func TestLoad_AuthorizationFailuresAreAbsorbed(t *testing.T) {
	src := &fakeSource{fail: func(string, attendance.Month) error { return shared.ErrUnauthorized }}
	o := newOrchestrator(src)

	snap, err := o.LoadSync(context.Background(), StudentsFromIDs(ids("s", 2)), ay)
	require.NoError(t, err)
	assert.Equal(t, 24, snap.Failures)
	assert.Zero(t, snap.Entries[0].Summary.TotalWorkingDays)
}

func TestLoad_SnapshotsAreMonotonic(t *testing.T) {
	o := newOrchestrator(&fakeSource{})
	_, ch, err := o.Load(context.Background(), StudentsFromIDs(ids("s", 23)), ay)
	require.NoError(t, err)

	snaps := drain(t, ch)
	require.NotEmpty(t, snaps)
	for i := 1; i < len(snaps); i++ {
		prev, next := snaps[i-1], snaps[i]
		assert.GreaterOrEqual(t, next.LoadedMonths, prev.LoadedMonths)
		for j, e := range prev.Entries {
			for m, r := range e.Records {
				assert.Equal(t, r, next.Entries[j].Records[m], "student %s month %s regressed", e.Student.ID, m)
			}
		}
	}
}

func TestLoad_PublishedSnapshotsAreIndependent(t *testing.T) {
	o := newOrchestrator(&fakeSource{})
	_, ch, err := o.Load(context.Background(), StudentsFromIDs(ids("s", 1)), ay)
	require.NoError(t, err)

	snaps := drain(t, ch)
	require.Len(t, snaps, 2)
	assert.Len(t, snaps[0].Entries[0].Records, 1)
	assert.Len(t, snaps[1].Entries[0].Records, 12)
}

func TestLoad_NewerLoadSupersedesOlder(t *testing.T) {
	o := newOrchestrator(&fakeSource{})
	sub, err := o.Subscribe()
	require.NoError(t, err)
	defer o.Unsubscribe(sub)

	_, stale, err := o.Load(context.Background(), StudentsFromIDs(ids("slow", 3)), ay)
	require.NoError(t, err)

	gen, fresh, err := o.Load(context.Background(), StudentsFromIDs(ids("s", 3)), ay)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	assert.Empty(t, drain(t, stale), "superseded load must not publish")
	freshSnaps := drain(t, fresh)
	require.NotEmpty(t, freshSnaps)

	for i := 0; i < len(freshSnaps); i++ {
		got := <-sub.C
		assert.Equal(t, uint64(2), got.Generation)
	}
	assert.Equal(t, uint64(2), o.Current().Generation)
	assert.Equal(t, attendance.StateFullyLoaded, o.Current().State)
}

func TestLoadSync_SupersededReturnsError(t *testing.T) {
	o := newOrchestrator(&fakeSource{})

	done := make(chan error, 1)
	go func() {
		_, err := o.LoadSync(context.Background(), StudentsFromIDs(ids("slow", 2)), ay)
		done <- err
	}()

	require.Eventually(t, func() bool { return o.Generation() == 1 }, time.Second, 5*time.Millisecond)
	_, _, err := o.Load(context.Background(), StudentsFromIDs(ids("s", 1)), ay)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("LoadSync did not return")
	}
}

func TestLoadSync_ContextCancelled(t *testing.T) {
	o := newOrchestrator(&fakeSource{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	snap, err := o.LoadSync(ctx, StudentsFromIDs(ids("slow", 2)), ay)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, attendance.StateFullyLoaded, snap.State)
}

func TestLoad_EmptyStudentList(t *testing.T) {
	saver := &fakeSaver{}
	o := newOrchestrator(&fakeSource{}, WithSnapshotSaver(saver))

	_, ch, err := o.Load(context.Background(), nil, ay)
	require.NoError(t, err)

	snaps := drain(t, ch)
	require.Len(t, snaps, 1)
	assert.Equal(t, attendance.StateFullyLoaded, snaps[0].State)
	assert.Empty(t, snaps[0].Entries)
}

func TestLoad_InvalidAcademicYear(t *testing.T) {
	src := &fakeSource{}
	o := newOrchestrator(src)

	_, _, err := o.Load(context.Background(), StudentsFromIDs([]string{"s"}), "2024")
	assert.True(t, shared.IsValidation(err))
	assert.Empty(t, src.monthCalls())
	assert.Zero(t, o.Generation())
}

func TestLoad_PersistsOnlyFullSnapshots(t *testing.T) {
	saver := &fakeSaver{}
	o := newOrchestrator(&fakeSource{}, WithSnapshotSaver(saver))

	_, err := o.LoadSync(context.Background(), StudentsFromIDs(ids("s", 12)), ay)
	require.NoError(t, err)

	require.Len(t, saver.saved, 1)
	assert.Equal(t, attendance.StateFullyLoaded, saver.saved[0].State)
}

func TestFetchStudentYear(t *testing.T) {
	src := &fakeSource{fail: func(_ string, m attendance.Month) error {
		if m == attendance.June {
			return shared.ErrTimeout
		}
		return nil
	}}
	o := newOrchestrator(src)

	records, failures := o.FetchStudentYear(context.Background(), "s1", ay)
	assert.Len(t, records, 12)
	assert.Equal(t, 1, failures)
	assert.Equal(t, attendance.ZeroRecord(attendance.June), records[attendance.June])
	assert.Equal(t, 15, records[attendance.December].DaysPresent)
}

func TestRestore(t *testing.T) {
	o := newOrchestrator(&fakeSource{})
	stored := attendance.RosterSnapshot{Generation: 7, State: attendance.StateFullyLoaded, AcademicYear: ay}

	assert.True(t, o.Restore(stored))
	assert.Equal(t, uint64(7), o.Current().Generation)

	gen, ch, err := o.Load(context.Background(), nil, ay)
	require.NoError(t, err)
	drain(t, ch)
	assert.Equal(t, uint64(8), gen)
	assert.False(t, o.Restore(stored))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []span{{0, 5}, {5, 10}, {10, 12}}, chunk(12, 5))
	assert.Empty(t, chunk(0, 5))
	assert.Equal(t, 5, newOrchestrator(&fakeSource{}).batchCount(12))
}
