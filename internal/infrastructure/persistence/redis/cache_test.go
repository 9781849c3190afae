package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

const ay = attendance.AcademicYear("2024-2025")

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

type fakeUpstream struct {
	mu          sync.Mutex
	gets        int
	workingGets int
	records     map[string]attendance.AttendanceRecord
	fail        error
}

func (f *fakeUpstream) GetAttendance(_ context.Context, id string, _ attendance.AcademicYear, m attendance.Month) (attendance.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.fail != nil {
		return attendance.AttendanceRecord{}, f.fail
	}
	if r, ok := f.records[id+string(m)]; ok {
		return r, nil
	}
	return attendance.ZeroRecord(m), nil
}

func (f *fakeUpstream) GetClassAttendance(context.Context, int, string, attendance.AcademicYear, attendance.Month) (*attendance.ClassAttendance, error) {
	return &attendance.ClassAttendance{}, nil
}

func (f *fakeUpstream) GetLowAttendance(context.Context, attendance.LowAttendanceQuery) ([]attendance.LowAttendanceStudent, error) {
	return nil, nil
}

func (f *fakeUpstream) SetWorkingDays(context.Context, attendance.Month, attendance.AcademicYear, int) error {
	return nil
}

func (f *fakeUpstream) GetWorkingDays(context.Context, attendance.AcademicYear, attendance.Month) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workingGets++
	return 22, nil
}

func (f *fakeUpstream) UpdateStudentAttendance(_ context.Context, id string, _ attendance.AcademicYear, m attendance.Month, dp int) (attendance.AttendanceRecord, error) {
	r := attendance.RecordFromCounts(m, 22, dp)
	f.mu.Lock()
	f.records[id+string(m)] = r
	f.mu.Unlock()
	return r, nil
}

func TestAttendanceCache_ReadThrough(t *testing.T) {
	cache, _ := newTestCache(t)
	up := &fakeUpstream{records: map[string]attendance.AttendanceRecord{
		"s1march": attendance.MustRecord(attendance.March, 20, 15),
	}}
	ac := NewAttendanceCache(up, cache, time.Minute, nil)
	ctx := context.Background()

	first, err := ac.GetAttendance(ctx, "s1", ay, attendance.March)
	require.NoError(t, err)
	second, err := ac.GetAttendance(ctx, "s1", ay, attendance.March)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 75.0, second.Percentage())
	assert.Equal(t, 1, up.gets)
}

func TestAttendanceCache_CorruptEntryFallsBackAndLogsError(t *testing.T) {
	cache, mr := newTestCache(t)
	key := AttendanceKey(ay.String(), attendance.March.String(), "s1")
	require.NoError(t, mr.Set(key, "{not json"))

	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: slog.LevelDebug, Format: logger.FormatJSON})
	up := &fakeUpstream{records: map[string]attendance.AttendanceRecord{
		"s1march": attendance.MustRecord(attendance.March, 20, 15),
	}}
	ac := NewAttendanceCache(up, cache, time.Minute, log)

	rec, err := ac.GetAttendance(context.Background(), "s1", ay, attendance.March)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.DaysPresent)
	assert.Equal(t, 1, up.gets)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &entry))
	assert.Equal(t, "cache read failed", entry["msg"])
	assert.Contains(t, entry["error"], "serialization")
}

func TestAttendanceCache_DoesNotCacheFailures(t *testing.T) {
	cache, _ := newTestCache(t)
	up := &fakeUpstream{records: map[string]attendance.AttendanceRecord{}, fail: errors.New("down")}
	ac := NewAttendanceCache(up, cache, time.Minute, nil)

	_, err := ac.GetAttendance(context.Background(), "s1", ay, attendance.March)
	require.Error(t, err)

	up.fail = nil
	_, err = ac.GetAttendance(context.Background(), "s1", ay, attendance.March)
	require.NoError(t, err)
	assert.Equal(t, 2, up.gets)
}

func TestAttendanceCache_SetWorkingDaysInvalidatesMonth(t *testing.T) {
	cache, mr := newTestCache(t)
	up := &fakeUpstream{records: map[string]attendance.AttendanceRecord{}}
	ac := NewAttendanceCache(up, cache, time.Minute, nil)
	ctx := context.Background()

	_, _ = ac.GetAttendance(ctx, "s1", ay, attendance.March)
	_, _ = ac.GetAttendance(ctx, "s2", ay, attendance.March)
	_, _ = ac.GetAttendance(ctx, "s1", ay, attendance.April)
	_, _ = ac.GetWorkingDays(ctx, ay, attendance.March)

	require.NoError(t, ac.SetWorkingDays(ctx, attendance.March, ay, 24))

	assert.False(t, mr.Exists(AttendanceKey("2024-2025", "march", "s1")))
	assert.False(t, mr.Exists(AttendanceKey("2024-2025", "march", "s2")))
	assert.False(t, mr.Exists(WorkingDaysKey("2024-2025", "march")))
	assert.True(t, mr.Exists(AttendanceKey("2024-2025", "april", "s1")))
}

func TestAttendanceCache_UpdateStoresNewValue(t *testing.T) {
	cache, _ := newTestCache(t)
	up := &fakeUpstream{records: map[string]attendance.AttendanceRecord{}}
	ac := NewAttendanceCache(up, cache, time.Minute, nil)
	ctx := context.Background()

	_, _ = ac.GetAttendance(ctx, "s1", ay, attendance.March)
	_, err := ac.UpdateStudentAttendance(ctx, "s1", ay, attendance.March, 11)
	require.NoError(t, err)

	got, err := ac.GetAttendance(ctx, "s1", ay, attendance.March)
	require.NoError(t, err)
	assert.Equal(t, 11, got.DaysPresent)
	assert.Equal(t, 1, up.gets)
}

func TestAttendanceCache_DisabledPassesThrough(t *testing.T) {
	up := &fakeUpstream{records: map[string]attendance.AttendanceRecord{}}
	ac := NewAttendanceCache(up, nil, time.Minute, nil)

	_, _ = ac.GetAttendance(context.Background(), "s1", ay, attendance.March)
	_, _ = ac.GetAttendance(context.Background(), "s1", ay, attendance.March)
	assert.Equal(t, 2, up.gets)
}

func TestSnapshotStore_KeepsOnlyCompleteSnapshots(t *testing.T) {
	cache, _ := newTestCache(t)
	store := NewSnapshotStore(cache)
	ctx := context.Background()

	entry := attendance.NewRosterEntry(student.Student{ID: "s1", Name: "Ravi"})
	entry.Put(attendance.MustRecord(attendance.January, 20, 18))

	partial := attendance.RosterSnapshot{Generation: 1, State: attendance.StatePartiallyLoaded, AcademicYear: ay, Entries: []attendance.StudentRosterEntry{entry}}
	require.NoError(t, store.SaveSnapshot(ctx, partial))
	_, ok, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	full := partial
	full.State = attendance.StateFullyLoaded
	require.NoError(t, store.SaveSnapshot(ctx, full))

	got, ok, err := store.SnapshotFor(ctx, ay)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Generation)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, 90.0, got.Entries[0].Summary.RoundedPercentage())
}

func TestLock(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.TryLock(ctx, "export", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.TryLock(ctx, "export", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Unlock(ctx, "export", "b"))
	ok, _ = cache.TryLock(ctx, "export", "b", time.Minute)
	assert.False(t, ok, "unlock with a foreign token is a no-op")

	require.NoError(t, cache.Unlock(ctx, "export", "a"))
	ok, _ = cache.TryLock(ctx, "export", "b", time.Minute)
	assert.True(t, ok)
}
