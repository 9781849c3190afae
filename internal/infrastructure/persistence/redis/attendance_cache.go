package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// Upstream is what the cache sits in front of.
type Upstream interface {
	attendance.Source
	attendance.Writer
}

// AttendanceCache is a read-through cache for single-month reads. Only
// successful backend answers are cached, and writes invalidate what they
// change. Redis failures are logged and fall through to the upstream.
type AttendanceCache struct {
	upstream Upstream
	cache    *Cache
	ttl      time.Duration
	logger   *slog.Logger
}

var (
	_ attendance.Source = (*AttendanceCache)(nil)
	_ attendance.Writer = (*AttendanceCache)(nil)
)

// NewAttendanceCache decorates upstream. A non-positive ttl disables caching.
func NewAttendanceCache(upstream Upstream, cache *Cache, ttl time.Duration, log *slog.Logger) *AttendanceCache {
	if log == nil {
		log = slog.Default()
	}
	return &AttendanceCache{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
		logger:   log.With(slog.String("component", "attendance_cache")),
	}
}

func (c *AttendanceCache) enabled() bool {
	return c.cache != nil && c.ttl > 0
}

// GetAttendance serves a month from Redis when present.
func (c *AttendanceCache) GetAttendance(ctx context.Context, studentID string, ay attendance.AcademicYear, month attendance.Month) (attendance.AttendanceRecord, error) {
	if !c.enabled() {
		return c.upstream.GetAttendance(ctx, studentID, ay, month)
	}

	key := AttendanceKey(ay.String(), month.String(), studentID)

	var cached attendance.AttendanceRecord
	err := c.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("cache read failed", slog.String("key", key), logger.Err(err))
	}

	rec, err := c.upstream.GetAttendance(ctx, studentID, ay, month)
	if err != nil {
		return rec, err
	}

	if err := c.cache.Set(ctx, key, rec, c.ttl); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), logger.Err(err))
	}
	return rec, nil
}

// GetClassAttendance is not cached; class listings are read by people
// checking fresh entries.
func (c *AttendanceCache) GetClassAttendance(ctx context.Context, year int, group string, ay attendance.AcademicYear, month attendance.Month) (*attendance.ClassAttendance, error) {
	return c.upstream.GetClassAttendance(ctx, year, group, ay, month)
}

// GetLowAttendance is not cached.
func (c *AttendanceCache) GetLowAttendance(ctx context.Context, q attendance.LowAttendanceQuery) ([]attendance.LowAttendanceStudent, error) {
	return c.upstream.GetLowAttendance(ctx, q)
}

// SetWorkingDays writes through and drops every cached record of the month,
// since each record carries the month's working days.
func (c *AttendanceCache) SetWorkingDays(ctx context.Context, month attendance.Month, ay attendance.AcademicYear, workingDays int) error {
	if err := c.upstream.SetWorkingDays(ctx, month, ay, workingDays); err != nil {
		return err
	}
	if !c.enabled() {
		return nil
	}

	if err := c.cache.Delete(ctx, WorkingDaysKey(ay.String(), month.String())); err != nil {
		c.logger.Warn("cache invalidate failed", logger.Err(err))
	}
	if err := c.cache.DeleteByPattern(ctx, AttendanceMonthPattern(ay.String(), month.String())); err != nil {
		c.logger.Warn("cache invalidate failed", logger.Err(err))
	}
	return nil
}

// GetWorkingDays serves the month's working days from Redis when present.
func (c *AttendanceCache) GetWorkingDays(ctx context.Context, ay attendance.AcademicYear, month attendance.Month) (int, error) {
	if !c.enabled() {
		return c.upstream.GetWorkingDays(ctx, ay, month)
	}

	key := WorkingDaysKey(ay.String(), month.String())
	var days int
	if err := c.cache.Get(ctx, key, &days); err == nil {
		return days, nil
	}

	days, err := c.upstream.GetWorkingDays(ctx, ay, month)
	if err != nil {
		return 0, err
	}
	if err := c.cache.Set(ctx, key, days, c.ttl); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), logger.Err(err))
	}
	return days, nil
}

// UpdateStudentAttendance writes through and stores the backend's answer.
func (c *AttendanceCache) UpdateStudentAttendance(ctx context.Context, studentID string, ay attendance.AcademicYear, month attendance.Month, daysPresent int) (attendance.AttendanceRecord, error) {
	key := AttendanceKey(ay.String(), month.String(), studentID)

	rec, err := c.upstream.UpdateStudentAttendance(ctx, studentID, ay, month, daysPresent)
	if err != nil {
		if c.enabled() {
			_ = c.cache.Delete(ctx, key)
		}
		return rec, err
	}

	if c.enabled() {
		if err := c.cache.Set(ctx, key, rec, c.ttl); err != nil {
			c.logger.Warn("cache write failed", slog.String("key", key), logger.Err(err))
		}
	}
	return rec, nil
}
