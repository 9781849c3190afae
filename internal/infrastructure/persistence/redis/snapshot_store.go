package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
)

// SnapshotStore keeps the last fully loaded roster so a restarted server can
// answer reads before its first load finishes.
type SnapshotStore struct {
	cache *Cache
}

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(cache *Cache) *SnapshotStore {
	return &SnapshotStore{cache: cache}
}

// SaveSnapshot stores s under its academic year and as the latest snapshot.
// Only complete snapshots are kept.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap attendance.RosterSnapshot) error {
	if !snap.IsComplete() {
		return nil
	}
	err := s.cache.MSet(ctx, map[string]any{
		SnapshotKey(snap.AcademicYear.String()): snap,
		SnapshotKey(""):                         snap,
	}, 0)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent complete snapshot, or ok=false if
// none was saved.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context) (attendance.RosterSnapshot, bool, error) {
	return s.load(ctx, SnapshotKey(""))
}

// SnapshotFor returns the last complete snapshot of one academic year.
func (s *SnapshotStore) SnapshotFor(ctx context.Context, ay attendance.AcademicYear) (attendance.RosterSnapshot, bool, error) {
	return s.load(ctx, SnapshotKey(ay.String()))
}

func (s *SnapshotStore) load(ctx context.Context, key string) (attendance.RosterSnapshot, bool, error) {
	var snap attendance.RosterSnapshot
	if err := s.cache.Get(ctx, key, &snap); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return attendance.EmptySnapshot(), false, nil
		}
		return attendance.EmptySnapshot(), false, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, true, nil
}
