package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
)

func snapshot(gen uint64) attendance.RosterSnapshot {
	return attendance.RosterSnapshot{Generation: gen, State: attendance.StatePartiallyLoaded, AcademicYear: "2024-2025"}
}

func TestSnapshotBus_FanOut(t *testing.T) {
	bus := NewSnapshotBus(SnapshotBusConfig{})
	a, err := bus.Subscribe()
	require.NoError(t, err)
	b, err := bus.Subscribe()
	require.NoError(t, err)

	bus.Publish(snapshot(1))

	assert.Equal(t, uint64(1), (<-a.C).Generation)
	assert.Equal(t, uint64(1), (<-b.C).Generation)
	assert.Equal(t, int64(1), bus.Stats().Published)
}

func TestSnapshotBus_SlowSubscriberKeepsNewest(t *testing.T) {
	bus := NewSnapshotBus(SnapshotBusConfig{Buffer: 2})
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	for gen := uint64(1); gen <= 5; gen++ {
		bus.Publish(snapshot(gen))
	}

	first := <-sub.C
	second := <-sub.C
	assert.Equal(t, uint64(4), first.Generation)
	assert.Equal(t, uint64(5), second.Generation)
	assert.Equal(t, int64(3), bus.Stats().Dropped)
}

func TestSnapshotBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewSnapshotBus(SnapshotBusConfig{})
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestSnapshotBus_Close(t *testing.T) {
	bus := NewSnapshotBus(SnapshotBusConfig{})
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	bus.Close()
	bus.Publish(snapshot(1))

	_, open := <-sub.C
	assert.False(t, open)
	_, err = bus.Subscribe()
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestRedisRelay_DeliversToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := NewRedisRelay(client, "", nil)
	listener := NewRedisRelay(client, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan LoadNotice, 2)
	go func() {
		_ = listener.Listen(ctx, func(n LoadNotice) { received <- n })
	}()

	// Publish until the listener's subscription is live.
	notice := NoticeFromSnapshot(snapshot(3), "scheduler", "1:mpc")
	require.Eventually(t, func() bool {
		_ = publisher.Announce(ctx, notice)
		return len(received) > 0
	}, 3*time.Second, 50*time.Millisecond)

	got := <-received
	assert.Equal(t, publisher.InstanceID(), got.InstanceID)
	assert.Equal(t, uint64(3), got.Generation)
	assert.Equal(t, "1:mpc", got.Label)
}
