// Package messaging fans roster snapshots out to in-process listeners and
// relays load notices between service instances over Redis Pub/Sub.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// ErrBusClosed is returned when subscribing to a closed bus.
var ErrBusClosed = errors.New("snapshot bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY SNAPSHOT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Subscription receives published snapshots until it is cancelled.
type Subscription struct {
	id uint64
	ch chan attendance.RosterSnapshot
	C  <-chan attendance.RosterSnapshot
}

// SnapshotBus delivers every published snapshot to every subscriber. A slow
// subscriber loses the oldest buffered snapshot, never the newest one.
type SnapshotBus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	logger *slog.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

// SnapshotBusConfig configures a SnapshotBus.
type SnapshotBusConfig struct {
	// Buffer is the per-subscriber channel capacity. Default: 8
	Buffer int
	Logger *slog.Logger
}

// NewSnapshotBus creates an empty bus.
func NewSnapshotBus(config SnapshotBusConfig) *SnapshotBus {
	if config.Buffer <= 0 {
		config.Buffer = 8
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &SnapshotBus{
		subs:   make(map[uint64]*Subscription),
		buffer: config.Buffer,
		logger: config.Logger,
	}
}

// Subscribe registers a listener.
func (b *SnapshotBus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	b.nextID++
	ch := make(chan attendance.RosterSnapshot, b.buffer)
	sub := &Subscription{id: b.nextID, ch: ch, C: ch}
	b.subs[sub.id] = sub
	b.logger.Debug("snapshot subscriber added", "subscriber", sub.id, "total", len(b.subs))
	return sub, nil
}

// Unsubscribe removes a listener and closes its channel. It is safe to call twice.
func (b *SnapshotBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish delivers snap without blocking.
func (b *SnapshotBus) Publish(snap attendance.RosterSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.published.Add(1)
	for _, sub := range b.subs {
		select {
		case sub.ch <- snap:
			continue
		default:
		}
		// Full: make room by discarding the oldest entry.
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- snap:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *SnapshotBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *SnapshotBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// BusStats is a point-in-time view of the bus counters.
type BusStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Stats returns the bus counters.
func (b *SnapshotBus) Stats() BusStats {
	return BusStats{
		Subscribers: b.Subscribers(),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS LOAD NOTICES
// ══════════════════════════════════════════════════════════════════════════════

// DefaultNoticeChannel is the Pub/Sub channel for load notices.
const DefaultNoticeChannel = "attendance-hub:roster-loads"

// LoadNotice summarizes a finished roster load for other instances.
type LoadNotice struct {
	InstanceID   string               `json:"instance_id"`
	Source       string               `json:"source"`
	Generation   uint64               `json:"generation"`
	State        attendance.LoadState `json:"state"`
	AcademicYear string               `json:"academic_year"`
	Students     int                  `json:"students"`
	Failures     int                  `json:"failures"`
	Label        string               `json:"label,omitempty"`
	PublishedAt  time.Time            `json:"published_at"`
}

// NoticeFromSnapshot builds a notice for a published snapshot.
func NoticeFromSnapshot(snap attendance.RosterSnapshot, source, label string) LoadNotice {
	return LoadNotice{
		Source:       source,
		Generation:   snap.Generation,
		State:        snap.State,
		AcademicYear: snap.AcademicYear.String(),
		Students:     len(snap.Entries),
		Failures:     snap.Failures,
		Label:        label,
		PublishedAt:  snap.PublishedAt,
	}
}

// RedisRelay publishes and receives LoadNotices. Notices published by the
// same relay are not delivered back to it.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *slog.Logger
}

// NewRedisRelay creates a relay on channel, or DefaultNoticeChannel if empty.
func NewRedisRelay(client *redis.Client, channel string, log *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultNoticeChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// InstanceID identifies this relay in published notices.
func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Announce publishes a notice.
func (r *RedisRelay) Announce(ctx context.Context, notice LoadNotice) error {
	notice.InstanceID = r.instanceID
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal load notice: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish load notice: %w", err)
	}
	return nil
}

// Listen calls fn for every notice from other instances until ctx ends.
func (r *RedisRelay) Listen(ctx context.Context, fn func(LoadNotice)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var notice LoadNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				r.logger.Warn("discarding malformed load notice", logger.Err(err))
				continue
			}
			if notice.InstanceID == r.instanceID {
				continue
			}
			fn(notice)
		}
	}
}
