// Package circuitbreaker stops a roster load from hammering the attendance
// backend once the backend is down.
//
// The breaker trips after Settings.Trip consecutive counted failures and
// rejects calls for Settings.Cooldown. It then lets a single trial call
// through at a time; Settings.Recover consecutive trial successes close it
// again and any trial failure reopens it.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen rejects calls during the cooldown.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects calls while a trial call is in flight.
	ErrTooManyRequests = errors.New("circuit breaker trial already in flight")
)

// Settings configures a Breaker. Zero values take the defaults noted per field.
type Settings struct {
	Name string

	// Trip is the consecutive failures that open the breaker. Default 5.
	Trip int

	// Recover is the consecutive trial successes that close it. Default 2.
	Recover int

	// Cooldown is how long the breaker stays open. Default 30s.
	Cooldown time.Duration

	// Counts reports whether err is the backend's fault. Nil counts every
	// non-nil error.
	Counts func(err error) bool

	// OnChange observes transitions. It is called with the breaker locked and
	// must not call back into it.
	OnChange func(name string, from, to State)
}

// Breaker guards calls to one backend.
type Breaker struct {
	cfg Settings
	now func() time.Time

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	trial    bool
	stats    Snapshot
}

// Snapshot is the breaker's position and lifetime counters.
type Snapshot struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Calls    int64     `json:"calls"`
	Failures int64     `json:"failures"`
	Rejected int64     `json:"rejected"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}

// New creates a closed Breaker.
func New(cfg Settings) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Recover <= 0 {
		cfg.Recover = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Backend returns the breaker guarding the attendance backend. counts should
// exclude client errors (4xx), which are the caller's fault.
func Backend(trip int, cooldown time.Duration, counts func(error) bool, onChange func(name string, from, to State)) *Breaker {
	return New(Settings{
		Name:     "attendance-backend",
		Trip:     trip,
		Cooldown: cooldown,
		Counts:   counts,
		OnChange: onChange,
	})
}

// Execute runs fn unless the breaker rejects it, and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(trial, err)
	return err
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.move(StateHalfOpen)
	}
	switch b.state {
	case StateOpen:
		b.stats.Rejected++
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.trial {
			b.stats.Rejected++
			return false, ErrTooManyRequests
		}
		b.trial = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Calls++
	if trial {
		b.trial = false
	}

	failed := err != nil
	if failed && b.cfg.Counts != nil {
		failed = b.cfg.Counts(err)
	}
	if failed {
		b.stats.Failures++
	}

	switch {
	case b.state == StateHalfOpen && failed:
		b.trip()
	case b.state == StateHalfOpen:
		b.streak++
		if b.streak >= b.cfg.Recover {
			b.move(StateClosed)
		}
	case b.state == StateClosed && failed:
		b.streak++
		if b.streak >= b.cfg.Trip {
			b.trip()
		}
	case b.state == StateClosed:
		b.streak = 0
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.move(StateOpen)
}

func (b *Breaker) move(to State) {
	from := b.state
	b.state = to
	b.streak = 0
	b.trial = false
	if from != to && b.cfg.OnChange != nil {
		b.cfg.OnChange(b.cfg.Name, from, to)
	}
}

// State returns the current position. An open breaker past its cooldown
// still reports open until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current position and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.Name = b.cfg.Name
	s.State = b.state.String()
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}
