// Package session hosts one reconciliation controller per wallet. A
// controller replays the gap a running session accumulated while nobody was
// watching, accrues on a heartbeat, and flushes its counters to the account
// store with a max-merge.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/uptime-rewards/internal/circuitbreaker"
	"github.com/uptime-rewards/internal/models"
)

// Store is the slice of the account store a controller reads and writes.
type Store interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
	ReadCounters(ctx context.Context, wallet string) (models.Counters, error)
	WriteCounters(ctx context.Context, wallet string, c models.Counters, seenAt time.Time) (models.Counters, bool, error)
	SetSession(ctx context.Context, wallet string, running bool, startedAt *time.Time, seenAt time.Time) error
}

// TickStore keeps the last accounted instant of a running session so that a
// reload resumes accrual where the previous controller stopped. It is a
// cache, never authoritative.
type TickStore interface {
	Get(ctx context.Context, wallet string) (time.Time, bool, error)
	Set(ctx context.Context, wallet string, tick time.Time) error
	Clear(ctx context.Context, wallet string) error
}

// MemoryTickStore is a process-local TickStore.
type MemoryTickStore struct {
	mu    sync.Mutex
	ticks map[string]time.Time
}

// NewMemoryTickStore creates an empty tick store.
func NewMemoryTickStore() *MemoryTickStore {
	return &MemoryTickStore{ticks: make(map[string]time.Time)}
}

// Get implements TickStore.
func (s *MemoryTickStore) Get(_ context.Context, wallet string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticks[wallet]
	if !ok || t.UnixMilli() <= 0 {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Set implements TickStore.
func (s *MemoryTickStore) Set(_ context.Context, wallet string, tick time.Time) error {
	s.mu.Lock()
	s.ticks[wallet] = tick
	s.mu.Unlock()
	return nil
}

// Clear implements TickStore.
func (s *MemoryTickStore) Clear(_ context.Context, wallet string) error {
	s.mu.Lock()
	delete(s.ticks, wallet)
	s.mu.Unlock()
	return nil
}

// GuardedTickStore puts a circuit breaker in front of a TickStore. The
// heartbeat writes a tick every interval, so an unreachable cache would
// otherwise cost a timeout per tick per session.
type GuardedTickStore struct {
	inner   TickStore
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedTickStore wraps inner with breaker.
func NewGuardedTickStore(inner TickStore, breaker *circuitbreaker.CircuitBreaker) *GuardedTickStore {
	return &GuardedTickStore{inner: inner, breaker: breaker}
}

// Get implements TickStore.
func (s *GuardedTickStore) Get(ctx context.Context, wallet string) (tick time.Time, ok bool, err error) {
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		tick, ok, err = s.inner.Get(ctx, wallet)
		return err
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return tick, ok, nil
}

// Set implements TickStore.
func (s *GuardedTickStore) Set(ctx context.Context, wallet string, tick time.Time) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.Set(ctx, wallet, tick)
	})
}

// Clear implements TickStore.
func (s *GuardedTickStore) Clear(ctx context.Context, wallet string) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.inner.Clear(ctx, wallet)
	})
}
