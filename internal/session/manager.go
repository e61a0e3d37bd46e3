package session

import (
	"context"
	"sync"
	"time"

	"github.com/uptime-rewards/internal/cutoff"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/rewards"
)

type entry struct {
	ready    chan struct{}
	ctrl     *Controller
	err      error
	lastSeen time.Time
}

// Manager hosts at most one controller per wallet in this process.
type Manager struct {
	store    Store
	ticks    TickStore
	cal      cutoff.Calculator
	opts     Options
	onChange ChangeFunc
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a session manager. onChange is handed to every
// controller it creates.
func NewManager(store Store, ticks TickStore, cal cutoff.Calculator, opts Options, onChange ChangeFunc, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		store:    store,
		ticks:    ticks,
		cal:      cal,
		opts:     opts.withDefaults(),
		onChange: onChange,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

var _ rewards.Granter = (*Manager)(nil)

// Open returns the wallet's controller, loading it on first use. Concurrent
// opens for the same wallet share one load.
func (m *Manager) Open(ctx context.Context, wallet string) (*Controller, error) {
	m.mu.Lock()
	if e, ok := m.sessions[wallet]; ok {
		m.mu.Unlock()
		<-e.ready
		if e.err != nil {
			return nil, e.err
		}
		m.Touch(wallet)
		return e.ctrl, nil
	}
	e := &entry{ready: make(chan struct{}), lastSeen: m.opts.Now()}
	m.sessions[wallet] = e
	m.mu.Unlock()

	ctrl := NewController(wallet, m.store, m.ticks, m.cal, m.opts, m.onChange, m.logger)
	if err := ctrl.Load(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, wallet)
		m.mu.Unlock()
		e.err = err
		close(e.ready)
		return nil, err
	}
	e.ctrl = ctrl
	close(e.ready)
	return ctrl, nil
}

// Get returns a loaded controller without loading one.
func (m *Manager) Get(wallet string) (*Controller, bool) {
	m.mu.Lock()
	e, ok := m.sessions[wallet]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.ready
	if e.err != nil {
		return nil, false
	}
	return e.ctrl, true
}

// Touch records client activity for the idle reaper.
func (m *Manager) Touch(wallet string) {
	m.mu.Lock()
	if e, ok := m.sessions[wallet]; ok {
		e.lastSeen = m.opts.Now()
	}
	m.mu.Unlock()
}

// Len returns the number of hosted controllers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close disposes the wallet's controller, if any.
func (m *Manager) Close(ctx context.Context, wallet string) {
	m.mu.Lock()
	e, ok := m.sessions[wallet]
	if ok {
		delete(m.sessions, wallet)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	<-e.ready
	if e.ctrl != nil {
		e.ctrl.Dispose(ctx)
	}
}

// Evict stops the wallet's session, if one is hosted, and disposes it.
func (m *Manager) Evict(ctx context.Context, wallet string) {
	if ctrl, ok := m.Get(wallet); ok {
		_ = ctrl.Stop(ctx)
	}
	m.Close(ctx, wallet)
}

// Refresh flushes a hosted controller so it picks up an overwrite made
// directly in the store.
func (m *Manager) Refresh(ctx context.Context, wallet string) {
	if ctrl, ok := m.Get(wallet); ok {
		_ = ctrl.Flush(ctx)
	}
}

// Reap disposes every controller whose client has been silent for longer
// than idle and returns how many it disposed.
func (m *Manager) Reap(ctx context.Context, idle time.Duration) int {
	deadline := m.opts.Now().Add(-idle)

	m.mu.Lock()
	var stale []string
	for wallet, e := range m.sessions {
		if e.lastSeen.Before(deadline) {
			stale = append(stale, wallet)
		}
	}
	m.mu.Unlock()

	for _, wallet := range stale {
		m.Close(ctx, wallet)
	}
	return len(stale)
}

// DisposeAll disposes every controller. Used on shutdown.
func (m *Manager) DisposeAll(ctx context.Context) {
	m.mu.Lock()
	wallets := make([]string, 0, len(m.sessions))
	for wallet := range m.sessions {
		wallets = append(wallets, wallet)
	}
	m.mu.Unlock()

	for _, wallet := range wallets {
		m.Close(ctx, wallet)
	}
	m.logger.WithField("sessions", len(wallets)).Info("Disposed all sessions")
}

// Grant implements rewards.Granter. A hosted controller folds the grant into
// its counters; without one the grant goes straight to the store.
func (m *Manager) Grant(ctx context.Context, wallet string, apply rewards.ApplyFunc) (int64, error) {
	if ctrl, ok := m.Get(wallet); ok {
		return ctrl.Grant(ctx, apply)
	}
	return apply(ctx)
}
