// Package worker runs the background loops of the rewards server.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uptime-rewards/internal/logging"
)

// Reaper disposes hosted sessions whose client went quiet.
type Reaper interface {
	Reap(ctx context.Context, idle time.Duration) int
}

// SessionReaper periodically disposes idle session controllers. Disposal
// flushes the controller, so a reaped session loses nothing: the next load
// replays the gap from the last persisted tick.
type SessionReaper struct {
	sessions    Reaper
	interval    time.Duration
	idleTimeout time.Duration
	logger      *logging.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	lastRun time.Time
	reaped  int
}

// SessionReaperConfig holds configuration for a session reaper
type SessionReaperConfig struct {
	Sessions    Reaper
	Interval    time.Duration
	IdleTimeout time.Duration
	Logger      *logging.Logger
}

// NewSessionReaper creates a new session reaper
func NewSessionReaper(cfg *SessionReaperConfig) (*SessionReaper, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("sessions cannot be nil")
	}
	if cfg.IdleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive, got %v", cfg.IdleTimeout)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &SessionReaper{
		sessions:    cfg.Sessions,
		interval:    interval,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger.WithField("component", "session_reaper"),
	}, nil
}

// Start begins the reaping loop
func (w *SessionReaper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("session reaper is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.WithFields(map[string]interface{}{
		"interval":    w.interval.String(),
		"idleTimeout": w.idleTimeout.String(),
	}).Info("Starting session reaper")

	go w.loop(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop gracefully stops the reaper
func (w *SessionReaper) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("session reaper is not running")
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.Info("Session reaper stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Session reaper stop timed out")
		return ctx.Err()
	}
}

// RunOnce reaps idle sessions immediately and returns how many were disposed.
func (w *SessionReaper) RunOnce(ctx context.Context) int {
	n := w.sessions.Reap(ctx, w.idleTimeout)

	w.mu.Lock()
	w.lastRun = time.Now()
	w.reaped += n
	w.mu.Unlock()

	if n > 0 {
		w.logger.WithField("sessions", n).Info("Reaped idle sessions")
	}
	return n
}

// Reaped returns the number of sessions disposed since the reaper was created.
func (w *SessionReaper) Reaped() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reaped
}

func (w *SessionReaper) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Context cancelled")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}
