package session

import (
	"context"
	"sync"
	"time"

	"github.com/uptime-rewards/internal/accrual"
	"github.com/uptime-rewards/internal/cutoff"
	"github.com/uptime-rewards/internal/duration"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/rewards"
	"github.com/uptime-rewards/internal/types"
)

// Options tunes the controller timers. A non-positive interval disables the
// corresponding timer; the operation can still be driven by calling Tick or
// Flush directly.
type Options struct {
	Heartbeat     time.Duration
	Debounce      time.Duration
	FlushInterval time.Duration
	// IOTimeout bounds each store call made from a timer.
	IOTimeout time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.IOTimeout <= 0 {
		o.IOTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ChangeFunc observes the total after every counter change.
type ChangeFunc func(wallet string, total int64)

// Snapshot is a point-in-time view of a controller.
type Snapshot struct {
	Wallet       string             `json:"wallet"`
	State        types.SessionState `json:"state"`
	Visibility   types.Visibility   `json:"visibility"`
	Running      bool               `json:"running"`
	StartedAt    *time.Time         `json:"startedAt,omitempty"`
	LastTick     *time.Time         `json:"lastTick,omitempty"`
	TotalPoints  int64              `json:"totalPoints"`
	DailyPoints  int64              `json:"dailyPoints"`
	LastResetAt  *time.Time         `json:"lastResetAt,omitempty"`
	ElapsedMs    int64              `json:"sessionElapsedMs"`
	ElapsedHuman string             `json:"sessionElapsedHuman"`
	NextCutoff   time.Time          `json:"nextCutoff"`
}

// Controller reconciles one wallet's running session with the account store.
//
// flushMu serializes flushes and grants so that points added to the store by
// a grant are accounted exactly once. mu guards the in-memory state and is
// never held across store calls.
type Controller struct {
	wallet   string
	store    Store
	ticks    TickStore
	cal      cutoff.Calculator
	opts     Options
	onChange ChangeFunc
	logger   *logging.Logger

	flushMu sync.Mutex

	mu         sync.Mutex
	state      types.SessionState
	visibility types.Visibility
	banned     bool
	running    bool
	startedAt  *time.Time
	lastTick   time.Time
	local      models.Counters
	synced     models.Counters
	dirty      bool
	disposed   bool

	debounce *time.Timer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewController creates a controller. It does nothing until Load.
func NewController(wallet string, store Store, ticks TickStore, cal cutoff.Calculator, opts Options, onChange ChangeFunc, logger *logging.Logger) *Controller {
	if ticks == nil {
		ticks = NewMemoryTickStore()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Controller{
		wallet:     wallet,
		store:      store,
		ticks:      ticks,
		cal:        cal,
		opts:       opts.withDefaults(),
		onChange:   onChange,
		logger:     logger.WithField("component", "session").WithWallet(wallet),
		state:      types.StateIdle,
		visibility: types.VisibilityVisible,
	}
}

// Wallet returns the wallet the controller reconciles.
func (c *Controller) Wallet() string {
	return c.wallet
}

// Load reads the account, applies a pending daily rollover and, when the
// account says a session is running, replays the gap since the session was
// last accounted and starts the heartbeat.
func (c *Controller) Load(ctx context.Context) error {
	acct, err := c.store.Get(ctx, c.wallet)
	if err != nil {
		return err
	}
	now := c.opts.Now()

	c.mu.Lock()
	c.local = acct.Counters()
	c.synced = c.local
	c.banned = acct.IsBanned
	c.running = acct.SessionIsRunning && !acct.IsBanned
	c.startedAt = acct.SessionStartedAt
	if cut, ok := c.cal.ShouldRollover(now, c.local.LastResetAt); ok {
		c.local.Daily = 0
		c.local.LastResetAt = cut
		c.dirty = true
	}
	running := c.running
	if running {
		c.state = types.StateBootstrapping
	}
	c.mu.Unlock()

	if running {
		origin := c.catchUpOrigin(ctx, acct, now)
		c.mu.Lock()
		c.lastTick = origin
		c.mu.Unlock()
		c.logger.WithField("origin", origin).Info("Replaying running session")

		c.Tick(ctx)

		c.mu.Lock()
		c.state = types.StateLive
		c.mu.Unlock()
		c.startTimers()
		return nil
	}

	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		c.scheduleSave()
	}
	return nil
}

// catchUpOrigin picks where the replay starts: the cached last tick, then
// the account's last seen time, then the session start, then now.
func (c *Controller) catchUpOrigin(ctx context.Context, acct *models.Account, now time.Time) time.Time {
	origin := now
	tick, ok, err := c.ticks.Get(ctx, c.wallet)
	switch {
	case err != nil:
		c.logger.WithError(err).Warn("Failed to read last tick")
		fallthrough
	case !ok:
		if acct.LastSeenAt != nil {
			origin = *acct.LastSeenAt
		} else if acct.SessionStartedAt != nil {
			origin = *acct.SessionStartedAt
		}
	default:
		origin = tick
	}
	if origin.After(now) {
		return now
	}
	return origin
}

// Start begins a new session at now.
func (c *Controller) Start(ctx context.Context) error {
	now := c.opts.Now()

	c.mu.Lock()
	if c.banned {
		c.mu.Unlock()
		return apperrors.NewBannedError(c.wallet)
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	started := now
	c.running = true
	c.startedAt = &started
	c.lastTick = now
	c.state = types.StateLive
	c.mu.Unlock()

	if err := c.ticks.Set(ctx, c.wallet, now); err != nil {
		c.logger.WithError(err).Warn("Failed to store last tick")
	}
	if err := c.store.SetSession(ctx, c.wallet, true, &started, now); err != nil {
		c.logger.WithError(err).Warn("Failed to persist session start")
	}
	c.startTimers()
	c.logger.Info("Session started")
	return nil
}

// Stop accrues up to now, flushes and ends the session.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return nil
	}

	c.Tick(ctx)
	c.stopTimers()

	c.mu.Lock()
	c.running = false
	c.startedAt = nil
	c.state = types.StateStopped
	c.cancelDebounceLocked()
	c.mu.Unlock()

	_ = c.Flush(ctx)

	if err := c.ticks.Clear(ctx, c.wallet); err != nil {
		c.logger.WithError(err).Warn("Failed to clear last tick")
	}
	if err := c.store.SetSession(ctx, c.wallet, false, nil, c.opts.Now()); err != nil {
		c.logger.WithError(err).Warn("Failed to persist session stop")
	}
	c.logger.Info("Session stopped")
	return nil
}

// Tick applies a due daily rollover and accrues the running session up to
// now. It is the heartbeat body.
func (c *Controller) Tick(ctx context.Context) {
	now := c.opts.Now()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	changed := false
	if cut, ok := c.cal.ShouldRollover(now, c.local.LastResetAt); ok {
		c.local.Daily = 0
		c.local.LastResetAt = cut
		changed = true
	}

	running := c.running
	var cursor time.Time
	if running {
		res := accrual.Advance(c.cal, c.lastTick, now, true, accrual.DailyState{
			Points:      c.local.Daily,
			LastResetAt: c.local.LastResetAt,
		})
		c.local.Total += res.TotalDelta
		c.local.Daily = res.DailyPoints
		c.local.LastResetAt = res.LastResetAt
		c.local.ElapsedMs += res.TotalDelta * int64(time.Second/time.Millisecond)
		c.lastTick = res.Cursor
		cursor = res.Cursor
		if res.TotalDelta > 0 || res.Reset {
			changed = true
		}
	}
	if changed {
		c.dirty = true
	}
	total := c.local.Total
	c.mu.Unlock()

	if running {
		if err := c.ticks.Set(ctx, c.wallet, cursor); err != nil {
			c.logger.WithError(err).Debug("Failed to store last tick")
		}
	}
	if changed {
		c.scheduleSave()
		c.notify(total)
	}
}

// SetVisibility mirrors the client's page visibility. Becoming visible runs
// a tick at once; becoming hidden flushes at once.
func (c *Controller) SetVisibility(ctx context.Context, v types.Visibility) {
	c.mu.Lock()
	c.visibility = v
	c.mu.Unlock()

	if v == types.VisibilityHidden {
		_ = c.Flush(ctx)
		return
	}
	c.Tick(ctx)
}

// Flush reconciles the local counters with the store. Failures are logged
// and left for the next flush.
func (c *Controller) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flushLocked(ctx)
}

func (c *Controller) flushLocked(ctx context.Context) error {
	c.mu.Lock()
	snap := c.local
	synced := c.synced
	seenAt := c.opts.Now()
	if c.running {
		seenAt = c.lastTick
	}
	c.dirty = false
	c.mu.Unlock()

	server, err := c.store.ReadCounters(ctx, c.wallet)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read counters, merging over an empty baseline")
		server = models.Counters{Revision: synced.Revision}
	}

	var (
		stored  models.Counters
		applied bool
	)
	// a second attempt picks up a revision that moved during the first
	for attempt := 0; attempt < 2 && !applied; attempt++ {
		var merged models.Counters
		if server.Revision != synced.Revision {
			merged = Rebase(server, snap, synced)
		} else {
			merged = MergeCounters(server, snap)
		}
		merged.Revision = server.Revision

		stored, applied, err = c.store.WriteCounters(ctx, c.wallet, merged, seenAt)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to write counters")
			c.markDirty()
			return err
		}
		server = stored
	}
	if !applied {
		c.logger.WithField("revision", stored.Revision).Info("Counters changed underneath the flush, retrying later")
		c.markDirty()
		return nil
	}

	c.mu.Lock()
	before := c.local.Total
	c.local.Total = stored.Total + (c.local.Total - snap.Total)
	c.local.ElapsedMs = stored.ElapsedMs + (c.local.ElapsedMs - snap.ElapsedMs)
	if c.local.LastResetAt.Equal(snap.LastResetAt) {
		c.local.Daily = stored.Daily + (c.local.Daily - snap.Daily)
		c.local.LastResetAt = stored.LastResetAt
	}
	c.local.Revision = stored.Revision
	c.synced = stored
	total := c.local.Total
	c.mu.Unlock()

	if total != before {
		c.notify(total)
	}
	return nil
}

// Grant runs apply between flushes and folds the points it added into both
// the local and the synced counters, so the next flush neither drops nor
// repeats them.
func (c *Controller) Grant(ctx context.Context, apply rewards.ApplyFunc) (int64, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	n, err := apply(ctx)
	if err != nil || n == 0 {
		return n, err
	}

	c.mu.Lock()
	c.local.Total += n
	c.synced.Total += n
	total := c.local.Total
	c.mu.Unlock()

	c.notify(total)
	return n, nil
}

// Dispose stops the timers and performs a final flush. A running session
// stays running in the store so the next load replays the gap.
func (c *Controller) Dispose(ctx context.Context) {
	c.stopTimers()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.Tick(ctx)
	_ = c.Flush(ctx)

	c.mu.Lock()
	c.disposed = true
	c.cancelDebounceLocked()
	c.mu.Unlock()
}

// Snapshot returns the current view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Wallet:       c.wallet,
		State:        c.state,
		Visibility:   c.visibility,
		Running:      c.running,
		TotalPoints:  c.local.Total,
		DailyPoints:  c.local.Daily,
		ElapsedMs:    c.local.ElapsedMs,
		ElapsedHuman: duration.Format(c.local.ElapsedMs),
		NextCutoff:   c.cal.NextCutoffAfter(c.opts.Now()),
	}
	if c.startedAt != nil {
		t := *c.startedAt
		s.StartedAt = &t
	}
	if c.running && !c.lastTick.IsZero() {
		t := c.lastTick
		s.LastTick = &t
	}
	if !c.local.LastResetAt.IsZero() {
		t := c.local.LastResetAt
		s.LastResetAt = &t
	}
	return s
}

func (c *Controller) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *Controller) notify(total int64) {
	if c.onChange != nil {
		c.onChange(c.wallet, total)
	}
}

// scheduleSave arms the debounce timer unless one is already pending.
func (c *Controller) scheduleSave() {
	if c.opts.Debounce <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce != nil || c.disposed {
		return
	}
	c.debounce = time.AfterFunc(c.opts.Debounce, func() {
		c.mu.Lock()
		c.debounce = nil
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.IOTimeout)
		defer cancel()
		_ = c.Flush(ctx)
	})
}

// cancelDebounceLocked drops a pending debounced save. c.mu must be held.
func (c *Controller) cancelDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

func (c *Controller) startTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil || c.disposed {
		return
	}
	if c.opts.Heartbeat <= 0 && c.opts.FlushInterval <= 0 {
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(c.stopCh, c.doneCh)
}

func (c *Controller) stopTimers() {
	c.mu.Lock()
	stopCh, doneCh := c.stopCh, c.doneCh
	c.stopCh, c.doneCh = nil, nil
	c.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// loop drives the heartbeat and the periodic flush.
func (c *Controller) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	var heartbeat, flush <-chan time.Time
	if c.opts.Heartbeat > 0 {
		t := time.NewTicker(c.opts.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}
	if c.opts.FlushInterval > 0 {
		t := time.NewTicker(c.opts.FlushInterval)
		defer t.Stop()
		flush = t.C
	}

	for {
		select {
		case <-stopCh:
			return
		case <-heartbeat:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.IOTimeout)
			c.Tick(ctx)
			cancel()
		case <-flush:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.IOTimeout)
			if err := c.Flush(ctx); err != nil {
				c.logger.WithError(err).Debug("Periodic flush failed")
			}
			cancel()
		}
	}
}
