package rewards

import (
	"context"
	"sync"
	"time"

	"github.com/uptime-rewards/internal/logging"
)

// TierAwarder grants tier rewards automatically as total points cross
// thresholds. At most one award per wallet is in flight in this process.
type TierAwarder struct {
	store   Store
	granter Granter
	ladder  Ladder
	logger  *logging.Logger
	timeout time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
	claimed  map[string]int
}

// NewTierAwarder creates a tier awarder. A nil granter applies grants directly.
func NewTierAwarder(store Store, granter Granter, logger *logging.Logger) *TierAwarder {
	if granter == nil {
		granter = DirectGranter{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TierAwarder{
		store:    store,
		granter:  granter,
		ladder:   TierLadder,
		logger:   logger.WithField("component", "tier_awarder"),
		timeout:  10 * time.Second,
		inFlight: make(map[string]bool),
		claimed:  make(map[string]int),
	}
}

// SetGranter replaces the granter. It must be called before the awarder is used.
func (a *TierAwarder) SetGranter(g Granter) {
	a.granter = g
}

// Notify is the reactive entry point called on every counter change. It
// returns immediately; an award, when one may be due, runs in the background.
func (a *TierAwarder) Notify(wallet string, total int64) {
	a.mu.Lock()
	claimed, known := a.claimed[wallet]
	busy := a.inFlight[wallet]
	a.mu.Unlock()

	if busy || (known && a.ladder.ReachedLevel(total) <= claimed) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.Award(ctx, wallet, total); err != nil {
			a.logger.WithWallet(wallet).WithError(err).Warn("Tier auto-award failed")
		}
	}()
}

// Award re-reads the account and, when the reached tier is above the stored
// claimed tier, grants the summed rewards of every level in between. total
// is the caller's view of the points, which may be ahead of the store.
func (a *TierAwarder) Award(ctx context.Context, wallet string, total int64) (Grant, error) {
	a.mu.Lock()
	if a.inFlight[wallet] {
		a.mu.Unlock()
		return Grant{}, nil
	}
	a.inFlight[wallet] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.inFlight, wallet)
		a.mu.Unlock()
	}()

	var grant Grant
	_, err := a.granter.Grant(ctx, wallet, func(ctx context.Context) (int64, error) {
		acct, err := a.store.Get(ctx, wallet)
		if err != nil {
			return 0, err
		}

		metric := acct.TotalPoints
		if total > metric {
			metric = total
		}
		reached := a.ladder.ReachedLevel(metric)
		if reached <= acct.TierLevelClaimed {
			a.remember(wallet, acct.TierLevelClaimed)
			grant.Level = acct.TierLevelClaimed
			return 0, nil
		}

		reward := a.ladder.CumulativeReward(acct.TierLevelClaimed, reached)
		ok, err := a.store.ClaimTier(ctx, wallet, acct.TierLevelClaimed, reached, reward)
		if err != nil {
			return 0, err
		}
		if !ok {
			// another award won the race; the next notification re-reads
			a.forget(wallet)
			return 0, nil
		}

		a.remember(wallet, reached)
		grant = Grant{Level: reached, Points: reward, Claimed: true}
		return reward, nil
	})
	if err != nil {
		return Grant{}, err
	}

	if grant.Claimed {
		a.logger.WithWallet(wallet).WithFields(map[string]interface{}{
			"level":  grant.Level,
			"reward": grant.Points,
		}).Info("Tier reward granted")
	}
	return grant, nil
}

// Forget drops the cached claimed level, e.g. after an admin overwrite.
func (a *TierAwarder) Forget(wallet string) {
	a.forget(wallet)
}

func (a *TierAwarder) remember(wallet string, level int) {
	a.mu.Lock()
	a.claimed[wallet] = level
	a.mu.Unlock()
}

func (a *TierAwarder) forget(wallet string) {
	a.mu.Lock()
	delete(a.claimed, wallet)
	a.mu.Unlock()
}

// TierProgress describes where an account sits on the tier ladder.
type TierProgress struct {
	Reached      int    `json:"reached"`
	ReachedName  string `json:"reachedName"`
	Claimed      int    `json:"claimed"`
	TierPoints   int64  `json:"tierPoints"`
	NextLevel    int    `json:"nextLevel,omitempty"`
	NextName     string `json:"nextName,omitempty"`
	NextAt       int64  `json:"nextAt,omitempty"`
	PointsToNext int64  `json:"pointsToNext,omitempty"`
}

// Progress computes tier progress for the given total and claimed level.
func (l Ladder) Progress(total int64, claimed int, tierPoints int64) TierProgress {
	reached := l.ReachedLevel(total)
	p := TierProgress{Reached: reached, Claimed: claimed, TierPoints: tierPoints}
	if s, ok := l.Step(reached); ok {
		p.ReachedName = s.Name
	}
	if next, ok := l.Next(reached); ok {
		p.NextLevel = next.Level
		p.NextName = next.Name
		p.NextAt = next.Threshold
		p.PointsToNext = next.Threshold - total
	}
	return p
}
