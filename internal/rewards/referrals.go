package rewards

import (
	"context"
	"sync"

	"github.com/uptime-rewards/internal/duration"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/models"
)

// Annotate fills Hours and Completed on each referred account from its stored
// elapsed time and returns the aggregate counts.
func Annotate(accounts []models.ReferredAccount, completedHours float64) models.ReferralStats {
	var stats models.ReferralStats
	for i := range accounts {
		h := duration.ParseHoursString(accounts[i].ElapsedHuman)
		accounts[i].Hours = duration.RoundHours(h)
		accounts[i].Completed = h >= completedHours
		stats.Total++
		if accounts[i].Completed {
			stats.Completed++
		} else {
			stats.Pending++
		}
	}
	return stats
}

// ReferralStatus is the claim state an account sees for its referrals.
type ReferralStatus struct {
	Code            string               `json:"code,omitempty"`
	Stats           models.ReferralStats `json:"stats"`
	ClaimedLevel    int                  `json:"claimedLevel"`
	ReachedLevel    int                  `json:"reachedLevel"`
	ClaimableLevel  int                  `json:"claimableLevel"`
	ClaimablePoints int64                `json:"claimablePoints"`
	ReferralPoints  int64                `json:"referralPoints"`
	NextLevel       int                  `json:"nextLevel,omitempty"`
	NextNeed        int64                `json:"nextNeed,omitempty"`
	NextPoints      int64                `json:"nextPoints,omitempty"`
}

// ReferralClaimer runs the manual referral bonus claim. A claim grants the
// reward of the single highest reached level, not the levels skipped on the
// way there.
type ReferralClaimer struct {
	store          Store
	granter        Granter
	ladder         Ladder
	completedHours float64
	logger         *logging.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewReferralClaimer creates a referral claimer.
func NewReferralClaimer(store Store, granter Granter, completedHours float64, logger *logging.Logger) *ReferralClaimer {
	if granter == nil {
		granter = DirectGranter{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ReferralClaimer{
		store:          store,
		granter:        granter,
		ladder:         ReferralLadder,
		completedHours: completedHours,
		logger:         logger.WithField("component", "referral_claimer"),
		inFlight:       make(map[string]bool),
	}
}

// SetGranter replaces the granter. It must be called before the claimer is used.
func (c *ReferralClaimer) SetGranter(g Granter) {
	c.granter = g
}

// Stats aggregates the referred accounts of code.
func (c *ReferralClaimer) Stats(ctx context.Context, code string) (models.ReferralStats, []models.ReferredAccount, error) {
	if code == "" {
		return models.ReferralStats{}, []models.ReferredAccount{}, nil
	}
	referred, err := c.store.ReferredAccounts(ctx, code)
	if err != nil {
		return models.ReferralStats{}, nil, err
	}
	return Annotate(referred, c.completedHours), referred, nil
}

// Status reports the referral claim state of wallet.
func (c *ReferralClaimer) Status(ctx context.Context, wallet string) (ReferralStatus, error) {
	acct, err := c.store.Get(ctx, wallet)
	if err != nil {
		return ReferralStatus{}, err
	}

	var code string
	if acct.ReferralCode != nil {
		code = *acct.ReferralCode
	}
	stats, _, err := c.Stats(ctx, code)
	if err != nil {
		return ReferralStatus{}, err
	}

	reached := c.ladder.ReachedLevel(int64(stats.Completed))
	status := ReferralStatus{
		Code:           code,
		Stats:          stats,
		ClaimedLevel:   acct.ReferralBonusLevel,
		ReachedLevel:   reached,
		ReferralPoints: acct.ReferralPoints,
	}
	if reached > acct.ReferralBonusLevel {
		status.ClaimableLevel = reached
		status.ClaimablePoints = c.ladder.Reward(reached)
	}
	if next, ok := c.ladder.Next(reached); ok {
		status.NextLevel = next.Level
		status.NextNeed = next.Threshold
		status.NextPoints = next.Reward
	}
	return status, nil
}

// Claim grants the reward of the highest reached referral level when it is
// above the stored claimed level. Re-claiming an already claimed level is a
// no-op.
func (c *ReferralClaimer) Claim(ctx context.Context, wallet string) (Grant, error) {
	c.mu.Lock()
	if c.inFlight[wallet] {
		c.mu.Unlock()
		return Grant{}, nil
	}
	c.inFlight[wallet] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, wallet)
		c.mu.Unlock()
	}()

	var grant Grant
	_, err := c.granter.Grant(ctx, wallet, func(ctx context.Context) (int64, error) {
		acct, err := c.store.Get(ctx, wallet)
		if err != nil {
			return 0, err
		}
		grant.Level = acct.ReferralBonusLevel
		if acct.ReferralCode == nil {
			return 0, nil
		}

		stats, _, err := c.Stats(ctx, *acct.ReferralCode)
		if err != nil {
			return 0, err
		}
		reached := c.ladder.ReachedLevel(int64(stats.Completed))
		if reached <= acct.ReferralBonusLevel {
			return 0, nil
		}

		reward := c.ladder.Reward(reached)
		ok, err := c.store.ClaimReferralBonus(ctx, wallet, acct.ReferralBonusLevel, reached, reward)
		if err != nil || !ok {
			return 0, err
		}
		grant = Grant{Level: reached, Points: reward, Claimed: true}
		return reward, nil
	})
	if err != nil {
		return Grant{}, err
	}

	if grant.Claimed {
		c.logger.WithWallet(wallet).WithFields(map[string]interface{}{
			"level":  grant.Level,
			"reward": grant.Points,
		}).Info("Referral bonus claimed")
	}
	return grant, nil
}
