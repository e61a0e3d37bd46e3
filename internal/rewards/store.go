package rewards

import (
	"context"

	"github.com/uptime-rewards/internal/models"
)

// Store is the slice of the account store the claim engines use. Claims are
// compare-and-set on the persisted claimed level so a lost race is a no-op.
type Store interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
	ClaimTier(ctx context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error)
	ClaimReferralBonus(ctx context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error)
	CompleteTask(ctx context.Context, wallet, taskID string, points int64) (bool, error)
	ReferredAccounts(ctx context.Context, code string) ([]models.ReferredAccount, error)
}

// ApplyFunc performs a grant against the store and returns the points added.
type ApplyFunc func(ctx context.Context) (int64, error)

// Granter runs a grant so that a live session for the same wallet accounts
// for the added points exactly once.
type Granter interface {
	Grant(ctx context.Context, wallet string, apply ApplyFunc) (int64, error)
}

// DirectGranter applies grants with no live session to reconcile.
type DirectGranter struct{}

// Grant implements Granter.
func (DirectGranter) Grant(ctx context.Context, _ string, apply ApplyFunc) (int64, error) {
	return apply(ctx)
}

// Grant is the outcome of one claim.
type Grant struct {
	Level  int   `json:"level"`
	Points int64 `json:"points"`
	// Claimed is false when the claim was a no-op.
	Claimed bool `json:"claimed"`
}
