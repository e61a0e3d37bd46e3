package rewards

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/storage"
	"github.com/uptime-rewards/internal/types"
)

// countingGranter applies grants directly and records what they added.
type countingGranter struct {
	mu     sync.Mutex
	calls  int
	points int64
}

func (g *countingGranter) Grant(ctx context.Context, _ string, apply ApplyFunc) (int64, error) {
	n, err := apply(ctx)
	g.mu.Lock()
	g.calls++
	g.points += n
	g.mu.Unlock()
	return n, err
}

func newStoreWith(t *testing.T, accts ...*models.Account) *storage.MemoryAccountStore {
	t.Helper()
	store := storage.NewMemoryAccountStore()
	for _, a := range accts {
		store.Put(a)
	}
	return store
}

func TestTierAwarder_Award(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t, &models.Account{Wallet: "w", TotalPoints: 20000})
	granter := &countingGranter{}
	awarder := NewTierAwarder(store, granter, nil)

	grant, err := awarder.Award(ctx, "w", 0)
	require.NoError(t, err)
	assert.True(t, grant.Claimed)
	assert.Equal(t, 3, grant.Level)
	assert.Equal(t, int64(1500), grant.Points)

	grant, err = awarder.Award(ctx, "w", 0)
	require.NoError(t, err)
	assert.False(t, grant.Claimed, "second award is a no-op")

	acct, err := store.Get(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, 3, acct.TierLevelClaimed)
	assert.Equal(t, int64(1500), acct.TierPoints)
	assert.Equal(t, int64(21500), acct.TotalPoints)
	assert.Equal(t, int64(1500), granter.points)
}

func TestTierAwarder_UsesObservedTotal(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t, &models.Account{Wallet: "w", TotalPoints: 100, TierLevelClaimed: 1})
	awarder := NewTierAwarder(store, nil, nil)

	// the live session has accrued past the threshold but not flushed yet
	grant, err := awarder.Award(ctx, "w", 5000)
	require.NoError(t, err)
	assert.Equal(t, 2, grant.Level)
	assert.Equal(t, int64(500), grant.Points)
}

func TestTierAwarder_Notify(t *testing.T) {
	store := newStoreWith(t, &models.Account{Wallet: "w", TotalPoints: 94000})
	awarder := NewTierAwarder(store, nil, nil)

	awarder.Notify("w", 94000)
	require.Eventually(t, func() bool {
		acct, err := store.Get(context.Background(), "w")
		return err == nil && acct.TierLevelClaimed == 4
	}, 2*time.Second, 10*time.Millisecond)

	acct, _ := store.Get(context.Background(), "w")
	assert.Equal(t, int64(0+500+1000+1800), acct.TierPoints)
}

func TestTierAwarder_ConcurrentAwardsGrantOnce(t *testing.T) {
	store := newStoreWith(t, &models.Account{Wallet: "w", TotalPoints: 302000})
	awarder := NewTierAwarder(store, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = awarder.Award(context.Background(), "w", 302000)
		}()
	}
	wg.Wait()

	acct, err := store.Get(context.Background(), "w")
	require.NoError(t, err)
	assert.Equal(t, 5, acct.TierLevelClaimed)
	assert.Equal(t, int64(500+1000+1800+3000), acct.TierPoints)
}

func TestTierAwarder_UnknownWallet(t *testing.T) {
	awarder := NewTierAwarder(storage.NewMemoryAccountStore(), nil, nil)
	_, err := awarder.Award(context.Background(), "nobody", 5000)
	assert.True(t, apperrors.HasCode(err, types.ErrCodeNotFound))
}

// seedReferrals creates a referrer with completed and pending referred accounts.
func seedReferrals(t *testing.T, completed, pending int) *storage.MemoryAccountStore {
	t.Helper()
	code := "REFCODE1"
	store := newStoreWith(t, &models.Account{Wallet: "referrer", ReferralCode: &code})
	for i := 0; i < completed; i++ {
		store.Put(&models.Account{
			Wallet:              fmt.Sprintf("done-%d", i),
			ReferredBy:          &code,
			SessionElapsedHuman: "5 days, 0 hrs, 0 mins",
		})
	}
	for i := 0; i < pending; i++ {
		store.Put(&models.Account{
			Wallet:              fmt.Sprintf("pending-%d", i),
			ReferredBy:          &code,
			SessionElapsedHuman: "4 days, 3 hrs, 59 mins",
		})
	}
	return store
}

func TestReferralClaimer_PaysHighestLevelOnly(t *testing.T) {
	ctx := context.Background()
	store := seedReferrals(t, 12, 4)
	claimer := NewReferralClaimer(store, nil, 100, nil)

	status, err := claimer.Status(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStats{Total: 16, Completed: 12, Pending: 4}, status.Stats)
	assert.Equal(t, 3, status.ClaimableLevel)
	assert.Equal(t, int64(5000), status.ClaimablePoints)
	assert.Equal(t, 4, status.NextLevel)

	grant, err := claimer.Claim(ctx, "referrer")
	require.NoError(t, err)
	assert.True(t, grant.Claimed)
	assert.Equal(t, 3, grant.Level)
	assert.Equal(t, int64(5000), grant.Points, "skipped levels are not paid")

	grant, err = claimer.Claim(ctx, "referrer")
	require.NoError(t, err)
	assert.False(t, grant.Claimed)

	acct, err := store.Get(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, 3, acct.ReferralBonusLevel)
	assert.Equal(t, int64(5000), acct.ReferralPoints)
	assert.Equal(t, int64(5000), acct.TotalPoints)
}

func TestReferralClaimer_NothingReached(t *testing.T) {
	store := seedReferrals(t, 2, 10)
	claimer := NewReferralClaimer(store, nil, 100, nil)

	grant, err := claimer.Claim(context.Background(), "referrer")
	require.NoError(t, err)
	assert.False(t, grant.Claimed)
	assert.Equal(t, 0, grant.Level)
}

func TestReferralClaimer_NoCode(t *testing.T) {
	store := newStoreWith(t, &models.Account{Wallet: "w"})
	claimer := NewReferralClaimer(store, nil, 100, nil)

	status, err := claimer.Status(context.Background(), "w")
	require.NoError(t, err)
	assert.Zero(t, status.Stats.Total)

	grant, err := claimer.Claim(context.Background(), "w")
	require.NoError(t, err)
	assert.False(t, grant.Claimed)
}

func TestAnnotate(t *testing.T) {
	accounts := []models.ReferredAccount{
		{Wallet: "a", ElapsedHuman: "4 days, 4 hrs, 0 mins"},
		{Wallet: "b", ElapsedHuman: "0 days, 1 hrs, 30 mins"},
		{Wallet: "c", ElapsedHuman: "garbage"},
	}
	stats := Annotate(accounts, 100)

	assert.Equal(t, models.ReferralStats{Total: 3, Completed: 1, Pending: 2}, stats)
	assert.Equal(t, 100.0, accounts[0].Hours)
	assert.True(t, accounts[0].Completed)
	assert.Equal(t, 1.5, accounts[1].Hours)
	assert.Equal(t, 0.0, accounts[2].Hours)
}

func TestTaskService(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t, &models.Account{Wallet: "w"})
	granter := &countingGranter{}
	tasks := NewTaskService(store, granter, nil)

	res, err := tasks.Complete(ctx, "w", "youtube")
	require.NoError(t, err)
	assert.Equal(t, TaskResult{TaskID: "youtube", Points: 5000}, res)

	res, err = tasks.Complete(ctx, "w", "youtube")
	require.NoError(t, err)
	assert.True(t, res.Duplicated)
	assert.Zero(t, res.Points)

	_, err = tasks.Complete(ctx, "w", "tiktok")
	assert.True(t, apperrors.HasCode(err, types.ErrCodeNotFound))

	views, err := tasks.List(ctx, "w")
	require.NoError(t, err)
	require.Len(t, views, len(TaskCatalog))
	for _, v := range views {
		assert.Equal(t, v.ID == "youtube", v.Completed, v.ID)
	}

	acct, err := store.Get(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), acct.TotalPoints)
	assert.Equal(t, int64(5000), granter.points)
	assert.Equal(t, 2, granter.calls)
}
