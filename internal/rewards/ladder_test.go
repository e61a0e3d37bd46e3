package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierLadder_ReachedLevel(t *testing.T) {
	tests := []struct {
		total int64
		want  int
	}{
		{0, 1},
		{4999, 1},
		{5000, 2},
		{17999, 2},
		{18000, 3},
		{94000, 4},
		{301999, 4},
		{302000, 5},
		{940000, 6},
		{1450000, 7},
		{3200000, 8},
		{5600000, 9},
		{8000000, 10},
		{1 << 40, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierLadder.ReachedLevel(tt.total), "total %d", tt.total)
	}
}

func TestReferralLadder_ReachedLevel(t *testing.T) {
	tests := []struct {
		completed int64
		want      int
	}{
		{0, 0},
		{2, 0},
		{3, 1},
		{5, 2},
		{12, 3},
		{20, 4},
		{50, 5},
		{100, 6},
		{299, 6},
		{300, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReferralLadder.ReachedLevel(tt.completed), "completed %d", tt.completed)
	}
}

func TestLadder_CumulativeReward(t *testing.T) {
	assert.Equal(t, int64(0), TierLadder.CumulativeReward(0, 1))
	assert.Equal(t, int64(500), TierLadder.CumulativeReward(1, 2))
	assert.Equal(t, int64(1500), TierLadder.CumulativeReward(0, 3))
	assert.Equal(t, int64(1800+3000), TierLadder.CumulativeReward(3, 5))
	assert.Equal(t, int64(0), TierLadder.CumulativeReward(5, 5))
	assert.Equal(t, int64(116300), TierLadder.CumulativeReward(0, 10))
}

func TestLadder_Next(t *testing.T) {
	next, ok := TierLadder.Next(2)
	assert.True(t, ok)
	assert.Equal(t, "Bronze", next.Name)

	_, ok = TierLadder.Next(10)
	assert.False(t, ok)

	assert.Equal(t, int64(5000), ReferralLadder.Reward(3))
	assert.Equal(t, int64(0), ReferralLadder.Reward(42))
}

func TestLadder_Progress(t *testing.T) {
	p := TierLadder.Progress(6000, 2, 500)
	assert.Equal(t, 2, p.Reached)
	assert.Equal(t, "Iron", p.ReachedName)
	assert.Equal(t, 3, p.NextLevel)
	assert.Equal(t, int64(18000), p.NextAt)
	assert.Equal(t, int64(12000), p.PointsToNext)

	top := TierLadder.Progress(9000000, 10, 0)
	assert.Equal(t, "Supreme", top.ReachedName)
	assert.Zero(t, top.NextLevel)
}
