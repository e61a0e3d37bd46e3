// Package rewards implements the point-threshold ladders and the claim
// engines that grant their rewards exactly once per level.
package rewards

// Step is one rung of a ladder.
type Step struct {
	Level     int
	Name      string
	Threshold int64
	Reward    int64
}

// Ladder is a list of steps sorted by ascending threshold and level.
type Ladder []Step

// TierLadder is keyed on total points and awarded automatically.
var TierLadder = Ladder{
	{Level: 1, Name: "Beginner", Threshold: 0, Reward: 0},
	{Level: 2, Name: "Iron", Threshold: 5000, Reward: 500},
	{Level: 3, Name: "Bronze", Threshold: 18000, Reward: 1000},
	{Level: 4, Name: "Silver", Threshold: 94000, Reward: 1800},
	{Level: 5, Name: "Gold", Threshold: 302000, Reward: 3000},
	{Level: 6, Name: "Platinum", Threshold: 940000, Reward: 5000},
	{Level: 7, Name: "Diamond", Threshold: 1450000, Reward: 10000},
	{Level: 8, Name: "Epic", Threshold: 3200000, Reward: 15000},
	{Level: 9, Name: "Master", Threshold: 5600000, Reward: 30000},
	{Level: 10, Name: "Supreme", Threshold: 8000000, Reward: 50000},
}

// ReferralLadder is keyed on completed referrals and claimed manually.
var ReferralLadder = Ladder{
	{Level: 0, Threshold: 0, Reward: 0},
	{Level: 1, Threshold: 3, Reward: 500},
	{Level: 2, Threshold: 5, Reward: 2000},
	{Level: 3, Threshold: 10, Reward: 5000},
	{Level: 4, Threshold: 20, Reward: 15000},
	{Level: 5, Threshold: 50, Reward: 50000},
	{Level: 6, Threshold: 100, Reward: 100000},
	{Level: 7, Threshold: 300, Reward: 500000},
}

// ReachedLevel returns the highest level whose threshold metric meets, or 0
// when none does.
func (l Ladder) ReachedLevel(metric int64) int {
	reached := 0
	for _, s := range l {
		if metric >= s.Threshold {
			reached = s.Level
		}
	}
	return reached
}

// Step returns the step for level.
func (l Ladder) Step(level int) (Step, bool) {
	for _, s := range l {
		if s.Level == level {
			return s, true
		}
	}
	return Step{}, false
}

// Reward returns the reward of a single level.
func (l Ladder) Reward(level int) int64 {
	s, _ := l.Step(level)
	return s.Reward
}

// CumulativeReward sums the rewards of every level in (claimed, reached].
func (l Ladder) CumulativeReward(claimed, reached int) int64 {
	var sum int64
	for _, s := range l {
		if s.Level > claimed && s.Level <= reached {
			sum += s.Reward
		}
	}
	return sum
}

// Next returns the first step above level, if any.
func (l Ladder) Next(level int) (Step, bool) {
	for _, s := range l {
		if s.Level > level {
			return s, true
		}
	}
	return Step{}, false
}
