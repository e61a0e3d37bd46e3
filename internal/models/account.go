// Package models provides data models for the uptime rewards system.
package models

import (
	"encoding/json"
	"time"

	"github.com/uptime-rewards/internal/types"
)

// Account is the persisted row for one wallet. The wallet is the identity key.
type Account struct {
	Wallet string     `json:"wallet" db:"wallet"`
	Role   types.Role `json:"role" db:"role"`

	TotalPoints int64      `json:"totalPoints" db:"total_points"`
	DailyPoints int64      `json:"dailyPoints" db:"daily_points"`
	LastResetAt *time.Time `json:"lastResetAt,omitempty" db:"last_reset_at"`

	SessionIsRunning    bool       `json:"sessionIsRunning" db:"session_is_running"`
	SessionStartedAt    *time.Time `json:"sessionStartedAt,omitempty" db:"session_started_at"`
	SessionElapsedMs    int64      `json:"sessionElapsedMs" db:"session_elapsed_ms"`
	SessionElapsedHuman string     `json:"sessionElapsedHuman" db:"session_elapsed_human"`
	LastSeenAt          *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`

	ReferralCode       *string `json:"referralCode,omitempty" db:"referral_code"`
	ReferredBy         *string `json:"referredBy,omitempty" db:"referred_by"`
	ReferralBonusLevel int     `json:"referralBonusLevel" db:"referral_bonus_level"`
	TierLevelClaimed   int     `json:"tierLevelClaimed" db:"tier_level_claimed"`
	ReferralPoints     int64   `json:"referralPoints" db:"referral_points"`
	TierPoints         int64   `json:"tierPoints" db:"tier_points"`
	TaskPoints         int64   `json:"taskPoints" db:"task_points"`

	CompletedTasks []string `json:"completedTasks" db:"completed_tasks"`

	Username          *string    `json:"username,omitempty" db:"username"`
	Email             *string    `json:"email,omitempty" db:"email"`
	UsernameChangedAt *time.Time `json:"usernameChangedAt,omitempty" db:"username_changed_at"`
	EmailChangedAt    *time.Time `json:"emailChangedAt,omitempty" db:"email_changed_at"`

	IsBanned    bool    `json:"isBanned" db:"is_banned"`
	CountryCode *string `json:"countryCode,omitempty" db:"country_code"`

	// PointsRevision is bumped by every authoritative admin overwrite of the
	// counters. Flushes carry the revision they were based on.
	PointsRevision int64 `json:"pointsRevision" db:"points_revision"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Counters returns the accrual-owned counters of the account.
func (a *Account) Counters() Counters {
	c := Counters{
		Total:     a.TotalPoints,
		Daily:     a.DailyPoints,
		ElapsedMs: a.SessionElapsedMs,
		Revision:  a.PointsRevision,
	}
	if a.LastResetAt != nil {
		c.LastResetAt = *a.LastResetAt
	}
	return c
}

// Counters is the subset of an account the reconciler merges.
type Counters struct {
	Total       int64
	Daily       int64
	ElapsedMs   int64
	LastResetAt time.Time
	Revision    int64
}

// ParseCompletedTasks decodes the stored completed-task list. Anything that
// is not a JSON array of strings decodes to an empty list.
func ParseCompletedTasks(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var generic []interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return []string{}
	}
	tasks := make([]string, 0, len(generic))
	for _, v := range generic {
		if s, ok := v.(string); ok && s != "" {
			tasks = append(tasks, s)
		}
	}
	return tasks
}

// HasTask reports whether id is in the completed list.
func (a *Account) HasTask(id string) bool {
	for _, t := range a.CompletedTasks {
		if t == id {
			return true
		}
	}
	return false
}

// AccountSummary is one row of the admin user listing.
type AccountSummary struct {
	Wallet              string        `json:"wallet"`
	Role                types.Role    `json:"role"`
	IsBanned            bool          `json:"isBanned"`
	CountryCode         *string       `json:"countryCode,omitempty"`
	TotalPoints         int64         `json:"totalPoints"`
	DailyPoints         int64         `json:"dailyPoints"`
	SessionElapsedHuman string        `json:"sessionElapsedHuman"`
	LastSeenAt          *time.Time    `json:"lastSeenAt,omitempty"`
	ReferralCode        *string       `json:"referralCode,omitempty"`
	Referrals           ReferralStats `json:"referrals"`
}

// ReferralStats aggregates the accounts referred by one code.
type ReferralStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// ReferredAccount is one referred account as seen by its referrer.
type ReferredAccount struct {
	Wallet       string     `json:"wallet"`
	ElapsedHuman string     `json:"-"`
	Hours        float64    `json:"hours"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
	TotalPoints  int64      `json:"totalPoints"`
	Completed    bool       `json:"completed"`
}

// UserFilter selects and orders the admin user listing.
type UserFilter struct {
	Role    string
	Banned  string
	Country string
	Query   string
	Sort    string
	Desc    bool
	Page    int
	Limit   int
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users []AccountSummary `json:"users"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}
