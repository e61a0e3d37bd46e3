package storage

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/types"
)

// AccountStore is the persistence contract for account rows. Counter writes
// are max-merges guarded by the points revision; claims and task grants are
// compare-and-set so that a lost race is a no-op rather than a double grant.
type AccountStore interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
	// Upsert creates the account on first contact. referredBy is recorded
	// only at creation and only when it is another account's code.
	Upsert(ctx context.Context, wallet string, referredBy string) (*models.Account, bool, error)
	SetCountry(ctx context.Context, wallet, countryCode string) error
	SetRole(ctx context.Context, wallet string, role types.Role) error

	ReadCounters(ctx context.Context, wallet string) (models.Counters, error)
	// WriteCounters max-merges c into the row when the stored revision equals
	// c.Revision. It returns the stored counters afterwards and whether the
	// write applied.
	WriteCounters(ctx context.Context, wallet string, c models.Counters, seenAt time.Time) (models.Counters, bool, error)
	SetSession(ctx context.Context, wallet string, running bool, startedAt *time.Time, seenAt time.Time) error

	ClaimTier(ctx context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error)
	ClaimReferralBonus(ctx context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error)
	CompleteTask(ctx context.Context, wallet, taskID string, points int64) (bool, error)

	// SetUsername and SetEmail record a unique profile value once. A value
	// held by another account fails with ALREADY_TAKEN, a second change with
	// ALREADY_SET.
	SetUsername(ctx context.Context, wallet, username string, at time.Time) error
	SetEmail(ctx context.Context, wallet, email string, at time.Time) error

	EnsureReferralCode(ctx context.Context, wallet string) (string, error)
	ReferredAccounts(ctx context.Context, code string) ([]models.ReferredAccount, error)
	ReferredAccountsFor(ctx context.Context, codes []string) (map[string][]models.ReferredAccount, error)

	ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error)
	SetBanned(ctx context.Context, wallet string, banned bool) error
	ResetDaily(ctx context.Context, wallet string, at time.Time) error
	SetTotalPoints(ctx context.Context, wallet string, points int64) error
}

// SortColumns maps the admin listing sort keys to columns.
var SortColumns = map[string]string{
	"wallet":       "wallet",
	"role":         "role",
	"total_points": "total_points",
	"daily_points": "daily_points",
	"country_code": "country_code",
	"last_seen_at": "last_seen_at",
	"is_banned":    "is_banned",
}

// DefaultSort is the listing order when none or an unknown key is given.
const DefaultSort = "last_seen_at"

const referralCodeLength = 8

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
}

// mergeDaily picks the daily counter for a max-merge: the side on the newer
// day wins outright, the same day takes the larger count.
func mergeDaily(storedDaily int64, storedReset time.Time, daily int64, reset time.Time) (int64, time.Time) {
	switch {
	case reset.After(storedReset):
		return daily, reset
	case storedReset.After(reset):
		return storedDaily, storedReset
	case daily > storedDaily:
		return daily, storedReset
	default:
		return storedDaily, storedReset
	}
}

// pointsQuery reads a free-text listing query as an exact points value. It
// accepts integral numbers in any float syntax that fit in an int64.
func pointsQuery(q string) (int64, bool) {
	n, err := strconv.ParseFloat(q, 64)
	if err != nil || n != math.Trunc(n) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63
	if n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
