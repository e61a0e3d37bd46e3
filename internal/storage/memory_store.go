package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uptime-rewards/internal/duration"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/types"
)

// MemoryAccountStore is an in-process AccountStore with the same merge and
// compare-and-set semantics as the Postgres repository. It backs tests and
// single-process development runs.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	now      func() time.Time

	// ReadErr and WriteErr, when set, fail counter reads and writes.
	ReadErr  error
	WriteErr error
}

// NewMemoryAccountStore creates an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*models.Account), now: time.Now}
}

var _ AccountStore = (*MemoryAccountStore)(nil)

func copyAccount(a *models.Account) *models.Account {
	c := *a
	c.CompletedTasks = append([]string(nil), a.CompletedTasks...)
	if c.CompletedTasks == nil {
		c.CompletedTasks = []string{}
	}
	return &c
}

// Put stores a copy of acct, replacing any existing row.
func (s *MemoryAccountStore) Put(acct *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := copyAccount(acct)
	if c.Role == "" {
		c.Role = types.RoleUser
	}
	if c.SessionElapsedHuman == "" {
		c.SessionElapsedHuman = duration.Format(c.SessionElapsedMs)
	}
	s.accounts[c.Wallet] = c
}

func (s *MemoryAccountStore) lookup(wallet string) (*models.Account, error) {
	a, ok := s.accounts[wallet]
	if !ok {
		return nil, apperrors.NewNotFoundError("account", wallet)
	}
	return a, nil
}

// Get implements AccountStore.
func (s *MemoryAccountStore) Get(_ context.Context, wallet string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return nil, err
	}
	return copyAccount(a), nil
}

// Upsert implements AccountStore.
func (s *MemoryAccountStore) Upsert(_ context.Context, wallet string, referredBy string) (*models.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[wallet]; ok {
		return copyAccount(a), false, nil
	}

	now := s.now()
	a := &models.Account{
		Wallet:              wallet,
		Role:                types.RoleUser,
		SessionElapsedHuman: duration.Format(0),
		CompletedTasks:      []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	code := strings.ToUpper(strings.TrimSpace(referredBy))
	if code != "" {
		for _, other := range s.accounts {
			if other.ReferralCode != nil && *other.ReferralCode == code {
				a.ReferredBy = &code
				break
			}
		}
	}
	s.accounts[wallet] = a
	return copyAccount(a), true, nil
}

// SetCountry implements AccountStore.
func (s *MemoryAccountStore) SetCountry(_ context.Context, wallet, countryCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return err
	}
	a.CountryCode = &countryCode
	return nil
}

// SetRole implements AccountStore.
func (s *MemoryAccountStore) SetRole(_ context.Context, wallet string, role types.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[wallet]
	if !ok {
		a = &models.Account{Wallet: wallet, SessionElapsedHuman: duration.Format(0), CompletedTasks: []string{}}
		s.accounts[wallet] = a
	}
	a.Role = role
	return nil
}

// ReadCounters implements AccountStore.
func (s *MemoryAccountStore) ReadCounters(_ context.Context, wallet string) (models.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return models.Counters{}, s.ReadErr
	}
	a, err := s.lookup(wallet)
	if err != nil {
		return models.Counters{}, err
	}
	return a.Counters(), nil
}

// WriteCounters implements AccountStore.
func (s *MemoryAccountStore) WriteCounters(_ context.Context, wallet string, c models.Counters, seenAt time.Time) (models.Counters, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return models.Counters{}, false, s.WriteErr
	}
	a, err := s.lookup(wallet)
	if err != nil {
		return models.Counters{}, false, err
	}
	if a.PointsRevision != c.Revision {
		return a.Counters(), false, nil
	}

	if c.Total > a.TotalPoints {
		a.TotalPoints = c.Total
	}
	var storedReset time.Time
	if a.LastResetAt != nil {
		storedReset = *a.LastResetAt
	}
	daily, reset := mergeDaily(a.DailyPoints, storedReset, c.Daily, c.LastResetAt)
	a.DailyPoints = daily
	a.LastResetAt = nullableTime(reset)
	if c.ElapsedMs > a.SessionElapsedMs {
		a.SessionElapsedMs = c.ElapsedMs
		a.SessionElapsedHuman = duration.Format(c.ElapsedMs)
	}
	seen := seenAt
	a.LastSeenAt = &seen
	a.UpdatedAt = s.now()
	return a.Counters(), true, nil
}

// SetSession implements AccountStore.
func (s *MemoryAccountStore) SetSession(_ context.Context, wallet string, running bool, startedAt *time.Time, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	a, err := s.lookup(wallet)
	if err != nil {
		return err
	}
	a.SessionIsRunning = running
	if startedAt != nil {
		t := *startedAt
		a.SessionStartedAt = &t
	} else {
		a.SessionStartedAt = nil
	}
	seen := seenAt
	a.LastSeenAt = &seen
	return nil
}

// ClaimTier implements AccountStore.
func (s *MemoryAccountStore) ClaimTier(_ context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return false, err
	}
	if a.TierLevelClaimed != expectedLevel || level <= a.TierLevelClaimed {
		return false, nil
	}
	a.TotalPoints += reward
	a.TierPoints += reward
	a.TierLevelClaimed = level
	return true, nil
}

// ClaimReferralBonus implements AccountStore.
func (s *MemoryAccountStore) ClaimReferralBonus(_ context.Context, wallet string, expectedLevel, level int, reward int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return false, err
	}
	if a.ReferralBonusLevel != expectedLevel || level <= a.ReferralBonusLevel {
		return false, nil
	}
	a.TotalPoints += reward
	a.ReferralPoints += reward
	a.ReferralBonusLevel = level
	return true, nil
}

// CompleteTask implements AccountStore.
func (s *MemoryAccountStore) CompleteTask(_ context.Context, wallet, taskID string, points int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return false, err
	}
	if a.HasTask(taskID) {
		return false, nil
	}
	a.CompletedTasks = append(a.CompletedTasks, taskID)
	a.TotalPoints += points
	a.TaskPoints += points
	return true, nil
}

// SetUsername implements AccountStore.
func (s *MemoryAccountStore) SetUsername(_ context.Context, wallet, username string, at time.Time) error {
	return s.setOnce(wallet, "username", username, at,
		func(a *models.Account) (**string, **time.Time) { return &a.Username, &a.UsernameChangedAt })
}

// SetEmail implements AccountStore.
func (s *MemoryAccountStore) SetEmail(_ context.Context, wallet, email string, at time.Time) error {
	return s.setOnce(wallet, "email", email, at,
		func(a *models.Account) (**string, **time.Time) { return &a.Email, &a.EmailChangedAt })
}

func (s *MemoryAccountStore) setOnce(wallet, field, value string, at time.Time, fields func(*models.Account) (**string, **time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return err
	}
	val, changed := fields(a)
	if *changed != nil {
		return apperrors.NewAlreadySetError(field)
	}
	for w, other := range s.accounts {
		if w == wallet {
			continue
		}
		if v, _ := fields(other); *v != nil && strings.EqualFold(**v, value) {
			return apperrors.NewTakenError(field)
		}
	}
	v := value
	t := at
	*val = &v
	*changed = &t
	a.UpdatedAt = s.now()
	return nil
}

// EnsureReferralCode implements AccountStore.
func (s *MemoryAccountStore) EnsureReferralCode(_ context.Context, wallet string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return "", err
	}
	if a.ReferralCode != nil {
		return *a.ReferralCode, nil
	}
	for {
		code := newReferralCode()
		taken := false
		for _, other := range s.accounts {
			if other.ReferralCode != nil && *other.ReferralCode == code {
				taken = true
				break
			}
		}
		if !taken {
			a.ReferralCode = &code
			return code, nil
		}
	}
}

// ReferredAccounts implements AccountStore.
func (s *MemoryAccountStore) ReferredAccounts(ctx context.Context, code string) ([]models.ReferredAccount, error) {
	byCode, err := s.ReferredAccountsFor(ctx, []string{code})
	if err != nil {
		return nil, err
	}
	if rows := byCode[code]; rows != nil {
		return rows, nil
	}
	return []models.ReferredAccount{}, nil
}

// ReferredAccountsFor implements AccountStore.
func (s *MemoryAccountStore) ReferredAccountsFor(_ context.Context, codes []string) (map[string][]models.ReferredAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	out := make(map[string][]models.ReferredAccount)
	for _, a := range s.sortedLocked("wallet", false) {
		if a.ReferredBy == nil || !want[*a.ReferredBy] {
			continue
		}
		out[*a.ReferredBy] = append(out[*a.ReferredBy], models.ReferredAccount{
			Wallet:       a.Wallet,
			ElapsedHuman: a.SessionElapsedHuman,
			LastSeenAt:   a.LastSeenAt,
			TotalPoints:  a.TotalPoints,
		})
	}
	return out, nil
}

func matchesFilter(a *models.Account, f models.UserFilter) bool {
	if (f.Role == string(types.RoleUser) || f.Role == string(types.RoleAdmin)) && string(a.Role) != f.Role {
		return false
	}
	if f.Banned == "only" && !a.IsBanned || f.Banned == "none" && a.IsBanned {
		return false
	}
	if f.Country != "" && (a.CountryCode == nil || *a.CountryCode != f.Country) {
		return false
	}
	if f.Query != "" {
		if strings.Contains(strings.ToLower(a.Wallet), strings.ToLower(f.Query)) {
			return true
		}
		n, ok := pointsQuery(f.Query)
		return ok && (a.TotalPoints == n || a.DailyPoints == n)
	}
	return true
}

func lessBy(a, b *models.Account, key string) (less, equal bool) {
	switch key {
	case "wallet":
		return a.Wallet < b.Wallet, a.Wallet == b.Wallet
	case "role":
		return a.Role < b.Role, a.Role == b.Role
	case "total_points":
		return a.TotalPoints < b.TotalPoints, a.TotalPoints == b.TotalPoints
	case "daily_points":
		return a.DailyPoints < b.DailyPoints, a.DailyPoints == b.DailyPoints
	case "is_banned":
		return !a.IsBanned && b.IsBanned, a.IsBanned == b.IsBanned
	case "country_code":
		ac, bc := "", ""
		if a.CountryCode != nil {
			ac = *a.CountryCode
		}
		if b.CountryCode != nil {
			bc = *b.CountryCode
		}
		return ac < bc, ac == bc
	default:
		var at, bt time.Time
		if a.LastSeenAt != nil {
			at = *a.LastSeenAt
		}
		if b.LastSeenAt != nil {
			bt = *b.LastSeenAt
		}
		return at.Before(bt), at.Equal(bt)
	}
}

func (s *MemoryAccountStore) sortedLocked(key string, desc bool) []*models.Account {
	list := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}
	sort.SliceStable(list, func(i, j int) bool {
		less, equal := lessBy(list[i], list[j], key)
		if equal {
			return list[i].Wallet < list[j].Wallet
		}
		if desc {
			return !less
		}
		return less
	})
	return list
}

// ListUsers implements AccountStore.
func (s *MemoryAccountStore) ListUsers(_ context.Context, f models.UserFilter) (*models.UserPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.Sort
	if _, ok := SortColumns[key]; !ok {
		key = DefaultSort
	}

	var matched []*models.Account
	for _, a := range s.sortedLocked(key, f.Desc) {
		if matchesFilter(a, f) {
			matched = append(matched, a)
		}
	}

	page := &models.UserPage{Users: []models.AccountSummary{}, Total: int64(len(matched)), Page: f.Page, Limit: f.Limit}
	start := (f.Page - 1) * f.Limit
	for i := start; i < len(matched) && i < start+f.Limit; i++ {
		a := matched[i]
		page.Users = append(page.Users, models.AccountSummary{
			Wallet:              a.Wallet,
			Role:                a.Role,
			IsBanned:            a.IsBanned,
			CountryCode:         a.CountryCode,
			TotalPoints:         a.TotalPoints,
			DailyPoints:         a.DailyPoints,
			SessionElapsedHuman: a.SessionElapsedHuman,
			LastSeenAt:          a.LastSeenAt,
			ReferralCode:        a.ReferralCode,
		})
	}
	return page, nil
}

// SetBanned implements AccountStore.
func (s *MemoryAccountStore) SetBanned(_ context.Context, wallet string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return err
	}
	a.IsBanned = banned
	return nil
}

// ResetDaily implements AccountStore.
func (s *MemoryAccountStore) ResetDaily(_ context.Context, wallet string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return err
	}
	a.DailyPoints = 0
	a.LastResetAt = &at
	a.PointsRevision++
	return nil
}

// SetTotalPoints implements AccountStore.
func (s *MemoryAccountStore) SetTotalPoints(_ context.Context, wallet string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(wallet)
	if err != nil {
		return err
	}
	a.TotalPoints = points
	a.PointsRevision++
	return nil
}
