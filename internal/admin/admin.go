// Package admin implements the authoritative account overwrites and the
// user listing behind the admin endpoints.
package admin

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/uptime-rewards/internal/auth"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/rewards"
	"github.com/uptime-rewards/internal/storage"
	"github.com/uptime-rewards/internal/types"
)

const (
	defaultLimit = 20
	maxLimit     = 5000
	// maxPoints keeps set_points within what every client can represent exactly.
	maxPoints = 1<<53 - 1
)

// Store is the slice of the account store the admin service uses.
type Store interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
	ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error)
	ReferredAccounts(ctx context.Context, code string) ([]models.ReferredAccount, error)
	ReferredAccountsFor(ctx context.Context, codes []string) (map[string][]models.ReferredAccount, error)
	SetBanned(ctx context.Context, wallet string, banned bool) error
	ResetDaily(ctx context.Context, wallet string, at time.Time) error
	SetTotalPoints(ctx context.Context, wallet string, points int64) error
}

// Sessions lets overwrites reach hosted session controllers.
type Sessions interface {
	Refresh(ctx context.Context, wallet string)
	Evict(ctx context.Context, wallet string)
}

// TierCache forgets cached claim state after an overwrite.
type TierCache interface {
	Forget(wallet string)
}

// ActionRequest is one admin overwrite.
type ActionRequest struct {
	Wallet string            `json:"wallet"`
	Action types.AdminAction `json:"action"`
	Value  *float64          `json:"value,omitempty"`
}

// Service runs admin operations.
type Service struct {
	store          Store
	sessions       Sessions
	tiers          TierCache
	completedHours float64
	now            func() time.Time
	logger         *logging.Logger
}

// NewService creates the admin service. sessions and tiers may be nil.
func NewService(store Store, sessions Sessions, tiers TierCache, completedHours float64, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{
		store:          store,
		sessions:       sessions,
		tiers:          tiers,
		completedHours: completedHours,
		now:            time.Now,
		logger:         logger.WithField("component", "admin"),
	}
}

// FilterFromQuery builds a normalized listing filter from query parameters.
// Unknown values fall back to the defaults rather than failing.
func FilterFromQuery(q url.Values) models.UserFilter {
	f := models.UserFilter{
		Role:    strings.ToLower(strings.TrimSpace(q.Get("role"))),
		Banned:  strings.ToLower(strings.TrimSpace(q.Get("banned"))),
		Country: strings.ToUpper(strings.TrimSpace(q.Get("country"))),
		Query:   strings.TrimSpace(q.Get("q")),
		Sort:    q.Get("sortBy"),
		Desc:    q.Get("sortDir") != "asc",
		Limit:   defaultLimit,
		Page:    1,
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = n
	}
	return NormalizeFilter(f)
}

// NormalizeFilter clamps paging and replaces unknown enum values.
func NormalizeFilter(f models.UserFilter) models.UserFilter {
	if f.Limit < 1 {
		f.Limit = 1
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Role != string(types.RoleUser) && f.Role != string(types.RoleAdmin) {
		f.Role = ""
	}
	if f.Banned != "only" && f.Banned != "none" {
		f.Banned = ""
	}
	if _, ok := storage.SortColumns[f.Sort]; !ok {
		f.Sort = storage.DefaultSort
	}
	return f
}

// ListUsers returns one page of accounts with their referral aggregates.
func (s *Service) ListUsers(ctx context.Context, f models.UserFilter) (*models.UserPage, error) {
	page, err := s.store.ListUsers(ctx, NormalizeFilter(f))
	if err != nil {
		return nil, err
	}

	var codes []string
	seen := make(map[string]bool)
	for _, u := range page.Users {
		if u.ReferralCode != nil && !seen[*u.ReferralCode] {
			seen[*u.ReferralCode] = true
			codes = append(codes, *u.ReferralCode)
		}
	}
	if len(codes) == 0 {
		return page, nil
	}

	byCode, err := s.store.ReferredAccountsFor(ctx, codes)
	if err != nil {
		// the listing is still useful without the aggregates
		s.logger.WithError(err).Warn("Failed to load referral aggregates")
		return page, nil
	}
	for i := range page.Users {
		if code := page.Users[i].ReferralCode; code != nil {
			page.Users[i].Referrals = rewards.Annotate(byCode[*code], s.completedHours)
		}
	}
	return page, nil
}

// ListReferrals returns the accounts referred by wallet.
func (s *Service) ListReferrals(ctx context.Context, rawWallet string) ([]models.ReferredAccount, error) {
	wallet, err := auth.NormalizeWallet(rawWallet)
	if err != nil {
		return nil, err
	}
	owner, err := s.store.Get(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if owner.ReferralCode == nil {
		return []models.ReferredAccount{}, nil
	}
	referred, err := s.store.ReferredAccounts(ctx, *owner.ReferralCode)
	if err != nil {
		return nil, err
	}
	rewards.Annotate(referred, s.completedHours)
	return referred, nil
}

// ApplyAction performs an authoritative overwrite. Counter overwrites bump
// the account's points revision, so hosted controllers rebase on them
// instead of merging over them.
func (s *Service) ApplyAction(ctx context.Context, admin string, req ActionRequest) error {
	if req.Wallet == "" {
		return apperrors.NewInvalidParameterError("wallet", "required")
	}
	wallet, err := auth.NormalizeWallet(req.Wallet)
	if err != nil {
		return err
	}
	if !req.Action.Valid() {
		return apperrors.NewInvalidParameterError("action", "must be one of ban, unban, reset_daily, set_points")
	}

	log := s.logger.WithWallet(wallet).WithFields(map[string]interface{}{
		"admin":  admin,
		"action": string(req.Action),
	})

	switch req.Action {
	case types.ActionBan:
		if err := s.store.SetBanned(ctx, wallet, true); err != nil {
			return err
		}
		if s.sessions != nil {
			s.sessions.Evict(ctx, wallet)
		}

	case types.ActionUnban:
		if err := s.store.SetBanned(ctx, wallet, false); err != nil {
			return err
		}

	case types.ActionResetDaily:
		if err := s.store.ResetDaily(ctx, wallet, s.now()); err != nil {
			return err
		}
		if s.sessions != nil {
			s.sessions.Refresh(ctx, wallet)
		}

	case types.ActionSetPoints:
		points, err := pointsValue(req.Value)
		if err != nil {
			return err
		}
		if err := s.store.SetTotalPoints(ctx, wallet, points); err != nil {
			return err
		}
		if s.tiers != nil {
			s.tiers.Forget(wallet)
		}
		if s.sessions != nil {
			s.sessions.Refresh(ctx, wallet)
		}
		log = log.WithField("points", points)
	}

	log.Info("Admin action applied")
	return nil
}

// pointsValue validates a set_points value: finite, floored, at least 0.
func pointsValue(v *float64) (int64, error) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, apperrors.NewInvalidParameterError("value", "a finite number is required")
	}
	n := math.Floor(*v)
	if n < 0 {
		return 0, nil
	}
	if n > maxPoints {
		return 0, apperrors.NewInvalidParameterError("value", "out of range")
	}
	return int64(n), nil
}
