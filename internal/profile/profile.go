// Package profile manages the display name and email of an account. Each can
// be chosen once and must be unique across wallets.
package profile

import (
	"context"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/models"
)

// Placeholders shown until the account picks its own values. They can never
// be chosen.
const (
	DefaultUsername = "user"
	DefaultEmail    = "user@gmail.com"
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,24}$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Store is the slice of the account store profiles need.
type Store interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
	SetUsername(ctx context.Context, wallet, username string, at time.Time) error
	SetEmail(ctx context.Context, wallet, email string, at time.Time) error
}

// Update carries the fields to set. Nil fields are left alone.
type Update struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// View is the profile as shown to its owner.
type View struct {
	Wallet         string `json:"wallet"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	UsernameLocked bool   `json:"usernameLocked"`
	EmailLocked    bool   `json:"emailLocked"`
}

// Service validates and records profile changes.
type Service struct {
	store  Store
	now    func() time.Time
	logger *logging.Logger
}

// NewService creates a profile service.
func NewService(store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{store: store, now: time.Now, logger: logger.WithField("component", "profile")}
}

// ValidateUsername trims and checks a username.
func ValidateUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if strings.EqualFold(name, DefaultUsername) {
		return "", apperrors.NewInvalidParameterError("username", "choose a name other than the default")
	}
	if !usernameRe.MatchString(name) {
		return "", apperrors.NewInvalidParameterError("username", "3-24 letters, digits or underscores")
	}
	return name, nil
}

// ValidateEmail trims, lower-cases and checks an email address.
func ValidateEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == DefaultEmail {
		return "", apperrors.NewInvalidParameterError("email", "choose an address other than the default")
	}
	if !emailRe.MatchString(email) {
		return "", apperrors.NewInvalidParameterError("email", "not a valid address")
	}
	return email, nil
}

// Get returns the wallet's profile.
func (s *Service) Get(ctx context.Context, wallet string) (View, error) {
	acct, err := s.store.Get(ctx, wallet)
	if err != nil {
		return View{}, err
	}
	return viewOf(acct), nil
}

// Update validates both fields before writing either. The username is written
// first; a failure there leaves the email untouched.
func (s *Service) Update(ctx context.Context, wallet string, u Update) (View, error) {
	if u.Username == nil && u.Email == nil {
		return View{}, apperrors.NewInvalidParameterError("body", "username or email is required")
	}

	var username, email string
	var err error
	if u.Username != nil {
		if username, err = ValidateUsername(*u.Username); err != nil {
			return View{}, err
		}
	}
	if u.Email != nil {
		if email, err = ValidateEmail(*u.Email); err != nil {
			return View{}, err
		}
	}

	now := s.now()
	log := s.logger.WithWallet(wallet)
	if u.Username != nil {
		if err := s.store.SetUsername(ctx, wallet, username, now); err != nil {
			return View{}, err
		}
		log.WithField("username", username).Info("Username set")
	}
	if u.Email != nil {
		if err := s.store.SetEmail(ctx, wallet, email, now); err != nil {
			return View{}, err
		}
		log.Info("Email set")
	}
	return s.Get(ctx, wallet)
}

func viewOf(acct *models.Account) View {
	v := View{
		Wallet:         acct.Wallet,
		Username:       DefaultUsername,
		Email:          DefaultEmail,
		UsernameLocked: acct.UsernameChangedAt != nil,
		EmailLocked:    acct.EmailChangedAt != nil,
	}
	if acct.Username != nil && *acct.Username != "" {
		v.Username = *acct.Username
	}
	if acct.Email != nil && *acct.Email != "" {
		v.Email = *acct.Email
	}
	return v
}
