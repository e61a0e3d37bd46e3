package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uptime-rewards/internal/config"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/types"
)

// NonceStore holds single-use login nonces.
type NonceStore interface {
	Put(ctx context.Context, wallet, nonce string, ttl time.Duration) error
	Peek(ctx context.Context, wallet string) (string, bool, error)
	// Consume deletes the nonce only if it is still the outstanding one.
	Consume(ctx context.Context, wallet, nonce string) (bool, error)
}

// AccountStore is the slice of the account store login needs.
type AccountStore interface {
	Get(ctx context.Context, wallet string) (*models.Account, error)
	Upsert(ctx context.Context, wallet string, referredBy string) (*models.Account, bool, error)
	SetCountry(ctx context.Context, wallet, countryCode string) error
}

// Challenge is what a wallet must sign.
type Challenge struct {
	Wallet  string `json:"wallet"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// LoginRequest carries a signed challenge.
type LoginRequest struct {
	Wallet       string `json:"wallet"`
	Signature    string `json:"signature"`
	ReferralCode string `json:"referralCode,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Created   bool            `json:"created"`
	Account   *models.Account `json:"account"`
}

var countryCodeRe = regexp.MustCompile(`^[A-Z]{2}$`)

// Service runs wallet-signature logins.
type Service struct {
	accounts AccountStore
	nonces   NonceStore
	tokens   *TokenIssuer
	appName  string
	nonceTTL time.Duration
	logger   *logging.Logger
}

// NewService creates the login service.
func NewService(accounts AccountStore, nonces NonceStore, tokens *TokenIssuer, cfg config.AuthConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	ttl := cfg.NonceTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		accounts: accounts,
		nonces:   nonces,
		tokens:   tokens,
		appName:  cfg.AppName,
		nonceTTL: ttl,
		logger:   logger.WithField("component", "auth"),
	}
}

// Tokens returns the session token issuer.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// IssueNonce creates a fresh login challenge for wallet, replacing any
// outstanding one.
func (s *Service) IssueNonce(ctx context.Context, rawWallet string) (*Challenge, error) {
	return s.issue(ctx, rawWallet, LoginMessage)
}

// IssueAdminNonce creates a fresh admin login challenge.
func (s *Service) IssueAdminNonce(ctx context.Context, rawWallet string) (*Challenge, error) {
	return s.issue(ctx, rawWallet, AdminLoginMessage)
}

func (s *Service) issue(ctx context.Context, rawWallet string, message func(app, nonce string) string) (*Challenge, error) {
	wallet, err := NormalizeWallet(rawWallet)
	if err != nil {
		return nil, err
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.nonces.Put(ctx, wallet, nonce, s.nonceTTL); err != nil {
		return nil, err
	}
	return &Challenge{Wallet: wallet, Nonce: nonce, Message: message(s.appName, nonce)}, nil
}

// verify checks the signature over the outstanding nonce and consumes the
// nonce only once the signature matches, so a bad signature cannot burn the
// wallet's challenge.
func (s *Service) verify(ctx context.Context, rawWallet, signature string, message func(app, nonce string) string) (string, error) {
	wallet, err := NormalizeWallet(rawWallet)
	if err != nil {
		return "", err
	}
	nonce, ok, err := s.nonces.Peek(ctx, wallet)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewUnauthorizedError("no outstanding login challenge")
	}

	signer, err := RecoverAddress(message(s.appName, nonce), signature)
	if err != nil {
		return "", err
	}
	if signer != wallet {
		s.logger.WithWallet(wallet).WithField("signer", signer).Warn("Signature does not match wallet")
		return "", apperrors.NewUnauthorizedError("signature does not match wallet")
	}

	consumed, err := s.nonces.Consume(ctx, wallet, nonce)
	if err != nil {
		return "", err
	}
	if !consumed {
		return "", apperrors.NewUnauthorizedError("no outstanding login challenge")
	}
	return wallet, nil
}

// Login verifies a signed challenge, creates the account on first contact
// and returns a session token. A referral code only applies at creation.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	wallet, err := s.verify(ctx, req.Wallet, req.Signature, LoginMessage)
	if err != nil {
		return nil, err
	}

	acct, created, err := s.accounts.Upsert(ctx, wallet, req.ReferralCode)
	if err != nil {
		return nil, err
	}
	if acct.IsBanned {
		return nil, apperrors.NewBannedError(wallet)
	}

	if cc := strings.ToUpper(strings.TrimSpace(req.CountryCode)); countryCodeRe.MatchString(cc) {
		if acct.CountryCode == nil || *acct.CountryCode != cc {
			if err := s.accounts.SetCountry(ctx, wallet, cc); err != nil {
				s.logger.WithWallet(wallet).WithError(err).Warn("Failed to record country")
			} else {
				acct.CountryCode = &cc
			}
		}
	}

	token, expires, err := s.tokens.Issue(wallet, acct.Role, false)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithWallet(wallet).WithField("created", created)
	if created && acct.ReferredBy != nil {
		log = log.WithField("referred_by", *acct.ReferredBy)
	}
	log.Info("Wallet logged in")

	return &LoginResult{Token: token, ExpiresAt: expires, Created: created, Account: acct}, nil
}

// AdminLogin verifies a signed admin challenge and requires the admin role.
func (s *Service) AdminLogin(ctx context.Context, rawWallet, signature string) (*LoginResult, error) {
	wallet, err := s.verify(ctx, rawWallet, signature, AdminLoginMessage)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, wallet)
	if err != nil {
		if apperrors.HasCode(err, types.ErrCodeNotFound) {
			return nil, apperrors.NewForbiddenError("not an admin")
		}
		return nil, err
	}
	if acct.Role != types.RoleAdmin {
		return nil, apperrors.NewForbiddenError("not an admin")
	}

	token, expires, err := s.tokens.Issue(wallet, acct.Role, true)
	if err != nil {
		return nil, err
	}
	s.logger.WithWallet(wallet).Info("Admin logged in")
	return &LoginResult{Token: token, ExpiresAt: expires, Account: acct}, nil
}

// Authenticate verifies a session token.
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}
