package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/types"
)

// Claims is the payload of a session token.
type Claims struct {
	Wallet string     `json:"wallet"`
	Role   types.Role `json:"role"`
	// Admin marks a token issued by the admin login.
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for wallet.
func (t *TokenIssuer) Issue(wallet string, role types.Role, admin bool) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		Wallet: wallet,
		Role:   role,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError("failed to sign session", err)
	}
	return signed, expires, nil
}

// Parse verifies a token and returns its claims.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.NewUnauthorizedError("session expired")
		}
		return nil, apperrors.NewUnauthorizedError("invalid session")
	}
	if claims.Wallet == "" {
		return nil, apperrors.NewUnauthorizedError("invalid session")
	}
	return claims, nil
}
