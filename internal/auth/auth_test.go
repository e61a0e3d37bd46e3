package auth

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptime-rewards/internal/config"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/storage"
	"github.com/uptime-rewards/internal/types"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// personalSign signs message the way a browser wallet does.
func personalSign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

type testEnv struct {
	svc      *Service
	accounts *storage.MemoryAccountStore
	key      *ecdsa.PrivateKey
	wallet   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	tokens, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	accts := storage.NewMemoryAccountStore()
	nonces := storage.NewRedisNonceStore(storage.NewRedisCacheFromClient(client))
	svc := NewService(accts, nonces, tokens, config.AuthConfig{AppName: "Jharvi", NonceTTL: time.Minute}, nil)

	return &testEnv{
		svc:      svc,
		accounts: accts,
		key:      key,
		wallet:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func (e *testEnv) login(t *testing.T, req LoginRequest) (*LoginResult, error) {
	t.Helper()
	ch, err := e.svc.IssueNonce(context.Background(), strings.ToLower(e.wallet))
	require.NoError(t, err)
	req.Wallet = e.wallet
	req.Signature = personalSign(t, e.key, ch.Message)
	return e.svc.Login(context.Background(), req)
}

func TestNormalizeWallet(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lower case", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"padded", "  0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed ", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"too short", "0x1234", "", true},
		{"not hex", "0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeWallet(tt.input)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, types.ErrCodeInvalidWallet))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoverAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey).Hex()

	msg := LoginMessage("Jharvi", "abc")
	assert.Equal(t, "Jharvi Login\n\nNonce: abc", msg)

	got, err := RecoverAddress(msg, personalSign(t, key, msg))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := RecoverAddress("something else", personalSign(t, key, msg))
	require.NoError(t, err)
	assert.NotEqual(t, want, other)

	_, err = RecoverAddress(msg, "0x1234")
	assert.Error(t, err)
	_, err = RecoverAddress(msg, "not hex")
	assert.Error(t, err)
}

func TestLogin_CreatesAccountOnce(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.login(t, LoginRequest{CountryCode: "ar"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, env.wallet, res.Account.Wallet)
	require.NotNil(t, res.Account.CountryCode)
	assert.Equal(t, "AR", *res.Account.CountryCode)

	claims, err := env.svc.Authenticate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, env.wallet, claims.Wallet)
	assert.Equal(t, types.RoleUser, claims.Role)
	assert.False(t, claims.Admin)

	res, err = env.login(t, LoginRequest{})
	require.NoError(t, err)
	assert.False(t, res.Created)
}

func TestLogin_ReferralAppliesAtCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.accounts.Upsert(ctx, "0xreferrer", "")
	require.NoError(t, err)
	code, err := env.accounts.EnsureReferralCode(ctx, "0xreferrer")
	require.NoError(t, err)

	res, err := env.login(t, LoginRequest{ReferralCode: strings.ToLower(code)})
	require.NoError(t, err)
	require.NotNil(t, res.Account.ReferredBy)
	assert.Equal(t, code, *res.Account.ReferredBy)
}

func TestLogin_NonceIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.svc.IssueNonce(ctx, env.wallet)
	require.NoError(t, err)
	sig := personalSign(t, env.key, ch.Message)

	_, err = env.svc.Login(ctx, LoginRequest{Wallet: env.wallet, Signature: sig})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, LoginRequest{Wallet: env.wallet, Signature: sig})
	assert.True(t, apperrors.HasCode(err, types.ErrCodeUnauthorized), "replay rejected")
}

func TestLogin_WrongSigner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	ch, err := env.svc.IssueNonce(ctx, env.wallet)
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, LoginRequest{Wallet: env.wallet, Signature: personalSign(t, other, ch.Message)})
	assert.True(t, apperrors.HasCode(err, types.ErrCodeUnauthorized))
}

func TestLogin_BadSignatureKeepsChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, err := env.svc.IssueNonce(ctx, env.wallet)
	require.NoError(t, err)

	attacker, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, LoginRequest{Wallet: env.wallet, Signature: personalSign(t, attacker, ch.Message)})
	assert.True(t, apperrors.HasCode(err, types.ErrCodeUnauthorized))

	junk := "0x" + strings.Repeat("ab", 65)
	_, err = env.svc.Login(ctx, LoginRequest{Wallet: env.wallet, Signature: junk})
	assert.Error(t, err)

	res, err := env.svc.Login(ctx, LoginRequest{Wallet: env.wallet, Signature: personalSign(t, env.key, ch.Message)})
	require.NoError(t, err, "the owner can still answer the challenge")
	assert.True(t, res.Created)
}

func TestLogin_Banned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.accounts.Upsert(ctx, env.wallet, "")
	require.NoError(t, err)
	require.NoError(t, env.accounts.SetBanned(ctx, env.wallet, true))

	_, err = env.login(t, LoginRequest{})
	assert.True(t, apperrors.HasCode(err, types.ErrCodeBanned))
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	adminLogin := func() (*LoginResult, error) {
		ch, err := env.svc.IssueAdminNonce(ctx, env.wallet)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ch.Message, "Jharvi Admin Login"))
		return env.svc.AdminLogin(ctx, env.wallet, personalSign(t, env.key, ch.Message))
	}

	_, err := adminLogin()
	assert.True(t, apperrors.HasCode(err, types.ErrCodeForbidden), "unknown wallet")

	_, _, err = env.accounts.Upsert(ctx, env.wallet, "")
	require.NoError(t, err)
	_, err = adminLogin()
	assert.True(t, apperrors.HasCode(err, types.ErrCodeForbidden), "plain user")

	require.NoError(t, env.accounts.SetRole(ctx, env.wallet, types.RoleAdmin))
	res, err := adminLogin()
	require.NoError(t, err)

	claims, err := env.svc.Authenticate(res.Token)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
	assert.Equal(t, types.RoleAdmin, claims.Role)
}

func TestTokenIssuer(t *testing.T) {
	_, err := NewTokenIssuer("short", time.Hour)
	assert.Error(t, err)

	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	token, expires, err := issuer.Issue("0xabc", types.RoleUser, false)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	_, err = issuer.Parse(token + "x")
	assert.True(t, apperrors.HasCode(err, types.ErrCodeUnauthorized))

	other, err := NewTokenIssuer("fedcba9876543210fedcba9876543210", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.Error(t, err, "foreign secret")

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := issuer.Issue("0xabc", types.RoleUser, false)
	require.NoError(t, err)
	_, err = issuer.Parse(stale)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}
