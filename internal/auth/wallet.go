// Package auth implements wallet-signature login and the signed session
// tokens the API accepts.
package auth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/uptime-rewards/internal/errors"
)

// NormalizeWallet returns the EIP-55 checksummed form of an EVM address.
// Accounts are keyed by this form.
func NormalizeWallet(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", apperrors.NewInvalidWalletError(raw)
	}
	return common.HexToAddress(raw).Hex(), nil
}

// LoginMessage is the text a wallet signs to log in.
func LoginMessage(app, nonce string) string {
	return fmt.Sprintf("%s Login\n\nNonce: %s", app, nonce)
}

// AdminLoginMessage is the text an admin wallet signs to open an admin session.
func AdminLoginMessage(app, nonce string) string {
	return fmt.Sprintf("%s Admin Login\n\nNonce: %s", app, nonce)
}

// RecoverAddress returns the checksummed address that produced a
// personal_sign signature over message.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return "", apperrors.NewInvalidParameterError("signature", "must be 0x-prefixed hex")
	}
	if len(sig) != crypto.SignatureLength {
		return "", apperrors.NewInvalidParameterError("signature", fmt.Sprintf("must be %d bytes", crypto.SignatureLength))
	}

	// wallets emit v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", apperrors.NewUnauthorizedError("invalid signature")
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
