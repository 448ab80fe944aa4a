package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pwanimeetup/referral/internal/model"
)

// TokenHashLength is the fixed length of a token's hex digest segment.
const TokenHashLength = 32

// Token verification errors.
var (
	// ErrMalformedToken indicates the token does not have the expected shape.
	ErrMalformedToken = errors.New("malformed token")
	// ErrUnknownUser indicates the token names an account that does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrInvalidToken indicates the digest does not match the current secret.
	ErrInvalidToken = errors.New("invalid token")
)

// CredentialStore looks up one administrator record by username. It returns
// (nil, nil) when no such account exists; a non-nil error always means the
// storage layer failed, never that the account is absent.
type CredentialStore interface {
	FindAdmin(ctx context.Context, username string) (*model.AdminUser, error)
}

// IssueToken derives a bearer token of the form "username:digestHex" from the
// account's stored password secret. The token is deterministic given the
// secret, so no server-side session table exists and rotating the secret
// invalidates every outstanding token at once.
func IssueToken(username, passwordSecret string) string {
	return username + ":" + tokenDigest(username, passwordSecret)
}

func tokenDigest(username, passwordSecret string) string {
	sum := sha256.Sum256([]byte(username + ":" + passwordSecret))
	return hex.EncodeToString(sum[:])[:TokenHashLength]
}

// VerifyToken recomputes the expected digest from the account's current
// stored secret and compares it to the presented one in constant time. On
// success it returns the authenticated username.
func VerifyToken(ctx context.Context, store CredentialStore, token string) (string, error) {
	username, digest, ok := strings.Cut(token, ":")
	if !ok || username == "" || len(digest) != TokenHashLength {
		return "", ErrMalformedToken
	}

	admin, err := store.FindAdmin(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up admin %q: %w", username, err)
	}
	if admin == nil {
		return "", ErrUnknownUser
	}

	want := tokenDigest(admin.Username, admin.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(want)) != 1 {
		return "", ErrInvalidToken
	}

	return admin.Username, nil
}
