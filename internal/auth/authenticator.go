package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Login errors.
var (
	// ErrMissingFields indicates an empty username or password.
	ErrMissingFields = errors.New("missing username or password")
	// ErrInvalidCredentials covers both unknown users and wrong passwords;
	// the two are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// decoySecret is a well-formed stored secret used to burn a scrypt derivation
// when the username does not exist, so unknown-user rejections cost the same
// as wrong-password ones.
var decoySecret = sync.OnceValue(func() string {
	secret, err := HashPassword("decoy")
	if err != nil {
		return ""
	}
	return secret
})

// Authenticator composes the credential store with the password and token
// schemes into login and request authorization.
type Authenticator struct {
	store CredentialStore
	log   *logrus.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(store CredentialStore, log *logrus.Logger) *Authenticator {
	return &Authenticator{store: store, log: log}
}

// Login validates the credentials and returns a bearer token. The caller is
// responsible for placing the token in a protected cookie.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrMissingFields
	}

	admin, err := a.store.FindAdmin(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin == nil {
		VerifyPassword(password, decoySecret())
		return "", ErrInvalidCredentials
	}

	if !VerifyPassword(password, admin.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return IssueToken(admin.Username, admin.PasswordHash), nil
}

// Authorize reports whether the token grants admin access. All rejection
// reasons collapse to false; storage failures are logged and also deny.
func (a *Authenticator) Authorize(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	_, err := VerifyToken(ctx, a.store, token)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrMalformedToken) && !errors.Is(err, ErrUnknownUser) && !errors.Is(err, ErrInvalidToken) {
		a.log.WithError(err).Error("Token verification failed on storage lookup")
	}
	return false
}
