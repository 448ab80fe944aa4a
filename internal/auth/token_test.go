package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwanimeetup/referral/internal/model"
)

// fakeCredentialStore implements CredentialStore over a map.
type fakeCredentialStore struct {
	admins map[string]*model.AdminUser
	err    error
}

func (f *fakeCredentialStore) FindAdmin(_ context.Context, username string) (*model.AdminUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.admins[username], nil
}

func storeWith(username, secret string) *fakeCredentialStore {
	return &fakeCredentialStore{admins: map[string]*model.AdminUser{
		username: {Username: username, PasswordHash: secret},
	}}
}

func TestIssueToken(t *testing.T) {
	token := IssueToken("alice", "somesecret")

	username, digest, ok := strings.Cut(token, ":")
	require.True(t, ok)
	assert.Equal(t, "alice", username)
	assert.Len(t, digest, TokenHashLength)

	t.Run("deterministic for the same secret", func(t *testing.T) {
		assert.Equal(t, token, IssueToken("alice", "somesecret"))
	})

	t.Run("changes when the secret changes", func(t *testing.T) {
		assert.NotEqual(t, token, IssueToken("alice", "othersecret"))
	})
}

func TestVerifyToken(t *testing.T) {
	ctx := context.Background()
	store := storeWith("alice", "somesecret")

	t.Run("round trip", func(t *testing.T) {
		token := IssueToken("alice", "somesecret")
		username, err := VerifyToken(ctx, store, token)
		require.NoError(t, err)
		assert.Equal(t, "alice", username)
	})

	t.Run("malformed tokens", func(t *testing.T) {
		for _, token := range []string{
			"",
			"nocolon",
			":deadbeef",
			"alice:",
			"alice:short",
			"alice:" + strings.Repeat("a", TokenHashLength+1),
		} {
			_, err := VerifyToken(ctx, store, token)
			assert.ErrorIs(t, err, ErrMalformedToken, "token %q", token)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		token := IssueToken("bob", "somesecret")
		_, err := VerifyToken(ctx, store, token)
		assert.ErrorIs(t, err, ErrUnknownUser)
	})

	t.Run("wrong digest", func(t *testing.T) {
		token := "alice:" + strings.Repeat("0", TokenHashLength)
		_, err := VerifyToken(ctx, store, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("secret rotation invalidates outstanding tokens", func(t *testing.T) {
		rotating := storeWith("alice", "somesecret")
		token := IssueToken("alice", "somesecret")

		rotating.admins["alice"].PasswordHash = "rotatedsecret"
		_, err := VerifyToken(ctx, rotating, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("storage failure is not a rejection", func(t *testing.T) {
		boom := errors.New("connection refused")
		failing := &fakeCredentialStore{err: boom}
		_, err := VerifyToken(ctx, failing, IssueToken("alice", "somesecret"))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrUnknownUser)
		assert.NotErrorIs(t, err, ErrInvalidToken)
	})
}
