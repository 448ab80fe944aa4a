package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwanimeetup/referral/internal/model"
)

type fakeAllowlistAdmin struct {
	entries  map[string]string
	replaced bool
}

func newFakeAllowlistAdmin() *fakeAllowlistAdmin {
	return &fakeAllowlistAdmin{entries: map[string]string{}}
}

func (f *fakeAllowlistAdmin) Upsert(_ context.Context, email, name string) error {
	f.entries[email] = name
	return nil
}

func (f *fakeAllowlistAdmin) Delete(_ context.Context, email string) error {
	delete(f.entries, email)
	return nil
}

func (f *fakeAllowlistAdmin) UpsertBatch(_ context.Context, entries []model.AllowedEmail) error {
	for _, entry := range entries {
		f.entries[entry.Email] = entry.Name.String
	}
	return nil
}

func (f *fakeAllowlistAdmin) ReplaceAll(_ context.Context, entries []model.AllowedEmail) error {
	f.entries = map[string]string{}
	f.replaced = true
	return f.UpsertBatch(context.Background(), entries)
}

type fakeCodeAdmin struct {
	codes    map[string]string // code -> url
	replaced bool
}

func newFakeCodeAdmin() *fakeCodeAdmin {
	return &fakeCodeAdmin{codes: map[string]string{}}
}

func (f *fakeCodeAdmin) InsertBatch(_ context.Context, codes []model.ReferralCode) error {
	for _, code := range codes {
		if _, exists := f.codes[code.Code]; !exists {
			f.codes[code.Code] = code.URL
		}
	}
	return nil
}

func (f *fakeCodeAdmin) ReplaceAll(_ context.Context, codes []model.ReferralCode) error {
	f.codes = map[string]string{}
	f.replaced = true
	return f.InsertBatch(context.Background(), codes)
}

func newTestAdminService(allowlist *fakeAllowlistAdmin, codes *fakeCodeAdmin) (*AdminService, *CountsCache) {
	log, _ := test.NewNullLogger()
	cache := NewCountsCache(time.Minute)
	return NewAdminService(allowlist, codes, cache, "https://example.com/referral", log), cache
}

func TestUpsertEmail(t *testing.T) {
	ctx := context.Background()
	allowlist := newFakeAllowlistAdmin()
	svc, _ := newTestAdminService(allowlist, newFakeCodeAdmin())

	email, err := svc.UpsertEmail(ctx, "  Alice@Example.COM ", "  Alice  ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
	assert.Equal(t, "Alice", allowlist.entries["alice@example.com"])

	_, err = svc.UpsertEmail(ctx, "not-an-email", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.UpsertEmail(ctx, "   ", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestDeleteEmail(t *testing.T) {
	ctx := context.Background()
	allowlist := newFakeAllowlistAdmin()
	allowlist.entries["alice@example.com"] = "Alice"
	svc, _ := newTestAdminService(allowlist, newFakeCodeAdmin())

	email, err := svc.DeleteEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
	assert.Empty(t, allowlist.entries)

	_, err = svc.DeleteEmail(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestImportEmails(t *testing.T) {
	ctx := context.Background()

	csv := "email,name\na@e.com,Ann\nb@e.com,Bob\n"

	t.Run("merge keeps existing entries", func(t *testing.T) {
		allowlist := newFakeAllowlistAdmin()
		allowlist.entries["existing@e.com"] = ""
		svc, _ := newTestAdminService(allowlist, newFakeCodeAdmin())

		count, err := svc.ImportEmails(ctx, strings.NewReader(csv), false)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Len(t, allowlist.entries, 3)
		assert.False(t, allowlist.replaced)
	})

	t.Run("replace drops existing entries", func(t *testing.T) {
		allowlist := newFakeAllowlistAdmin()
		allowlist.entries["existing@e.com"] = ""
		svc, _ := newTestAdminService(allowlist, newFakeCodeAdmin())

		count, err := svc.ImportEmails(ctx, strings.NewReader(csv), true)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Len(t, allowlist.entries, 2)
		assert.True(t, allowlist.replaced)
	})

	t.Run("empty upload is rejected", func(t *testing.T) {
		svc, _ := newTestAdminService(newFakeAllowlistAdmin(), newFakeCodeAdmin())
		_, err := svc.ImportEmails(ctx, strings.NewReader("name\nno emails here\n"), false)
		assert.ErrorIs(t, err, ErrNoEmailsFound)
	})
}

func TestImportCodes(t *testing.T) {
	ctx := context.Background()

	csv := "code\nABC123\nDEF456\n"

	t.Run("merge", func(t *testing.T) {
		codes := newFakeCodeAdmin()
		codes.codes["OLD"] = "https://example.com/referral?code=OLD"
		svc, _ := newTestAdminService(newFakeAllowlistAdmin(), codes)

		count, err := svc.ImportCodes(ctx, strings.NewReader(csv), false)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Len(t, codes.codes, 3)
		assert.False(t, codes.replaced)
	})

	t.Run("replace", func(t *testing.T) {
		codes := newFakeCodeAdmin()
		codes.codes["OLD"] = "https://example.com/referral?code=OLD"
		svc, _ := newTestAdminService(newFakeAllowlistAdmin(), codes)

		count, err := svc.ImportCodes(ctx, strings.NewReader(csv), true)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Len(t, codes.codes, 2)
		assert.True(t, codes.replaced)
	})

	t.Run("invalidates the counts cache", func(t *testing.T) {
		svc, cache := newTestAdminService(newFakeAllowlistAdmin(), newFakeCodeAdmin())

		fetches := 0
		fetch := func(ctx context.Context) (CodeCounts, error) {
			fetches++
			return CodeCounts{}, nil
		}
		_, err := cache.Get(ctx, fetch)
		require.NoError(t, err)

		_, err = svc.ImportCodes(ctx, strings.NewReader(csv), false)
		require.NoError(t, err)

		_, err = cache.Get(ctx, fetch)
		require.NoError(t, err)
		assert.Equal(t, 2, fetches)
	})

	t.Run("empty upload is rejected", func(t *testing.T) {
		svc, _ := newTestAdminService(newFakeAllowlistAdmin(), newFakeCodeAdmin())
		_, err := svc.ImportCodes(ctx, strings.NewReader("notes\nnothing\n"), false)
		assert.ErrorIs(t, err, ErrNoCodesFound)
	})
}
