package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwanimeetup/referral/internal/model"
)

// fakeAllowlist implements AllowlistStore over a map.
type fakeAllowlist struct {
	entries map[string]string // email -> name
	err     error
}

func (f *fakeAllowlist) FindByEmail(_ context.Context, email string) (*model.AllowedEmail, error) {
	if f.err != nil {
		return nil, f.err
	}
	name, ok := f.entries[email]
	if !ok {
		return nil, nil
	}
	return &model.AllowedEmail{
		Email: email,
		Name:  sql.NullString{String: name, Valid: name != ""},
	}, nil
}

// fakeCodePool implements CodeStore with the same check-then-set semantics
// the real conditional UPDATE has, guarded by a mutex so concurrent claims
// exercise the race.
type fakeCodePool struct {
	mu       sync.Mutex
	codes    []model.ReferralCode
	claims   int
	findErr  error
	claimErr error
}

func newFakePool(codes ...string) *fakeCodePool {
	pool := &fakeCodePool{}
	for i, code := range codes {
		pool.codes = append(pool.codes, model.ReferralCode{
			ID:   int64(i + 1),
			Code: code,
			URL:  "https://example.com/referral?code=" + code,
		})
	}
	return pool
}

func (f *fakeCodePool) FindClaimedBy(_ context.Context, email string) (*model.ReferralCode, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range f.codes {
		if code.ClaimedByEmail.Valid && code.ClaimedByEmail.String == email {
			found := code
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeCodePool) ClaimNext(_ context.Context, email string) (*model.ReferralCode, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if !f.codes[i].ClaimedByEmail.Valid {
			f.codes[i].ClaimedByEmail = sql.NullString{String: email, Valid: true}
			f.claims++
			claimed := f.codes[i]
			return &claimed, nil
		}
	}
	return nil, nil
}

func (f *fakeCodePool) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

// fakeNotifier records deliveries and optionally fails them.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeNotifier) SendRedemption(_ context.Context, email, name, code, url string) error {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s|%s|%s|%s", email, name, code, url))
	f.mu.Unlock()
	return f.err
}

func newTestRedemptionService(allowlist *fakeAllowlist, pool *fakeCodePool, notifier *fakeNotifier) (*RedemptionService, *CountsCache) {
	log, _ := test.NewNullLogger()
	cache := NewCountsCache(time.Minute)
	return NewRedemptionService(allowlist, pool, notifier, cache, log), cache
}

func TestRedeemValidation(t *testing.T) {
	ctx := context.Background()
	allowlist := &fakeAllowlist{entries: map[string]string{"x@e.com": "X"}}
	pool := newFakePool("A")
	svc, _ := newTestRedemptionService(allowlist, pool, &fakeNotifier{})

	for _, email := range []string{"", "   ", "not-an-email"} {
		_, err := svc.Redeem(ctx, email)
		assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
	assert.Zero(t, pool.claimCount())
}

func TestRedeemEligibilityGate(t *testing.T) {
	ctx := context.Background()
	allowlist := &fakeAllowlist{entries: map[string]string{"x@e.com": ""}}
	pool := newFakePool("A", "B")
	svc, _ := newTestRedemptionService(allowlist, pool, &fakeNotifier{})

	_, err := svc.Redeem(ctx, "notlisted@example.com")
	assert.ErrorIs(t, err, ErrNotEligible)

	// The rejection must leave the pool untouched.
	assert.Zero(t, pool.claimCount())
}

func TestRedeemNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	allowlist := &fakeAllowlist{entries: map[string]string{"x@e.com": "X"}}
	pool := newFakePool("A")
	svc, _ := newTestRedemptionService(allowlist, pool, &fakeNotifier{})

	redemption, err := svc.Redeem(ctx, "  X@E.COM  ")
	require.NoError(t, err)
	assert.Equal(t, "A", redemption.Code)

	claimed, err := pool.FindClaimedBy(ctx, "x@e.com")
	require.NoError(t, err)
	require.NotNil(t, claimed)
}

func TestRedeemScenario(t *testing.T) {
	ctx := context.Background()
	allowlist := &fakeAllowlist{entries: map[string]string{
		"x@e.com": "X",
		"y@e.com": "Y",
		"w@e.com": "W",
	}}
	pool := newFakePool("A", "B")
	svc, _ := newTestRedemptionService(allowlist, pool, &fakeNotifier{})

	first, err := svc.Redeem(ctx, "x@e.com")
	require.NoError(t, err)
	second, err := svc.Redeem(ctx, "y@e.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{first.Code, second.Code})

	// Idempotent rejection: a second attempt by the same email is refused
	// regardless of pool state.
	_, err = svc.Redeem(ctx, "x@e.com")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = svc.Redeem(ctx, "z@e.com")
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = svc.Redeem(ctx, "w@e.com")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestRedeemNotifierFailureDoesNotUndoClaim(t *testing.T) {
	ctx := context.Background()
	allowlist := &fakeAllowlist{entries: map[string]string{"x@e.com": "Xavier"}}
	pool := newFakePool("A")
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	svc, _ := newTestRedemptionService(allowlist, pool, notifier)

	redemption, err := svc.Redeem(ctx, "x@e.com")
	require.NoError(t, err)
	assert.Equal(t, "A", redemption.Code)
	assert.Len(t, notifier.calls, 1)
	assert.Contains(t, notifier.calls[0], "Xavier")

	claimed, err := pool.FindClaimedBy(ctx, "x@e.com")
	require.NoError(t, err)
	require.NotNil(t, claimed)
}

func TestRedeemStorageErrorsAreNotRejections(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	t.Run("eligibility lookup", func(t *testing.T) {
		svc, _ := newTestRedemptionService(&fakeAllowlist{err: boom}, newFakePool("A"), &fakeNotifier{})
		_, err := svc.Redeem(ctx, "x@e.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsRejection(err))
	})

	t.Run("prior claim lookup", func(t *testing.T) {
		pool := newFakePool("A")
		pool.findErr = boom
		svc, _ := newTestRedemptionService(&fakeAllowlist{entries: map[string]string{"x@e.com": ""}}, pool, &fakeNotifier{})
		_, err := svc.Redeem(ctx, "x@e.com")
		require.Error(t, err)
		assert.False(t, IsRejection(err))
	})

	t.Run("claim write", func(t *testing.T) {
		pool := newFakePool("A")
		pool.claimErr = boom
		svc, _ := newTestRedemptionService(&fakeAllowlist{entries: map[string]string{"x@e.com": ""}}, pool, &fakeNotifier{})
		_, err := svc.Redeem(ctx, "x@e.com")
		require.Error(t, err)
		assert.False(t, IsRejection(err))
	})
}

func TestRedeemInvalidatesCountsCache(t *testing.T) {
	ctx := context.Background()
	allowlist := &fakeAllowlist{entries: map[string]string{"x@e.com": ""}}
	pool := newFakePool("A")
	svc, cache := newTestRedemptionService(allowlist, pool, &fakeNotifier{})

	fetches := 0
	fetch := func(ctx context.Context) (CodeCounts, error) {
		fetches++
		return CodeCounts{Available: 1, Total: 1}, nil
	}

	_, err := cache.Get(ctx, fetch)
	require.NoError(t, err)
	require.Equal(t, 1, fetches)

	_, err = svc.Redeem(ctx, "x@e.com")
	require.NoError(t, err)

	_, err = cache.Get(ctx, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches, "claim should invalidate the counts cache")
}

// TestRedeemSingleClaimProperty races N eligible emails over M < N codes:
// exactly M must win distinct codes and the rest must observe exhaustion.
func TestRedeemSingleClaimProperty(t *testing.T) {
	ctx := context.Background()

	const callers = 20
	codes := []string{"C1", "C2", "C3", "C4", "C5"}

	entries := make(map[string]string, callers)
	for i := 0; i < callers; i++ {
		entries[fmt.Sprintf("caller%02d@e.com", i)] = ""
	}
	pool := newFakePool(codes...)
	svc, _ := newTestRedemptionService(&fakeAllowlist{entries: entries}, pool, &fakeNotifier{})

	var wg sync.WaitGroup
	results := make([]*Redemption, callers)
	failures := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], failures[i] = svc.Redeem(ctx, fmt.Sprintf("caller%02d@e.com", i))
		}(i)
	}
	wg.Wait()

	won := make(map[string]bool)
	exhausted := 0
	for i := 0; i < callers; i++ {
		switch {
		case failures[i] == nil:
			require.NotNil(t, results[i])
			assert.False(t, won[results[i].Code], "code %s returned twice", results[i].Code)
			won[results[i].Code] = true
		case errors.Is(failures[i], ErrExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", failures[i])
		}
	}

	assert.Len(t, won, len(codes))
	assert.Equal(t, callers-len(codes), exhausted)
	assert.Equal(t, len(codes), pool.claimCount())
}
