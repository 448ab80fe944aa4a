package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pwanimeetup/referral/internal/ingest"
	"github.com/pwanimeetup/referral/internal/metrics"
	"github.com/pwanimeetup/referral/internal/model"
	"github.com/pwanimeetup/referral/internal/notify"
)

// Expected, user-facing redemption rejections. Anything else returned by
// Redeem is a storage failure and must be surfaced generically.
var (
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrNotEligible    = errors.New("email not eligible for a code")
	ErrAlreadyClaimed = errors.New("email has already claimed a code")
	ErrExhausted      = errors.New("no codes available")
)

// claimAttempts bounds the optimistic-claim retry. A zero-row claim means
// every unclaimed row was either taken or locked by a concurrent winner; a
// few attempts give rolled-back competitors a chance to release their row,
// after which exhaustion is the honest answer.
const claimAttempts = 3

// AllowlistStore is the eligibility list as seen by the allocator.
type AllowlistStore interface {
	FindByEmail(ctx context.Context, email string) (*model.AllowedEmail, error)
}

// CodeStore is the code pool as seen by the allocator. ClaimNext must be
// atomic at the storage layer: it either transitions exactly one unclaimed
// code to the email and returns it, or returns (nil, nil).
type CodeStore interface {
	FindClaimedBy(ctx context.Context, email string) (*model.ReferralCode, error)
	ClaimNext(ctx context.Context, email string) (*model.ReferralCode, error)
}

// Redemption is a successful claim.
type Redemption struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// RedemptionService assigns one unclaimed code to one eligible email, at most
// once per email, under arbitrary concurrency. All synchronization lives in
// CodeStore.ClaimNext; the service itself holds no cross-request state.
type RedemptionService struct {
	allowlist AllowlistStore
	codes     CodeStore
	notifier  notify.Notifier
	cache     *CountsCache
	log       *logrus.Logger
}

// NewRedemptionService constructs a RedemptionService.
func NewRedemptionService(
	allowlist AllowlistStore,
	codes CodeStore,
	notifier notify.Notifier,
	cache *CountsCache,
	log *logrus.Logger,
) *RedemptionService {
	return &RedemptionService{
		allowlist: allowlist,
		codes:     codes,
		notifier:  notifier,
		cache:     cache,
		log:       log,
	}
}

// Redeem runs the full allocation: normalize, check eligibility, check for a
// prior claim, claim one unclaimed code, then best-effort notify. The claim
// write is the only mutation; everything before it is read-only, so an
// aborted request leaves no partial state.
func (s *RedemptionService) Redeem(ctx context.Context, rawEmail string) (*Redemption, error) {
	start := time.Now()
	result := "error"

	defer func() {
		metrics.RecordRedeemDuration(result, time.Since(start).Seconds())
	}()

	email := ingest.NormalizeEmail(rawEmail)
	if email == "" || !strings.Contains(email, "@") {
		result = "invalid_email"
		return nil, ErrInvalidEmail
	}

	allowed, err := s.allowlist.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("eligibility lookup failed: %w", err)
	}
	if allowed == nil {
		result = "not_eligible"
		return nil, ErrNotEligible
	}

	prior, err := s.codes.FindClaimedBy(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("prior claim lookup failed: %w", err)
	}
	if prior != nil {
		result = "already_claimed"
		return nil, ErrAlreadyClaimed
	}

	// The earlier reads are advisory only; the claim itself is conditional
	// on the row still being unclaimed at write time.
	var claimed *model.ReferralCode
	for attempt := 0; attempt < claimAttempts; attempt++ {
		claimed, err = s.codes.ClaimNext(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("claim failed: %w", err)
		}
		if claimed != nil {
			break
		}
	}
	if claimed == nil {
		result = "exhausted"
		return nil, ErrExhausted
	}

	s.cache.Invalidate()

	// Best-effort from here on: the claim above is already binding.
	if err := s.notifier.SendRedemption(ctx, email, allowed.DisplayName(), claimed.Code, claimed.URL); err != nil {
		s.log.WithError(err).WithField("email", email).Error("Failed to send redemption email")
	}

	result = "success"
	s.log.WithFields(logrus.Fields{
		"email":   email,
		"code_id": claimed.ID,
	}).Info("Code claimed")

	return &Redemption{Code: claimed.Code, URL: claimed.URL}, nil
}

// IsRejection reports whether err is one of the expected policy or
// validation rejections rather than a storage failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrExhausted)
}
