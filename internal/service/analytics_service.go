package service

import (
	"context"
	"fmt"

	"github.com/pwanimeetup/referral/internal/model"
)

// CodeAnalyticsStore is the read side of the pool used by the dashboard.
type CodeAnalyticsStore interface {
	ListAll(ctx context.Context) ([]model.ReferralCode, error)
	Counts(ctx context.Context) (available, total int, err error)
}

// AllowlistAnalyticsStore is the read side of the allowlist used by the
// dashboard.
type AllowlistAnalyticsStore interface {
	List(ctx context.Context) ([]model.AllowedEmail, error)
	Count(ctx context.Context) (int, error)
}

// Summary aggregates pool and allowlist state.
type Summary struct {
	Total         int `json:"total"`
	Redeemed      int `json:"redeemed"`
	Available     int `json:"available"`
	AllowedEmails int `json:"allowedEmails"`
}

// CodeStatus is one code as shown on the dashboard.
type CodeStatus struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Status         string `json:"status"` // "redeemed" or "available"
	ClaimedByEmail string `json:"claimedByEmail,omitempty"`
}

// AllowedEntry is one allowlist row as shown on the dashboard.
type AllowedEntry struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Snapshot is the full dashboard payload.
type Snapshot struct {
	Summary Summary        `json:"summary"`
	Codes   []CodeStatus   `json:"codes"`
	Emails  []AllowedEntry `json:"emails"`
}

// AnalyticsService derives dashboard and public-counter views. The snapshot
// always reads authoritative storage; only the public counts go through the
// TTL cache.
type AnalyticsService struct {
	codes     CodeAnalyticsStore
	allowlist AllowlistAnalyticsStore
	cache     *CountsCache
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(codes CodeAnalyticsStore, allowlist AllowlistAnalyticsStore, cache *CountsCache) *AnalyticsService {
	return &AnalyticsService{codes: codes, allowlist: allowlist, cache: cache}
}

// CodeCounts returns the availability summary, served from the cache within
// its TTL.
func (s *AnalyticsService) CodeCounts(ctx context.Context) (CodeCounts, error) {
	return s.cache.Get(ctx, func(ctx context.Context) (CodeCounts, error) {
		available, total, err := s.codes.Counts(ctx)
		if err != nil {
			return CodeCounts{}, fmt.Errorf("failed to derive code counts: %w", err)
		}
		return CodeCounts{Available: available, Total: total}, nil
	})
}

// Snapshot builds the admin dashboard view.
func (s *AnalyticsService) Snapshot(ctx context.Context) (*Snapshot, error) {
	codes, err := s.codes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	emails, err := s.allowlist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowed emails: %w", err)
	}

	snapshot := &Snapshot{
		Codes:  make([]CodeStatus, 0, len(codes)),
		Emails: make([]AllowedEntry, 0, len(emails)),
	}
	snapshot.Summary.Total = len(codes)
	snapshot.Summary.AllowedEmails = len(emails)

	for _, code := range codes {
		status := CodeStatus{ID: code.ID, Code: code.Code, Status: "available"}
		if code.Claimed() {
			status.Status = "redeemed"
			status.ClaimedByEmail = code.ClaimedByEmail.String
			snapshot.Summary.Redeemed++
		} else {
			snapshot.Summary.Available++
		}
		snapshot.Codes = append(snapshot.Codes, status)
	}

	for _, email := range emails {
		snapshot.Emails = append(snapshot.Emails, AllowedEntry{
			Email: email.Email,
			Name:  email.DisplayName(),
		})
	}

	return snapshot, nil
}
