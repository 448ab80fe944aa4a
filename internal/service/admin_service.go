package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pwanimeetup/referral/internal/ingest"
	"github.com/pwanimeetup/referral/internal/model"
)

// Admin ingestion rejections.
var (
	ErrNoEmailsFound = errors.New("no valid emails found in upload")
	ErrNoCodesFound  = errors.New("no valid codes found in upload")
)

// AllowlistAdminStore is the write side of the allowlist.
type AllowlistAdminStore interface {
	Upsert(ctx context.Context, email, name string) error
	Delete(ctx context.Context, email string) error
	UpsertBatch(ctx context.Context, entries []model.AllowedEmail) error
	ReplaceAll(ctx context.Context, entries []model.AllowedEmail) error
}

// CodeAdminStore is the write side of the code pool.
type CodeAdminStore interface {
	InsertBatch(ctx context.Context, codes []model.ReferralCode) error
	ReplaceAll(ctx context.Context, codes []model.ReferralCode) error
}

// AdminService carries the management operations behind the authenticated
// surface: allowlist edits and bulk CSV ingestion. Every write invalidates
// the counts cache.
type AdminService struct {
	allowlist AllowlistAdminStore
	codes     CodeAdminStore
	cache     *CountsCache
	urlBase   string
	log       *logrus.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(
	allowlist AllowlistAdminStore,
	codes CodeAdminStore,
	cache *CountsCache,
	urlBase string,
	log *logrus.Logger,
) *AdminService {
	return &AdminService{
		allowlist: allowlist,
		codes:     codes,
		cache:     cache,
		urlBase:   urlBase,
		log:       log,
	}
}

// UpsertEmail adds or updates one allowlist entry.
func (s *AdminService) UpsertEmail(ctx context.Context, rawEmail, name string) (string, error) {
	email := ingest.NormalizeEmail(rawEmail)
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}

	if err := s.allowlist.Upsert(ctx, email, strings.TrimSpace(name)); err != nil {
		return "", err
	}
	return email, nil
}

// DeleteEmail removes one allowlist entry.
func (s *AdminService) DeleteEmail(ctx context.Context, rawEmail string) (string, error) {
	email := ingest.NormalizeEmail(rawEmail)
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}

	if err := s.allowlist.Delete(ctx, email); err != nil {
		return "", err
	}
	return email, nil
}

// ImportEmails ingests an emails CSV, merging by default or replacing the
// whole allowlist when replace is set.
func (s *AdminService) ImportEmails(ctx context.Context, upload io.Reader, replace bool) (int, error) {
	entries, err := ingest.ParseEmails(upload)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, ErrNoEmailsFound
	}

	if replace {
		err = s.allowlist.ReplaceAll(ctx, entries)
	} else {
		err = s.allowlist.UpsertBatch(ctx, entries)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to store allowlist: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"count":   len(entries),
		"replace": replace,
	}).Info("Allowlist imported")

	return len(entries), nil
}

// ImportCodes ingests a codes CSV, merging by default or replacing the whole
// pool (claims included) when replace is set.
func (s *AdminService) ImportCodes(ctx context.Context, upload io.Reader, replace bool) (int, error) {
	codes, err := ingest.ParseCodes(upload, s.urlBase)
	if err != nil {
		return 0, err
	}
	if len(codes) == 0 {
		return 0, ErrNoCodesFound
	}

	if replace {
		err = s.codes.ReplaceAll(ctx, codes)
	} else {
		err = s.codes.InsertBatch(ctx, codes)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to store codes: %w", err)
	}

	s.cache.Invalidate()
	s.log.WithFields(logrus.Fields{
		"count":   len(codes),
		"replace": replace,
	}).Info("Code pool imported")

	return len(codes), nil
}
