package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/pwanimeetup/referral/internal/model"
)

// CodeRepository handles the referral code pool. The only mutation on the
// request path is the conditional claim; everything else is admin ingestion.
type CodeRepository struct {
	db *sqlx.DB
}

// NewCodeRepository creates a new code repository
func NewCodeRepository(db *sqlx.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// FindClaimedBy retrieves the code already claimed by the given email, or
// (nil, nil) when the email has not claimed one.
func (r *CodeRepository) FindClaimedBy(ctx context.Context, email string) (*model.ReferralCode, error) {
	query := `
		SELECT id, code, url, claimed_by_email
		FROM referral_codes
		WHERE claimed_by_email = $1
		LIMIT 1
	`

	var code model.ReferralCode
	err := r.db.GetContext(ctx, &code, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get claimed code: %w", err)
	}

	return &code, nil
}

// ClaimNext atomically assigns one unclaimed code to the email and returns
// it, or (nil, nil) when no unclaimed, unlocked row exists.
//
// Selection and write are a single statement: the subquery picks one
// unclaimed row with FOR UPDATE SKIP LOCKED so concurrent claimers never
// fight over the same row, and the outer claimed_by_email IS NULL guard keeps
// the write conditional on the state actually observed at write time. Once
// the column is non-null it can never match again, so the transition is
// write-once by construction.
func (r *CodeRepository) ClaimNext(ctx context.Context, email string) (*model.ReferralCode, error) {
	query := `
		UPDATE referral_codes
		SET claimed_by_email = $1
		WHERE id = (
			SELECT id
			FROM referral_codes
			WHERE claimed_by_email IS NULL
			ORDER BY id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND claimed_by_email IS NULL
		RETURNING id, code, url, claimed_by_email
	`

	var code model.ReferralCode
	err := r.db.GetContext(ctx, &code, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim code: %w", err)
	}

	return &code, nil
}

// ListAll returns every code, newest first.
func (r *CodeRepository) ListAll(ctx context.Context) ([]model.ReferralCode, error) {
	query := `
		SELECT id, code, url, claimed_by_email
		FROM referral_codes
		ORDER BY id DESC
	`

	var codes []model.ReferralCode
	if err := r.db.SelectContext(ctx, &codes, query); err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	return codes, nil
}

// Counts returns how many codes are still unclaimed and how many exist.
func (r *CodeRepository) Counts(ctx context.Context) (available, total int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE claimed_by_email IS NULL) AS available,
			COUNT(*) AS total
		FROM referral_codes
	`

	row := struct {
		Available int `db:"available"`
		Total     int `db:"total"`
	}{}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, fmt.Errorf("failed to count codes: %w", err)
	}

	return row.Available, row.Total, nil
}

// InsertBatch merges codes into the pool, ignoring ones already present.
func (r *CodeRepository) InsertBatch(ctx context.Context, codes []model.ReferralCode) error {
	return r.insertBatches(ctx, r.db, codes)
}

// ReplaceAll swaps the whole pool for the given codes in one transaction.
// Existing claims are discarded with their rows.
func (r *CodeRepository) ReplaceAll(ctx context.Context, codes []model.ReferralCode) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM referral_codes`); err != nil {
		return fmt.Errorf("failed to clear codes: %w", err)
	}
	if err := r.insertBatches(ctx, tx, codes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// insertBatches inserts codes in chunks sized under the PostgreSQL parameter
// limit.
func (r *CodeRepository) insertBatches(ctx context.Context, ex sqlx.ExtContext, codes []model.ReferralCode) error {
	const batchSize = 1000

	for i := 0; i < len(codes); i += batchSize {
		end := i + batchSize
		if end > len(codes) {
			end = len(codes)
		}

		if err := insertCodeBatch(ctx, ex, codes[i:end]); err != nil {
			return fmt.Errorf("failed to insert code batch: %w", err)
		}
	}

	return nil
}

func insertCodeBatch(ctx context.Context, ex sqlx.ExtContext, codes []model.ReferralCode) error {
	if len(codes) == 0 {
		return nil
	}

	valuesClause := make([]string, len(codes))
	args := make([]interface{}, 0, len(codes)*2)

	for i, code := range codes {
		valuesClause[i] = fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2)
		args = append(args, code.Code, code.URL)
	}

	query := fmt.Sprintf(`
		INSERT INTO referral_codes (code, url)
		VALUES %s
		ON CONFLICT (code) DO NOTHING
	`, strings.Join(valuesClause, ", "))

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}
