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

// AllowlistRepository handles the pre-approved email list. The allocator only
// ever reads it; writes come from admin ingestion.
type AllowlistRepository struct {
	db *sqlx.DB
}

// NewAllowlistRepository creates a new allowlist repository
func NewAllowlistRepository(db *sqlx.DB) *AllowlistRepository {
	return &AllowlistRepository{db: db}
}

// FindByEmail retrieves one allowlist entry by normalized email. It returns
// (nil, nil) when the email is not listed.
func (r *AllowlistRepository) FindByEmail(ctx context.Context, email string) (*model.AllowedEmail, error) {
	query := `
		SELECT email, name
		FROM allowed_emails
		WHERE email = $1
	`

	var allowed model.AllowedEmail
	err := r.db.GetContext(ctx, &allowed, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get allowed email: %w", err)
	}

	return &allowed, nil
}

// Upsert inserts or updates a single allowlist entry. An empty name is stored
// as NULL.
func (r *AllowlistRepository) Upsert(ctx context.Context, email, name string) error {
	query := `
		INSERT INTO allowed_emails (email, name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET name = excluded.name
	`

	if _, err := r.db.ExecContext(ctx, query, email, nullableString(name)); err != nil {
		return fmt.Errorf("failed to upsert allowed email: %w", err)
	}

	return nil
}

// Delete removes one allowlist entry. Deleting an absent email is not an
// error.
func (r *AllowlistRepository) Delete(ctx context.Context, email string) error {
	query := `DELETE FROM allowed_emails WHERE email = $1`

	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("failed to delete allowed email: %w", err)
	}

	return nil
}

// List returns the full allowlist.
func (r *AllowlistRepository) List(ctx context.Context) ([]model.AllowedEmail, error) {
	query := `
		SELECT email, name
		FROM allowed_emails
		ORDER BY email ASC
	`

	var emails []model.AllowedEmail
	if err := r.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("failed to list allowed emails: %w", err)
	}

	return emails, nil
}

// Count returns the number of allowlisted emails.
func (r *AllowlistRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM allowed_emails`); err != nil {
		return 0, fmt.Errorf("failed to count allowed emails: %w", err)
	}
	return count, nil
}

// UpsertBatch merges entries into the allowlist, updating names on conflict.
func (r *AllowlistRepository) UpsertBatch(ctx context.Context, entries []model.AllowedEmail) error {
	return r.upsertBatch(ctx, r.db, entries)
}

// ReplaceAll swaps the whole allowlist for the given entries in one
// transaction.
func (r *AllowlistRepository) ReplaceAll(ctx context.Context, entries []model.AllowedEmail) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM allowed_emails`); err != nil {
		return fmt.Errorf("failed to clear allowed emails: %w", err)
	}
	if err := r.upsertBatch(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// upsertBatch inserts entries in chunks sized under the PostgreSQL parameter
// limit.
func (r *AllowlistRepository) upsertBatch(ctx context.Context, ex sqlx.ExtContext, entries []model.AllowedEmail) error {
	const batchSize = 1000

	for i := 0; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}

		if err := insertAllowlistBatch(ctx, ex, entries[i:end]); err != nil {
			return fmt.Errorf("failed to insert allowlist batch: %w", err)
		}
	}

	return nil
}

func insertAllowlistBatch(ctx context.Context, ex sqlx.ExtContext, entries []model.AllowedEmail) error {
	if len(entries) == 0 {
		return nil
	}

	valuesClause := make([]string, len(entries))
	args := make([]interface{}, 0, len(entries)*2)

	for i, entry := range entries {
		valuesClause[i] = fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2)
		args = append(args, entry.Email, entry.Name)
	}

	query := fmt.Sprintf(`
		INSERT INTO allowed_emails (email, name)
		VALUES %s
		ON CONFLICT (email) DO UPDATE SET name = excluded.name
	`, strings.Join(valuesClause, ", "))

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
