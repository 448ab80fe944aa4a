package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pwanimeetup/referral/internal/model"
)

// AdminRepository handles administrator account rows. The table is written
// out-of-band by provisioning tooling and only read on the request path.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindAdmin retrieves one account by username. It returns (nil, nil) when the
// account does not exist so callers can tell absence from storage failure.
func (r *AdminRepository) FindAdmin(ctx context.Context, username string) (*model.AdminUser, error) {
	query := `
		SELECT username, password_hash
		FROM admin_users
		WHERE username = $1
	`

	var admin model.AdminUser
	err := r.db.GetContext(ctx, &admin, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}

	return &admin, nil
}

// UpsertAdmin creates the account or rotates its stored secret. Rotation
// implicitly invalidates every session token derived from the old secret.
func (r *AdminRepository) UpsertAdmin(ctx context.Context, username, passwordHash string) error {
	query := `
		INSERT INTO admin_users (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password_hash = excluded.password_hash
	`

	if _, err := r.db.ExecContext(ctx, query, username, passwordHash); err != nil {
		return fmt.Errorf("failed to upsert admin user: %w", err)
	}

	return nil
}
