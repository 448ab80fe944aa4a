package model

import "database/sql"

// AllowedEmail represents one pre-approved address in the eligibility list.
// The email is stored lowercase-normalized and acts as the primary key.
type AllowedEmail struct {
	Email string         `db:"email" json:"email"`
	Name  sql.NullString `db:"name" json:"name"`
}

// DisplayName returns the optional name, or "" when none was ingested.
func (a AllowedEmail) DisplayName() string {
	if a.Name.Valid {
		return a.Name.String
	}
	return ""
}

// ReferralCode represents one single-use code in the pool.
//
// ClaimedByEmail is nullable: NULL means unclaimed, and once set it never
// changes again. The surrogate ID is the only safe update target; Code is
// globally unique but opaque.
type ReferralCode struct {
	ID             int64          `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	URL            string         `db:"url" json:"url"`
	ClaimedByEmail sql.NullString `db:"claimed_by_email" json:"claimed_by_email"`
}

// Claimed reports whether the code has been handed out.
func (c ReferralCode) Claimed() bool {
	return c.ClaimedByEmail.Valid
}

// AdminUser represents an administrator account.
//
// PasswordHash is the stored secret in "saltHex:derivedHex" form and never
// leaves the auth package.
type AdminUser struct {
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
}
