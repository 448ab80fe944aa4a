// Package ingest maps uploaded CSVs onto allowlist entries and referral
// codes. It is a pure translation layer: accepted header aliases in, canonical
// records out, no storage access.
package ingest

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/pwanimeetup/referral/internal/model"
)

var (
	emailPattern   = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	codeURLPattern = regexp.MustCompile(`(?i)[?&]code=([A-Za-z0-9._~-]+)`)
)

// NormalizeEmail lowercases and trims an address. All storage and comparisons
// use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeKey canonicalizes a header cell for alias matching: lowercase with
// all whitespace removed, so "Email Address" matches "emailaddress".
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// record is one CSV row addressed by normalized header.
type record map[string]string

// column returns the first non-empty value among the alias candidates.
func (r record) column(candidates ...string) string {
	for _, candidate := range candidates {
		if v, ok := r[normalizeKey(candidate)]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// readRecords parses the CSV into header-addressed rows, tolerating ragged
// rows the way exported spreadsheets produce them.
func readRecords(data []byte) ([]record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = normalizeKey(cell)
	}

	records := make([]record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(record, len(header))
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			rec[header[i]] = cell
		}
		records = append(records, rec)
	}

	return records, nil
}

// ParseEmails extracts allowlist entries from a CSV upload. It accepts
// "email"/"e-mail"/"email address" columns with an optional "name" (or
// first/last name pair); when no email column matches, it falls back to
// scanning the raw text for anything shaped like an address. Duplicates keep
// the first occurrence.
func ParseEmails(r io.Reader) ([]model.AllowedEmail, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	records, err := readRecords(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var entries []model.AllowedEmail

	for _, rec := range records {
		email := NormalizeEmail(rec.column("email", "e-mail", "email address"))
		if email == "" || !strings.Contains(email, "@") {
			continue
		}

		name := rec.column("name")
		if name == "" {
			first := rec.column("first_name", "firstname", "first name")
			last := rec.column("last_name", "lastname", "last name")
			name = strings.TrimSpace(first + " " + last)
		}

		if seen[email] {
			continue
		}
		seen[email] = true
		entries = append(entries, model.AllowedEmail{
			Email: email,
			Name:  sql.NullString{String: name, Valid: name != ""},
		})
	}

	// Plain one-email-per-line files have no usable header row.
	if len(entries) == 0 {
		for _, match := range emailPattern.FindAllString(string(data), -1) {
			email := NormalizeEmail(match)
			if seen[email] {
				continue
			}
			seen[email] = true
			entries = append(entries, model.AllowedEmail{Email: email})
		}
	}

	return entries, nil
}

// ParseCodes extracts referral codes from a CSV upload. A row may carry the
// code directly ("code"/"code_id"/"referral_code") or embedded in a referral
// URL ("url"/"link"/"referral_url"/"referral_link"); either way the stored
// destination is resolved from urlBase so rows stay self-contained. Duplicate
// codes keep the first occurrence.
func ParseCodes(r io.Reader, urlBase string) ([]model.ReferralCode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	records, err := readRecords(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var codes []model.ReferralCode

	for _, rec := range records {
		code := ""
		if rawURL := rec.column("url", "link", "referral_url", "referral_link"); rawURL != "" {
			if m := codeURLPattern.FindStringSubmatch(rawURL); m != nil {
				code = m[1]
			}
		} else {
			code = rec.column("code", "code_id", "referral_code")
		}

		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, model.ReferralCode{
			Code: code,
			URL:  ResolveURL(urlBase, code),
		})
	}

	return codes, nil
}

// ResolveURL builds the destination URL for a code.
func ResolveURL(urlBase, code string) string {
	return fmt.Sprintf("%s?code=%s", urlBase, url.QueryEscape(code))
}
