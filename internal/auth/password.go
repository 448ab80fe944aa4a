// Package auth implements the administrator credential scheme: scrypt
// password secrets and the derived session tokens verified against them.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. N=32768 keeps a single derivation in the tens of
// milliseconds on current hardware while staying memory-hard.
const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1

	saltLength = 16 // bytes
	keyLength  = 64 // bytes
)

// HashPassword derives a stored secret of the form "saltHex:derivedHex" from
// a fresh random salt. Two calls with the same password produce different
// secrets.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return "", fmt.Errorf("failed to derive password hash: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword re-derives the hash with the stored salt and compares it to
// the stored hash in constant time. Malformed secrets and length mismatches
// report false rather than erroring; a candidate password is never the reason
// to surface internals.
func VerifyPassword(password, stored string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok || saltHex == "" || hashHex == "" {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	got, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false
	}

	// ConstantTimeCompare returns 0 on length mismatch without inspecting
	// bytes, so no timing signal leaks either way.
	return subtle.ConstantTimeCompare(got, want) == 1
}
