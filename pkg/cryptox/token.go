package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Code size constants (in bytes before encoding).
const (
	// CodeSize128 provides 128 bits of entropy (32 hex chars).
	CodeSize128 = 16
	// CodeSize256 provides 256 bits of entropy (64 hex chars, recommended).
	CodeSize256 = 32
)

// GenerateCode creates a cryptographically secure random code of the
// specified byte length, hex-encoded so it is safe to carry in a URL query
// parameter. A randomness-source failure is the only error and callers
// treat it as unrecoverable.
func GenerateCode(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("code size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token.
// Stores index entries by fingerprint so the raw value never sits in
// storage, allowing lookup without retaining the original.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
