// Package similarity produces content fingerprints for near-duplicate
// detection. The contract is determinism only: identical normalized text
// always yields the same digest.
package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Fingerprint returns the hex SHA-256 of the normalized text, or "" when
// nothing survives normalization. Callers treat "" as "no fingerprint".
func Fingerprint(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases the text and collapses every run of non-alphanumeric
// characters to a single space.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	collapsed := nonAlphanumeric.ReplaceAllString(lowered, " ")
	return strings.TrimSpace(collapsed)
}
