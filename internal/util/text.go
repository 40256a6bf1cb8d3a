package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText lowercases the input and collapses all whitespace runs to a
// single space. Two texts that normalize identically are treated as exact
// duplicates by the cache.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// HashText returns the hex-encoded sha256 of the normalized text.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(NormalizeText(s)))
	return hex.EncodeToString(sum[:])
}

// Preview returns at most maxRunes runes of s. The bound counts runes, not
// bytes, so multi-byte text is never cut mid-character.
func Preview(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SanitizePostgresText strips invalid UTF-8 and NUL bytes before a value is
// written to Postgres.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
