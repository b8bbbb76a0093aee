// Package volkey canonicalizes scanned volume keys so that matching is
// insensitive to case and surrounding whitespace.
package volkey

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest key accepted from a scanner. Shorter reads are
// treated as misfires.
const MinLength = 4

var (
	// ErrEmpty is returned when the scan normalizes to the empty string.
	ErrEmpty = errors.New("empty scan")
	// ErrTooShort is returned when the scan is shorter than MinLength.
	ErrTooShort = errors.New("scan too short")
)

// Normalize trims surrounding whitespace and uppercases raw.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Parse normalizes raw and enforces the minimum length.
func Parse(raw string) (string, error) {
	key := Normalize(raw)
	if key == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(key) < MinLength {
		return key, ErrTooShort
	}
	return key, nil
}

// Suffix returns the last n characters of key, or key itself when shorter.
func Suffix(key string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(key)
	if len(r) <= n {
		return key
	}
	return string(r[len(r)-n:])
}
