/**
 * @description
 * This file implements normalization and format validation for recipient
 * redemption codes. Both run before any database access so malformed input
 * never costs a store round trip.
 */

package app

import (
	"fmt"
	"strings"
)

const (
	minCodeLength = 3
	maxCodeLength = 50
)

// NormalizeRedemptionCode trims surrounding whitespace and uppercases the
// code. Interior separators ('-' and '_') are preserved, so "ab6-1061"
// normalizes to "AB6-1061" and normalizing an already-normalized code is a
// no-op.
func NormalizeRedemptionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRedemptionCodeFormat checks a normalized code against the accepted
// grammar: 3 to 50 characters, alphanumerics plus '-' and '_', first
// character alphanumeric. It returns ErrInvalidCodeFormat (wrapped with the
// concrete reason) on any violation.
func ValidateRedemptionCodeFormat(code string) error {
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return fmt.Errorf("%w: length must be between %d and %d characters", ErrInvalidCodeFormat, minCodeLength, maxCodeLength)
	}
	if !isAlphanumeric(code[0]) {
		return fmt.Errorf("%w: must start with a letter or digit", ErrInvalidCodeFormat)
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !isAlphanumeric(c) && c != '-' && c != '_' {
			return fmt.Errorf("%w: character %q is not allowed", ErrInvalidCodeFormat, rune(c))
		}
	}
	return nil
}

func isAlphanumeric(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
