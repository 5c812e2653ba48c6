// Package zipcode normalizes Brazilian postal codes (CEP) to their canonical NNNNN-NNN form.
package zipcode

import (
	"fmt"

	"github.com/justgu1/cepapi/internal/errs"
)

// Length is the number of significant digits in a postal code.
const Length = 8

// Code is a canonical postal code, always NNNNN-NNN.
type Code string

// Normalize strips every non-digit from raw and formats the remaining 8 digits.
// Any other digit count yields errs.ErrInvalidFormat.
func Normalize(raw string) (Code, error) {
	digits := make([]byte, 0, Length)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			continue
		}
		if len(digits) == Length {
			return "", fmt.Errorf("%q: %w", raw, errs.ErrInvalidFormat)
		}
		digits = append(digits, c)
	}
	if len(digits) != Length {
		return "", fmt.Errorf("%q: %w", raw, errs.ErrInvalidFormat)
	}
	return Code(string(digits[:5]) + "-" + string(digits[5:])), nil
}

// Digits returns the unformatted 8-digit form expected by the upstream provider.
func (c Code) Digits() string {
	s := string(c)
	if len(s) != Length+1 {
		return s
	}
	return s[:5] + s[6:]
}

func (c Code) String() string { return string(c) }
