// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"sort"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or could not be resolved upstream.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFormat indicates a postal code that does not reduce to exactly 8 digits.
	ErrInvalidFormat = errors.New("invalid postal code format")

	// ErrAlreadyExists indicates a unique constraint violation (duplicate favorite, email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrLookupFailed indicates the upstream provider could not resolve a code.
	ErrLookupFailed = errors.New("upstream lookup failed")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError carries field-level messages for a rejected request.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError builds a ValidationError with a single message for field.
func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// Add appends msg to field.
func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], ", "))
	}
	return "validation: " + strings.Join(parts, "; ")
}
