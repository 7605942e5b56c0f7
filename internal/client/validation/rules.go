// Package validation checks a candidate file against size, type,
// integrity, dimension and pluggable custom rules.
//
// All failing checks are reported, in a fixed order, with one exception:
// a file that fails the integrity check is not decoded for dimensions.
package validation

import (
	"context"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
)

// Rules is the configuration of one pipeline instance. Zero dimension
// bounds are "not configured".
type Rules struct {
	MaxSize      int64
	AllowedTypes []string
	MinWidth     int
	MinHeight    int
	MaxWidth     int
	MaxHeight    int
}

// DefaultRules accepts common web images up to 10 MB.
func DefaultRules() Rules {
	return Rules{
		MaxSize:      10 * 1024 * 1024,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	}
}

// HasDimensionConstraints reports whether any pixel bound is configured.
func (r Rules) HasDimensionConstraints() bool {
	return r.MinWidth > 0 || r.MinHeight > 0 || r.MaxWidth > 0 || r.MaxHeight > 0
}

// Allows reports whether mimeType is in AllowedTypes.
func (r Rules) Allows(mimeType string) bool {
	for _, t := range r.AllowedTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Result is the outcome of one validation call.
type Result struct {
	IsValid bool
	Errors  []string
}

// Valid is the passing result.
func Valid() Result {
	return Result{IsValid: true}
}

// Invalid builds a failing result from messages.
func Invalid(messages ...string) Result {
	return Result{IsValid: false, Errors: messages}
}

// Validator is a custom rule. Returning an error (or panicking) counts as
// a failed validation with a generic message.
type Validator func(ctx context.Context, f *models.CandidateFile) (Result, error)
