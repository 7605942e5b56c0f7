// Package common defines shared constants and sentinel errors used across
// client and server layers of imgdrop. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Asset store errors.
	ErrorQuotaExceeded = errors.New("quota exceeded")
	ErrorTooLarge      = errors.New("file too large")
	ErrorMissingFile   = errors.New("missing file field")
	ErrorNotAnImage    = errors.New("file is not a supported image")
)
