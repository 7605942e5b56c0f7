package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Raw is an unclassified failure as produced by a pipeline stage.
type Raw struct {
	Category Category
	Message  string
	Details  string
}

// RawError is implemented by stage errors that know their own category.
type RawError interface {
	error
	Raw() Raw
}

// Technical is the debugging view of a classified failure.
type Technical struct {
	Type    string
	Message string
	Details string
}

// Classified is a failure after classification. It is what the
// controller stores and what notifications are built from.
type Classified struct {
	Kind       Kind
	Category   Category
	Severity   Severity
	Title      string
	Message    string
	Suggestion string
	Recovery   Recovery
	Technical  Technical

	Err error
}

func (c *Classified) Error() string {
	if c.Technical.Message != "" {
		return fmt.Sprintf("%s: %s", c.Kind, c.Technical.Message)
	}
	return string(c.Kind)
}

func (c *Classified) Unwrap() error {
	return c.Err
}

// Persistent reports whether the failure needs acknowledgment (High and up).
func (c *Classified) Persistent() bool {
	return c.Severity >= SeverityHigh
}

// Classify maps raw onto the taxonomy: first by category, then by keywords
// in the lower-cased message. Unmatched input yields KindUnknownError.
func Classify(raw Raw) *Classified {
	kind := kindOf(raw)
	p := PolicyFor(kind)

	message := p.Message
	// Validation messages are already concrete and user-facing.
	if raw.Category == CategoryValidation && raw.Message != "" {
		message = raw.Message
	}

	return &Classified{
		Kind:       kind,
		Category:   raw.Category,
		Severity:   p.Severity,
		Title:      p.Title,
		Message:    message,
		Suggestion: p.Suggestion,
		Recovery:   p.Recovery,
		Technical: Technical{
			Type:    string(raw.Category),
			Message: raw.Message,
			Details: raw.Details,
		},
	}
}

// FromError classifies err. Errors that carry a Raw are classified by it,
// already classified errors are returned as is, anything else is unknown.
func FromError(err error) *Classified {
	if err == nil {
		return nil
	}

	var classified *Classified
	if errors.As(err, &classified) {
		return classified
	}

	raw := Raw{Message: err.Error()}
	var rawErr RawError
	if errors.As(err, &rawErr) {
		raw = rawErr.Raw()
	}

	c := Classify(raw)
	c.Err = err
	return c
}

func kindOf(raw Raw) Kind {
	msg := strings.ToLower(raw.Message)

	switch raw.Category {
	case CategoryValidation:
		switch {
		case containsAny(msg, "size", "large"):
			return KindFileTooLarge
		case containsAny(msg, "type", "format", "not a supported image", "not an image", "unsupported"):
			return KindInvalidFileType
		case containsAny(msg, "corrupt", "invalid image", "not a valid image", "missing file"):
			return KindCorruptedFile
		case containsAny(msg, "dimension", "width", "height"):
			return KindInvalidDimensions
		}

	case CategoryUpload:
		switch {
		case containsAny(msg, "unauthorized", "401", "403", "forbidden"):
			return KindUnauthorized
		case containsAny(msg, "quota", "413", "429", "limit"):
			return KindQuotaExceeded
		case containsAny(msg, "500", "502", "503", "504", "server"):
			return KindServerError
		default:
			return KindUploadFailed
		}

	case CategoryNetwork:
		if containsAny(msg, "timeout", "timed out", "deadline") {
			return KindTimeoutError
		}
		return KindNetworkError

	case CategoryCamera:
		switch {
		case containsAny(msg, "permission", "denied", "notallowed"):
			return KindCameraPermissionDenied
		case containsAny(msg, "in use", "busy", "notreadable"):
			return KindCameraInUse
		case containsAny(msg, "not supported", "security", "secure", "https"):
			return KindBrowserNotSupported
		default:
			return KindCameraNotAvailable
		}
	}

	return KindUnknownError
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
