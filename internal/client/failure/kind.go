// Package failure maps raw pipeline failures onto a closed taxonomy of
// error kinds. Every kind carries a fixed severity and recovery policy;
// nothing is shown to the user without passing through Classify.
package failure

import "fmt"

// Category is the coarse origin of a raw failure.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryUpload     Category = "upload"
	CategoryCamera     Category = "camera"
	CategoryNetwork    Category = "network"
)

// Kind is a member of the error taxonomy.
type Kind string

const (
	KindFileTooLarge           Kind = "FILE_TOO_LARGE"
	KindInvalidFileType        Kind = "INVALID_FILE_TYPE"
	KindCorruptedFile          Kind = "CORRUPTED_FILE"
	KindInvalidDimensions      Kind = "INVALID_DIMENSIONS"
	KindNetworkError           Kind = "NETWORK_ERROR"
	KindTimeoutError           Kind = "TIMEOUT_ERROR"
	KindServerError            Kind = "SERVER_ERROR"
	KindUploadFailed           Kind = "UPLOAD_FAILED"
	KindQuotaExceeded          Kind = "QUOTA_EXCEEDED"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindCameraPermissionDenied Kind = "CAMERA_PERMISSION_DENIED"
	KindCameraNotAvailable     Kind = "CAMERA_NOT_AVAILABLE"
	KindCameraInUse            Kind = "CAMERA_IN_USE"
	KindBrowserNotSupported    Kind = "BROWSER_NOT_SUPPORTED"
	KindUnknownError           Kind = "UNKNOWN_ERROR"
)

// Severity orders how loudly a failure is surfaced.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Recovery is the recovery template of a kind.
type Recovery struct {
	CanRetry      bool
	MaxRetries    int
	FallbackLabel string
}

// FallbackSelectFromFiles is offered whenever the camera path cannot work.
const FallbackSelectFromFiles = "Select from Files"
