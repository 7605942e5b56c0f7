package failure

// Policy is the hardcoded treatment of one kind.
type Policy struct {
	Severity   Severity
	Title      string
	Message    string
	Suggestion string
	Recovery   Recovery
}

var policies = map[Kind]Policy{
	KindFileTooLarge: {
		Severity:   SeverityMedium,
		Title:      "File too large",
		Message:    "The selected file is larger than the allowed size.",
		Suggestion: "Compress the image or choose a smaller file.",
	},
	KindInvalidFileType: {
		Severity:   SeverityMedium,
		Title:      "Unsupported file type",
		Message:    "This file type is not supported.",
		Suggestion: "Choose a JPEG, PNG, WebP or GIF image.",
	},
	KindCorruptedFile: {
		Severity:   SeverityHigh,
		Title:      "Corrupted file",
		Message:    "The file appears to be corrupted or is not a valid image.",
		Suggestion: "Export the image again or choose a different file.",
	},
	KindInvalidDimensions: {
		Severity:   SeverityMedium,
		Title:      "Invalid image dimensions",
		Message:    "The image dimensions are outside the allowed range.",
		Suggestion: "Resize the image to fit the required dimensions.",
	},
	KindNetworkError: {
		Severity:   SeverityMedium,
		Title:      "Network error",
		Message:    "The connection to the server was interrupted.",
		Suggestion: "Check your internet connection and try again.",
		Recovery:   Recovery{CanRetry: true, MaxRetries: 3},
	},
	KindTimeoutError: {
		Severity:   SeverityMedium,
		Title:      "Upload timed out",
		Message:    "The server took too long to respond.",
		Suggestion: "Try again, or use a smaller file on slow connections.",
		Recovery:   Recovery{CanRetry: true, MaxRetries: 3},
	},
	KindServerError: {
		Severity:   SeverityHigh,
		Title:      "Server error",
		Message:    "The server could not process the upload.",
		Suggestion: "Wait a moment and try again.",
		Recovery:   Recovery{CanRetry: true, MaxRetries: 2},
	},
	KindUploadFailed: {
		Severity:   SeverityMedium,
		Title:      "Upload failed",
		Message:    "The file could not be uploaded.",
		Suggestion: "Try again.",
		Recovery:   Recovery{CanRetry: true, MaxRetries: 3},
	},
	KindQuotaExceeded: {
		Severity:   SeverityHigh,
		Title:      "Storage quota exceeded",
		Message:    "Your storage quota has been reached.",
		Suggestion: "Delete unused uploads or contact an administrator.",
	},
	KindUnauthorized: {
		Severity:   SeverityCritical,
		Title:      "Not authorized",
		Message:    "You are not allowed to upload files.",
		Suggestion: "Sign in again or check your access token.",
	},
	KindCameraPermissionDenied: {
		Severity:   SeverityHigh,
		Title:      "Camera access denied",
		Message:    "Permission to use the camera was denied.",
		Suggestion: "Allow camera access, or select a file instead.",
		Recovery:   Recovery{FallbackLabel: FallbackSelectFromFiles},
	},
	KindCameraNotAvailable: {
		Severity:   SeverityMedium,
		Title:      "Camera not available",
		Message:    "No usable camera was found.",
		Suggestion: "Connect a camera, or select a file instead.",
		Recovery:   Recovery{FallbackLabel: FallbackSelectFromFiles},
	},
	KindCameraInUse: {
		Severity:   SeverityMedium,
		Title:      "Camera in use",
		Message:    "The camera is being used by another application.",
		Suggestion: "Close other applications using the camera and try again.",
		Recovery:   Recovery{CanRetry: true, MaxRetries: 2, FallbackLabel: FallbackSelectFromFiles},
	},
	KindBrowserNotSupported: {
		Severity:   SeverityHigh,
		Title:      "Camera not supported",
		Message:    "Camera capture is not supported in this environment.",
		Suggestion: "Select a file instead.",
		Recovery:   Recovery{FallbackLabel: FallbackSelectFromFiles},
	},
	KindUnknownError: {
		Severity:   SeverityCritical,
		Title:      "Unexpected error",
		Message:    "Something went wrong.",
		Suggestion: "Try again. If the problem persists, contact support.",
		Recovery:   Recovery{CanRetry: true, MaxRetries: 1},
	},
}

// PolicyFor returns the policy of k; unknown kinds get the UnknownError policy.
func PolicyFor(k Kind) Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return policies[KindUnknownError]
}

// Kinds lists the taxonomy in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindFileTooLarge, KindInvalidFileType, KindCorruptedFile, KindInvalidDimensions,
		KindNetworkError, KindTimeoutError, KindServerError, KindUploadFailed,
		KindQuotaExceeded, KindUnauthorized,
		KindCameraPermissionDenied, KindCameraNotAvailable, KindCameraInUse, KindBrowserNotSupported,
		KindUnknownError,
	}
}
