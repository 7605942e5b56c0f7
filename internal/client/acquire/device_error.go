package acquire

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"

	"github.com/dmitrijs2005/imgdrop/internal/client/failure"
)

// Device failure names.
const (
	NotAllowedError      = "NotAllowedError"
	NotFoundError        = "NotFoundError"
	NotReadableError     = "NotReadableError"
	OverconstrainedError = "OverconstrainedError"
	SecurityError        = "SecurityError"
	NotSupportedError    = "NotSupportedError"
)

// rawMessages pins the classifier input for each name so that the kind
// depends on the name only, never on driver text.
var rawMessages = map[string]string{
	NotAllowedError:      "NotAllowedError: permission denied",
	NotFoundError:        "NotFoundError: no camera",
	NotReadableError:     "NotReadableError: device busy",
	OverconstrainedError: "OverconstrainedError: constraints cannot be satisfied",
	SecurityError:        "SecurityError: insecure context",
	NotSupportedError:    "NotSupportedError: capture not supported",
}

// DeviceError is a failure of the media device layer.
type DeviceError struct {
	Name string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return e.Name
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func (e *DeviceError) Raw() failure.Raw {
	msg, ok := rawMessages[e.Name]
	if !ok {
		msg = e.Name
	}
	raw := failure.Raw{Category: failure.CategoryCamera, Message: msg}
	if e.Err != nil {
		raw.Details = e.Err.Error()
	}
	return raw
}

// CameraErrorMessage maps a device failure to the text shown to the user.
func CameraErrorMessage(err error) string {
	var de *DeviceError
	if !errors.As(err, &de) {
		return "Unable to access the camera."
	}
	switch de.Name {
	case NotAllowedError:
		return "Camera access was denied. Allow camera access and try again."
	case NotFoundError:
		return "No camera was found on this device."
	case NotReadableError:
		return "The camera is already in use by another application."
	case OverconstrainedError:
		return "The camera does not support the requested settings."
	case SecurityError:
		return "Camera access is blocked by security settings."
	case NotSupportedError:
		return "Camera capture is not supported here."
	default:
		return "Unable to access the camera."
	}
}

// asDeviceError converts low-level errors into DeviceError.
func asDeviceError(err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}

	name := NotReadableError
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		name = NotAllowedError
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		name = NotFoundError
	case errors.Is(err, syscall.EBUSY):
		name = NotReadableError
	case errors.Is(err, syscall.EINVAL):
		name = OverconstrainedError
	case errors.Is(err, exec.ErrNotFound):
		name = NotSupportedError
	}
	return &DeviceError{Name: name, Err: err}
}
