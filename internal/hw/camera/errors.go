package camera

import "fmt"

// Code is a machine-readable error code.
type Code string

const (
	// CodeDeviceUnavailable means no usable camera exists at the requested position,
	// or it could not be opened.
	CodeDeviceUnavailable Code = "DEVICE_UNAVAILABLE"
	// CodeConfigurationLockFailed means the device configuration lock could not be acquired.
	CodeConfigurationLockFailed Code = "CONFIGURATION_LOCK_FAILED"
	// CodeCaptureFailed means the hardware delivered no usable image data.
	CodeCaptureFailed Code = "CAPTURE_FAILED"
	// CodeUnsupportedCapability means the active device lacks the requested feature.
	CodeUnsupportedCapability Code = "UNSUPPORTED_CAPABILITY"
	// CodeCaptureInProgress means a capture request is already Pending or Processing.
	CodeCaptureInProgress Code = "CAPTURE_IN_PROGRESS"
	// CodeSessionNotRunning means the operation needs a running capture session.
	CodeSessionNotRunning Code = "SESSION_NOT_RUNNING"
)

// Error is the domain error type for the camera controller.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Internal message (for logs)
	Cause   error  // Wrapped underlying error
}

// Sentinels for errors.Is comparisons; matching is by code only.
var (
	ErrDeviceUnavailable       = &Error{Code: CodeDeviceUnavailable, Message: "device unavailable"}
	ErrConfigurationLockFailed = &Error{Code: CodeConfigurationLockFailed, Message: "configuration lock failed"}
	ErrCaptureFailed           = &Error{Code: CodeCaptureFailed, Message: "capture failed"}
	ErrUnsupportedCapability   = &Error{Code: CodeUnsupportedCapability, Message: "unsupported capability"}
	ErrCaptureInProgress       = &Error{Code: CodeCaptureInProgress, Message: "capture already in progress"}
	ErrSessionNotRunning       = &Error{Code: CodeSessionNotRunning, Message: "session not running"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a domain error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a domain error that wraps an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
