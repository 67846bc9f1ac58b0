package partyline

import "errors"

// Error is a domain error from the coordinator, as opposed to an
// infrastructure error from the underlying file or store. Callers should
// switch on Code rather than matching on Error's message text.
type Error struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the path the operation targeted, when applicable.
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode is the category of a coordinator error.
type ErrorCode int

const (
	// ErrTimedOut means the deadline was reached before admission.
	// Recoverable: retry with a new deadline.
	ErrTimedOut ErrorCode = iota

	// ErrDenied means the compatibility matrix permanently forbids
	// admission without another caller releasing first (a Delete request
	// blocked by a locked descendant). Recoverable via retry once the
	// blocker clears.
	ErrDenied

	// ErrNotFound means the path does not exist and no JoinableFile is
	// present for it. Only returned by reads; deleting a missing path
	// succeeds.
	ErrNotFound

	// ErrCancelled means the caller aborted the operation.
	// Recoverable: the caller chose to stop, not a coordinator failure.
	ErrCancelled

	// ErrIOError means the underlying file operation failed. The
	// associated JoinableFile (if any) transitions to errored-closed and
	// propagates the error to all readers.
	ErrIOError

	// ErrFatal means the configured global store lacks required support
	// (e.g. transactions), or an invariant was violated. Non-recoverable:
	// callers should not retry.
	ErrFatal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrTimedOut:
		return "timed-out"
	case ErrDenied:
		return "denied"
	case ErrNotFound:
		return "not-found"
	case ErrCancelled:
		return "cancelled"
	case ErrIOError:
		return "io-error"
	case ErrFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func newError(code ErrorCode, path, message string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// NewTimedOutError reports a deadline reached before admission.
func NewTimedOutError(path string) *Error {
	return newError(ErrTimedOut, path, "timed out waiting for lock")
}

// NewDeniedError reports a permanently unadmittable request.
func NewDeniedError(path, reason string) *Error {
	if reason == "" {
		reason = "lock denied"
	}
	return newError(ErrDenied, path, reason)
}

// NewNotFoundError reports a missing path.
func NewNotFoundError(path string) *Error {
	return newError(ErrNotFound, path, "path not found")
}

// NewCancelledError reports caller-initiated cancellation.
func NewCancelledError(path string) *Error {
	return newError(ErrCancelled, path, "operation cancelled")
}

// NewIOError wraps an underlying file error.
func NewIOError(path string, cause error) *Error {
	msg := "io error"
	if cause != nil {
		msg = "io error: " + cause.Error()
	}
	return newError(ErrIOError, path, msg)
}

// NewFatalError reports a non-recoverable failure.
func NewFatalError(path, message string) *Error {
	return newError(ErrFatal, path, message)
}

// Is allows errors.Is(err, &Error{Code: ErrNotFound}) style code
// comparison: only the target's Code is compared; its Path and Message
// are ignored.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the ErrorCode from err, if err is (or wraps) a *Error.
// Returns ErrFatal, false for anything else, treating unrecognized errors
// as non-recoverable by default.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return ErrFatal, false
}
