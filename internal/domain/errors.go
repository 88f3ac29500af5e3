package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNotConnected        = errors.New("platform not connected")
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyInFlight     = errors.New("publication already in flight")
	ErrPlatform            = errors.New("platform error")
	ErrRetryExhausted      = errors.New("retries exhausted")
	ErrConflict            = errors.New("conflict")
	ErrNoPlatforms         = errors.New("no platforms configured")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrApprovalPending     = errors.New("approval already pending")
	ErrApprovalExpired     = errors.New("approval expired")
)

// ErrorKind is the machine-readable failure kind reported in publish results.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindNotFound            ErrorKind = "NotFound"
	KindNotConnected        ErrorKind = "NotConnected"
	KindValidationFailed    ErrorKind = "ValidationFailed"
	KindAlreadyInFlight     ErrorKind = "AlreadyInFlight"
	KindPlatformError       ErrorKind = "PlatformError"
	KindRetryExhausted      ErrorKind = "RetryExhausted"
	KindUnsupportedPlatform ErrorKind = "UnsupportedPlatform"
	KindConflict            ErrorKind = "Conflict"
	KindNoPlatforms         ErrorKind = "NoPlatforms"
	KindInternal            ErrorKind = "Internal"
)

func (k ErrorKind) String() string { return string(k) }

// KindOf maps an error chain onto its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrValidation):
		return KindValidationFailed
	case errors.Is(err, ErrAlreadyInFlight):
		return KindAlreadyInFlight
	case errors.Is(err, ErrRetryExhausted):
		return KindRetryExhausted
	case errors.Is(err, ErrUnsupportedPlatform):
		return KindUnsupportedPlatform
	case errors.Is(err, ErrNoPlatforms):
		return KindNoPlatforms
	case errors.Is(err, ErrConflict), errors.Is(err, ErrApprovalPending), errors.Is(err, ErrApprovalExpired):
		return KindConflict
	case errors.Is(err, ErrPlatform):
		return KindPlatformError
	default:
		return KindInternal
	}
}
