package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kursadbilgin/publish-engine/internal/domain"
)

// PlatformError is a failure reported by a platform adapter.
type PlatformError struct {
	Platform   domain.PlatformType
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *PlatformError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	if e.Platform != "" {
		parts = append(parts, fmt.Sprintf("%s error", e.Platform))
	} else {
		parts = append(parts, "platform error")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *PlatformError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is lets errors.Is(err, domain.ErrPlatform) match any adapter failure.
func (e *PlatformError) Is(target error) bool {
	return target == domain.ErrPlatform
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
