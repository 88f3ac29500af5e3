// Package classify turns raw publish failures into user-facing guidance.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/platform"
)

// Category is the failure family a raw error belongs to.
type Category string

const (
	CategoryAuth           Category = "auth"
	CategoryPermission     Category = "permission"
	CategoryRateLimit      Category = "rate_limit"
	CategoryQuota          Category = "quota"
	CategoryContentTooLong Category = "content_too_long"
	CategoryDuplicate      Category = "duplicate"
	CategoryValidation     Category = "validation"
	CategoryTimeout        Category = "timeout"
	CategoryNetwork        Category = "network"
	CategoryServer         Category = "server"
	CategoryNotFound       Category = "not_found"
	CategorySuspended      Category = "suspended"
	CategoryUnknown        Category = "unknown"
)

func (c Category) String() string { return string(c) }

// Severity ranks how urgently an operator should look at a failure.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string { return string(s) }

// RetryClass selects the backoff family used by the retry policy.
type RetryClass string

const (
	RetryClassNone      RetryClass = "none"
	RetryClassRateLimit RetryClass = "rate_limit"
	RetryClassNetwork   RetryClass = "network"
	RetryClassServer    RetryClass = "server"
	RetryClassDefault   RetryClass = "default"
)

func (r RetryClass) String() string { return string(r) }

const (
	defaultMessage    = "Publishing failed"
	defaultSuggestion = "Try again later. If the problem persists, check the platform connection."
)

// Classification is the humanized view of a failure.
type Classification struct {
	Category    Category   `json:"category"`
	UserMessage string     `json:"userMessage"`
	Suggestion  string     `json:"suggestion"`
	Recoverable bool       `json:"recoverable"`
	Severity    Severity   `json:"severity"`
	RetryClass  RetryClass `json:"retryClass"`
}

// Classify maps an error to its classification. Platform-specific patterns win
// over status codes, which win over the common pattern table. Unmatched errors
// are treated as recoverable.
func Classify(err error, platformType domain.PlatformType) Classification {
	if err == nil {
		return unknown()
	}

	msg := strings.ToLower(err.Error())
	if p, ok := matchPlatform(msg, platformType); ok {
		return fromPattern(p)
	}
	if c, ok := classifyTyped(err); ok {
		return c
	}
	if p, ok := matchCommon(msg); ok {
		return fromPattern(p)
	}

	var platformErr *platform.PlatformError
	if errors.As(err, &platformErr) && !platformErr.Transient && platformErr.StatusCode >= 400 && platformErr.StatusCode < 500 {
		return finalize(Classification{
			Category:    CategoryValidation,
			UserMessage: "The platform rejected the content",
			Suggestion:  "Review the content against the platform rules and publish again.",
		}, false)
	}

	return unknown()
}

// ClassifyMessage classifies a stored error message.
func ClassifyMessage(message string, platformType domain.PlatformType) Classification {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return unknown()
	}
	if p, ok := matchPlatform(msg, platformType); ok {
		return fromPattern(p)
	}
	if p, ok := matchCommon(msg); ok {
		return fromPattern(p)
	}
	return unknown()
}

func matchPlatform(msg string, platformType domain.PlatformType) (pattern, bool) {
	for _, p := range platformPatterns[platformType] {
		if p.matches(msg) {
			return p, true
		}
	}
	return pattern{}, false
}

func matchCommon(msg string) (pattern, bool) {
	for _, p := range commonPatterns {
		if p.matches(msg) {
			return p, true
		}
	}
	return pattern{}, false
}

func classifyTyped(err error) (Classification, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		p, _ := commonByCategory(CategoryTimeout)
		return fromPattern(p), true
	}

	var platformErr *platform.PlatformError
	if errors.As(err, &platformErr) && platformErr.StatusCode > 0 {
		var category Category
		switch code := platformErr.StatusCode; {
		case code == http.StatusUnauthorized:
			category = CategoryAuth
		case code == http.StatusForbidden:
			category = CategoryPermission
		case code == http.StatusNotFound:
			category = CategoryNotFound
		case code == http.StatusRequestEntityTooLarge:
			category = CategoryContentTooLong
		case code == http.StatusTooManyRequests:
			category = CategoryRateLimit
		case code >= http.StatusInternalServerError:
			category = CategoryServer
		}
		if category != "" {
			p, _ := commonByCategory(category)
			return fromPattern(p), true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		category := CategoryNetwork
		if netErr.Timeout() {
			category = CategoryTimeout
		}
		p, _ := commonByCategory(category)
		return fromPattern(p), true
	}

	return Classification{}, false
}

func commonByCategory(category Category) (pattern, bool) {
	for _, p := range commonPatterns {
		if p.category == category {
			return p, true
		}
	}
	return pattern{}, false
}

func fromPattern(p pattern) Classification {
	c := Classification{
		Category:    p.category,
		UserMessage: p.message,
		Suggestion:  p.suggestion,
		Recoverable: p.recoverable,
	}
	return finalize(c, p.critical)
}

func unknown() Classification {
	return finalize(Classification{
		Category:    CategoryUnknown,
		UserMessage: defaultMessage,
		Suggestion:  defaultSuggestion,
		Recoverable: true,
	}, false)
}

func finalize(c Classification, critical bool) Classification {
	c.Severity = severityFor(c, critical)
	c.RetryClass = retryClassFor(c)
	return c
}

func severityFor(c Classification, critical bool) Severity {
	switch {
	case critical:
		return SeverityCritical
	case !c.Recoverable:
		return SeverityHigh
	}

	switch c.Category {
	case CategoryRateLimit, CategoryQuota:
		return SeverityMedium
	case CategoryNetwork, CategoryTimeout:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func retryClassFor(c Classification) RetryClass {
	if !c.Recoverable {
		return RetryClassNone
	}

	switch c.Category {
	case CategoryRateLimit, CategoryQuota:
		return RetryClassRateLimit
	case CategoryNetwork, CategoryTimeout:
		return RetryClassNetwork
	case CategoryServer:
		return RetryClassServer
	default:
		return RetryClassDefault
	}
}
