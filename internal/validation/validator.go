// Package validation checks content against a platform's structural rules
// without performing any I/O.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kursadbilgin/publish-engine/internal/domain"
)

// CredentialWarningWindow is how far ahead an expiring credential is flagged.
const CredentialWarningWindow = 72 * time.Hour

// Result is the outcome of validating one content item for one platform.
// Any error makes it invalid; warnings never do.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err returns a ValidationFailed error describing the result, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(r.Errors, "; "))
}

// Validate checks content against target. Over-limit content is rejected, never
// truncated.
func Validate(content domain.Content, target domain.PlatformTarget, now time.Time) Result {
	result := Result{Errors: []string{}, Warnings: []string{}}
	limits := LimitsFor(target.Type)
	name := platformName(target)

	body := strings.TrimSpace(content.Body)
	title := strings.TrimSpace(content.Title)

	if body == "" {
		result.addError("body is required")
	}
	if limits.RequireTitle && title == "" {
		result.addError("title is required for %s", name)
	}

	if limits.MaxBodyChars > 0 {
		if n := utf8.RuneCountInString(body); n > limits.MaxBodyChars {
			result.addError("content exceeds %s limit of %d characters (got %d)", name, limits.MaxBodyChars, n)
		}
	}
	if limits.MaxTitleChars > 0 {
		if n := utf8.RuneCountInString(title); n > limits.MaxTitleChars {
			result.addError("title exceeds %s limit of %d characters (got %d)", name, limits.MaxTitleChars, n)
		}
	}

	if !target.IsConnected {
		result.addError("%s is not connected", name)
	}
	if target.CredentialExpired(now) {
		result.addError("%s credentials expired at %s", name, target.CredentialExpiresAt.UTC().Format(time.RFC3339))
	} else if target.CredentialExpiresAt != nil && target.CredentialExpiresAt.Sub(now) <= CredentialWarningWindow {
		result.addWarning("%s credentials expire at %s", name, target.CredentialExpiresAt.UTC().Format(time.RFC3339))
	}

	if limits.MaxTags > 0 && len(content.Tags) > limits.MaxTags {
		result.addWarning("%s accepts at most %d tags, extra tags will be dropped", name, limits.MaxTags)
	}
	if limits.WantExcerpt && (content.Excerpt == nil || strings.TrimSpace(*content.Excerpt) == "") {
		result.addWarning("excerpt is missing, %s will generate one", name)
	}
	if limits.WantCanonicalURL && (content.CanonicalURL == nil || strings.TrimSpace(*content.CanonicalURL) == "") {
		result.addWarning("canonical URL is missing for cross-post to %s", name)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func platformName(target domain.PlatformTarget) string {
	if name := strings.TrimSpace(target.Name); name != "" {
		return fmt.Sprintf("%s (%s)", name, target.Type)
	}
	return target.Type.String()
}
