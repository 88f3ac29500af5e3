package service

import (
	"time"

	"github.com/kursadbilgin/publish-engine/internal/classify"
	"github.com/kursadbilgin/publish-engine/internal/domain"
)

// ResultStatus is the per-platform outcome reported to callers.
type ResultStatus string

const (
	ResultPublished ResultStatus = "published"
	ResultFailed    ResultStatus = "failed"
	ResultSkipped   ResultStatus = "skipped"
	ResultValid     ResultStatus = "valid"
)

// PublishOptions tunes a publish request.
type PublishOptions struct {
	DryRun    bool `json:"dryRun"`
	Republish bool `json:"republish"`

	claim claimMode
}

// claimMode selects which states an attempt may be claimed from.
type claimMode int

const (
	// claimFresh starts from PENDING or RETRYING.
	claimFresh claimMode = iota
	// claimScheduled is the retry sweep. It starts only from RETRYING while a
	// scheduled retry is still set, and increments retryCount.
	claimScheduled
	// claimRerun is a manual retry that already moved the row to RETRYING and
	// counted the retry. It starts only from RETRYING.
	claimRerun
)

// PlatformResult is the outcome for one content/platform pair. Failures are
// reported here and never returned as errors.
type PlatformResult struct {
	PlatformID     string              `json:"platformId"`
	PlatformType   domain.PlatformType `json:"platformType,omitempty"`
	PublicationID  string              `json:"publicationId,omitempty"`
	Status         ResultStatus        `json:"status"`
	ExternalPostID string              `json:"externalPostId,omitempty"`
	ExternalURL    string              `json:"externalUrl,omitempty"`
	Error          string              `json:"error,omitempty"`
	ErrorKind      domain.ErrorKind    `json:"errorKind,omitempty"`
	UserMessage    string              `json:"userMessage,omitempty"`
	Suggestion     string              `json:"suggestion,omitempty"`
	Recoverable    bool                `json:"recoverable"`
	Severity       classify.Severity   `json:"severity,omitempty"`
	Category       classify.Category   `json:"category,omitempty"`
	WillRetry      bool                `json:"willRetry,omitempty"`
	NextRetryAt    *time.Time          `json:"nextRetryAt,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
}

func (r PlatformResult) Failed() bool { return r.Status == ResultFailed }

// BatchSummary counts per-platform outcomes of one request.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// BatchResult is the aggregated outcome of a multi-platform request.
type BatchResult struct {
	ContentID     string               `json:"contentId"`
	Success       bool                 `json:"success"`
	DryRun        bool                 `json:"dryRun,omitempty"`
	Error         string               `json:"error,omitempty"`
	ErrorKind     domain.ErrorKind     `json:"errorKind,omitempty"`
	Results       []PlatformResult     `json:"results"`
	Summary       BatchSummary         `json:"summary"`
	ContentStatus domain.ContentStatus `json:"contentStatus"`
	Counts        domain.StatusCounts  `json:"counts"`
}

// ContentStatusView is the read model returned by GetStatus.
type ContentStatusView struct {
	ContentID    string               `json:"contentId"`
	Status       domain.ContentStatus `json:"status"`
	Counts       domain.StatusCounts  `json:"counts"`
	Publications []domain.Publication `json:"publications"`
}

func summarize(results []PlatformResult) BatchSummary {
	summary := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ResultPublished, ResultValid:
			summary.Successful++
		case ResultSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary
}

// requestFailure builds the result for failures that happen before the
// platform is called.
func requestFailure(platformID string, err error) PlatformResult {
	kind := domain.KindOf(err)
	result := PlatformResult{
		PlatformID: platformID,
		Status:     ResultFailed,
		Error:      err.Error(),
		ErrorKind:  kind,
		Severity:   classify.SeverityHigh,
	}

	switch kind {
	case domain.KindNotFound:
		result.UserMessage = "The content or platform could not be found"
		result.Suggestion = "Check that the content and platform exist in the same project."
	case domain.KindNotConnected:
		result.UserMessage = "The platform is not connected"
		result.Suggestion = "Reconnect the platform account."
	case domain.KindValidationFailed:
		result.UserMessage = "The content does not meet this platform's rules"
		result.Suggestion = "Edit the content and publish again."
	case domain.KindUnsupportedPlatform:
		result.UserMessage = "Publishing to this platform is not supported"
		result.Suggestion = "Choose a different platform."
	case domain.KindAlreadyInFlight, domain.KindConflict:
		result.UserMessage = "A publish to this platform is already in progress"
		result.Suggestion = "Wait for the current attempt to finish."
		result.Recoverable = true
		result.Severity = classify.SeverityLow
	case domain.KindRetryExhausted:
		result.UserMessage = "The retry limit for this publication was reached"
		result.Suggestion = "Fix the cause and reset the retry counter."
	case domain.KindNoPlatforms:
		result.UserMessage = "No platforms configured"
		result.Suggestion = "Connect at least one platform."
	default:
		result.ErrorKind = domain.KindInternal
		result.UserMessage = "Publishing failed"
		result.Suggestion = "Try again later."
		result.Recoverable = true
		result.Severity = classify.SeverityMedium
	}

	return result
}

func platformFailure(platformID string, err error, c classify.Classification) PlatformResult {
	return PlatformResult{
		PlatformID:  platformID,
		Status:      ResultFailed,
		Error:       err.Error(),
		ErrorKind:   domain.KindPlatformError,
		UserMessage: c.UserMessage,
		Suggestion:  c.Suggestion,
		Recoverable: c.Recoverable,
		Severity:    c.Severity,
		Category:    c.Category,
	}
}
