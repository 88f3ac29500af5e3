package domain

import (
	"fmt"
	"time"
)

// PublicationStatus represents the lifecycle state of a publication.
type PublicationStatus string

const (
	StatusPending    PublicationStatus = "PENDING"
	StatusPublishing PublicationStatus = "PUBLISHING"
	StatusPublished  PublicationStatus = "PUBLISHED"
	StatusFailed     PublicationStatus = "FAILED"
	StatusRetrying   PublicationStatus = "RETRYING"
)

func (s PublicationStatus) String() string { return string(s) }

func (s PublicationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPublishing, StatusPublished, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// CanStartAttempt reports whether an attempt may be claimed from this state.
func (s PublicationStatus) CanStartAttempt() bool {
	return s == StatusPending || s == StatusRetrying
}

var transitions = map[PublicationStatus][]PublicationStatus{
	StatusPending:    {StatusPublishing},
	StatusPublishing: {StatusPublished, StatusFailed},
	// PUBLISHED only re-enters the cycle on an explicit republish.
	StatusPublished: {StatusPending},
	// FAILED and RETRYING accept PUBLISHED when the platform confirms an
	// attempt that was already written off as interrupted.
	StatusFailed:   {StatusRetrying, StatusPending, StatusPublished},
	StatusRetrying: {StatusPublishing, StatusFailed, StatusRetrying, StatusPublished},
}

// CanTransition reports whether from -> to is an allowed publication transition.
func CanTransition(from, to PublicationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrConflict unless every from -> to is allowed.
func CheckTransition(from []PublicationStatus, to PublicationStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: no source status for %s", ErrConflict, to)
	}
	for _, s := range from {
		if !CanTransition(s, to) {
			return fmt.Errorf("%w: transition %s -> %s is not allowed", ErrConflict, s, to)
		}
	}
	return nil
}

// Publication tracks one content item on one platform. There is exactly one
// publication per (ContentID, PlatformID) pair.
type Publication struct {
	ID               string
	ContentID        string
	PlatformID       string
	Status           PublicationStatus
	ExternalPostID   *string
	ExternalURL      *string
	ErrorMessage     *string
	RetryCount       int
	LastAttemptAt    *time.Time
	PublishedAt      *time.Time
	ScheduledRetryAt *time.Time
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p *Publication) LastError() string {
	if p == nil || p.ErrorMessage == nil {
		return ""
	}
	return *p.ErrorMessage
}
