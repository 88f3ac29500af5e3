package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	ApprovalHold          = 7 * 24 * time.Hour
	ApprovalExpiredReason = "Approval expired after 7 days"
)

// ApprovalStatus represents the decision state of an approval entry.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) String() string { return string(s) }

func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ApprovalEntry holds a content's publish request until a human decides on it.
type ApprovalEntry struct {
	ID              string
	ContentID       string
	PlatformIDs     []string
	AddedAt         time.Time
	ExpiresAt       time.Time
	Status          ApprovalStatus
	RejectionReason *string
	DecidedAt       *time.Time
}

func NewApprovalEntry(id, contentID string, platformIDs []string, now time.Time) (*ApprovalEntry, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, fmt.Errorf("%w: content id is required", ErrValidation)
	}
	if len(platformIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrValidation)
	}

	added := now.UTC()
	return &ApprovalEntry{
		ID:          id,
		ContentID:   contentID,
		PlatformIDs: platformIDs,
		AddedAt:     added,
		ExpiresAt:   added.Add(ApprovalHold),
		Status:      ApprovalPending,
	}, nil
}

// IsExpired reports whether a pending entry's hold has run out at now.
func (e *ApprovalEntry) IsExpired(now time.Time) bool {
	if e == nil || e.Status != ApprovalPending {
		return false
	}
	return !e.ExpiresAt.After(now)
}
