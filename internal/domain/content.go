package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContentStatus is the content-level aggregate of all its publications.
type ContentStatus string

const (
	ContentDraft      ContentStatus = "draft"
	ContentScheduled  ContentStatus = "scheduled"
	ContentPublishing ContentStatus = "publishing"
	ContentPublished  ContentStatus = "published"
	ContentPartial    ContentStatus = "partial"
	ContentFailed     ContentStatus = "failed"
)

func (s ContentStatus) String() string { return string(s) }

func (s ContentStatus) IsValid() bool {
	switch s {
	case ContentDraft, ContentScheduled, ContentPublishing, ContentPublished, ContentPartial, ContentFailed:
		return true
	}
	return false
}

// Content is a generated piece of content. It is not modified while an attempt runs.
type Content struct {
	ID           string
	ProjectID    string
	Title        string
	Body         string
	Excerpt      *string
	Tags         []string
	CanonicalURL *string
	Status       ContentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CheckRequired validates the fields every platform needs.
func (c *Content) CheckRequired() error {
	if c == nil {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: content title is required", ErrValidation)
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: content body is required", ErrValidation)
	}
	return nil
}

// Project holds the publishing policy for its contents and platforms.
type Project struct {
	ID                     string
	Name                   string
	AutoPublish            bool
	RequireApproval        bool
	AutoPublishPlatformIDs []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
