package queue

import (
	"fmt"
	"strings"
)

// JobSource identifies what requested a deferred publish.
type JobSource string

const (
	SourceAuto     JobSource = "auto"
	SourceApproval JobSource = "approval"
	SourceManual   JobSource = "manual"
)

func (s JobSource) IsValid() bool {
	switch s {
	case SourceAuto, SourceApproval, SourceManual:
		return true
	}
	return false
}

// PublishJobMessage is the broker payload for a deferred publish. An empty
// PlatformIDs list means every connected platform of the content's project.
type PublishJobMessage struct {
	JobID         string    `json:"jobId"`
	ContentID     string    `json:"contentId"`
	PlatformIDs   []string  `json:"platformIds,omitempty"`
	Source        JobSource `json:"source"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

func (m PublishJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if strings.TrimSpace(m.ContentID) == "" {
		return fmt.Errorf("contentId is required")
	}
	if !m.Source.IsValid() {
		return fmt.Errorf("invalid source %q", m.Source)
	}
	for _, id := range m.PlatformIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("platformIds must not contain empty ids")
		}
	}
	return nil
}
