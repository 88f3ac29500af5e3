// Package notify delivers publication and approval events to interested parties.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType names a notification event. Values double as routing keys.
type EventType string

const (
	EventPublishFailed    EventType = "publication.failed"
	EventPublishSucceeded EventType = "publication.published"
	EventRetryScheduled   EventType = "publication.retry_scheduled"
	EventApprovalPending  EventType = "approval.pending"
	EventApprovalApproved EventType = "approval.approved"
	EventApprovalRejected EventType = "approval.rejected"
	EventApprovalExpired  EventType = "approval.expired"
)

func (t EventType) String() string { return string(t) }

// Event is the payload sent for every notification.
type Event struct {
	Type          EventType      `json:"type"`
	ContentID     string         `json:"contentId"`
	PlatformID    string         `json:"platformId,omitempty"`
	PublicationID string         `json:"publicationId,omitempty"`
	Message       string         `json:"message,omitempty"`
	Category      string         `json:"category,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// Notifier sends an event somewhere.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// DispatchTimeout bounds a single fire-and-forget delivery.
const DispatchTimeout = 10 * time.Second

// Dispatch delivers the event in the background. Failures and panics are
// logged and never reach the caller.
func Dispatch(n Notifier, logger *zap.Logger, event Event) {
	if n == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("notifier panicked",
					zap.Any("panic", r),
					zap.String("eventType", event.Type.String()),
					zap.String("contentId", event.ContentID),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), DispatchTimeout)
		defer cancel()

		if err := n.Notify(ctx, event); err != nil {
			logger.Warn("notification delivery failed",
				zap.Error(err),
				zap.String("eventType", event.Type.String()),
				zap.String("contentId", event.ContentID),
			)
		}
	}()
}
