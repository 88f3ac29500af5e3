package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("eventType", event.Type.String()),
		zap.String("contentId", event.ContentID),
	}
	if event.PlatformID != "" {
		fields = append(fields, zap.String("platformId", event.PlatformID))
	}
	if event.PublicationID != "" {
		fields = append(fields, zap.String("publicationId", event.PublicationID))
	}
	if event.Category != "" {
		fields = append(fields, zap.String("category", event.Category))
	}
	if event.Message != "" {
		fields = append(fields, zap.String("message", event.Message))
	}

	switch event.Severity {
	case "critical", "high":
		n.logger.Error("notification", fields...)
	default:
		n.logger.Info("notification", fields...)
	}
	return nil
}

// Multi fans an event out to every notifier and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
