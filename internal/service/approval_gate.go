package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/notify"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"go.uber.org/zap"
)

const expireBatchSize = 200

// ApprovalGate holds content for a human decision before it is published.
type ApprovalGate struct {
	approvals    repository.ApprovalRepository
	contents     repository.ContentRepository
	platforms    repository.PlatformRepository
	orchestrator *Orchestrator
	notifier     notify.Notifier
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	newID        func() string
}

func NewApprovalGate(
	approvals repository.ApprovalRepository,
	contents repository.ContentRepository,
	platforms repository.PlatformRepository,
	orchestrator *Orchestrator,
	logger *zap.Logger,
) (*ApprovalGate, error) {
	if approvals == nil {
		return nil, fmt.Errorf("approval repository is required")
	}
	if contents == nil {
		return nil, fmt.Errorf("content repository is required")
	}
	if platforms == nil {
		return nil, fmt.Errorf("platform repository is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ApprovalGate{
		approvals:    approvals,
		contents:     contents,
		platforms:    platforms,
		orchestrator: orchestrator,
		notifier:     orchestrator.notifier,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

func (g *ApprovalGate) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

// Submit queues content for approval with a seven-day hold.
func (g *ApprovalGate) Submit(ctx context.Context, contentID string, platformIDs []string) (*domain.ApprovalEntry, error) {
	contentID = strings.TrimSpace(contentID)
	content, err := g.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w", contentID, err)
	}

	ids := dedupeIDs(platformIDs)
	for _, id := range ids {
		target, err := g.platforms.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", id, err)
		}
		if target.ProjectID != content.ProjectID {
			return nil, fmt.Errorf("%w: platform %s is not part of the content's project", domain.ErrNotFound, id)
		}
	}

	now := g.now().UTC()
	pending, err := g.approvals.GetPending(ctx, contentID)
	switch {
	case err == nil && pending.IsExpired(now):
		g.expire(ctx, pending, now)
	case err == nil:
		return nil, domain.ErrApprovalPending
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to check pending approval: %w", err)
	}

	entry, err := domain.NewApprovalEntry(g.newID(), contentID, ids, now)
	if err != nil {
		return nil, err
	}
	if err := g.approvals.Create(ctx, entry); err != nil {
		return nil, err
	}

	g.metrics.IncApprovalDecision("submitted")
	g.logger.Info("content submitted for approval",
		zap.String("contentId", contentID),
		zap.Strings("platformIds", ids),
		zap.Time("expiresAt", entry.ExpiresAt),
	)
	notify.Dispatch(g.notifier, g.logger, notify.Event{
		Type:       notify.EventApprovalPending,
		ContentID:  contentID,
		Data:       map[string]any{"platformIds": ids, "expiresAt": entry.ExpiresAt},
		OccurredAt: now,
	})

	return entry, nil
}

// Approve publishes held content to the platforms it was submitted for.
// Expired entries are rejected instead and ErrApprovalExpired is returned.
func (g *ApprovalGate) Approve(ctx context.Context, contentID string) (*BatchResult, error) {
	entry, err := g.approvals.GetPending(ctx, strings.TrimSpace(contentID))
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	if entry.IsExpired(now) {
		g.expire(ctx, entry, now)
		return nil, domain.ErrApprovalExpired
	}

	ok, err := g.approvals.Decide(ctx, entry.ID, domain.ApprovalApproved, nil, now)
	if err != nil {
		return nil, fmt.Errorf("failed to approve content: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: approval was already decided", domain.ErrConflict)
	}

	g.metrics.IncApprovalDecision("approved")
	notify.Dispatch(g.notifier, g.logger, notify.Event{
		Type:       notify.EventApprovalApproved,
		ContentID:  entry.ContentID,
		OccurredAt: now,
	})

	result := g.orchestrator.PublishToMany(ctx, entry.ContentID, entry.PlatformIDs, PublishOptions{})
	return &result, nil
}

// Reject declines held content. The reason is optional.
func (g *ApprovalGate) Reject(ctx context.Context, contentID, reason string) (*domain.ApprovalEntry, error) {
	entry, err := g.approvals.GetPending(ctx, strings.TrimSpace(contentID))
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	var reasonPtr *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		reasonPtr = &trimmed
	}

	ok, err := g.approvals.Decide(ctx, entry.ID, domain.ApprovalRejected, reasonPtr, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reject content: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: approval was already decided", domain.ErrConflict)
	}

	entry.Status = domain.ApprovalRejected
	entry.RejectionReason = reasonPtr
	entry.DecidedAt = &now

	g.metrics.IncApprovalDecision("rejected")
	notify.Dispatch(g.notifier, g.logger, notify.Event{
		Type:       notify.EventApprovalRejected,
		ContentID:  entry.ContentID,
		Message:    strings.TrimSpace(reason),
		OccurredAt: now,
	})

	return entry, nil
}

// ExpireStale rejects every pending entry whose hold ended at or before now
// and returns how many were expired.
func (g *ApprovalGate) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		entries, err := g.approvals.ListExpired(ctx, now, expireBatchSize)
		if err != nil {
			return expired, fmt.Errorf("failed to list expired approvals: %w", err)
		}

		progressed := 0
		for i := range entries {
			if g.expire(ctx, &entries[i], now) {
				progressed++
			}
		}
		expired += progressed

		if len(entries) < expireBatchSize || progressed == 0 {
			return expired, nil
		}
	}
}

// Get returns the most recent approval entry for a content.
func (g *ApprovalGate) Get(ctx context.Context, contentID string) (*domain.ApprovalEntry, error) {
	return g.approvals.GetLatest(ctx, strings.TrimSpace(contentID))
}

func (g *ApprovalGate) expire(ctx context.Context, entry *domain.ApprovalEntry, now time.Time) bool {
	reason := domain.ApprovalExpiredReason
	ok, err := g.approvals.Decide(ctx, entry.ID, domain.ApprovalRejected, &reason, now)
	if err != nil {
		g.logger.Error("failed to expire approval",
			zap.String("approvalId", entry.ID),
			zap.String("contentId", entry.ContentID),
			zap.Error(err),
		)
		return false
	}
	if !ok {
		return false
	}

	g.metrics.IncApprovalDecision("expired")
	g.logger.Info("approval expired",
		zap.String("approvalId", entry.ID),
		zap.String("contentId", entry.ContentID),
	)
	notify.Dispatch(g.notifier, g.logger, notify.Event{
		Type:       notify.EventApprovalExpired,
		ContentID:  entry.ContentID,
		Message:    reason,
		OccurredAt: now,
	})
	return true
}
