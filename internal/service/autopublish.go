package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/queue"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"go.uber.org/zap"
)

// AutoPublishDecision is what happens to freshly generated content.
type AutoPublishDecision string

const (
	DecisionSkip     AutoPublishDecision = "skip"
	DecisionApproval AutoPublishDecision = "approval"
	DecisionPublish  AutoPublishDecision = "publish"
)

func (d AutoPublishDecision) String() string { return string(d) }

// Decide applies the project's auto-publish policy.
func Decide(project domain.Project) AutoPublishDecision {
	switch {
	case !project.AutoPublish:
		return DecisionSkip
	case project.RequireApproval:
		return DecisionApproval
	default:
		return DecisionPublish
	}
}

// AutoPublishOutcome describes what HandleGenerated did.
type AutoPublishOutcome struct {
	ContentID   string                `json:"contentId"`
	Decision    AutoPublishDecision   `json:"decision"`
	PlatformIDs []string              `json:"platformIds,omitempty"`
	Approval    *domain.ApprovalEntry `json:"-"`
	JobID       string                `json:"jobId,omitempty"`
	Result      *BatchResult          `json:"result,omitempty"`
}

// AutoPublisher routes generated content according to its project's policy.
type AutoPublisher struct {
	contents     repository.ContentRepository
	projects     repository.ProjectRepository
	platforms    repository.PlatformRepository
	gate         *ApprovalGate
	orchestrator *Orchestrator
	jobs         queue.Publisher
	logger       *zap.Logger
	newID        func() string
}

// NewAutoPublisher builds an AutoPublisher. A nil jobs publisher publishes
// synchronously through the orchestrator.
func NewAutoPublisher(
	contents repository.ContentRepository,
	projects repository.ProjectRepository,
	platforms repository.PlatformRepository,
	gate *ApprovalGate,
	orchestrator *Orchestrator,
	jobs queue.Publisher,
	logger *zap.Logger,
) (*AutoPublisher, error) {
	switch {
	case contents == nil:
		return nil, fmt.Errorf("content repository is required")
	case projects == nil:
		return nil, fmt.Errorf("project repository is required")
	case platforms == nil:
		return nil, fmt.Errorf("platform repository is required")
	case gate == nil:
		return nil, fmt.Errorf("approval gate is required")
	case orchestrator == nil:
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AutoPublisher{
		contents:     contents,
		projects:     projects,
		platforms:    platforms,
		gate:         gate,
		orchestrator: orchestrator,
		jobs:         jobs,
		logger:       logger,
		newID:        uuid.NewString,
	}, nil
}

// HandleGenerated is called once content generation finishes.
func (a *AutoPublisher) HandleGenerated(ctx context.Context, contentID string) (*AutoPublishOutcome, error) {
	contentID = strings.TrimSpace(contentID)
	content, err := a.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w", contentID, err)
	}

	project, err := a.projects.GetByID(ctx, content.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", content.ProjectID, err)
	}

	outcome := &AutoPublishOutcome{ContentID: contentID, Decision: Decide(*project)}
	logger := observability.WithContextLogger(a.logger, ctx).With(
		zap.String("contentId", contentID),
		zap.String("decision", outcome.Decision.String()),
	)
	if outcome.Decision == DecisionSkip {
		logger.Debug("auto publish disabled for project")
		return outcome, nil
	}

	ids, err := a.targetPlatforms(ctx, project)
	if err != nil {
		return nil, err
	}
	outcome.PlatformIDs = ids

	if outcome.Decision == DecisionApproval {
		entry, err := a.gate.Submit(ctx, contentID, ids)
		if err != nil {
			return nil, err
		}
		outcome.Approval = entry
		logger.Info("generated content held for approval")
		return outcome, nil
	}

	if a.jobs != nil {
		msg := queue.PublishJobMessage{
			JobID:       a.newID(),
			ContentID:   contentID,
			PlatformIDs: ids,
			Source:      queue.SourceAuto,
		}
		if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
			msg.CorrelationID = correlationID
		}
		if err := a.jobs.Publish(ctx, queue.PublishJobQueue, msg); err != nil {
			return nil, fmt.Errorf("failed to enqueue publish job: %w", err)
		}
		outcome.JobID = msg.JobID
		logger.Info("publish job enqueued", zap.String("jobId", msg.JobID))
		return outcome, nil
	}

	result := a.orchestrator.PublishToMany(ctx, contentID, ids, PublishOptions{})
	outcome.Result = &result
	logger.Info("generated content published",
		zap.Int("successful", result.Summary.Successful),
		zap.Int("failed", result.Summary.Failed),
	)
	return outcome, nil
}

// targetPlatforms returns the project's configured auto-publish platforms,
// or every connected platform when none are configured.
func (a *AutoPublisher) targetPlatforms(ctx context.Context, project *domain.Project) ([]string, error) {
	if ids := dedupeIDs(project.AutoPublishPlatformIDs); len(ids) > 0 {
		return ids, nil
	}

	targets, err := a.platforms.ListConnectedByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	if len(targets) == 0 {
		return nil, domain.ErrNoPlatforms
	}

	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}
	return ids, nil
}
