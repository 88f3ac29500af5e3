package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/publish-engine/internal/classify"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/notify"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/platform"
	"github.com/kursadbilgin/publish-engine/internal/ratelimit"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"github.com/kursadbilgin/publish-engine/internal/retry"
	"github.com/kursadbilgin/publish-engine/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPublishConcurrency = 5

// RetryScheduler defers a failed publication for an automatic retry.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, publication *domain.Publication, delay time.Duration) (time.Time, error)
	CancelRetry(ctx context.Context, publicationID string) error
}

// OrchestratorDeps groups the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Contents     repository.ContentRepository
	Platforms    repository.PlatformRepository
	Publications repository.PublicationRepository
	Attempts     repository.AttemptRepository
	Registry     *platform.Registry
	Formatter    platform.Formatter
	RateLimiter  ratelimit.RateLimiter
	Notifier     notify.Notifier
}

// Orchestrator fans content out to platforms and keeps the publication
// records and the content aggregate in step with the outcomes.
type Orchestrator struct {
	contents     repository.ContentRepository
	platforms    repository.PlatformRepository
	publications repository.PublicationRepository
	attempts     repository.AttemptRepository
	registry     *platform.Registry
	formatter    platform.Formatter
	rateLimiter  ratelimit.RateLimiter
	notifier     notify.Notifier
	scheduler    RetryScheduler
	logger       *zap.Logger
	metrics      *observability.Metrics
	concurrency  int
	autoRetry    bool
	now          func() time.Time
}

func NewOrchestrator(deps OrchestratorDeps, concurrency int, autoRetry bool, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Contents == nil:
		return nil, fmt.Errorf("content repository is required")
	case deps.Platforms == nil:
		return nil, fmt.Errorf("platform repository is required")
	case deps.Publications == nil:
		return nil, fmt.Errorf("publication repository is required")
	case deps.Attempts == nil:
		return nil, fmt.Errorf("attempt repository is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("publisher registry is required")
	}
	if deps.Formatter == nil {
		deps.Formatter = platform.PassthroughFormatter{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NopNotifier{}
	}
	if concurrency < 1 {
		concurrency = defaultPublishConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		contents:     deps.Contents,
		platforms:    deps.Platforms,
		publications: deps.Publications,
		attempts:     deps.Attempts,
		registry:     deps.Registry,
		formatter:    deps.Formatter,
		rateLimiter:  deps.RateLimiter,
		notifier:     deps.Notifier,
		logger:       logger,
		concurrency:  concurrency,
		autoRetry:    autoRetry,
		now:          time.Now,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// SetRetryScheduler enables automatic retries for recoverable failures.
func (o *Orchestrator) SetRetryScheduler(scheduler RetryScheduler) {
	if o == nil {
		return
	}
	o.scheduler = scheduler
}

// PublishToOne publishes content to a single platform.
func (o *Orchestrator) PublishToOne(ctx context.Context, contentID, platformID string, opts PublishOptions) PlatformResult {
	if ctx == nil {
		ctx = context.Background()
	}

	result := o.publishOne(ctx, strings.TrimSpace(contentID), strings.TrimSpace(platformID), opts)
	if result.Failed() {
		observability.WithContextLogger(o.logger, ctx).Info("publish failed",
			zap.String("contentId", contentID),
			zap.String("platformId", platformID),
			zap.String("errorKind", result.ErrorKind.String()),
			zap.String("error", result.Error),
		)
	}
	return result
}

// PublishToMany publishes content to each distinct platform. Platforms run in
// concurrent batches; results keep the order of first occurrence.
func (o *Orchestrator) PublishToMany(ctx context.Context, contentID string, platformIDs []string, opts PublishOptions) BatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	contentID = strings.TrimSpace(contentID)

	ids := dedupeIDs(platformIDs)
	if len(ids) == 0 {
		return o.emptyBatch(ctx, contentID, opts, domain.ErrNoPlatforms)
	}

	results := make([]PlatformResult, len(ids))
	for start := 0; start < len(ids); start += o.concurrency {
		end := min(start+o.concurrency, len(ids))

		// Siblings never cancel each other; every goroutine returns nil.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = o.PublishToOne(ctx, contentID, ids[i], opts)
				return nil
			})
		}
		_ = g.Wait()
	}

	return o.buildBatch(ctx, contentID, results, opts)
}

// PublishToAllEnabled publishes content to every connected platform of its project.
func (o *Orchestrator) PublishToAllEnabled(ctx context.Context, contentID string, opts PublishOptions) BatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	contentID = strings.TrimSpace(contentID)

	content, err := o.contents.GetByID(ctx, contentID)
	if err != nil {
		return o.emptyBatch(ctx, contentID, opts, fmt.Errorf("content %s: %w", contentID, err))
	}

	targets, err := o.platforms.ListConnectedByProject(ctx, content.ProjectID)
	if err != nil {
		return o.emptyBatch(ctx, contentID, opts, fmt.Errorf("failed to list platforms: %w", err))
	}
	if len(targets) == 0 {
		return o.emptyBatch(ctx, contentID, opts, domain.ErrNoPlatforms)
	}

	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}
	return o.PublishToMany(ctx, contentID, ids, opts)
}

// DryRun validates content for the given platforms, or for every connected
// platform when none are given, without touching any record or platform.
func (o *Orchestrator) DryRun(ctx context.Context, contentID string, platformIDs []string) BatchResult {
	opts := PublishOptions{DryRun: true}
	if len(dedupeIDs(platformIDs)) == 0 {
		return o.PublishToAllEnabled(ctx, contentID, opts)
	}
	return o.PublishToMany(ctx, contentID, platformIDs, opts)
}

// GetStatus returns the content aggregate and its publications.
func (o *Orchestrator) GetStatus(ctx context.Context, contentID string) (*ContentStatusView, error) {
	if _, err := o.contents.GetByID(ctx, contentID); err != nil {
		return nil, err
	}

	publications, err := o.publications.ListByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}

	counts := domain.CountStatuses(publications)
	return &ContentStatusView{
		ContentID:    contentID,
		Status:       counts.ContentStatus(),
		Counts:       counts,
		Publications: publications,
	}, nil
}

// ListAttempts returns the publisher-call history of one content/platform pair,
// oldest first.
func (o *Orchestrator) ListAttempts(ctx context.Context, contentID, platformID string) ([]domain.PublicationAttempt, error) {
	publication, err := o.publications.GetByPair(ctx, contentID, platformID)
	if err != nil {
		return nil, err
	}

	attempts, err := o.attempts.ListByPublication(ctx, publication.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (o *Orchestrator) publishOne(ctx context.Context, contentID, platformID string, opts PublishOptions) PlatformResult {
	now := o.now().UTC()

	content, err := o.contents.GetByID(ctx, contentID)
	if err != nil {
		return requestFailure(platformID, fmt.Errorf("content %s: %w", contentID, err))
	}
	if err := content.CheckRequired(); err != nil {
		return requestFailure(platformID, err)
	}

	target, err := o.platforms.GetByID(ctx, platformID)
	if err != nil {
		return requestFailure(platformID, fmt.Errorf("platform %s: %w", platformID, err))
	}
	if target.ProjectID != content.ProjectID {
		return requestFailure(platformID, fmt.Errorf("%w: platform %s is not part of the content's project", domain.ErrNotFound, platformID))
	}
	if !target.IsConnected {
		return withType(requestFailure(platformID, fmt.Errorf("%w: %s", domain.ErrNotConnected, target.Name)), target)
	}
	if target.CredentialExpired(now) {
		return withType(requestFailure(platformID, fmt.Errorf("%w: credentials for %s expired", domain.ErrNotConnected, target.Name)), target)
	}

	publisher, err := o.registry.Lookup(target.Type)
	if err != nil {
		return withType(requestFailure(platformID, err), target)
	}

	check := validation.Validate(*content, *target, now)
	if !check.Valid {
		result := withType(requestFailure(platformID, check.Err()), target)
		result.Warnings = check.Warnings
		return result
	}
	if opts.DryRun {
		return PlatformResult{
			PlatformID:   platformID,
			PlatformType: target.Type,
			Status:       ResultValid,
			Warnings:     check.Warnings,
		}
	}

	// The limiter runs before any write so a cancelled wait leaves no trace.
	if o.rateLimiter != nil {
		if err := o.rateLimiter.Wait(ctx, target.Type.String()); err != nil {
			return withType(requestFailure(platformID, fmt.Errorf("rate limiter wait failed: %w", err)), target)
		}
	}

	publication, err := o.publications.Ensure(ctx, contentID, platformID)
	if err != nil {
		return withType(requestFailure(platformID, fmt.Errorf("failed to ensure publication: %w", err)), target)
	}

	from, skip, err := o.prepare(ctx, publication, opts)
	if err != nil {
		return withPublication(withType(requestFailure(platformID, err), target), publication)
	}
	if skip {
		result := PlatformResult{
			PlatformID:    platformID,
			PlatformType:  target.Type,
			PublicationID: publication.ID,
			Status:        ResultSkipped,
			Warnings:      check.Warnings,
		}
		if publication.ExternalPostID != nil {
			result.ExternalPostID = *publication.ExternalPostID
		}
		if publication.ExternalURL != nil {
			result.ExternalURL = *publication.ExternalURL
		}
		return result
	}

	attemptAt := o.now().UTC()
	claimed, err := o.publications.Transition(ctx, publication.ID, from, domain.StatusPublishing, repository.TransitionUpdate{
		LastAttemptAt:         &attemptAt,
		ClearScheduledRetry:   true,
		IncrementRetry:        opts.claim == claimScheduled,
		RequireScheduledRetry: opts.claim == claimScheduled,
	})
	if err != nil {
		return withPublication(withType(requestFailure(platformID, fmt.Errorf("failed to claim publication: %w", err)), target), publication)
	}
	if !claimed {
		return withPublication(withType(requestFailure(platformID, domain.ErrAlreadyInFlight), target), publication)
	}
	retryCount := publication.RetryCount
	if opts.claim == claimScheduled {
		retryCount++
	}

	result := o.attempt(ctx, publisher, *content, *target, publication, retryCount)
	result.Warnings = check.Warnings
	return result
}

// prepare moves an existing publication into a state an attempt can start
// from and returns the statuses the claim may start from.
func (o *Orchestrator) prepare(
	ctx context.Context,
	publication *domain.Publication,
	opts PublishOptions,
) ([]domain.PublicationStatus, bool, error) {
	if opts.claim != claimFresh {
		switch publication.Status {
		case domain.StatusRetrying:
			return []domain.PublicationStatus{domain.StatusRetrying}, false, nil
		case domain.StatusPublishing:
			return nil, false, domain.ErrAlreadyInFlight
		default:
			return nil, false, fmt.Errorf("%w: publication is %s", domain.ErrConflict, publication.Status)
		}
	}

	switch {
	case publication.Status == domain.StatusPublishing:
		return nil, false, domain.ErrAlreadyInFlight
	case publication.Status == domain.StatusPublished && !opts.Republish:
		return nil, true, nil
	case publication.Status.CanStartAttempt():
		return []domain.PublicationStatus{domain.StatusPending, domain.StatusRetrying}, false, nil
	}

	reset, err := o.publications.Transition(ctx, publication.ID,
		[]domain.PublicationStatus{publication.Status},
		domain.StatusPending,
		repository.TransitionUpdate{ClearError: true, ClearScheduledRetry: true},
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reset publication: %w", err)
	}
	if !reset {
		return nil, false, domain.ErrAlreadyInFlight
	}
	publication.Status = domain.StatusPending
	o.refreshContentStatus(ctx, publication.ContentID)

	return []domain.PublicationStatus{domain.StatusPending}, false, nil
}

// attempt calls the platform for a claimed publication and finalizes it.
func (o *Orchestrator) attempt(
	ctx context.Context,
	publisher platform.Publisher,
	content domain.Content,
	target domain.PlatformTarget,
	publication *domain.Publication,
	retryCount int,
) PlatformResult {
	platformLabel := target.Type.String()
	// Records must be finalized even when the caller goes away mid-call.
	writeCtx := context.WithoutCancel(ctx)

	o.metrics.IncPublishInFlight(platformLabel)
	start := o.now()
	res, publishErr := o.callPublisher(ctx, publisher, content, target)
	duration := o.now().Sub(start)
	o.metrics.DecPublishInFlight(platformLabel)
	o.metrics.ObservePublishDuration(platformLabel, duration)

	var result PlatformResult
	if publishErr == nil {
		result = o.finalizeSuccess(writeCtx, target, publication, res, duration)
	} else {
		result = o.finalizeFailure(writeCtx, target, publication, publishErr, retryCount, duration)
	}

	o.refreshContentStatus(writeCtx, publication.ContentID)
	return result
}

func (o *Orchestrator) callPublisher(
	ctx context.Context,
	publisher platform.Publisher,
	content domain.Content,
	target domain.PlatformTarget,
) (res *platform.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()

	formatted, err := o.formatter.Format(content, target)
	if err != nil {
		return nil, fmt.Errorf("failed to format content: %w", err)
	}

	res, err = publisher.Publish(ctx, formatted)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &platform.PlatformError{Platform: target.Type, Message: "platform returned no result"}
	}
	return res, nil
}

func (o *Orchestrator) finalizeSuccess(
	ctx context.Context,
	target domain.PlatformTarget,
	publication *domain.Publication,
	res *platform.Result,
	duration time.Duration,
) PlatformResult {
	now := o.now().UTC()
	update := repository.TransitionUpdate{
		PublishedAt:         &now,
		ClearError:          true,
		ClearScheduledRetry: true,
		Metadata:            res.Metadata,
	}
	if res.ExternalID != "" {
		update.ExternalPostID = &res.ExternalID
	}
	if res.URL != "" {
		update.ExternalURL = &res.URL
	}

	logger := observability.WithContextLogger(o.logger, ctx)
	ok, err := o.publications.Transition(ctx, publication.ID, []domain.PublicationStatus{domain.StatusPublishing}, domain.StatusPublished, update)
	if err == nil && !ok {
		ok, err = o.confirmLate(ctx, logger, publication, update)
	}
	if err != nil || !ok {
		logger.Error("failed to mark publication as published",
			zap.String("publicationId", publication.ID),
			zap.Bool("updated", ok),
			zap.Error(err),
		)
	}

	o.recordAttempt(ctx, publication.ID, domain.StatusPublished, nil, "", update.ExternalPostID, duration)
	o.metrics.IncPublished(target.Type.String())
	logger.Info("publication published",
		zap.String("publicationId", publication.ID),
		zap.String("contentId", publication.ContentID),
		zap.String("platformId", target.ID),
		zap.String("externalPostId", res.ExternalID),
	)
	notify.Dispatch(o.notifier, o.logger, notify.Event{
		Type:          notify.EventPublishSucceeded,
		ContentID:     publication.ContentID,
		PlatformID:    target.ID,
		PublicationID: publication.ID,
		Data:          map[string]any{"externalPostId": res.ExternalID, "externalUrl": res.URL},
		OccurredAt:    now,
	})

	return PlatformResult{
		PlatformID:     target.ID,
		PlatformType:   target.Type,
		PublicationID:  publication.ID,
		Status:         ResultPublished,
		ExternalPostID: res.ExternalID,
		ExternalURL:    res.URL,
	}
}

// confirmLate records a platform success for a publication that was written
// off as interrupted while the call was still running. Any retry queued for
// it is dropped.
func (o *Orchestrator) confirmLate(
	ctx context.Context,
	logger *zap.Logger,
	publication *domain.Publication,
	update repository.TransitionUpdate,
) (bool, error) {
	ok, err := o.publications.Transition(ctx, publication.ID,
		[]domain.PublicationStatus{domain.StatusFailed, domain.StatusRetrying},
		domain.StatusPublished,
		update,
	)
	if err != nil || !ok {
		return ok, err
	}

	logger.Warn("late platform confirmation recorded",
		zap.String("publicationId", publication.ID),
		zap.String("contentId", publication.ContentID),
	)
	if o.scheduler != nil {
		if err := o.scheduler.CancelRetry(ctx, publication.ID); err != nil {
			logger.Warn("failed to cancel scheduled retry",
				zap.String("publicationId", publication.ID),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

func (o *Orchestrator) finalizeFailure(
	ctx context.Context,
	target domain.PlatformTarget,
	publication *domain.Publication,
	publishErr error,
	retryCount int,
	duration time.Duration,
) PlatformResult {
	classification := classify.Classify(publishErr, target.Type)
	message := publishErr.Error()

	logger := observability.WithContextLogger(o.logger, ctx)
	ok, err := o.publications.Transition(ctx, publication.ID, []domain.PublicationStatus{domain.StatusPublishing}, domain.StatusFailed,
		repository.TransitionUpdate{ErrorMessage: &message},
	)
	if err != nil || !ok {
		logger.Error("failed to mark publication as failed",
			zap.String("publicationId", publication.ID),
			zap.Bool("updated", ok),
			zap.Error(err),
		)
	}

	o.recordAttempt(ctx, publication.ID, domain.StatusFailed, &message, classification.Category.String(), nil, duration)
	o.metrics.IncPublishFailed(target.Type.String(), classification.Category.String())

	result := platformFailure(target.ID, publishErr, classification)
	result.PlatformType = target.Type
	result.PublicationID = publication.ID

	recommendation := retry.ForClassification(classification, retryCount)
	if ok && o.autoRetry && o.scheduler != nil && recommendation.ShouldRetry {
		failed := *publication
		failed.Status = domain.StatusFailed
		failed.RetryCount = retryCount
		at, err := o.scheduler.ScheduleRetry(ctx, &failed, recommendation.Delay)
		if err == nil {
			result.WillRetry = true
			result.NextRetryAt = &at
			o.metrics.IncRetryScheduled(target.Type.String(), classification.RetryClass.String())
			logger.Info("publication retry scheduled",
				zap.String("publicationId", publication.ID),
				zap.Int("retryCount", retryCount),
				zap.Duration("delay", recommendation.Delay),
			)
			notify.Dispatch(o.notifier, o.logger, notify.Event{
				Type:          notify.EventRetryScheduled,
				ContentID:     publication.ContentID,
				PlatformID:    target.ID,
				PublicationID: publication.ID,
				Message:       classification.UserMessage,
				Category:      classification.Category.String(),
				Severity:      classification.Severity.String(),
				Data: map[string]any{
					"error":       message,
					"retryCount":  retryCount,
					"nextRetryAt": at,
				},
			})
			return result
		}
		logger.Error("failed to schedule retry",
			zap.String("publicationId", publication.ID),
			zap.Error(err),
		)
	}

	notify.Dispatch(o.notifier, o.logger, notify.Event{
		Type:          notify.EventPublishFailed,
		ContentID:     publication.ContentID,
		PlatformID:    target.ID,
		PublicationID: publication.ID,
		Message:       classification.UserMessage,
		Category:      classification.Category.String(),
		Severity:      classification.Severity.String(),
		Data:          map[string]any{"error": message, "suggestion": classification.Suggestion},
	})
	return result
}

func (o *Orchestrator) recordAttempt(
	ctx context.Context,
	publicationID string,
	status domain.PublicationStatus,
	attemptErr *string,
	category string,
	externalPostID *string,
	duration time.Duration,
) {
	attempt := &domain.PublicationAttempt{
		ID:             uuid.NewString(),
		PublicationID:  publicationID,
		Status:         status,
		Error:          attemptErr,
		ExternalPostID: externalPostID,
		DurationMs:     duration.Milliseconds(),
		CreatedAt:      o.now().UTC(),
	}
	if category != "" {
		attempt.Category = &category
	}

	if err := o.attempts.Record(ctx, attempt); err != nil {
		o.logger.Error("failed to record attempt",
			zap.String("publicationId", publicationID),
			zap.Error(err),
		)
	}
}

// refreshContentStatus recomputes the content aggregate from every publication.
func (o *Orchestrator) refreshContentStatus(ctx context.Context, contentID string) (domain.StatusCounts, domain.ContentStatus) {
	publications, err := o.publications.ListByContent(ctx, contentID)
	if err != nil {
		o.logger.Error("failed to list publications for aggregate",
			zap.String("contentId", contentID),
			zap.Error(err),
		)
		return domain.StatusCounts{}, ""
	}

	counts := domain.CountStatuses(publications)
	status := counts.ContentStatus()
	if err := o.contents.UpdateStatus(ctx, contentID, status); err != nil && !errors.Is(err, domain.ErrNotFound) {
		o.logger.Error("failed to update content status",
			zap.String("contentId", contentID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
	return counts, status
}

func (o *Orchestrator) buildBatch(ctx context.Context, contentID string, results []PlatformResult, opts PublishOptions) BatchResult {
	summary := summarize(results)
	batch := BatchResult{
		ContentID: contentID,
		Success:   summary.Failed == 0,
		DryRun:    opts.DryRun,
		Results:   results,
		Summary:   summary,
	}

	if opts.DryRun {
		publications, err := o.publications.ListByContent(ctx, contentID)
		if err == nil {
			batch.Counts = domain.CountStatuses(publications)
			batch.ContentStatus = batch.Counts.ContentStatus()
		}
		return batch
	}

	batch.Counts, batch.ContentStatus = o.refreshContentStatus(context.WithoutCancel(ctx), contentID)
	return batch
}

func (o *Orchestrator) emptyBatch(ctx context.Context, contentID string, opts PublishOptions, err error) BatchResult {
	batch := BatchResult{
		ContentID: contentID,
		DryRun:    opts.DryRun,
		Error:     err.Error(),
		ErrorKind: domain.KindOf(err),
		Results:   []PlatformResult{},
	}
	if batch.ErrorKind == domain.KindNone {
		batch.ErrorKind = domain.KindInternal
	}

	if publications, listErr := o.publications.ListByContent(ctx, contentID); listErr == nil {
		batch.Counts = domain.CountStatuses(publications)
		batch.ContentStatus = batch.Counts.ContentStatus()
	}
	return batch
}

func withType(result PlatformResult, target *domain.PlatformTarget) PlatformResult {
	if target != nil {
		result.PlatformType = target.Type
	}
	return result
}

func withPublication(result PlatformResult, publication *domain.Publication) PlatformResult {
	if publication != nil {
		result.PublicationID = publication.ID
	}
	return result
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
