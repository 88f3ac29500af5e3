package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/publish-engine/internal/classify"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/notify"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/queue"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"github.com/kursadbilgin/publish-engine/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepLimit       = 100
	defaultStalePublishing  = 15 * time.Minute
	interruptedAttemptError = "publish attempt interrupted before the platform responded"
)

// SweepResult reports what one ProcessScheduledRetries pass did.
type SweepResult struct {
	Picked    int `json:"picked"`
	Retried   int `json:"retried"`
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Recovered int `json:"recovered"`
}

// RetryService owns manual retries and the scheduled-retry sweep.
type RetryService struct {
	publications repository.PublicationRepository
	platforms    repository.PlatformRepository
	orchestrator *Orchestrator
	delays       queue.DelayQueue
	notifier     notify.Notifier
	logger       *zap.Logger
	metrics      *observability.Metrics
	limit        int
	staleAfter   time.Duration
	now          func() time.Time
}

func NewRetryService(
	publications repository.PublicationRepository,
	platforms repository.PlatformRepository,
	orchestrator *Orchestrator,
	delays queue.DelayQueue,
	limit int,
	logger *zap.Logger,
) (*RetryService, error) {
	if publications == nil {
		return nil, fmt.Errorf("publication repository is required")
	}
	if platforms == nil {
		return nil, fmt.Errorf("platform repository is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if delays == nil {
		delays = queue.NewMemoryDelayQueue()
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryService{
		publications: publications,
		platforms:    platforms,
		orchestrator: orchestrator,
		delays:       delays,
		notifier:     orchestrator.notifier,
		logger:       logger,
		limit:        limit,
		staleAfter:   defaultStalePublishing,
		now:          time.Now,
	}, nil
}

func (s *RetryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// ScheduleRetry moves a FAILED publication to RETRYING and queues it for
// the sweep at now+delay.
func (s *RetryService) ScheduleRetry(ctx context.Context, publication *domain.Publication, delay time.Duration) (time.Time, error) {
	if publication == nil {
		return time.Time{}, fmt.Errorf("%w: publication is required", domain.ErrValidation)
	}
	if delay < 0 {
		delay = 0
	}

	at := s.now().UTC().Add(delay)
	ok, err := s.publications.Transition(ctx, publication.ID,
		[]domain.PublicationStatus{domain.StatusFailed},
		domain.StatusRetrying,
		repository.TransitionUpdate{ScheduledRetryAt: &at},
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark publication for retry: %w", err)
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: publication %s is no longer failed", domain.ErrConflict, publication.ID)
	}

	// The database scan in the sweep picks the row up even if this fails.
	if err := s.delays.Schedule(ctx, publication.ID, at); err != nil {
		s.logger.Warn("failed to enqueue scheduled retry",
			zap.String("publicationId", publication.ID),
			zap.Error(err),
		)
	}

	return at, nil
}

// CancelRetry drops a queued retry. The database schedule is cleared by the
// transition that made the retry moot.
func (s *RetryService) CancelRetry(ctx context.Context, publicationID string) error {
	return s.delays.Remove(ctx, publicationID)
}

// RetryFailedPublication retries a FAILED or RETRYING publication immediately.
// The retry counter is incremented and the class ceiling enforced.
func (s *RetryService) RetryFailedPublication(ctx context.Context, contentID, platformID string) (PlatformResult, error) {
	publication, err := s.retryable(ctx, contentID, platformID)
	if err != nil {
		return PlatformResult{}, err
	}

	target, err := s.platforms.GetByID(ctx, publication.PlatformID)
	if err != nil {
		return PlatformResult{}, fmt.Errorf("platform %s: %w", platformID, err)
	}

	c := classify.ClassifyMessage(publication.LastError(), target.Type)
	if maxRetries := retry.MaxRetries(c.RetryClass); maxRetries > 0 && publication.RetryCount >= maxRetries {
		return PlatformResult{}, fmt.Errorf("%w: %d of %d retries used", domain.ErrRetryExhausted, publication.RetryCount, maxRetries)
	}

	return s.rerun(ctx, publication, repository.TransitionUpdate{IncrementRetry: true, ClearScheduledRetry: true})
}

// ResetAndRetry zeroes the retry counter and retries immediately. It is the
// only operation that lowers retryCount.
func (s *RetryService) ResetAndRetry(ctx context.Context, contentID, platformID string) (PlatformResult, error) {
	publication, err := s.retryable(ctx, contentID, platformID)
	if err != nil {
		return PlatformResult{}, err
	}

	return s.rerun(ctx, publication, repository.TransitionUpdate{ResetRetry: true, ClearScheduledRetry: true})
}

// RetryAllFailed manually retries every FAILED publication of a content.
func (s *RetryService) RetryAllFailed(ctx context.Context, contentID string) (BatchResult, error) {
	publications, err := s.publications.ListByContent(ctx, contentID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list publications: %w", err)
	}

	results := make([]PlatformResult, 0, len(publications))
	for i := range publications {
		publication := publications[i]
		if publication.Status != domain.StatusFailed {
			continue
		}

		result, err := s.RetryFailedPublication(ctx, contentID, publication.PlatformID)
		if err != nil {
			result = withPublication(requestFailure(publication.PlatformID, err), &publication)
		}
		results = append(results, result)
	}

	return s.orchestrator.buildBatch(ctx, contentID, results, PublishOptions{}), nil
}

func (s *RetryService) retryable(ctx context.Context, contentID, platformID string) (*domain.Publication, error) {
	publication, err := s.publications.GetByPair(ctx, strings.TrimSpace(contentID), strings.TrimSpace(platformID))
	if err != nil {
		return nil, err
	}

	switch publication.Status {
	case domain.StatusFailed, domain.StatusRetrying:
		return publication, nil
	default:
		return nil, fmt.Errorf("%w: publication is %s", domain.ErrConflict, publication.Status)
	}
}

func (s *RetryService) rerun(ctx context.Context, publication *domain.Publication, update repository.TransitionUpdate) (PlatformResult, error) {
	ok, err := s.publications.Transition(ctx, publication.ID,
		[]domain.PublicationStatus{domain.StatusFailed, domain.StatusRetrying},
		domain.StatusRetrying,
		update,
	)
	if err != nil {
		return PlatformResult{}, fmt.Errorf("failed to mark publication for retry: %w", err)
	}
	if !ok {
		return PlatformResult{}, fmt.Errorf("%w: publication %s changed state", domain.ErrConflict, publication.ID)
	}

	if err := s.CancelRetry(ctx, publication.ID); err != nil {
		s.logger.Warn("failed to drop scheduled retry",
			zap.String("publicationId", publication.ID),
			zap.Error(err),
		)
	}

	// The row is RETRYING with the retry already counted and no schedule, so
	// the sweep can no longer claim it.
	result := s.orchestrator.PublishToOne(ctx, publication.ContentID, publication.PlatformID, PublishOptions{claim: claimRerun})
	if abandoned(result) {
		s.park(ctx, publication, result)
	}
	return result, nil
}

// abandoned reports whether the attempt stopped before the platform was called.
func abandoned(result PlatformResult) bool {
	if !result.Failed() {
		return false
	}
	switch result.ErrorKind {
	case domain.KindPlatformError, domain.KindAlreadyInFlight, domain.KindConflict:
		return false
	}
	return true
}

// park moves a RETRYING publication whose attempt never started back to
// FAILED so that it is not picked up again on every sweep.
func (s *RetryService) park(ctx context.Context, publication *domain.Publication, result PlatformResult) {
	message := result.Error
	ok, err := s.publications.Transition(ctx, publication.ID,
		[]domain.PublicationStatus{domain.StatusRetrying},
		domain.StatusFailed,
		repository.TransitionUpdate{ErrorMessage: &message, ClearScheduledRetry: true},
	)
	if err != nil {
		s.logger.Error("failed to park abandoned retry", zap.String("publicationId", publication.ID), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	s.orchestrator.refreshContentStatus(ctx, publication.ContentID)
	notify.Dispatch(s.notifier, s.logger, notify.Event{
		Type:          notify.EventPublishFailed,
		ContentID:     publication.ContentID,
		PlatformID:    publication.PlatformID,
		PublicationID: publication.ID,
		Message:       result.UserMessage,
		Severity:      result.Severity.String(),
		Data:          map[string]any{"error": result.Error, "errorKind": result.ErrorKind.String()},
	})
}

// ProcessScheduledRetries runs every retry that is due at now. Ids come from
// the delayed queue and from a database scan; each is claimed with a
// conditional RETRYING to PUBLISHING update so concurrent sweeps and manual
// retries never attempt the same publication twice.
func (s *RetryService) ProcessScheduledRetries(ctx context.Context, now time.Time) (SweepResult, error) {
	var sweep SweepResult

	recovered, err := s.RecoverStalePublishing(ctx, now)
	if err != nil {
		s.logger.Error("failed to recover stale publications", zap.Error(err))
	}
	sweep.Recovered = recovered

	ids, err := s.delays.PopDue(ctx, now, s.limit)
	if err != nil {
		s.logger.Warn("failed to pop due retries from delayed queue", zap.Error(err))
	}

	due, err := s.publications.ListDueForRetry(ctx, now, s.limit)
	if err != nil {
		return sweep, fmt.Errorf("failed to fetch due retries: %w", err)
	}
	for i := range due {
		ids = append(ids, due[i].ID)
	}
	ids = dedupeIDs(ids)
	sweep.Picked = len(ids)

	var mu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.orchestrator.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			outcome := s.retryOne(groupCtx, id)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case ResultPublished:
				sweep.Retried++
				sweep.Published++
			case ResultFailed:
				sweep.Retried++
			case ResultSkipped:
				sweep.Skipped++
			default:
				sweep.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	return sweep, nil
}

// retryOne returns published or failed for attempts that reached the
// platform, skipped when the row was not claimable and "" when the retry
// was abandoned before reaching the platform.
func (s *RetryService) retryOne(ctx context.Context, id string) ResultStatus {
	publication, err := s.publications.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("failed to load publication for retry", zap.String("publicationId", id), zap.Error(err))
		}
		s.metrics.IncRetrySwept("skipped")
		return ResultSkipped
	}
	if publication.Status != domain.StatusRetrying {
		s.metrics.IncRetrySwept("skipped")
		return ResultSkipped
	}

	result := s.orchestrator.PublishToOne(ctx, publication.ContentID, publication.PlatformID, PublishOptions{claim: claimScheduled})
	switch {
	case !result.Failed():
		s.metrics.IncRetrySwept("retried")
		return result.Status
	case result.ErrorKind == domain.KindPlatformError:
		s.metrics.IncRetrySwept("retried")
		return ResultFailed
	case !abandoned(result):
		s.metrics.IncRetrySwept("skipped")
		return ResultSkipped
	}

	s.park(ctx, publication, result)
	s.metrics.IncRetrySwept("abandoned")
	return ""
}

// RecoverStalePublishing fails publications stuck in PUBLISHING since before
// now minus the stale window, e.g. after a crash mid-call.
func (s *RetryService) RecoverStalePublishing(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.publications.ListStalePublishing(ctx, now.Add(-s.staleAfter), s.limit)
	if err != nil {
		return 0, err
	}

	message := interruptedAttemptError
	recovered := 0
	for i := range stale {
		publication := stale[i]
		ok, err := s.publications.Transition(ctx, publication.ID,
			[]domain.PublicationStatus{domain.StatusPublishing},
			domain.StatusFailed,
			repository.TransitionUpdate{ErrorMessage: &message},
		)
		if err != nil {
			s.logger.Error("failed to recover stale publication",
				zap.String("publicationId", publication.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		recovered++
		s.orchestrator.refreshContentStatus(ctx, publication.ContentID)
		s.logger.Warn("recovered stale publication",
			zap.String("publicationId", publication.ID),
			zap.String("contentId", publication.ContentID),
		)
	}

	return recovered, nil
}
