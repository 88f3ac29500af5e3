package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// JobPublisher is the part of the Orchestrator the worker drives.
type JobPublisher interface {
	PublishToMany(ctx context.Context, contentID string, platformIDs []string, opts PublishOptions) BatchResult
	PublishToAllEnabled(ctx context.Context, contentID string, opts PublishOptions) BatchResult
}

// WorkerService consumes deferred publish jobs from the broker.
type WorkerService struct {
	consumer    queue.Consumer
	publisher   JobPublisher
	logger      *zap.Logger
	concurrency int
}

func NewWorkerService(
	consumer queue.Consumer,
	publisher JobPublisher,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("job publisher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		publisher:   publisher,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the work queues and processes publish jobs until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// processMessage runs one job. Per-platform failures are owned by the retry
// flow, so the message is acknowledged unless the batch never started.
func (s *WorkerService) processMessage(ctx context.Context, msg queue.PublishJobMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("jobId", msg.JobID),
		zap.String("contentId", msg.ContentID),
		zap.String("source", string(msg.Source)),
	)

	var result BatchResult
	if len(msg.PlatformIDs) == 0 {
		result = s.publisher.PublishToAllEnabled(ctx, msg.ContentID, PublishOptions{})
	} else {
		result = s.publisher.PublishToMany(ctx, msg.ContentID, msg.PlatformIDs, PublishOptions{})
	}

	if result.ErrorKind != "" {
		logger.Warn("publish job did not run",
			zap.String("errorKind", result.ErrorKind.String()),
			zap.String("error", result.Error),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}

	logger.Info("publish job finished",
		zap.Int("successful", result.Summary.Successful),
		zap.Int("failed", result.Summary.Failed),
		zap.Int("skipped", result.Summary.Skipped),
		zap.String("contentStatus", result.ContentStatus.String()),
	)
	return nil
}
