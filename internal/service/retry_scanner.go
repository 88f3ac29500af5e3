package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultRetryScanInterval = 30 * time.Second

// RetrySweeper runs one scheduled-retry pass.
type RetrySweeper interface {
	ProcessScheduledRetries(ctx context.Context, now time.Time) (SweepResult, error)
}

// RetryScanner periodically runs the scheduled-retry sweep.
type RetryScanner struct {
	sweeper  RetrySweeper
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewRetryScanner(
	sweeper RetrySweeper,
	interval time.Duration,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("retry sweeper is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	return runEvery(ctx, s.interval, s.logger, "retry_sweep", s.scanDue)
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	result, err := s.sweeper.ProcessScheduledRetries(ctx, s.now().UTC())
	if err != nil {
		return err
	}

	if result.Picked > 0 || result.Recovered > 0 {
		s.logger.Info("retry sweep finished",
			zap.Int("picked", result.Picked),
			zap.Int("retried", result.Retried),
			zap.Int("published", result.Published),
			zap.Int("skipped", result.Skipped),
			zap.Int("abandoned", result.Failed),
			zap.Int("recovered", result.Recovered),
		)
	}
	return nil
}
