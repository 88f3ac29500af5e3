package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultApprovalScanInterval = 5 * time.Minute

// ApprovalExpirer periodically rejects approval entries whose hold ran out.
type ApprovalExpirer struct {
	gate     *ApprovalGate
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewApprovalExpirer(gate *ApprovalGate, interval time.Duration, logger *zap.Logger) (*ApprovalExpirer, error) {
	if gate == nil {
		return nil, fmt.Errorf("approval gate is required")
	}
	if interval <= 0 {
		interval = defaultApprovalScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ApprovalExpirer{
		gate:     gate,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}, nil
}

func (e *ApprovalExpirer) Start(ctx context.Context) error {
	return runEvery(ctx, e.interval, e.logger, "approval_expiry", e.scanDue)
}

func (e *ApprovalExpirer) scanDue(ctx context.Context) error {
	expired, err := e.gate.ExpireStale(ctx, e.now().UTC())
	if err != nil {
		return err
	}
	if expired > 0 {
		e.logger.Info("expired stale approvals", zap.Int("count", expired))
	}
	return nil
}
