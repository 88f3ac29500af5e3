package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runEvery calls tick once right away and then on every interval until ctx
// ends. Tick errors are logged and never stop the loop.
func runEvery(ctx context.Context, interval time.Duration, logger *zap.Logger, task string, tick func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	run := func() {
		if err := tick(ctx); err != nil && ctx.Err() == nil {
			logger.Error("periodic task failed", zap.String("task", task), zap.Error(err))
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		}
	}
}
