package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// Sweeper runs one SLA sweep pass.
type Sweeper interface {
	SweepOnce(ctx context.Context) (domain.BreachCounts, error)
}

// SweeperLoop runs a pass immediately and then on every tick until ctx ends.
// A failed pass is logged and retried on the next tick.
func SweeperLoop(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info("sla sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := sweeper.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sla sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("sla sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}
