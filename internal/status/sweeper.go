package status

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the stale-region sweep on an interval.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(engine *Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{engine: engine, interval: interval, logger: logger}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Stale sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stale sweeper stopped")
			return
		case <-ticker.C:
			s.engine.SweepStale(ctx)
		}
	}
}
