// Package realtime fans status deltas out to per-nest pub/sub
// channels. A public-facing service owns the SSE/WebSocket side; this
// end only publishes.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/keys"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Event struct {
	Type      string              `json:"type"`
	ServiceID string              `json:"serviceId"`
	Status    *core.ServiceStatus `json:"status"`
	Timestamp int64               `json:"timestamp"`
}

type Publisher struct {
	rdb    *redis.Client
	exec   *resilience.Executor
	logger *zap.Logger
}

func NewPublisher(rdb *redis.Client, exec *resilience.Executor, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, exec: exec, logger: logger}
}

// PublishStatusDelta is best-effort: a failed publish is logged, never
// propagated, so realtime fan-out cannot stall result application.
func (p *Publisher) PublishStatusDelta(ctx context.Context, status *core.ServiceStatus) {
	event := Event{
		Type:      "service_update",
		ServiceID: status.ServiceID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode realtime event", zap.Error(err))
		return
	}

	channel := keys.RealtimeChannel(status.NestID)
	err = p.exec.Do(ctx, resilience.ClassCache, "redis-pubsub", "publish", func(ctx context.Context) error {
		if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
			return errs.Transient("redis-pubsub", "publish", err)
		}
		return nil
	})
	if err != nil {
		p.logger.Warn("Failed to publish realtime delta",
			zap.String("service_id", status.ServiceID),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}
