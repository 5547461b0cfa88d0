package controlplane

import (
	"context"

	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"github.com/nestwatch/nestwatch/internal/keys"
	"go.uber.org/zap"
)

// ConsumeResults runs the durable result-stream consumer until ctx is
// cancelled. Replays are safe: the aggregation engine discards stale
// results by timestamp.
func (f *Facade) ConsumeResults(ctx context.Context, batch int64) error {
	return f.fabric.Consume(ctx, keys.ResultStream(), batch, f.handleResultMessage)
}

func (f *Facade) handleResultMessage(ctx context.Context, msg fabric.Message) error {
	batch, err := fabric.DecodeResultBatch(msg.Payload)
	if err != nil {
		// Malformed batch: dead-letter, do not retry.
		return err
	}

	for _, result := range batch.Results() {
		if err := f.engine.ApplyResult(ctx, result); err != nil {
			if errs.KindOf(err) == errs.KindValidation {
				// One bad result must not sink the batch.
				f.logger.Warn("Discarding invalid result",
					zap.String("service_id", result.ServiceID),
					zap.String("worker_id", result.WorkerID),
					zap.Error(err),
				)
				continue
			}
			// Transient: leave the batch pending for redelivery.
			return err
		}
	}
	return nil
}

// ConsumeHeartbeats runs the heartbeat-stream consumer until ctx is
// cancelled.
func (f *Facade) ConsumeHeartbeats(ctx context.Context, batch int64) error {
	return f.fabric.Consume(ctx, keys.HeartbeatStream(), batch, func(ctx context.Context, msg fabric.Message) error {
		hb, err := fabric.DecodeHeartbeat(msg.Payload)
		if err != nil {
			return err
		}
		f.registry.RecordHeartbeat(ctx, hb.WorkerID, hb.Metrics)
		return nil
	})
}
