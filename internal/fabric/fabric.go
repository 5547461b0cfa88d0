// Package fabric is the command/result exchange between the control
// plane and the worker fleet, built on Redis Streams. Commands fan out
// on a broadcast stream plus per-worker streams; results and
// heartbeats come back on durable streams consumed with a consumer
// group, manual acknowledgment and a dead-letter stream.
package fabric

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/keys"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// maxStreamLen keeps streams bounded; XADD trims approximately.
const maxStreamLen = 100000

type Metrics interface {
	RecordFabricMessage(stream, outcome string)
}

type Fabric struct {
	rdb     *redis.Client
	exec    *resilience.Executor
	cfg     config.FabricConfig
	logger  *zap.Logger
	metrics Metrics
}

func New(rdb *redis.Client, exec *resilience.Executor, cfg config.FabricConfig, logger *zap.Logger, metrics Metrics) *Fabric {
	return &Fabric{
		rdb:     rdb,
		exec:    exec,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "fabric")),
		metrics: metrics,
	}
}

// PublishCommand broadcasts a command to every approved worker.
func (f *Fabric) PublishCommand(ctx context.Context, cmd Command) error {
	return f.publish(ctx, keys.CommandStream(), cmd)
}

// PublishWorkerCommand addresses a single worker.
func (f *Fabric) PublishWorkerCommand(ctx context.Context, workerID string, cmd Command) error {
	return f.publish(ctx, keys.WorkerCommandStream(workerID), cmd)
}

func (f *Fabric) publish(ctx context.Context, stream string, cmd Command) error {
	raw, err := cmd.Encode()
	if err != nil {
		return errs.Validation("encode %s: %v", cmd.Type, err)
	}
	return f.add(ctx, stream, raw)
}

// PublishResults is the worker side of the result queue.
func (f *Fabric) PublishResults(ctx context.Context, batch ResultBatch) error {
	raw, err := batch.Encode()
	if err != nil {
		return errs.Validation("encode result batch: %v", err)
	}
	return f.add(ctx, keys.ResultStream(), raw)
}

func (f *Fabric) PublishHeartbeat(ctx context.Context, hb Heartbeat) error {
	raw, err := hb.Encode()
	if err != nil {
		return errs.Validation("encode heartbeat: %v", err)
	}
	return f.add(ctx, keys.HeartbeatStream(), raw)
}

func (f *Fabric) add(ctx context.Context, stream string, raw []byte) error {
	return f.exec.Do(ctx, resilience.ClassQueue, "fabric", "publish", func(ctx context.Context) error {
		err := f.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: maxStreamLen,
			Approx: true,
			Values: map[string]any{payloadField: raw},
		}).Err()
		if err != nil {
			return errs.Transient("fabric", "publish", err)
		}
		return nil
	})
}

// Message is one delivered stream entry. Handlers decide its fate via
// the consumer's ack/nack semantics.
type Message struct {
	ID         string
	Stream     string
	Payload    []byte
	Deliveries int64
}

// Handler processes one message. A nil return acks; a validation error
// dead-letters; a transient error leaves the message pending for
// redelivery (nack with requeue).
type Handler func(ctx context.Context, msg Message) error

// Consume runs the manual-ack consume loop for one stream until ctx is
// cancelled. Pending entries idle longer than ClaimMinIdle are
// reclaimed and, past MaxDeliveries, dead-lettered.
func (f *Fabric) Consume(ctx context.Context, stream string, batch int64, handler Handler) error {
	if err := f.ensureGroup(ctx, stream); err != nil {
		return err
	}

	log := f.logger.With(zap.String("stream", stream))
	log.Info("Consumer started", zap.String("group", f.cfg.ConsumerGroup))

	for {
		select {
		case <-ctx.Done():
			log.Info("Consumer stopped")
			return ctx.Err()
		default:
		}

		if err := f.reclaimPending(ctx, stream, handler); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Failed to reclaim pending messages", zap.Error(err))
		}

		res, err := f.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    f.cfg.ConsumerGroup,
			Consumer: f.cfg.ConsumerName,
			Streams:  []string{stream, ">"},
			Count:    batch,
			Block:    f.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("Failed to read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range res {
			for _, entry := range s.Messages {
				f.dispatch(ctx, stream, Message{
					ID:         entry.ID,
					Stream:     stream,
					Payload:    payloadOf(entry),
					Deliveries: 1,
				}, handler)
			}
		}
	}
}

func (f *Fabric) dispatch(ctx context.Context, stream string, msg Message, handler Handler) {
	err := handler(ctx, msg)
	switch {
	case err == nil:
		f.Ack(ctx, msg)
		f.count(stream, "ack")
	case errs.KindOf(err) == errs.KindValidation:
		// Permanent: never requeue.
		f.Nack(ctx, msg, false, err.Error())
		f.count(stream, "dead_letter")
	case msg.Deliveries >= f.cfg.MaxDeliveries:
		f.logger.Error("Message exhausted deliveries",
			zap.String("stream", stream),
			zap.String("id", msg.ID),
			zap.Int64("deliveries", msg.Deliveries),
			zap.Error(err),
		)
		f.Nack(ctx, msg, false, err.Error())
		f.count(stream, "dead_letter")
	default:
		// Transient: leave pending, the reclaim pass redelivers.
		f.count(stream, "requeue")
	}
}

// Ack acknowledges successful application.
func (f *Fabric) Ack(ctx context.Context, msg Message) {
	if err := f.rdb.XAck(ctx, msg.Stream, f.cfg.ConsumerGroup, msg.ID).Err(); err != nil {
		f.logger.Error("Failed to ack message", zap.String("id", msg.ID), zap.Error(err))
	}
}

// Nack without requeue forwards the original payload and the failure
// reason to the dead-letter stream, then acks so the entry stops
// circulating. Nack with requeue leaves the entry pending.
func (f *Fabric) Nack(ctx context.Context, msg Message, requeue bool, reason string) {
	if requeue {
		return
	}
	err := f.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: keys.DeadLetterStream(),
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			payloadField: msg.Payload,
			"source":     msg.Stream,
			"source_id":  msg.ID,
			"reason":     reason,
			"failed_at":  time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		// Keep the entry pending rather than lose it.
		f.logger.Error("Failed to dead-letter message", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	f.Ack(ctx, msg)
}

func (f *Fabric) reclaimPending(ctx context.Context, stream string, handler Handler) error {
	pending, err := f.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  f.cfg.ConsumerGroup,
		Idle:   f.cfg.ClaimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  f.cfg.ResultBatch,
	}).Result()
	if err != nil || len(pending) == 0 {
		return err
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}

	claimed, err := f.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    f.cfg.ConsumerGroup,
		Consumer: f.cfg.ConsumerName,
		MinIdle:  f.cfg.ClaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	for _, entry := range claimed {
		f.dispatch(ctx, stream, Message{
			ID:         entry.ID,
			Stream:     stream,
			Payload:    payloadOf(entry),
			Deliveries: deliveries[entry.ID],
		}, handler)
	}
	return nil
}

func (f *Fabric) ensureGroup(ctx context.Context, stream string) error {
	err := f.rdb.XGroupCreateMkStream(ctx, stream, f.cfg.ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return errs.Transient("fabric", "group-create", err)
	}
	return nil
}

// ConsumeWorkerCommands is the worker side: a plain fan-out read of
// the broadcast stream plus this worker's addressed stream. Every
// worker sees every broadcast, so no group is involved.
func (f *Fabric) ConsumeWorkerCommands(ctx context.Context, workerID string, handler func(ctx context.Context, cmd Command) error) error {
	broadcast := keys.CommandStream()
	direct := keys.WorkerCommandStream(workerID)
	// History is skipped once at startup; a rejoining worker gets fresh
	// config pushed via update_worker instead of replaying old
	// commands. The cursor is a concrete ID, never "$": "$" is
	// re-evaluated per XRead call, and a command published between two
	// reads would be skipped.
	lastIDs := map[string]string{
		broadcast: f.lastGeneratedID(ctx, broadcast),
		direct:    f.lastGeneratedID(ctx, direct),
	}

	log := f.logger.With(zap.String("worker_id", workerID))
	log.Info("Command consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Command consumer stopped")
			return ctx.Err()
		default:
		}

		res, err := f.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{broadcast, direct, lastIDs[broadcast], lastIDs[direct]},
			Count:   16,
			Block:   f.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("Failed to read commands", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range res {
			for _, entry := range s.Messages {
				lastIDs[s.Stream] = entry.ID
				cmd, decErr := DecodeCommand(payloadOf(entry))
				if decErr != nil {
					log.Warn("Dropping invalid command", zap.String("id", entry.ID), zap.Error(decErr))
					continue
				}
				if err := handler(ctx, cmd); err != nil {
					log.Error("Command handler failed",
						zap.String("command", string(cmd.Type)),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// lastGeneratedID pins a consume cursor to the stream's current tail.
// A stream that does not exist yet has no history, so "0" is safe.
func (f *Fabric) lastGeneratedID(ctx context.Context, stream string) string {
	info, err := f.rdb.XInfoStream(ctx, stream).Result()
	if err != nil {
		return "0"
	}
	return info.LastGeneratedID
}

// DeadLetters returns up to count entries from the dead-letter stream
// for manual inspection.
func (f *Fabric) DeadLetters(ctx context.Context, count int64) ([]DeadLetter, error) {
	entries, err := f.rdb.XRevRangeN(ctx, keys.DeadLetterStream(), "+", "-", count).Result()
	if err != nil {
		return nil, errs.Transient("fabric", "dlq-read", err)
	}
	out := make([]DeadLetter, 0, len(entries))
	for _, e := range entries {
		dl := DeadLetter{ID: e.ID}
		if v, ok := e.Values[payloadField].(string); ok {
			dl.Payload = v
		}
		if v, ok := e.Values["source"].(string); ok {
			dl.Source = v
		}
		if v, ok := e.Values["reason"].(string); ok {
			dl.Reason = v
		}
		out = append(out, dl)
	}
	return out, nil
}

type DeadLetter struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Reason  string `json:"reason"`
	Payload string `json:"payload"`
}

func (f *Fabric) count(stream, outcome string) {
	if f.metrics != nil {
		f.metrics.RecordFabricMessage(stream, outcome)
	}
}

func payloadOf(entry redis.XMessage) []byte {
	if v, ok := entry.Values[payloadField].(string); ok {
		return []byte(v)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}
