// Package status turns the unordered stream of per-region check
// results into one coherent aggregate per service and fans out deltas.
package status

import (
	"context"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/keys"
	"go.uber.org/zap"
)

// Store is the slice of the KV store the engine needs. Service-status
// records are mutated by this component only.
type Store interface {
	GetServiceConfig(ctx context.Context, serviceID string) (*core.ServiceCheckConfig, error)
	ListServiceConfigs(ctx context.Context) ([]*core.ServiceCheckConfig, error)
	GetServiceStatus(ctx context.Context, serviceID string) (*core.ServiceStatus, error)
	SaveServiceStatus(ctx context.Context, status *core.ServiceStatus) error
	GetStamp(ctx context.Context, key string) (int64, error)
	CompareAndSetStamp(ctx context.Context, key string, timestamp int64) (bool, error)
	SetMaintenance(ctx context.Context, serviceID string, on bool) error
	InMaintenance(ctx context.Context, serviceID string) (bool, error)
}

// SourceValidator rejects results from workers the registry does not
// vouch for.
type SourceValidator interface {
	IsApproved(ctx context.Context, workerID string) (bool, error)
}

// DeltaPublisher receives the aggregate after every overall-status
// change.
type DeltaPublisher interface {
	PublishStatusDelta(ctx context.Context, status *core.ServiceStatus)
}

// TransitionSink receives incident-open/incident-close signals.
type TransitionSink interface {
	OnTransition(ctx context.Context, cfg *core.ServiceCheckConfig, status *core.ServiceStatus, from, to core.ServiceState)
}

// PointsSink is notified once per accepted result so reputation can
// accrue.
type PointsSink interface {
	OnResultApplied(ctx context.Context, cfg *core.ServiceCheckConfig, result core.CheckResult)
}

type Metrics interface {
	RecordResultApplied(tenantID, serviceID, region, status string, responseMs int)
	RecordResultDiscarded(reason string)
	RecordServiceState(tenantID, serviceID, state string)
	RecordStatusTransition(tenantID, serviceID, from, to string)
	RecordRegionSweptStale()
}

type Engine struct {
	store       Store
	sources     SourceValidator
	deltas      DeltaPublisher
	transitions TransitionSink
	points      PointsSink
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewEngine(store Store, sources SourceValidator, deltas DeltaPublisher, transitions TransitionSink, points PointsSink, metrics Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		sources:     sources,
		deltas:      deltas,
		transitions: transitions,
		points:      points,
		metrics:     metrics,
		logger:      logger.With(zap.String("component", "status")),
		now:         time.Now,
	}
}

// ApplyResult applies one check result to its region slot. Application
// is idempotent: a result with a timestamp not newer than the stored
// one for that (service, region) is a no-op. Validation errors mean
// the message can never apply and should be dead-lettered by the
// caller.
func (e *Engine) ApplyResult(ctx context.Context, result core.CheckResult) error {
	cfg, err := e.store.GetServiceConfig(ctx, result.ServiceID)
	if err != nil {
		if errs.IsNotFound(err) {
			e.discard("unknown_service")
			return errs.Validation("result for unknown service %s", result.ServiceID)
		}
		return err
	}

	approved, err := e.sources.IsApproved(ctx, result.WorkerID)
	if err != nil {
		return err
	}
	if !approved {
		e.discard("unapproved_worker")
		return errs.Validation("result from unapproved worker %s", result.WorkerID)
	}

	if !containsRegion(cfg.Regions, result.RegionID) {
		e.discard("unconfigured_region")
		return errs.Validation("result for region %s not configured on service %s", result.RegionID, result.ServiceID)
	}

	stampKey := keys.RegionStamp(result.ServiceID, result.RegionID)
	stamp, err := e.store.GetStamp(ctx, stampKey)
	if err != nil {
		return err
	}
	if result.Timestamp <= stamp {
		// Out-of-order or duplicate delivery.
		e.discard("stale")
		return nil
	}

	status, err := e.loadOrInit(ctx, cfg)
	if err != nil {
		return err
	}

	slot := status.Region(result.RegionID)
	slot.Status = result.Status
	slot.ResponseTimeMs = result.ResponseTimeMs
	slot.LastChecked = result.Timestamp
	slot.Error = result.Error

	if err := e.recompute(ctx, cfg, status); err != nil {
		return err
	}

	// The stamp commits only after the aggregate is persisted, so a
	// failed save leaves the message replayable instead of acked and
	// lost.
	if _, err := e.store.CompareAndSetStamp(ctx, stampKey, result.Timestamp); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.RecordResultApplied(cfg.NestID, cfg.ServiceID, result.RegionID, string(result.Status), result.ResponseTimeMs)
	}
	if e.points != nil {
		e.points.OnResultApplied(ctx, cfg, result)
	}
	return nil
}

// SetMaintenance persists the flag and recomputes immediately so the
// override takes effect without waiting for the next result.
func (e *Engine) SetMaintenance(ctx context.Context, serviceID string, on bool) error {
	cfg, err := e.store.GetServiceConfig(ctx, serviceID)
	if err != nil {
		return err
	}
	if err := e.store.SetMaintenance(ctx, serviceID, on); err != nil {
		return err
	}
	status, err := e.loadOrInit(ctx, cfg)
	if err != nil {
		return err
	}
	status.Maintenance = on
	return e.recompute(ctx, cfg, status)
}

// GetStatus returns the current aggregate, initializing an all-unknown
// one for a service that has never reported.
func (e *Engine) GetStatus(ctx context.Context, serviceID string) (*core.ServiceStatus, error) {
	cfg, err := e.store.GetServiceConfig(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return e.loadOrInit(ctx, cfg)
}

// SweepStale marks regions silent for longer than 3x the check
// interval as unknown and recomputes, so a dead worker cannot freeze a
// service at a stale up.
func (e *Engine) SweepStale(ctx context.Context) {
	cfgs, err := e.store.ListServiceConfigs(ctx)
	if err != nil {
		e.logger.Error("Stale sweep failed to list services", zap.Error(err))
		return
	}

	nowMs := e.now().UnixMilli()
	for _, cfg := range cfgs {
		staleAfter := int64(3 * cfg.Interval * 1000)
		status, err := e.loadOrInit(ctx, cfg)
		if err != nil {
			e.logger.Error("Stale sweep failed to load status",
				zap.String("service_id", cfg.ServiceID),
				zap.Error(err),
			)
			continue
		}

		swept := false
		for i := range status.Regions {
			slot := &status.Regions[i]
			if slot.Status == core.StatusUnknown || slot.LastChecked == 0 {
				continue
			}
			if nowMs-slot.LastChecked > staleAfter {
				slot.Status = core.StatusUnknown
				slot.Error = ""
				swept = true
				if e.metrics != nil {
					e.metrics.RecordRegionSweptStale()
				}
				e.logger.Warn("Region marked stale",
					zap.String("service_id", cfg.ServiceID),
					zap.String("region", slot.RegionID),
				)
			}
		}
		if !swept {
			continue
		}
		if err := e.recompute(ctx, cfg, status); err != nil {
			e.logger.Error("Stale sweep failed to recompute",
				zap.String("service_id", cfg.ServiceID),
				zap.Error(err),
			)
		}
	}
}

// recompute derives the overall state, persists, and fans out when the
// aggregate changed.
func (e *Engine) recompute(ctx context.Context, cfg *core.ServiceCheckConfig, status *core.ServiceStatus) error {
	maintenance, err := e.store.InMaintenance(ctx, cfg.ServiceID)
	if err == nil {
		status.Maintenance = maintenance
	}

	previous := status.OverallStatus
	status.OverallStatus = ComputeOverall(cfg, status)
	status.ResponseTimeMs = worstResponseTime(status)
	status.LastChecked = latestChecked(status)
	status.UpdatedAt = e.now()

	if err := e.store.SaveServiceStatus(ctx, status); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.RecordServiceState(cfg.NestID, cfg.ServiceID, string(status.OverallStatus))
	}

	if status.OverallStatus == previous {
		return nil
	}

	e.logger.Info("Service status changed",
		zap.String("service_id", cfg.ServiceID),
		zap.String("from", string(previous)),
		zap.String("to", string(status.OverallStatus)),
	)
	if e.metrics != nil {
		e.metrics.RecordStatusTransition(cfg.NestID, cfg.ServiceID, string(previous), string(status.OverallStatus))
	}
	if e.deltas != nil {
		e.deltas.PublishStatusDelta(ctx, status)
	}
	if e.transitions != nil {
		e.transitions.OnTransition(ctx, cfg, status, previous, status.OverallStatus)
	}
	return nil
}

func (e *Engine) loadOrInit(ctx context.Context, cfg *core.ServiceCheckConfig) (*core.ServiceStatus, error) {
	status, err := e.store.GetServiceStatus(ctx, cfg.ServiceID)
	if err != nil {
		if !errs.IsNotFound(err) {
			return nil, err
		}
		status = &core.ServiceStatus{
			ServiceID:     cfg.ServiceID,
			NestID:        cfg.NestID,
			OverallStatus: core.StateUnknown,
		}
	}

	// Keep the slot list aligned with the configured regions, in
	// config order.
	aligned := make([]core.RegionStatus, 0, len(cfg.Regions))
	for _, regionID := range cfg.Regions {
		if slot := status.Region(regionID); slot != nil {
			aligned = append(aligned, *slot)
		} else {
			aligned = append(aligned, core.RegionStatus{RegionID: regionID, Status: core.StatusUnknown})
		}
	}
	status.Regions = aligned
	return status, nil
}

func (e *Engine) discard(reason string) {
	if e.metrics != nil {
		e.metrics.RecordResultDiscarded(reason)
	}
}

func worstResponseTime(status *core.ServiceStatus) int {
	worst := 0
	for _, slot := range status.Regions {
		if slot.Status == core.StatusUp && slot.ResponseTimeMs > worst {
			worst = slot.ResponseTimeMs
		}
	}
	return worst
}

func latestChecked(status *core.ServiceStatus) int64 {
	var latest int64
	for _, slot := range status.Regions {
		if slot.LastChecked > latest {
			latest = slot.LastChecked
		}
	}
	return latest
}

func containsRegion(regions []string, regionID string) bool {
	for _, r := range regions {
		if r == regionID {
			return true
		}
	}
	return false
}
