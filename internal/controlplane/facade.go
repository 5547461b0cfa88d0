// Package controlplane is the façade external collaborators call. It
// is the single choke point for fleet commands: every monitor_service,
// stop_monitoring, worker lifecycle and points command is enqueued
// here or by a service this façade delegates to. The API layer above
// it translates, never decides.
package controlplane

import (
	"context"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/db"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"github.com/nestwatch/nestwatch/internal/incidents"
	"github.com/nestwatch/nestwatch/internal/points"
	"github.com/nestwatch/nestwatch/internal/registry"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/nestwatch/nestwatch/internal/status"
	"github.com/nestwatch/nestwatch/internal/store"
	"github.com/nestwatch/nestwatch/pkg/fabricmgmt"
	"go.uber.org/zap"
)

// AuditLog is the persisted operator trail. db.Repository satisfies it.
type AuditLog interface {
	resilience.AuditSink
	ListAuditEvents(ctx context.Context, limit, offset int) ([]*db.AuditEvent, error)
}

type Facade struct {
	store     *store.Store
	fabric    *fabric.Fabric
	registry  *registry.Service
	engine    *status.Engine
	points    *points.Service
	incidents *incidents.Service
	exec      *resilience.Executor
	audit     AuditLog
	logger    *zap.Logger
}

func New(
	st *store.Store,
	fb *fabric.Fabric,
	reg *registry.Service,
	engine *status.Engine,
	pts *points.Service,
	inc *incidents.Service,
	exec *resilience.Executor,
	audit AuditLog,
	logger *zap.Logger,
) *Facade {
	return &Facade{
		store:     st,
		fabric:    fb,
		registry:  reg,
		engine:    engine,
		points:    pts,
		incidents: inc,
		exec:      exec,
		audit:     audit,
		logger:    logger.With(zap.String("component", "controlplane")),
	}
}

// Monitoring

// RequestMonitoring persists the config and broadcasts monitor_service.
// Re-requesting an existing service pushes the updated config; workers
// replace their local copy by service_id.
func (f *Facade) RequestMonitoring(ctx context.Context, cfg *core.ServiceCheckConfig) error {
	if err := fabric.ValidateCheckConfig(cfg); err != nil {
		return err
	}
	if err := f.store.SaveServiceConfig(ctx, cfg); err != nil {
		return err
	}
	if err := f.fabric.PublishCommand(ctx, fabric.Command{
		Type:           fabric.CmdMonitorService,
		MonitorService: cfg,
	}); err != nil {
		return err
	}

	f.logger.Info("Monitoring requested",
		zap.String("service_id", cfg.ServiceID),
		zap.String("type", string(cfg.Type)),
		zap.Strings("regions", cfg.Regions),
	)
	return nil
}

// StopMonitoring broadcasts stop_monitoring and removes the config and
// the aggregate. Region stamps are left to expire with the service.
func (f *Facade) StopMonitoring(ctx context.Context, serviceID string) error {
	if _, err := f.store.GetServiceConfig(ctx, serviceID); err != nil {
		return err
	}
	if err := f.fabric.PublishCommand(ctx, fabric.Command{
		Type:           fabric.CmdStopMonitoring,
		StopMonitoring: &fabric.StopMonitoringPayload{ServiceID: serviceID},
	}); err != nil {
		return err
	}
	if err := f.store.DeleteServiceConfig(ctx, serviceID); err != nil {
		return err
	}
	if err := f.store.DeleteServiceStatus(ctx, serviceID); err != nil && !errs.IsNotFound(err) {
		f.logger.Warn("Failed to drop service status", zap.String("service_id", serviceID), zap.Error(err))
	}

	f.logger.Info("Monitoring stopped", zap.String("service_id", serviceID))
	return nil
}

func (f *Facade) ListServices(ctx context.Context) ([]*core.ServiceCheckConfig, error) {
	return f.store.ListServiceConfigs(ctx)
}

func (f *Facade) ServiceStatus(ctx context.Context, serviceID string) (*core.ServiceStatus, error) {
	return f.engine.GetStatus(ctx, serviceID)
}

// SetMaintenance flips the maintenance override and recomputes. Audited
// because it silences incident signals.
func (f *Facade) SetMaintenance(ctx context.Context, serviceID string, on bool, actor string) error {
	if err := f.engine.SetMaintenance(ctx, serviceID, on); err != nil {
		return err
	}
	action := "maintenance_cleared"
	if on {
		action = "maintenance_set"
	}
	f.recordAudit(ctx, action, actor, serviceID, "")
	return nil
}

// Worker lifecycle

func (f *Facade) RegisterWorker(ctx context.Context, req core.RegistrationRequest, caps core.Capabilities) error {
	return f.registry.Register(ctx, req.WorkerID, req.OwnerEmail, req.Region, caps)
}

func (f *Facade) ApproveWorker(ctx context.Context, workerID, region, approvedBy string) (*fabricmgmt.Principal, error) {
	return f.registry.Approve(ctx, workerID, region, approvedBy)
}

func (f *Facade) RejectWorker(ctx context.Context, workerID, rejectedBy string) error {
	return f.registry.Reject(ctx, workerID, rejectedBy)
}

func (f *Facade) RequestRegionChange(ctx context.Context, workerID, newRegion, requestedBy string) (*core.RegionChangeRequest, error) {
	return f.registry.RequestRegionChange(ctx, workerID, newRegion, requestedBy)
}

func (f *Facade) ApproveRegionChange(ctx context.Context, requestID, approvedBy string) error {
	return f.registry.ApproveRegionChange(ctx, requestID, approvedBy)
}

func (f *Facade) ListWorkers(ctx context.Context, filter registry.ListFilter) ([]core.WorkerView, error) {
	return f.registry.ListWorkers(ctx, filter)
}

func (f *Facade) ListRegistrationRequests(ctx context.Context) ([]*core.RegistrationRequest, error) {
	return f.registry.ListRegistrationRequests(ctx)
}

func (f *Facade) ListRegionChangeRequests(ctx context.Context) ([]*core.RegionChangeRequest, error) {
	return f.registry.ListRegionChangeRequests(ctx)
}

// RebuildWorker tells one worker to rebuild its runtime from scratch.
func (f *Facade) RebuildWorker(ctx context.Context, workerID, reason, actor string) error {
	approved, err := f.registry.IsApproved(ctx, workerID)
	if err != nil {
		return err
	}
	if !approved {
		return errs.ErrWorkerNotFound
	}
	if err := f.fabric.PublishWorkerCommand(ctx, workerID, fabric.Command{
		Type:          fabric.CmdRebuildWorker,
		RebuildWorker: &fabric.RebuildWorkerPayload{WorkerID: workerID, Reason: reason},
	}); err != nil {
		return err
	}
	f.recordAudit(ctx, "worker_rebuild_requested", actor, workerID, reason)
	return nil
}

// PushWorkerUpdate broadcasts a config/capability update to the fleet,
// or addresses one worker when workerID is set.
func (f *Facade) PushWorkerUpdate(ctx context.Context, workerID string, payload fabric.UpdateWorkerPayload) error {
	cmd := fabric.Command{Type: fabric.CmdUpdateWorker, UpdateWorker: &payload}
	if workerID == "" {
		return f.fabric.PublishCommand(ctx, cmd)
	}
	payload.WorkerID = workerID
	return f.fabric.PublishWorkerCommand(ctx, workerID, cmd)
}

// Points

func (f *Facade) PointsConfig(ctx context.Context) (*core.PointsConfig, error) {
	return f.points.Config(ctx)
}

func (f *Facade) UpdatePointsConfig(ctx context.Context, cfg *core.PointsConfig, updatedBy string) error {
	return f.points.UpdateConfig(ctx, cfg, updatedBy)
}

func (f *Facade) ResetPointsPeriod(ctx context.Context, resetBy string) error {
	return f.points.ResetPeriod(ctx, resetBy)
}

func (f *Facade) Leaderboard(ctx context.Context, period bool, limit int64) ([]store.LeaderboardEntry, error) {
	return f.points.Leaderboard(ctx, period, limit)
}

func (f *Facade) WorkerStanding(ctx context.Context, workerID string) (*points.Standing, error) {
	return f.points.Standing(ctx, workerID)
}

// Incidents

func (f *Facade) ListIncidents(ctx context.Context, nestID string, limit, offset int) ([]*db.Incident, error) {
	return f.incidents.List(ctx, nestID, limit, offset)
}

func (f *Facade) AcknowledgeIncident(ctx context.Context, incidentID, ackBy string) error {
	return f.incidents.Acknowledge(ctx, incidentID, ackBy)
}

// Operability

func (f *Facade) Breakers() []resilience.BreakerSnapshot {
	return f.exec.Snapshots()
}

func (f *Facade) ForceBreaker(ctx context.Context, dependency, state, actor, reason string) error {
	return f.exec.ForceBreaker(ctx, dependency, state, actor, reason)
}

func (f *Facade) ResetBreaker(ctx context.Context, dependency, actor, reason string) error {
	return f.exec.ResetBreaker(ctx, dependency, actor, reason)
}

func (f *Facade) AuditEvents(ctx context.Context, limit, offset int) ([]*db.AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return f.audit.ListAuditEvents(ctx, limit, offset)
}

func (f *Facade) DeadLetters(ctx context.Context, count int64) ([]fabric.DeadLetter, error) {
	if count <= 0 || count > 500 {
		count = 100
	}
	return f.fabric.DeadLetters(ctx, count)
}

func (f *Facade) recordAudit(ctx context.Context, action, actor, target, reason string) {
	if f.audit == nil {
		return
	}
	if err := f.audit.RecordAudit(ctx, action, actor, target, reason); err != nil {
		f.logger.Error("Failed to record audit event", zap.String("action", action), zap.Error(err))
	}
}
