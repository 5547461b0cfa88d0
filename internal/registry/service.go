// Package registry owns worker identity and lifecycle: registration,
// approval with credential issuance, rejection, region changes,
// heartbeats and derived liveness.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"github.com/nestwatch/nestwatch/internal/keys"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/nestwatch/nestwatch/pkg/fabricmgmt"
	"go.uber.org/zap"
)

// Store is the slice of the KV store the registry needs. Worker
// records are mutated by this component only.
type Store interface {
	SaveWorker(ctx context.Context, w *core.Worker) error
	GetWorker(ctx context.Context, workerID string) (*core.Worker, error)
	DeleteWorker(ctx context.Context, workerID string) error
	ListWorkers(ctx context.Context) ([]*core.Worker, error)

	SaveRegistrationRequest(ctx context.Context, r *core.RegistrationRequest) error
	GetRegistrationRequest(ctx context.Context, workerID string) (*core.RegistrationRequest, error)
	DeleteRegistrationRequest(ctx context.Context, workerID string) error
	ListRegistrationRequests(ctx context.Context) ([]*core.RegistrationRequest, error)

	SaveRegionChangeRequest(ctx context.Context, r *core.RegionChangeRequest) error
	GetRegionChangeRequest(ctx context.Context, requestID string) (*core.RegionChangeRequest, error)
	ListRegionChangeRequests(ctx context.Context) ([]*core.RegionChangeRequest, error)
}

type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd fabric.Command) error
	PublishWorkerCommand(ctx context.Context, workerID string, cmd fabric.Command) error
}

type PrincipalClient interface {
	CreatePrincipal(ctx context.Context, username string, perms fabricmgmt.Permissions) (*fabricmgmt.Principal, error)
	DeletePrincipal(ctx context.Context, handle string) error
}

type Metrics interface {
	RecordHeartbeat()
	RecordFleet(state string, alive bool, n int)
}

type Service struct {
	store      Store
	publisher  CommandPublisher
	principals PrincipalClient
	exec       *resilience.Executor
	audit      resilience.AuditSink
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(store Store, publisher CommandPublisher, principals PrincipalClient, exec *resilience.Executor, audit resilience.AuditSink, metrics Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		publisher:  publisher,
		principals: principals,
		exec:       exec,
		audit:      audit,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "registry")),
		now:        time.Now,
	}
}

// Register creates a pending worker and its registration request. A
// worker that is already pending or approved conflicts.
func (s *Service) Register(ctx context.Context, workerID, ownerEmail, region string, caps core.Capabilities) error {
	if workerID == "" || ownerEmail == "" || region == "" {
		return errs.Validation("worker_id, owner_email and region are required")
	}
	for _, t := range caps.CheckTypes {
		if !core.KnownCheckTypes[core.CheckType(t)] {
			return errs.Validation("unknown check type %q", t)
		}
	}

	existing, err := s.store.GetWorker(ctx, workerID)
	if err != nil && !errs.IsNotFound(err) {
		return err
	}
	if existing != nil && existing.State != core.WorkerRevoked {
		return errs.ErrDuplicateRegistration
	}

	now := s.now()
	worker := &core.Worker{
		ID:           workerID,
		OwnerEmail:   ownerEmail,
		Region:       region,
		Capabilities: caps,
		State:        core.WorkerPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveWorker(ctx, worker); err != nil {
		return err
	}
	if err := s.store.SaveRegistrationRequest(ctx, &core.RegistrationRequest{
		WorkerID:     workerID,
		OwnerEmail:   ownerEmail,
		Region:       region,
		PendingSince: now,
	}); err != nil {
		return err
	}

	s.logger.Info("Worker registered",
		zap.String("worker_id", workerID),
		zap.String("region", region),
	)
	return nil
}

// Approve provisions a fabric principal scoped to this worker and
// marks it approved. If provisioning fails nothing changes: the worker
// stays pending and the registration request survives.
func (s *Service) Approve(ctx context.Context, workerID, region, approvedBy string) (*fabricmgmt.Principal, error) {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	// State first: the registration request is deleted on approval, so
	// a repeat approval must conflict, not report the request missing.
	if worker.State == core.WorkerApproved {
		return nil, errs.ErrAlreadyApproved
	}
	if _, err := s.store.GetRegistrationRequest(ctx, workerID); err != nil {
		return nil, err
	}

	perms := fabricmgmt.Permissions{
		Publish: []string{
			keys.ResultStream(),
			keys.HeartbeatStream(),
		},
		Subscribe: []string{
			keys.CommandStream(),
			keys.WorkerCommandStream(workerID),
		},
	}

	principal, err := resilience.Execute(ctx, s.exec, resilience.ClassRPC, "fabric-mgmt", "create-principal",
		func(ctx context.Context) (*fabricmgmt.Principal, error) {
			p, err := s.principals.CreatePrincipal(ctx, "worker-"+workerID, perms)
			if err != nil {
				return nil, errs.Transient("fabric-mgmt", "create-principal", err)
			}
			return p, nil
		}, nil)
	if err != nil {
		s.logger.Error("Credential provisioning failed, approval rolled back",
			zap.String("worker_id", workerID),
			zap.Error(err),
		)
		return nil, errs.Provisioning(err)
	}

	now := s.now()
	if region != "" {
		worker.Region = region
	}
	worker.State = core.WorkerApproved
	worker.CredentialHandle = principal.Handle
	worker.UpdatedAt = now
	if err := s.store.SaveWorker(ctx, worker); err != nil {
		// Undo the principal so a retried approval starts clean.
		if delErr := s.principals.DeletePrincipal(ctx, principal.Handle); delErr != nil {
			s.logger.Error("Failed to revoke principal after rollback",
				zap.String("worker_id", workerID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}
	if err := s.store.DeleteRegistrationRequest(ctx, workerID); err != nil {
		s.logger.Error("Failed to remove registration request", zap.String("worker_id", workerID), zap.Error(err))
	}

	s.recordAudit(ctx, "worker_approved", approvedBy, workerID, "")
	s.logger.Info("Worker approved",
		zap.String("worker_id", workerID),
		zap.String("region", worker.Region),
		zap.String("approved_by", approvedBy),
	)
	return principal, nil
}

// Reject removes a worker. An approved worker has its principal
// revoked first. Rejecting an absent worker is a no-op.
func (s *Service) Reject(ctx context.Context, workerID, rejectedBy string) error {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		if errs.IsNotFound(err) {
			if err := s.store.DeleteRegistrationRequest(ctx, workerID); err != nil && !errs.IsNotFound(err) {
				return err
			}
			return nil
		}
		return err
	}

	if worker.State == core.WorkerApproved && worker.CredentialHandle != "" {
		err := s.exec.Do(ctx, resilience.ClassRPC, "fabric-mgmt", "delete-principal", func(ctx context.Context) error {
			if err := s.principals.DeletePrincipal(ctx, worker.CredentialHandle); err != nil {
				return errs.Transient("fabric-mgmt", "delete-principal", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to revoke principal: %w", err)
		}
	}

	if err := s.store.DeleteWorker(ctx, workerID); err != nil {
		return err
	}
	if err := s.store.DeleteRegistrationRequest(ctx, workerID); err != nil && !errs.IsNotFound(err) {
		s.logger.Warn("Failed to remove registration request", zap.String("worker_id", workerID), zap.Error(err))
	}

	s.recordAudit(ctx, "worker_rejected", rejectedBy, workerID, "")
	s.logger.Info("Worker rejected", zap.String("worker_id", workerID), zap.String("rejected_by", rejectedBy))
	return nil
}

// RequestRegionChange files a pending request; the worker's region is
// untouched until approval.
func (s *Service) RequestRegionChange(ctx context.Context, workerID, newRegion, requestedBy string) (*core.RegionChangeRequest, error) {
	if newRegion == "" {
		return nil, errs.Validation("new_region is required")
	}
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if worker.Region == newRegion {
		return nil, errs.Validation("worker already in region %s", newRegion)
	}

	req := &core.RegionChangeRequest{
		ID:          uuid.New().String(),
		WorkerID:    workerID,
		OldRegion:   worker.Region,
		NewRegion:   newRegion,
		RequestedBy: requestedBy,
		RequestedAt: s.now(),
	}
	if err := s.store.SaveRegionChangeRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("Region change requested",
		zap.String("worker_id", workerID),
		zap.String("old_region", worker.Region),
		zap.String("new_region", newRegion),
	)
	return req, nil
}

// ApproveRegionChange publishes a change_region command addressed to
// the worker and archives the request. The registry does not assume
// the command succeeded: the worker's next heartbeat reporting the new
// region is what updates the authoritative record.
func (s *Service) ApproveRegionChange(ctx context.Context, requestID, approvedBy string) error {
	req, err := s.store.GetRegionChangeRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Approved {
		return errs.ErrAlreadyApproved
	}

	cmd := fabric.Command{
		Type: fabric.CmdChangeRegion,
		ChangeRegion: &fabric.ChangeRegionPayload{
			WorkerID:  req.WorkerID,
			OldRegion: req.OldRegion,
			NewRegion: req.NewRegion,
		},
	}
	if err := s.publisher.PublishWorkerCommand(ctx, req.WorkerID, cmd); err != nil {
		return err
	}

	now := s.now()
	req.Approved = true
	req.ApprovedBy = approvedBy
	req.ApprovedAt = &now
	if err := s.store.SaveRegionChangeRequest(ctx, req); err != nil {
		return err
	}

	s.recordAudit(ctx, "region_change_approved", approvedBy, req.WorkerID,
		fmt.Sprintf("%s -> %s", req.OldRegion, req.NewRegion))
	s.logger.Info("Region change approved",
		zap.String("request_id", requestID),
		zap.String("worker_id", req.WorkerID),
		zap.String("new_region", req.NewRegion),
	)
	return nil
}

// RecordHeartbeat upserts liveness and merges reported metrics. An
// unknown worker is logged, not errored: a worker can race its own
// approval.
func (s *Service) RecordHeartbeat(ctx context.Context, workerID string, m core.HeartbeatMetrics) {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		s.logger.Debug("Heartbeat from unknown worker", zap.String("worker_id", workerID), zap.Error(err))
		return
	}

	worker.LastHeartbeatAt = s.now()
	if m.Region != "" {
		worker.ReportedRegion = m.Region
		// The worker has adopted a region change; its report wins.
		if m.Region != worker.Region {
			s.logger.Info("Worker region updated from heartbeat",
				zap.String("worker_id", workerID),
				zap.String("old_region", worker.Region),
				zap.String("new_region", m.Region),
			)
			worker.Region = m.Region
		}
	}
	if m.TotalPoints > worker.TotalPoints {
		worker.TotalPoints = m.TotalPoints
	}
	// Period points drop to zero on a fleet reset, so the reported
	// value is authoritative, not a high-water mark.
	worker.CurrentPeriodPoints = m.PeriodPoints
	if m.ChecksCompleted > worker.ChecksCompleted {
		worker.ChecksCompleted = m.ChecksCompleted
	}
	worker.UpdatedAt = worker.LastHeartbeatAt

	if err := s.store.SaveWorker(ctx, worker); err != nil {
		// Best-effort: a degraded store must not fail the pipeline.
		s.logger.Warn("Failed to persist heartbeat", zap.String("worker_id", workerID), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordHeartbeat()
	}
}

// IsApproved reports whether a worker may publish results. Used by the
// aggregation engine to validate sources.
func (s *Service) IsApproved(ctx context.Context, workerID string) (bool, error) {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		if errs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return worker.State == core.WorkerApproved, nil
}

type ListFilter struct {
	Region string
	State  core.WorkerState
	Alive  *bool
}

// ListWorkers returns worker views with derived liveness and no
// credential material.
func (s *Service) ListWorkers(ctx context.Context, filter ListFilter) ([]core.WorkerView, error) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]core.WorkerView, 0, len(workers))
	for _, w := range workers {
		if filter.Region != "" && w.Region != filter.Region {
			continue
		}
		if filter.State != "" && w.State != filter.State {
			continue
		}
		v := w.View(now)
		if filter.Alive != nil && v.IsAlive != *filter.Alive {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) ListRegistrationRequests(ctx context.Context) ([]*core.RegistrationRequest, error) {
	return s.store.ListRegistrationRequests(ctx)
}

func (s *Service) ListRegionChangeRequests(ctx context.Context) ([]*core.RegionChangeRequest, error) {
	return s.store.ListRegionChangeRequests(ctx)
}

// PublishFleetGauges refreshes the worker fleet metrics; called from
// the admin sweep loop.
func (s *Service) PublishFleetGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return
	}
	now := s.now()
	counts := map[[2]bool]int{}
	pending := 0
	for _, w := range workers {
		if w.State == core.WorkerPending {
			pending++
			continue
		}
		counts[[2]bool{true, w.IsAlive(now)}]++
	}
	s.metrics.RecordFleet(string(core.WorkerPending), false, pending)
	s.metrics.RecordFleet(string(core.WorkerApproved), true, counts[[2]bool{true, true}])
	s.metrics.RecordFleet(string(core.WorkerApproved), false, counts[[2]bool{true, false}])
}

func (s *Service) recordAudit(ctx context.Context, action, actor, target, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAudit(ctx, action, actor, target, reason); err != nil {
		s.logger.Error("Failed to record audit event",
			zap.String("action", action),
			zap.String("target", target),
			zap.Error(err),
		)
	}
}
