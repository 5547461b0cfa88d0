// Package incidents keeps a relational history of sustained outages.
// It is driven entirely by status transitions: the aggregation engine
// signals state changes, this service opens, escalates and resolves
// incident rows.
package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/db"
	"github.com/nestwatch/nestwatch/internal/errs"
	"go.uber.org/zap"
)

type Repository interface {
	CreateIncident(ctx context.Context, inc *db.Incident) error
	GetActiveIncident(ctx context.Context, serviceID string) (*db.Incident, error)
	UpdateIncident(ctx context.Context, inc *db.Incident) error
	GetIncident(ctx context.Context, incidentID string) (*db.Incident, error)
	ListIncidents(ctx context.Context, nestID string, limit, offset int) ([]*db.Incident, error)
	CountOpenIncidents(ctx context.Context, nestID string) (int, error)
}

type Metrics interface {
	RecordIncidentsOpen(tenantID string, n int)
}

type Service struct {
	repo    Repository
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo Repository, metrics Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "incidents")),
		now:     time.Now,
	}
}

// OnTransition reacts to one overall-status change. Incident writes are
// best-effort: history must never block the status pipeline, so errors
// are logged and swallowed here.
func (s *Service) OnTransition(ctx context.Context, cfg *core.ServiceCheckConfig, status *core.ServiceStatus, from, to core.ServiceState) {
	switch to {
	case core.StateDown, core.StateDegraded:
		s.openOrEscalate(ctx, cfg, status, to)
	case core.StateUp, core.StateMaintenance:
		s.resolve(ctx, cfg, to)
	}
	s.refreshGauge(ctx, cfg.NestID)
}

func (s *Service) openOrEscalate(ctx context.Context, cfg *core.ServiceCheckConfig, status *core.ServiceStatus, to core.ServiceState) {
	active, err := s.repo.GetActiveIncident(ctx, cfg.ServiceID)
	if err != nil {
		s.logger.Error("Failed to look up active incident", zap.String("service_id", cfg.ServiceID), zap.Error(err))
		return
	}

	if active == nil {
		inc := &db.Incident{
			ID:             uuid.New().String(),
			ServiceID:      cfg.ServiceID,
			NestID:         cfg.NestID,
			Severity:       severityFor(to),
			StartedAt:      s.now(),
			AffectedChecks: 1,
			Details:        incidentDetails(status),
		}
		if err := s.repo.CreateIncident(ctx, inc); err != nil {
			s.logger.Error("Failed to create incident", zap.String("service_id", cfg.ServiceID), zap.Error(err))
			return
		}
		s.logger.Info("Incident opened",
			zap.String("incident_id", inc.ID),
			zap.String("service_id", cfg.ServiceID),
			zap.String("severity", inc.Severity),
		)
		return
	}

	// degraded -> down escalates; down -> degraded keeps critical.
	active.AffectedChecks++
	if to == core.StateDown && active.Severity != "critical" {
		active.Severity = "critical"
		s.logger.Info("Incident escalated",
			zap.String("incident_id", active.ID),
			zap.String("service_id", cfg.ServiceID),
		)
	}
	active.Details = incidentDetails(status)
	if err := s.repo.UpdateIncident(ctx, active); err != nil {
		s.logger.Error("Failed to update incident", zap.String("incident_id", active.ID), zap.Error(err))
	}
}

func (s *Service) resolve(ctx context.Context, cfg *core.ServiceCheckConfig, to core.ServiceState) {
	active, err := s.repo.GetActiveIncident(ctx, cfg.ServiceID)
	if err != nil {
		s.logger.Error("Failed to look up active incident", zap.String("service_id", cfg.ServiceID), zap.Error(err))
		return
	}
	if active == nil {
		return
	}

	now := s.now()
	active.ResolvedAt = &now
	if active.Details == nil {
		active.Details = db.JSONB{}
	}
	active.Details["resolution"] = string(to)
	active.Details["downtime_minutes"] = int(now.Sub(active.StartedAt).Minutes())
	if err := s.repo.UpdateIncident(ctx, active); err != nil {
		s.logger.Error("Failed to resolve incident", zap.String("incident_id", active.ID), zap.Error(err))
		return
	}
	s.logger.Info("Incident resolved",
		zap.String("incident_id", active.ID),
		zap.String("service_id", cfg.ServiceID),
		zap.Duration("duration", now.Sub(active.StartedAt)),
	)
}

// Acknowledge marks an open incident as seen by an operator. Double
// acknowledgement is rejected.
func (s *Service) Acknowledge(ctx context.Context, incidentID, ackBy string) error {
	inc, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return errs.NotFound("incident %s not found", incidentID)
	}
	if inc.AcknowledgedAt != nil {
		return errs.Validation("incident already acknowledged by %s", *inc.AcknowledgedBy)
	}

	now := s.now()
	inc.AcknowledgedAt = &now
	inc.AcknowledgedBy = &ackBy
	if err := s.repo.UpdateIncident(ctx, inc); err != nil {
		return fmt.Errorf("failed to acknowledge incident: %w", err)
	}

	s.logger.Info("Incident acknowledged",
		zap.String("incident_id", incidentID),
		zap.String("acknowledged_by", ackBy),
	)
	return nil
}

func (s *Service) List(ctx context.Context, nestID string, limit, offset int) ([]*db.Incident, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListIncidents(ctx, nestID, limit, offset)
}

func (s *Service) refreshGauge(ctx context.Context, nestID string) {
	if s.metrics == nil {
		return
	}
	n, err := s.repo.CountOpenIncidents(ctx, nestID)
	if err != nil {
		return
	}
	s.metrics.RecordIncidentsOpen(nestID, n)
}

func severityFor(state core.ServiceState) string {
	if state == core.StateDown {
		return "critical"
	}
	return "warning"
}

func incidentDetails(status *core.ServiceStatus) db.JSONB {
	details := db.JSONB{"overall_status": string(status.OverallStatus)}
	regions := map[string]string{}
	for _, r := range status.Regions {
		if r.Status != core.StatusUp {
			regions[r.RegionID] = string(r.Status)
		}
	}
	if len(regions) > 0 {
		details["failing_regions"] = regions
	}
	return details
}
