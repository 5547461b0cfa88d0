// Package points turns accepted check results into worker reputation:
// per-type base points scaled by earned multipliers, plus bonuses,
// minus a fractional penalty for failed checks.
package points

import (
	"context"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/nestwatch/nestwatch/internal/store"
	"go.uber.org/zap"
)

// Multiplier thresholds. Streak and volume counters reset with the
// period, so the multipliers must be re-earned after each reset.
const (
	streakMultiplierMin       = 50
	volumeMultiplierMin       = 500
	reliabilityMinChecks      = 100
	reliabilityMaxFailureRate = 0.01
)

type Store interface {
	GetPointsConfig(ctx context.Context) (*core.PointsConfig, error)
	SavePointsConfig(ctx context.Context, cfg *core.PointsConfig) error
	AddPoints(ctx context.Context, workerID string, delta float64) error
	WorkerPoints(ctx context.Context, workerID string) (total, period float64, err error)
	BumpCheckStats(ctx context.Context, workerID string, success bool, nowMs int64) (store.CheckStats, error)
	ResetCheckStats(ctx context.Context, workerIDs []string) error
	Leaderboard(ctx context.Context, period bool, limit int64) ([]store.LeaderboardEntry, error)
	ResetPeriodPoints(ctx context.Context) error
	ListWorkers(ctx context.Context) ([]*core.Worker, error)
}

type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd fabric.Command) error
}

type Metrics interface {
	RecordPoints(checkType, kind string)
}

type Service struct {
	store     Store
	publisher CommandPublisher
	audit     resilience.AuditSink
	metrics   Metrics
	logger    *zap.Logger
}

func NewService(store Store, publisher CommandPublisher, audit resilience.AuditSink, metrics Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		audit:     audit,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "points")),
	}
}

// OnResultApplied accrues points for one accepted result. Scoring is
// best-effort: a failure here is logged and never propagated, so a
// degraded points path cannot block status aggregation.
func (s *Service) OnResultApplied(ctx context.Context, cfg *core.ServiceCheckConfig, result core.CheckResult) {
	success := result.Status == core.StatusUp

	stats, err := s.store.BumpCheckStats(ctx, result.WorkerID, success, result.Timestamp)
	if err != nil {
		s.logger.Warn("Failed to update check stats", zap.String("worker_id", result.WorkerID), zap.Error(err))
		return
	}
	pcfg, err := s.store.GetPointsConfig(ctx)
	if err != nil {
		s.logger.Warn("Failed to load points config", zap.Error(err))
		return
	}

	var delta float64
	kind := "award"
	if success {
		delta = s.score(ctx, pcfg, cfg, result, stats)
	} else {
		delta = -pcfg.FailedCheckPenalty
		kind = "penalty"
	}
	if delta == 0 {
		return
	}

	if err := s.store.AddPoints(ctx, result.WorkerID, delta); err != nil {
		s.logger.Warn("Failed to accrue points",
			zap.String("worker_id", result.WorkerID),
			zap.Float64("delta", delta),
			zap.Error(err),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPoints(string(cfg.Type), kind)
	}
	s.logger.Debug("Points accrued",
		zap.String("worker_id", result.WorkerID),
		zap.String("check_type", string(cfg.Type)),
		zap.Float64("delta", delta),
	)
}

// score computes the award for a successful check. The tier multiplier
// uses the worker's points as of now, so a tier change affects accrual
// from the next check on, never past awards.
func (s *Service) score(ctx context.Context, pcfg *core.PointsConfig, cfg *core.ServiceCheckConfig, result core.CheckResult, stats store.CheckStats) float64 {
	base, ok := pcfg.CheckPoints[string(cfg.Type)]
	if !ok {
		base = 1.0
	}

	mult := 1.0
	total, _, err := s.store.WorkerPoints(ctx, result.WorkerID)
	if err != nil {
		s.logger.Warn("Failed to read worker points, skipping tier multiplier",
			zap.String("worker_id", result.WorkerID), zap.Error(err))
	} else if tier := pcfg.TierFor(total); tier != nil {
		mult = tier.Multiplier
	}

	if stats.Streak >= streakMultiplierMin {
		mult *= pcfg.UptimeMultiplier
	}
	if stats.Total >= volumeMultiplierMin {
		mult *= pcfg.VolumeMultiplier
	}
	if stats.Total >= reliabilityMinChecks &&
		float64(stats.Failed)/float64(stats.Total) <= reliabilityMaxFailureRate {
		mult *= pcfg.ReliabilityMultiplier
	}

	award := base * mult

	if pcfg.FastResponseThresholdMs > 0 && result.ResponseTimeMs > 0 &&
		result.ResponseTimeMs < pcfg.FastResponseThresholdMs {
		award += pcfg.FastResponseBonus
	}
	// One-shot bonuses fire on the check that crosses the threshold.
	if pcfg.VolumeBonusThreshold > 0 && stats.Total == pcfg.VolumeBonusThreshold {
		award += pcfg.VolumeBonus
	}
	if pcfg.LongUptimeHours > 0 && cfg.Interval > 0 {
		threshold := int64(pcfg.LongUptimeHours) * 3600
		streakSec := stats.Streak * int64(cfg.Interval)
		if streakSec >= threshold && streakSec-int64(cfg.Interval) < threshold {
			award += pcfg.LongUptimeBonus
		}
	}
	return award
}

// Standing is the per-worker reputation view.
type Standing struct {
	WorkerID     string               `json:"worker_id"`
	TotalPoints  float64              `json:"total_points"`
	PeriodPoints float64              `json:"period_points"`
	Tier         *core.ReputationTier `json:"tier,omitempty"`
}

func (s *Service) Standing(ctx context.Context, workerID string) (*Standing, error) {
	total, period, err := s.store.WorkerPoints(ctx, workerID)
	if err != nil {
		return nil, err
	}
	pcfg, err := s.store.GetPointsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Standing{
		WorkerID:     workerID,
		TotalPoints:  total,
		PeriodPoints: period,
		Tier:         pcfg.TierFor(total),
	}, nil
}

func (s *Service) Leaderboard(ctx context.Context, period bool, limit int64) ([]store.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 25
	}
	return s.store.Leaderboard(ctx, period, limit)
}

func (s *Service) Config(ctx context.Context) (*core.PointsConfig, error) {
	return s.store.GetPointsConfig(ctx)
}

// UpdateConfig persists a new scoring config and broadcasts it so the
// fleet's local accounting stays in sync.
func (s *Service) UpdateConfig(ctx context.Context, cfg *core.PointsConfig, updatedBy string) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if err := s.store.SavePointsConfig(ctx, cfg); err != nil {
		return err
	}
	if err := s.publisher.PublishCommand(ctx, fabric.Command{
		Type:               fabric.CmdUpdatePointsConfig,
		UpdatePointsConfig: cfg,
	}); err != nil {
		return err
	}

	s.recordAudit(ctx, "points_config_updated", updatedBy, "fleet", "")
	s.logger.Info("Points config updated", zap.String("updated_by", updatedBy))
	return nil
}

// ResetPeriod zeroes period points fleet-wide. Lifetime totals and
// tiers are untouched. The broadcast tells workers to reset their local
// period counters; the server-side leaderboard and counters are reset
// here regardless of who is listening.
func (s *Service) ResetPeriod(ctx context.Context, resetBy string) error {
	if err := s.publisher.PublishCommand(ctx, fabric.Command{
		Type:              fabric.CmdResetPointsPeriod,
		ResetPointsPeriod: &fabric.ResetPointsPeriodPayload{ResetBy: resetBy},
	}); err != nil {
		return err
	}
	if err := s.store.ResetPeriodPoints(ctx); err != nil {
		return err
	}

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		s.logger.Warn("Failed to list workers for stats reset", zap.Error(err))
	} else {
		ids := make([]string, 0, len(workers))
		for _, w := range workers {
			ids = append(ids, w.ID)
		}
		if err := s.store.ResetCheckStats(ctx, ids); err != nil {
			s.logger.Warn("Failed to reset check stats", zap.Error(err))
		}
	}

	s.recordAudit(ctx, "points_period_reset", resetBy, "fleet", "")
	s.logger.Info("Points period reset", zap.String("reset_by", resetBy))
	return nil
}

func validateConfig(cfg *core.PointsConfig) error {
	if cfg == nil {
		return errs.Validation("points config is required")
	}
	if len(cfg.CheckPoints) == 0 {
		return errs.Validation("check_points must not be empty")
	}
	for t, p := range cfg.CheckPoints {
		if !core.KnownCheckTypes[core.CheckType(t)] {
			return errs.Validation("unknown check type %q in check_points", t)
		}
		if p < 0 {
			return errs.Validation("check_points[%s] must not be negative", t)
		}
	}
	if cfg.FailedCheckPenalty < 0 {
		return errs.Validation("failed_check_penalty must not be negative")
	}
	if len(cfg.Tiers) == 0 {
		return errs.Validation("at least one reputation tier is required")
	}
	for i, t := range cfg.Tiers {
		if t.Name == "" {
			return errs.Validation("tier %d missing name", i)
		}
		if t.Multiplier <= 0 {
			return errs.Validation("tier %q multiplier must be positive", t.Name)
		}
		if t.MaxPoints >= 0 && t.MaxPoints < t.MinPoints {
			return errs.Validation("tier %q has max_points below min_points", t.Name)
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, actor, target, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAudit(ctx, action, actor, target, reason); err != nil {
		s.logger.Error("Failed to record audit event", zap.String("action", action), zap.Error(err))
	}
}
