package store

import (
	"context"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/keys"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/redis/go-redis/v9"
)

func (s *Store) SavePointsConfig(ctx context.Context, cfg *core.PointsConfig) error {
	return s.setJSON(ctx, keys.PointsConfig(), cfg)
}

// GetPointsConfig falls back to the built-in defaults when no config
// has been stored yet.
func (s *Store) GetPointsConfig(ctx context.Context) (*core.PointsConfig, error) {
	var cfg core.PointsConfig
	if err := s.getJSON(ctx, keys.PointsConfig(), &cfg); err != nil {
		if errs.IsNotFound(err) {
			def := core.DefaultPointsConfig()
			return &def, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// AddPoints bumps both leaderboards. Delta may be negative (penalty).
func (s *Store) AddPoints(ctx context.Context, workerID string, delta float64) error {
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "zincrby", func(ctx context.Context) error {
		pipe := s.rdb.Pipeline()
		pipe.ZIncrBy(ctx, keys.Leaderboard(), delta, workerID)
		pipe.ZIncrBy(ctx, keys.PeriodLeaderboard(), delta, workerID)
		if _, err := pipe.Exec(ctx); err != nil {
			return errs.Transient("redis", "zincrby", err)
		}
		return nil
	})
}

type LeaderboardEntry struct {
	WorkerID string  `json:"worker_id"`
	Points   float64 `json:"points"`
}

func (s *Store) Leaderboard(ctx context.Context, period bool, limit int64) ([]LeaderboardEntry, error) {
	key := keys.Leaderboard()
	if period {
		key = keys.PeriodLeaderboard()
	}
	return resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "zrevrange",
		func(ctx context.Context) ([]LeaderboardEntry, error) {
			zs, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
			if err != nil {
				return nil, errs.Transient("redis", "zrevrange", err)
			}
			out := make([]LeaderboardEntry, 0, len(zs))
			for _, z := range zs {
				id, _ := z.Member.(string)
				out = append(out, LeaderboardEntry{WorkerID: id, Points: z.Score})
			}
			return out, nil
		}, nil)
}

func (s *Store) WorkerPoints(ctx context.Context, workerID string) (total, period float64, err error) {
	type pair struct{ total, period float64 }
	p, err := resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "zscore",
		func(ctx context.Context) (pair, error) {
			t, err := s.rdb.ZScore(ctx, keys.Leaderboard(), workerID).Result()
			if err != nil && err != redis.Nil {
				return pair{}, errs.Transient("redis", "zscore", err)
			}
			cp, err := s.rdb.ZScore(ctx, keys.PeriodLeaderboard(), workerID).Result()
			if err != nil && err != redis.Nil {
				return pair{}, errs.Transient("redis", "zscore", err)
			}
			return pair{total: t, period: cp}, nil
		}, nil)
	if err != nil {
		return 0, 0, err
	}
	return p.total, p.period, nil
}

// ResetPeriodPoints drops the period leaderboard; lifetime totals stay.
func (s *Store) ResetPeriodPoints(ctx context.Context) error {
	return s.delete(ctx, keys.PeriodLeaderboard())
}

// CheckStats are the rolling per-worker counters the scoring
// multipliers derive from.
type CheckStats struct {
	Total        int64
	Failed       int64
	Streak       int64
	FirstCheckAt int64
}

// BumpCheckStats records one completed check and returns the updated
// counters. A failure resets the success streak.
func (s *Store) BumpCheckStats(ctx context.Context, workerID string, success bool, nowMs int64) (CheckStats, error) {
	key := keys.PointsStats(workerID)
	return resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "hincrby",
		func(ctx context.Context) (CheckStats, error) {
			pipe := s.rdb.Pipeline()
			total := pipe.HIncrBy(ctx, key, "total", 1)
			var streak *redis.IntCmd
			if success {
				streak = pipe.HIncrBy(ctx, key, "streak", 1)
			} else {
				pipe.HSet(ctx, key, "streak", 0)
				pipe.HIncrBy(ctx, key, "failed", 1)
			}
			pipe.HSetNX(ctx, key, "first_check_at", nowMs)
			failed := pipe.HGet(ctx, key, "failed")
			first := pipe.HGet(ctx, key, "first_check_at")
			if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
				return CheckStats{}, errs.Transient("redis", "hincrby", err)
			}

			stats := CheckStats{Total: total.Val()}
			if streak != nil {
				stats.Streak = streak.Val()
			}
			if v, err := failed.Int64(); err == nil {
				stats.Failed = v
			}
			if v, err := first.Int64(); err == nil {
				stats.FirstCheckAt = v
			}
			return stats, nil
		}, nil)
}

// ResetCheckStats is called on period reset so volume and streak
// multipliers start over with the new period.
func (s *Store) ResetCheckStats(ctx context.Context, workerIDs []string) error {
	ks := make([]string, 0, len(workerIDs))
	for _, id := range workerIDs {
		ks = append(ks, keys.PointsStats(id))
	}
	if len(ks) == 0 {
		return nil
	}
	return s.delete(ctx, ks...)
}
