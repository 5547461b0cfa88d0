package store

import (
	"context"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/keys"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/redis/go-redis/v9"
)

func (s *Store) SaveServiceConfig(ctx context.Context, cfg *core.ServiceCheckConfig) error {
	if err := s.setJSON(ctx, keys.ServiceConfig(cfg.ServiceID), cfg); err != nil {
		return err
	}
	return s.indexAdd(ctx, keys.ServiceConfigIndex(), cfg.ServiceID)
}

func (s *Store) GetServiceConfig(ctx context.Context, serviceID string) (*core.ServiceCheckConfig, error) {
	var cfg core.ServiceCheckConfig
	if err := s.getJSON(ctx, keys.ServiceConfig(serviceID), &cfg); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.ErrServiceNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) DeleteServiceConfig(ctx context.Context, serviceID string) error {
	if err := s.delete(ctx, keys.ServiceConfig(serviceID)); err != nil {
		return err
	}
	return s.indexRemove(ctx, keys.ServiceConfigIndex(), serviceID)
}

func (s *Store) ListServiceConfigs(ctx context.Context) ([]*core.ServiceCheckConfig, error) {
	ids, err := s.indexMembers(ctx, keys.ServiceConfigIndex())
	if err != nil {
		return nil, err
	}
	out := make([]*core.ServiceCheckConfig, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetServiceConfig(ctx, id)
		if err != nil {
			if errs.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *Store) SaveServiceStatus(ctx context.Context, status *core.ServiceStatus) error {
	return s.setJSON(ctx, keys.ServiceStatus(status.ServiceID), status)
}

func (s *Store) GetServiceStatus(ctx context.Context, serviceID string) (*core.ServiceStatus, error) {
	var status core.ServiceStatus
	if err := s.getJSON(ctx, keys.ServiceStatus(serviceID), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *Store) DeleteServiceStatus(ctx context.Context, serviceID string) error {
	return s.delete(ctx, keys.ServiceStatus(serviceID))
}

// SetMaintenance flags or clears a service's maintenance window.
func (s *Store) SetMaintenance(ctx context.Context, serviceID string, on bool) error {
	if !on {
		return s.delete(ctx, keys.Maintenance(serviceID))
	}
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "set", func(ctx context.Context) error {
		if err := s.rdb.Set(ctx, keys.Maintenance(serviceID), "1", 0).Err(); err != nil {
			return errs.Transient("redis", "set", err)
		}
		return nil
	})
}

func (s *Store) InMaintenance(ctx context.Context, serviceID string) (bool, error) {
	return resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "get",
		func(ctx context.Context) (bool, error) {
			_, err := s.rdb.Get(ctx, keys.Maintenance(serviceID)).Result()
			if err == redis.Nil {
				return false, nil
			}
			if err != nil {
				return false, errs.Transient("redis", "get", err)
			}
			return true, nil
		}, nil)
}
