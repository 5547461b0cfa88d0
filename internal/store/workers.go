package store

import (
	"context"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/keys"
)

func (s *Store) SaveWorker(ctx context.Context, w *core.Worker) error {
	if err := s.setJSON(ctx, keys.Worker(w.ID), w); err != nil {
		return err
	}
	return s.indexAdd(ctx, keys.WorkerIndex(), w.ID)
}

func (s *Store) GetWorker(ctx context.Context, workerID string) (*core.Worker, error) {
	var w core.Worker
	if err := s.getJSON(ctx, keys.Worker(workerID), &w); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.ErrWorkerNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *Store) DeleteWorker(ctx context.Context, workerID string) error {
	if err := s.delete(ctx, keys.Worker(workerID)); err != nil {
		return err
	}
	return s.indexRemove(ctx, keys.WorkerIndex(), workerID)
}

func (s *Store) ListWorkers(ctx context.Context) ([]*core.Worker, error) {
	ids, err := s.indexMembers(ctx, keys.WorkerIndex())
	if err != nil {
		return nil, err
	}
	workers := make([]*core.Worker, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWorker(ctx, id)
		if err != nil {
			if errs.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func (s *Store) SaveRegistrationRequest(ctx context.Context, r *core.RegistrationRequest) error {
	if err := s.setJSON(ctx, keys.RegistrationRequest(r.WorkerID), r); err != nil {
		return err
	}
	return s.indexAdd(ctx, keys.RegistrationIndex(), r.WorkerID)
}

func (s *Store) GetRegistrationRequest(ctx context.Context, workerID string) (*core.RegistrationRequest, error) {
	var r core.RegistrationRequest
	if err := s.getJSON(ctx, keys.RegistrationRequest(workerID), &r); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) DeleteRegistrationRequest(ctx context.Context, workerID string) error {
	if err := s.delete(ctx, keys.RegistrationRequest(workerID)); err != nil {
		return err
	}
	return s.indexRemove(ctx, keys.RegistrationIndex(), workerID)
}

func (s *Store) ListRegistrationRequests(ctx context.Context) ([]*core.RegistrationRequest, error) {
	ids, err := s.indexMembers(ctx, keys.RegistrationIndex())
	if err != nil {
		return nil, err
	}
	out := make([]*core.RegistrationRequest, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRegistrationRequest(ctx, id)
		if err != nil {
			if errs.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) SaveRegionChangeRequest(ctx context.Context, r *core.RegionChangeRequest) error {
	if err := s.setJSON(ctx, keys.RegionChangeRequest(r.ID), r); err != nil {
		return err
	}
	return s.indexAdd(ctx, keys.RegionChangeIndex(), r.ID)
}

func (s *Store) GetRegionChangeRequest(ctx context.Context, requestID string) (*core.RegionChangeRequest, error) {
	var r core.RegionChangeRequest
	if err := s.getJSON(ctx, keys.RegionChangeRequest(requestID), &r); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRegionChangeRequests(ctx context.Context) ([]*core.RegionChangeRequest, error) {
	ids, err := s.indexMembers(ctx, keys.RegionChangeIndex())
	if err != nil {
		return nil, err
	}
	out := make([]*core.RegionChangeRequest, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRegionChangeRequest(ctx, id)
		if err != nil {
			if errs.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
