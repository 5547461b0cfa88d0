// Package agent is the regional worker runtime: it consumes commands
// from the fabric, schedules the checks its region is responsible for,
// and publishes result batches and heartbeats back.
package agent

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nestwatch/nestwatch/internal/checks"
	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"go.uber.org/zap"
)

const (
	scheduleTick  = 5 * time.Second
	flushInterval = 10 * time.Second
	jobQueueSize  = 1000
)

type scheduledService struct {
	cfg     *core.ServiceCheckConfig
	nextRun time.Time
}

type Agent struct {
	cfg     config.WorkerConfig
	fabric  *fabric.Fabric
	runners map[core.CheckType]checks.Runner
	logger  *zap.Logger

	mu       sync.Mutex
	region   string
	services map[string]*scheduledService

	results chan fabric.ResultEntry

	checksCompleted atomic.Int64
	totalPoints     atomicFloat
	periodPoints    atomicFloat

	batchSize int
	wg        sync.WaitGroup
	now       func() time.Time
}

func New(cfg config.WorkerConfig, batchSize int64, fb *fabric.Fabric, runners map[core.CheckType]checks.Runner, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:       cfg,
		fabric:    fb,
		runners:   runners,
		logger:    logger.With(zap.String("component", "agent"), zap.String("worker_id", cfg.ID)),
		region:    cfg.Region,
		services:  make(map[string]*scheduledService),
		results:   make(chan fabric.ResultEntry, jobQueueSize),
		batchSize: int(batchSize),
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Agent starting",
		zap.String("region", a.region),
		zap.Int("max_concurrent", a.cfg.MaxConcurrent),
	)

	jobs := make(chan *core.ServiceCheckConfig, jobQueueSize)

	for i := 0; i < a.cfg.MaxConcurrent; i++ {
		a.wg.Add(1)
		go func(id int) {
			defer a.wg.Done()
			a.runChecks(ctx, id, jobs)
		}(i)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.publishLoop(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.heartbeatLoop(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.fabric.ConsumeWorkerCommands(ctx, a.cfg.ID, a.handleCommand); err != nil && ctx.Err() == nil {
			a.logger.Error("Command consumer exited", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(scheduleTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			a.wg.Wait()
			a.logger.Info("Agent stopped")
			return ctx.Err()
		case <-ticker.C:
			a.scheduleDue(jobs)
		}
	}
}

// Region returns the region the agent currently serves.
func (a *Agent) Region() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.region
}

func (a *Agent) handleCommand(ctx context.Context, cmd fabric.Command) error {
	switch cmd.Type {
	case fabric.CmdMonitorService:
		a.upsertService(cmd.MonitorService)
	case fabric.CmdStopMonitoring:
		a.removeService(cmd.StopMonitoring.ServiceID)
	case fabric.CmdChangeRegion:
		if cmd.ChangeRegion.WorkerID != a.cfg.ID {
			return nil
		}
		a.changeRegion(cmd.ChangeRegion.NewRegion)
	case fabric.CmdUpdateWorker:
		if cmd.UpdateWorker.WorkerID != "" && cmd.UpdateWorker.WorkerID != a.cfg.ID {
			return nil
		}
		a.logger.Info("Worker update received", zap.String("config_version", cmd.UpdateWorker.ConfigVersion))
	case fabric.CmdRebuildWorker:
		if cmd.RebuildWorker.WorkerID != "" && cmd.RebuildWorker.WorkerID != a.cfg.ID {
			return nil
		}
		a.logger.Warn("Rebuild requested, clearing local state", zap.String("reason", cmd.RebuildWorker.Reason))
		a.mu.Lock()
		a.services = make(map[string]*scheduledService)
		a.mu.Unlock()
	case fabric.CmdResetPointsPeriod:
		a.periodPoints.Store(0)
		a.logger.Info("Period points reset", zap.String("reset_by", cmd.ResetPointsPeriod.ResetBy))
	case fabric.CmdUpdatePointsConfig:
		a.logger.Info("Points config updated")
	}
	return nil
}

func (a *Agent) upsertService(cfg *core.ServiceCheckConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.services[cfg.ServiceID]; ok {
		existing.cfg = cfg
		return
	}
	a.services[cfg.ServiceID] = &scheduledService{cfg: cfg, nextRun: a.now()}
	a.logger.Info("Service scheduled",
		zap.String("service_id", cfg.ServiceID),
		zap.String("type", string(cfg.Type)),
		zap.Int("interval_seconds", cfg.Interval),
	)
}

func (a *Agent) removeService(serviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.services[serviceID]; ok {
		delete(a.services, serviceID)
		a.logger.Info("Service unscheduled", zap.String("service_id", serviceID))
	}
}

func (a *Agent) changeRegion(newRegion string) {
	a.mu.Lock()
	old := a.region
	a.region = newRegion
	a.mu.Unlock()
	a.logger.Info("Region changed",
		zap.String("old_region", old),
		zap.String("new_region", newRegion),
	)
}

// scheduleDue enqueues every service whose nextRun has passed and whose
// config names this agent's region. Configs for other regions stay
// stored; a later change_region may make them relevant.
func (a *Agent) scheduleDue(jobs chan<- *core.ServiceCheckConfig) {
	now := a.now()

	a.mu.Lock()
	region := a.region
	due := make([]*core.ServiceCheckConfig, 0)
	for _, s := range a.services {
		if now.Before(s.nextRun) {
			continue
		}
		if !containsRegion(s.cfg.Regions, region) {
			continue
		}
		if _, ok := a.runners[s.cfg.Type]; !ok {
			continue
		}
		due = append(due, s.cfg)
		s.nextRun = now.Add(time.Duration(s.cfg.Interval) * time.Second)
	}
	a.mu.Unlock()

	for _, cfg := range due {
		select {
		case jobs <- cfg:
		default:
			a.logger.Warn("Job queue full, dropping check", zap.String("service_id", cfg.ServiceID))
		}
	}
}

func (a *Agent) runChecks(ctx context.Context, id int, jobs <-chan *core.ServiceCheckConfig) {
	log := a.logger.With(zap.Int("runner", id))
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-jobs:
			if !ok {
				return
			}
			runner := a.runners[cfg.Type]
			outcome := runner.Check(ctx, cfg)
			a.checksCompleted.Add(1)

			log.Debug("Check completed",
				zap.String("service_id", cfg.ServiceID),
				zap.String("status", string(outcome.Status)),
				zap.Int("response_time_ms", outcome.ResponseTimeMs),
			)

			entry := fabric.ResultEntry{
				ServiceID:      cfg.ServiceID,
				NestID:         cfg.NestID,
				Status:         outcome.Status,
				ResponseTimeMs: outcome.ResponseTimeMs,
				StatusCode:     outcome.StatusCode,
				Error:          outcome.Error,
			}
			select {
			case a.results <- entry:
			default:
				log.Warn("Result buffer full, dropping result", zap.String("service_id", cfg.ServiceID))
			}
		}
	}
}

// publishLoop batches results and flushes on size or interval. A final
// flush runs at shutdown so in-flight results are not lost.
func (a *Agent) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]fabric.ResultEntry, 0, a.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		b := fabric.ResultBatch{
			WorkerID:  a.cfg.ID,
			Region:    a.Region(),
			Timestamp: a.now().UnixMilli(),
			Checks:    batch,
		}
		// Shutdown flush needs a context that still works.
		pubCtx := ctx
		if pubCtx.Err() != nil {
			var cancel context.CancelFunc
			pubCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := a.fabric.PublishResults(pubCtx, b); err != nil {
			a.logger.Error("Failed to publish results", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]fabric.ResultEntry, 0, a.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case entry := <-a.results:
			batch = append(batch, entry)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := fabric.Heartbeat{
				WorkerID:  a.cfg.ID,
				Timestamp: a.now().UnixMilli(),
				Metrics: core.HeartbeatMetrics{
					Region:          a.Region(),
					TotalPoints:     a.totalPoints.Load(),
					PeriodPoints:    a.periodPoints.Load(),
					ChecksCompleted: a.checksCompleted.Load(),
				},
			}
			if err := a.fabric.PublishHeartbeat(ctx, hb); err != nil {
				a.logger.Warn("Failed to publish heartbeat", zap.Error(err))
			}
		}
	}
}

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

func containsRegion(regions []string, region string) bool {
	for _, r := range regions {
		if r == region {
			return true
		}
	}
	return false
}
