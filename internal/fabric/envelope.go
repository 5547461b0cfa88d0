package fabric

import (
	"encoding/json"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
)

type CommandType string

const (
	CmdMonitorService     CommandType = "monitor_service"
	CmdStopMonitoring     CommandType = "stop_monitoring"
	CmdUpdateWorker       CommandType = "update_worker"
	CmdRebuildWorker      CommandType = "rebuild_worker"
	CmdResetPointsPeriod  CommandType = "reset_points_period"
	CmdChangeRegion       CommandType = "change_region"
	CmdUpdatePointsConfig CommandType = "update_points_config"
)

// Command is the closed tagged union pushed to workers. Exactly one
// payload field is set, matching Type. Commands are immutable once
// published.
type Command struct {
	Type      CommandType `json:"command"`
	Timestamp int64       `json:"timestamp"`

	MonitorService     *core.ServiceCheckConfig  `json:"-"`
	StopMonitoring     *StopMonitoringPayload    `json:"-"`
	UpdateWorker       *UpdateWorkerPayload      `json:"-"`
	RebuildWorker      *RebuildWorkerPayload     `json:"-"`
	ResetPointsPeriod  *ResetPointsPeriodPayload `json:"-"`
	ChangeRegion       *ChangeRegionPayload      `json:"-"`
	UpdatePointsConfig *core.PointsConfig        `json:"-"`
}

type StopMonitoringPayload struct {
	ServiceID string `json:"service_id"`
}

type UpdateWorkerPayload struct {
	WorkerID      string             `json:"worker_id,omitempty"`
	Capabilities  *core.Capabilities `json:"capabilities,omitempty"`
	ConfigVersion string             `json:"config_version,omitempty"`
}

type RebuildWorkerPayload struct {
	WorkerID string `json:"worker_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type ResetPointsPeriodPayload struct {
	ResetBy string `json:"reset_by"`
}

type ChangeRegionPayload struct {
	WorkerID  string `json:"worker_id"`
	OldRegion string `json:"old_region"`
	NewRegion string `json:"new_region"`
}

// envelope is the wire shape: {"command": ..., "data": ..., "timestamp": ...}.
type envelope struct {
	Command   CommandType     `json:"command"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func (c Command) payload() any {
	switch c.Type {
	case CmdMonitorService:
		return c.MonitorService
	case CmdStopMonitoring:
		return c.StopMonitoring
	case CmdUpdateWorker:
		return c.UpdateWorker
	case CmdRebuildWorker:
		return c.RebuildWorker
	case CmdResetPointsPeriod:
		return c.ResetPointsPeriod
	case CmdChangeRegion:
		return c.ChangeRegion
	case CmdUpdatePointsConfig:
		return c.UpdatePointsConfig
	}
	return nil
}

func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c.payload())
	if err != nil {
		return nil, err
	}
	ts := c.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return json.Marshal(envelope{Command: c.Type, Data: data, Timestamp: ts})
}

// DecodeCommand rejects unknown or malformed commands with a
// ValidationError rather than silently ignoring them.
func DecodeCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, errs.Validation("malformed command envelope: %v", err)
	}
	if env.Timestamp <= 0 {
		return Command{}, errs.Validation("command missing timestamp")
	}

	cmd := Command{Type: env.Command, Timestamp: env.Timestamp}
	var err error
	switch env.Command {
	case CmdMonitorService:
		cfg := &core.ServiceCheckConfig{}
		if err = json.Unmarshal(env.Data, cfg); err == nil {
			err = ValidateCheckConfig(cfg)
		}
		cmd.MonitorService = cfg
	case CmdStopMonitoring:
		p := &StopMonitoringPayload{}
		if err = json.Unmarshal(env.Data, p); err == nil && p.ServiceID == "" {
			err = errs.Validation("stop_monitoring missing service_id")
		}
		cmd.StopMonitoring = p
	case CmdUpdateWorker:
		p := &UpdateWorkerPayload{}
		err = json.Unmarshal(env.Data, p)
		cmd.UpdateWorker = p
	case CmdRebuildWorker:
		p := &RebuildWorkerPayload{}
		err = json.Unmarshal(env.Data, p)
		cmd.RebuildWorker = p
	case CmdResetPointsPeriod:
		p := &ResetPointsPeriodPayload{}
		err = json.Unmarshal(env.Data, p)
		cmd.ResetPointsPeriod = p
	case CmdChangeRegion:
		p := &ChangeRegionPayload{}
		if err = json.Unmarshal(env.Data, p); err == nil {
			if p.WorkerID == "" || p.NewRegion == "" {
				err = errs.Validation("change_region missing worker_id or new_region")
			}
		}
		cmd.ChangeRegion = p
	case CmdUpdatePointsConfig:
		p := &core.PointsConfig{}
		err = json.Unmarshal(env.Data, p)
		cmd.UpdatePointsConfig = p
	default:
		return Command{}, errs.Validation("unknown command type %q", env.Command)
	}

	if err != nil {
		if errs.KindOf(err) == errs.KindValidation {
			return Command{}, err
		}
		return Command{}, errs.Validation("malformed %s payload: %v", env.Command, err)
	}
	return cmd, nil
}

// ValidateCheckConfig normalizes and validates a monitoring config.
// An empty strategy defaults to all-selected.
func ValidateCheckConfig(cfg *core.ServiceCheckConfig) error {
	if cfg.ServiceID == "" || cfg.NestID == "" {
		return errs.Validation("monitor_service missing service_id or nest_id")
	}
	if !core.KnownCheckTypes[cfg.Type] {
		return errs.Validation("unknown check type %q", cfg.Type)
	}
	if cfg.Target == "" {
		return errs.Validation("monitor_service missing target")
	}
	if cfg.Interval <= 0 {
		return errs.Validation("monitor_service interval must be positive")
	}
	if len(cfg.Regions) == 0 {
		return errs.Validation("monitor_service needs at least one region")
	}
	switch cfg.Strategy {
	case core.StrategyClosest, core.StrategyAllSelected, core.StrategyRoundRobin, core.StrategyFailover:
	case "":
		cfg.Strategy = core.StrategyAllSelected
	default:
		return errs.Validation("unknown strategy %q", cfg.Strategy)
	}
	return nil
}

// ResultBatch is what a worker publishes after a check cycle:
// {workerId, region, timestamp, checks: [...]}.
type ResultBatch struct {
	WorkerID  string        `json:"workerId"`
	Region    string        `json:"region"`
	Timestamp int64         `json:"timestamp"`
	Checks    []ResultEntry `json:"checks"`
}

type ResultEntry struct {
	ServiceID      string           `json:"serviceId"`
	NestID         string           `json:"nestId"`
	Status         core.CheckStatus `json:"status"`
	ResponseTimeMs int              `json:"responseTime"`
	StatusCode     int              `json:"statusCode,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func (b ResultBatch) Encode() ([]byte, error) {
	return json.Marshal(b)
}

func DecodeResultBatch(raw []byte) (ResultBatch, error) {
	var b ResultBatch
	if err := json.Unmarshal(raw, &b); err != nil {
		return ResultBatch{}, errs.Validation("malformed result batch: %v", err)
	}
	if b.WorkerID == "" || b.Region == "" {
		return ResultBatch{}, errs.Validation("result batch missing workerId or region")
	}
	if b.Timestamp <= 0 {
		return ResultBatch{}, errs.Validation("result batch missing timestamp")
	}
	for i, c := range b.Checks {
		if c.ServiceID == "" {
			return ResultBatch{}, errs.Validation("result %d missing serviceId", i)
		}
		switch c.Status {
		case core.StatusUp, core.StatusDown, core.StatusTimeout, core.StatusError:
		default:
			return ResultBatch{}, errs.Validation("result %d has unknown status %q", i, c.Status)
		}
	}
	return b, nil
}

// Results expands the batch into per-service CheckResults stamped with
// the batch timestamp.
func (b ResultBatch) Results() []core.CheckResult {
	out := make([]core.CheckResult, 0, len(b.Checks))
	for _, c := range b.Checks {
		out = append(out, core.CheckResult{
			ServiceID:      c.ServiceID,
			NestID:         c.NestID,
			RegionID:       b.Region,
			WorkerID:       b.WorkerID,
			Status:         c.Status,
			ResponseTimeMs: c.ResponseTimeMs,
			StatusCode:     c.StatusCode,
			Timestamp:      b.Timestamp,
			Error:          c.Error,
		})
	}
	return out
}

// Heartbeat rides its own stream so a slow result consumer cannot
// starve liveness.
type Heartbeat struct {
	WorkerID  string                `json:"workerId"`
	Timestamp int64                 `json:"timestamp"`
	Metrics   core.HeartbeatMetrics `json:"metrics"`
}

func (h Heartbeat) Encode() ([]byte, error) {
	return json.Marshal(h)
}

func DecodeHeartbeat(raw []byte) (Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(raw, &h); err != nil {
		return Heartbeat{}, errs.Validation("malformed heartbeat: %v", err)
	}
	if h.WorkerID == "" {
		return Heartbeat{}, errs.Validation("heartbeat missing workerId")
	}
	return h, nil
}
