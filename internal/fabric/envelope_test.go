package fabric

import (
	"testing"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
)

func validConfig() *core.ServiceCheckConfig {
	return &core.ServiceCheckConfig{
		ServiceID: "svc-1",
		NestID:    "nest-1",
		Type:      core.CheckHTTP,
		Target:    "https://example.com",
		Interval:  60,
		Regions:   []string{"us-east-1"},
		Strategy:  core.StrategyAllSelected,
	}
}

func TestCommand_EncodeDecodeRoundtrip(t *testing.T) {
	cmd := Command{
		Type:           CmdMonitorService,
		Timestamp:      1700000000000,
		MonitorService: validConfig(),
	}

	raw, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := DecodeCommand(raw)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if got.Type != CmdMonitorService || got.Timestamp != 1700000000000 {
		t.Errorf("envelope fields lost: %+v", got)
	}
	if got.MonitorService == nil || got.MonitorService.ServiceID != "svc-1" {
		t.Errorf("payload lost: %+v", got.MonitorService)
	}
}

func TestCommand_EncodeStampsTimestamp(t *testing.T) {
	cmd := Command{Type: CmdStopMonitoring, StopMonitoring: &StopMonitoringPayload{ServiceID: "svc-1"}}

	raw, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := DecodeCommand(raw)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if got.Timestamp <= 0 {
		t.Error("zero timestamp was not stamped at encode time")
	}
}

func TestDecodeCommand_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"unknown type", `{"command":"self_destruct","data":{},"timestamp":1}`},
		{"missing timestamp", `{"command":"rebuild_worker","data":{}}`},
		{"stop without service", `{"command":"stop_monitoring","data":{},"timestamp":1}`},
		{"change_region without target", `{"command":"change_region","data":{"old_region":"a"},"timestamp":1}`},
		{"monitor with bad type", `{"command":"monitor_service","data":{"service_id":"s","nest_id":"n","type":"icmp","target":"x","interval_seconds":60,"regions":["us-east-1"]},"timestamp":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.raw))
			if errs.KindOf(err) != errs.KindValidation {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestValidateCheckConfig_DefaultsStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy = ""
	if err := ValidateCheckConfig(cfg); err != nil {
		t.Fatalf("ValidateCheckConfig failed: %v", err)
	}
	if cfg.Strategy != core.StrategyAllSelected {
		t.Errorf("empty strategy defaulted to %q", cfg.Strategy)
	}
}

func TestValidateCheckConfig_Rejections(t *testing.T) {
	mutations := map[string]func(*core.ServiceCheckConfig){
		"empty service": func(c *core.ServiceCheckConfig) { c.ServiceID = "" },
		"empty nest":    func(c *core.ServiceCheckConfig) { c.NestID = "" },
		"empty target":  func(c *core.ServiceCheckConfig) { c.Target = "" },
		"zero interval": func(c *core.ServiceCheckConfig) { c.Interval = 0 },
		"no regions":    func(c *core.ServiceCheckConfig) { c.Regions = nil },
		"bad strategy":  func(c *core.ServiceCheckConfig) { c.Strategy = "nearest" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := ValidateCheckConfig(cfg); errs.KindOf(err) != errs.KindValidation {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestDecodeResultBatch(t *testing.T) {
	raw := []byte(`{
		"workerId": "worker-1",
		"region": "us-east-1",
		"timestamp": 1700000000000,
		"checks": [
			{"serviceId": "svc-1", "nestId": "nest-1", "status": "up", "responseTime": 87, "statusCode": 200},
			{"serviceId": "svc-2", "nestId": "nest-1", "status": "down", "responseTime": 0, "error": "connection refused"}
		]
	}`)

	batch, err := DecodeResultBatch(raw)
	if err != nil {
		t.Fatalf("DecodeResultBatch failed: %v", err)
	}

	results := batch.Results()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	first := results[0]
	if first.WorkerID != "worker-1" || first.RegionID != "us-east-1" || first.Timestamp != 1700000000000 {
		t.Errorf("batch fields not stamped onto result: %+v", first)
	}
	if first.ServiceID != "svc-1" || first.Status != core.StatusUp || first.ResponseTimeMs != 87 {
		t.Errorf("entry fields lost: %+v", first)
	}
	if results[1].Error != "connection refused" {
		t.Errorf("error field lost: %+v", results[1])
	}
}

func TestDecodeResultBatch_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing worker", `{"region":"us-east-1","timestamp":1,"checks":[]}`},
		{"missing region", `{"workerId":"w","timestamp":1,"checks":[]}`},
		{"missing timestamp", `{"workerId":"w","region":"us-east-1","checks":[]}`},
		{"entry without service", `{"workerId":"w","region":"us-east-1","timestamp":1,"checks":[{"status":"up"}]}`},
		{"entry with unknown status", `{"workerId":"w","region":"us-east-1","timestamp":1,"checks":[{"serviceId":"s","status":"flaky"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResultBatch([]byte(tt.raw))
			if errs.KindOf(err) != errs.KindValidation {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestDecodeHeartbeat(t *testing.T) {
	raw := []byte(`{"workerId":"worker-1","timestamp":1700000000000,"metrics":{"region":"us-east-1","total_points":12.5,"checks_completed":40}}`)

	hb, err := DecodeHeartbeat(raw)
	if err != nil {
		t.Fatalf("DecodeHeartbeat failed: %v", err)
	}
	if hb.WorkerID != "worker-1" || hb.Metrics.Region != "us-east-1" {
		t.Errorf("heartbeat fields lost: %+v", hb)
	}

	if _, err := DecodeHeartbeat([]byte(`{"timestamp":1}`)); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("want validation error for missing workerId, got %v", err)
	}
}
