package core

type CheckType string

const (
	CheckHTTP CheckType = "http"
	CheckTCP  CheckType = "tcp"
	CheckPing CheckType = "ping"
	CheckDNS  CheckType = "dns"
)

// KnownCheckTypes is the closed set both sides of the protocol agree on.
var KnownCheckTypes = map[CheckType]bool{
	CheckHTTP: true,
	CheckTCP:  true,
	CheckPing: true,
	CheckDNS:  true,
}

type Strategy string

const (
	StrategyClosest     Strategy = "closest"
	StrategyAllSelected Strategy = "all-selected"
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyFailover    Strategy = "failover"
)

// ServiceCheckConfig is owned by the control plane and pushed to
// workers as monitor_service commands. Workers never mutate it.
type ServiceCheckConfig struct {
	ServiceID string    `json:"service_id"`
	NestID    string    `json:"nest_id"`
	Name      string    `json:"name,omitempty"`
	Type      CheckType `json:"type"`
	Target    string    `json:"target"`
	Interval  int       `json:"interval_seconds"`
	Timeout   int       `json:"timeout_seconds,omitempty"`
	Regions   []string  `json:"regions"`
	Strategy  Strategy  `json:"strategy"`

	// HTTP specifics
	Method              string            `json:"method,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	ExpectedStatusCodes []int             `json:"expected_status_codes,omitempty"`

	// DNS specifics
	RecordType string `json:"record_type,omitempty"`
}

type CheckStatus string

const (
	StatusUp      CheckStatus = "up"
	StatusDown    CheckStatus = "down"
	StatusTimeout CheckStatus = "timeout"
	StatusError   CheckStatus = "error"

	// StatusUnknown never appears in a worker result; it marks a
	// region slot with no fresh data (never checked, or swept stale).
	StatusUnknown CheckStatus = "unknown"
)

// CheckResult is produced only by workers and consumed only by the
// aggregation engine.
type CheckResult struct {
	ServiceID      string      `json:"service_id"`
	NestID         string      `json:"nest_id"`
	RegionID       string      `json:"region_id"`
	WorkerID       string      `json:"worker_id"`
	Status         CheckStatus `json:"status"`
	ResponseTimeMs int         `json:"response_time_ms"`
	StatusCode     int         `json:"status_code,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	Error          string      `json:"error,omitempty"`
}
