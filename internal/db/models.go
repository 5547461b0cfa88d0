package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Incident is a sustained non-up state of a service, opened and closed
// by the status aggregation engine's transitions.
type Incident struct {
	ID             string     `json:"id" db:"id"`
	ServiceID      string     `json:"service_id" db:"service_id"`
	NestID         string     `json:"nest_id" db:"nest_id"`
	Severity       string     `json:"severity" db:"severity"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	ResolvedAt     *time.Time `json:"resolved_at" db:"resolved_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at" db:"acknowledged_at"`
	AcknowledgedBy *string    `json:"acknowledged_by" db:"acknowledged_by"`
	AffectedChecks int        `json:"affected_checks" db:"affected_checks"`
	Details        JSONB      `json:"details" db:"details"`
}

// AuditEvent records operator actions that must stay inspectable:
// breaker overrides, worker approvals and rejections, region changes,
// points period resets.
type AuditEvent struct {
	ID        string    `json:"id" db:"id"`
	Action    string    `json:"action" db:"action"`
	Actor     string    `json:"actor" db:"actor"`
	Target    string    `json:"target" db:"target"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(value.([]byte), j)
}
