package core

import (
	"time"
)

type ServiceState string

const (
	StateUnknown     ServiceState = "unknown"
	StateUp          ServiceState = "up"
	StateDegraded    ServiceState = "degraded"
	StateDown        ServiceState = "down"
	StateMaintenance ServiceState = "maintenance"
)

type RegionStatus struct {
	RegionID       string      `json:"region_id"`
	Status         CheckStatus `json:"status"`
	ResponseTimeMs int         `json:"response_time_ms"`
	LastChecked    int64       `json:"last_checked"`
	Error          string      `json:"error,omitempty"`
}

// ServiceStatus is the per-service aggregate. OverallStatus is always
// recomputed from the region slots, never patched independently.
type ServiceStatus struct {
	ServiceID      string         `json:"service_id"`
	NestID         string         `json:"nest_id"`
	OverallStatus  ServiceState   `json:"overall_status"`
	ResponseTimeMs int            `json:"response_time_ms"`
	LastChecked    int64          `json:"last_checked"`
	Regions        []RegionStatus `json:"regions"`
	Maintenance    bool           `json:"maintenance,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (s *ServiceStatus) Region(regionID string) *RegionStatus {
	for i := range s.Regions {
		if s.Regions[i].RegionID == regionID {
			return &s.Regions[i]
		}
	}
	return nil
}
