package core

import (
	"time"
)

type WorkerState string

const (
	WorkerPending  WorkerState = "pending"
	WorkerApproved WorkerState = "approved"
	WorkerRevoked  WorkerState = "revoked"
)

// AliveTimeout is how long a worker may stay silent before it is
// considered dead. Liveness is derived at read time, never stored.
const AliveTimeout = 60 * time.Second

type Worker struct {
	ID         string       `json:"id"`
	OwnerEmail string       `json:"owner_email"`
	Region     string       `json:"region"`
	// ReportedRegion is what the worker itself last claimed in a
	// heartbeat. After an approved region change it may lag Region
	// until the worker picks up the change_region command.
	ReportedRegion string       `json:"reported_region,omitempty"`
	Capabilities   Capabilities `json:"capabilities"`
	State          WorkerState  `json:"state"`

	// CredentialHandle is an opaque reference to the fabric principal
	// provisioned at approval. Never the secret itself.
	CredentialHandle string `json:"credential_handle,omitempty"`

	LastHeartbeatAt     time.Time `json:"last_heartbeat_at"`
	TotalPoints         float64   `json:"total_points"`
	CurrentPeriodPoints float64   `json:"current_period_points"`
	ChecksCompleted     int64     `json:"checks_completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Capabilities struct {
	CheckTypes    []string `json:"check_types"`
	MaxConcurrent int      `json:"max_concurrent"`
}

func (w *Worker) IsAlive(now time.Time) bool {
	if w.LastHeartbeatAt.IsZero() {
		return false
	}
	return now.Sub(w.LastHeartbeatAt) < AliveTimeout
}

// WorkerView is what listings return: the record plus derived
// liveness, with credential material stripped.
type WorkerView struct {
	Worker
	IsAlive bool `json:"is_alive"`
}

func (w *Worker) View(now time.Time) WorkerView {
	v := WorkerView{Worker: *w, IsAlive: w.IsAlive(now)}
	v.CredentialHandle = ""
	return v
}

type RegistrationRequest struct {
	WorkerID     string    `json:"worker_id"`
	OwnerEmail   string    `json:"owner_email"`
	Region       string    `json:"region"`
	PendingSince time.Time `json:"pending_since"`
}

type RegionChangeRequest struct {
	ID          string     `json:"id"`
	WorkerID    string     `json:"worker_id"`
	OldRegion   string     `json:"old_region"`
	NewRegion   string     `json:"new_region"`
	RequestedBy string     `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	Approved    bool       `json:"approved"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}

// HeartbeatMetrics is what a worker reports alongside liveness.
type HeartbeatMetrics struct {
	Region          string  `json:"region"`
	TotalPoints     float64 `json:"total_points"`
	PeriodPoints    float64 `json:"period_points"`
	ChecksCompleted int64   `json:"checks_completed"`
	CPUPercent      float64 `json:"cpu_percent,omitempty"`
	MemoryMB        float64 `json:"memory_mb,omitempty"`
}
