package core

import (
	"testing"
	"time"
)

func TestTierFor(t *testing.T) {
	cfg := DefaultPointsConfig()

	tests := []struct {
		points float64
		want   string
	}{
		{0, "hatchling"},
		{999, "hatchling"},
		{1000, "fledgling"},
		{9999, "fledgling"},
		{10000, "falcon"},
		{50000, "eagle"},
		{1e9, "eagle"}, // top tier is unbounded
	}
	for _, tt := range tests {
		tier := cfg.TierFor(tt.points)
		if tier == nil || tier.Name != tt.want {
			t.Errorf("TierFor(%v) = %+v, want %s", tt.points, tier, tt.want)
		}
	}
}

func TestTierFor_NoMatch(t *testing.T) {
	cfg := PointsConfig{Tiers: []ReputationTier{
		{Name: "veteran", MinPoints: 100, MaxPoints: -1, Multiplier: 1.5},
	}}
	if tier := cfg.TierFor(5); tier != nil {
		t.Errorf("points below every tier matched %+v", tier)
	}
}

func TestWorkerLiveness(t *testing.T) {
	now := time.Now()
	w := &Worker{ID: "worker-1"}
	if w.IsAlive(now) {
		t.Error("worker with no heartbeat reported alive")
	}

	w.LastHeartbeatAt = now.Add(-30 * time.Second)
	if !w.IsAlive(now) {
		t.Error("recent heartbeat reported dead")
	}

	w.LastHeartbeatAt = now.Add(-2 * time.Minute)
	if w.IsAlive(now) {
		t.Error("stale heartbeat reported alive")
	}
}

func TestWorkerView_StripsCredential(t *testing.T) {
	w := &Worker{ID: "worker-1", CredentialHandle: "handle-1"}
	v := w.View(time.Now())
	if v.CredentialHandle != "" {
		t.Error("view leaked the credential handle")
	}
	if w.CredentialHandle != "handle-1" {
		t.Error("view mutated the underlying record")
	}
}
