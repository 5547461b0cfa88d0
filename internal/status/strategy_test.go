package status

import (
	"testing"

	"github.com/nestwatch/nestwatch/internal/core"
)

func slots(states ...core.CheckStatus) []core.RegionStatus {
	regions := []string{"us-east-1", "eu-west-1", "ap-se-1"}
	out := make([]core.RegionStatus, 0, len(states))
	for i, s := range states {
		slot := core.RegionStatus{RegionID: regions[i], Status: s}
		if s != core.StatusUnknown {
			slot.LastChecked = 1000
		}
		out = append(out, slot)
	}
	return out
}

func cfgWith(strategy core.Strategy, regionCount int) *core.ServiceCheckConfig {
	regions := []string{"us-east-1", "eu-west-1", "ap-se-1"}
	return &core.ServiceCheckConfig{
		ServiceID: "svc-1",
		NestID:    "nest-1",
		Strategy:  strategy,
		Regions:   regions[:regionCount],
	}
}

func TestComputeOverall_AllSelected(t *testing.T) {
	tests := []struct {
		name   string
		states []core.CheckStatus
		want   core.ServiceState
	}{
		{"all up", []core.CheckStatus{core.StatusUp, core.StatusUp, core.StatusUp}, core.StateUp},
		{"one down", []core.CheckStatus{core.StatusUp, core.StatusDown, core.StatusUp}, core.StateDegraded},
		{"all down", []core.CheckStatus{core.StatusDown, core.StatusTimeout, core.StatusError}, core.StateDown},
		{"all unknown", []core.CheckStatus{core.StatusUnknown, core.StatusUnknown, core.StatusUnknown}, core.StateUnknown},
		{"up with silent region", []core.CheckStatus{core.StatusUp, core.StatusUp, core.StatusUnknown}, core.StateDegraded},
		{"down with silent region", []core.CheckStatus{core.StatusDown, core.StatusDown, core.StatusUnknown}, core.StateDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cfgWith(core.StrategyAllSelected, 3)
			status := &core.ServiceStatus{Regions: slots(tt.states...)}
			if got := ComputeOverall(cfg, status); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComputeOverall_RoundRobinCombinesAll(t *testing.T) {
	cfg := cfgWith(core.StrategyRoundRobin, 2)
	status := &core.ServiceStatus{Regions: slots(core.StatusUp, core.StatusDown)}
	if got := ComputeOverall(cfg, status); got != core.StateDegraded {
		t.Errorf("got %q, want degraded", got)
	}
}

func TestComputeOverall_Closest(t *testing.T) {
	cfg := cfgWith(core.StrategyClosest, 3)

	status := &core.ServiceStatus{Regions: slots(core.StatusUp, core.StatusDown, core.StatusDown)}
	if got := ComputeOverall(cfg, status); got != core.StateUp {
		t.Errorf("nearest up: got %q, want up", got)
	}

	status = &core.ServiceStatus{Regions: slots(core.StatusDown, core.StatusUp, core.StatusUp)}
	if got := ComputeOverall(cfg, status); got != core.StateDown {
		t.Errorf("nearest down: got %q, want down", got)
	}
}

func TestComputeOverall_Failover(t *testing.T) {
	cfg := cfgWith(core.StrategyFailover, 2)

	status := &core.ServiceStatus{Regions: slots(core.StatusUp, core.StatusDown)}
	if got := ComputeOverall(cfg, status); got != core.StateUp {
		t.Errorf("healthy primary: got %q, want up", got)
	}

	// Primary down, secondary promoted.
	status = &core.ServiceStatus{Regions: slots(core.StatusDown, core.StatusUp)}
	if got := ComputeOverall(cfg, status); got != core.StateUp {
		t.Errorf("promoted secondary: got %q, want up", got)
	}

	status = &core.ServiceStatus{Regions: slots(core.StatusDown, core.StatusDown)}
	if got := ComputeOverall(cfg, status); got != core.StateDown {
		t.Errorf("both down: got %q, want down", got)
	}

	single := cfgWith(core.StrategyFailover, 1)
	status = &core.ServiceStatus{Regions: slots(core.StatusDown)}
	if got := ComputeOverall(single, status); got != core.StateDown {
		t.Errorf("single region down: got %q, want down", got)
	}
}

func TestComputeOverall_MaintenanceWins(t *testing.T) {
	cfg := cfgWith(core.StrategyAllSelected, 2)
	status := &core.ServiceStatus{
		Maintenance: true,
		Regions:     slots(core.StatusDown, core.StatusDown),
	}
	if got := ComputeOverall(cfg, status); got != core.StateMaintenance {
		t.Errorf("got %q, want maintenance", got)
	}
}

func TestStateOfSlot_NeverCheckedIsUnknown(t *testing.T) {
	slot := &core.RegionStatus{RegionID: "us-east-1", Status: core.StatusUp}
	if got := stateOfSlot(slot); got != core.StateUnknown {
		t.Errorf("slot without LastChecked should be unknown, got %q", got)
	}
}
