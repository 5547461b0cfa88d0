package status

import (
	"github.com/nestwatch/nestwatch/internal/core"
)

// ComputeOverall derives the aggregate state from the region slots for
// the configured strategy. Pure function; the engine persists whatever
// it returns. Severity order when combining regions: down > degraded >
// up, with maintenance overriding everything.
func ComputeOverall(cfg *core.ServiceCheckConfig, status *core.ServiceStatus) core.ServiceState {
	if status.Maintenance {
		return core.StateMaintenance
	}

	switch cfg.Strategy {
	case core.StrategyClosest:
		// Regions are ordered by proximity; only the nearest counts.
		return stateOfSlot(slotFor(cfg, status, 0))
	case core.StrategyFailover:
		primary := stateOfSlot(slotFor(cfg, status, 0))
		if primary == core.StateUp || primary == core.StateUnknown {
			return primary
		}
		// Primary is down: the secondary is promoted and its state
		// becomes the aggregate.
		if len(cfg.Regions) > 1 {
			return stateOfSlot(slotFor(cfg, status, 1))
		}
		return primary
	default:
		// all-selected and round-robin: every configured region counts.
		return combineAll(cfg, status)
	}
}

func combineAll(cfg *core.ServiceCheckConfig, status *core.ServiceStatus) core.ServiceState {
	var up, notUp, unknown int
	for _, regionID := range cfg.Regions {
		slot := status.Region(regionID)
		switch stateOfSlot(slot) {
		case core.StateUp:
			up++
		case core.StateDown:
			notUp++
		default:
			unknown++
		}
	}

	total := len(cfg.Regions)
	switch {
	case unknown == total:
		return core.StateUnknown
	case up == total:
		return core.StateUp
	case notUp == total:
		return core.StateDown
	default:
		// Mixed: something is up while something else is failing or
		// silent.
		return core.StateDegraded
	}
}

func slotFor(cfg *core.ServiceCheckConfig, status *core.ServiceStatus, idx int) *core.RegionStatus {
	if idx >= len(cfg.Regions) {
		return nil
	}
	return status.Region(cfg.Regions[idx])
}

func stateOfSlot(slot *core.RegionStatus) core.ServiceState {
	if slot == nil || slot.LastChecked == 0 || slot.Status == core.StatusUnknown {
		return core.StateUnknown
	}
	switch slot.Status {
	case core.StatusUp:
		return core.StateUp
	case core.StatusDown, core.StatusTimeout, core.StatusError:
		return core.StateDown
	default:
		return core.StateUnknown
	}
}
