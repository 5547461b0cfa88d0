// Package checks holds the probe implementations a worker runs against
// monitored targets. Each runner is stateless; the scheduler decides
// when and how often to invoke it.
package checks

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
)

const defaultTimeout = 30 * time.Second

// Outcome is one probe execution. The worker stamps it with its own
// identity and region before publishing.
type Outcome struct {
	Status         core.CheckStatus
	ResponseTimeMs int
	StatusCode     int
	Error          string
}

type Runner interface {
	Check(ctx context.Context, cfg *core.ServiceCheckConfig) Outcome
}

// Registry maps check types to runners. Unsupported types simply have
// no entry; the scheduler skips configs it cannot run.
func Registry() map[core.CheckType]Runner {
	return map[core.CheckType]Runner{
		core.CheckHTTP: NewHTTPChecker(),
		core.CheckTCP:  NewTCPChecker(),
		core.CheckPing: NewPingChecker(),
		core.CheckDNS:  NewDNSChecker(),
	}
}

func timeoutOf(cfg *core.ServiceCheckConfig) time.Duration {
	if cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout) * time.Second
	}
	return defaultTimeout
}

// statusOf classifies a probe error: deadline and timeout failures are
// distinguished from plain unreachability.
func statusOf(err error) core.CheckStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.StatusTimeout
	}
	return core.StatusDown
}
