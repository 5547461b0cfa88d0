package checks

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
)

const pingSamples = 3

// PingChecker measures reachability latency without raw sockets: it
// samples TCP connect time a few times and reports the median. Targets
// without a port default to 80.
type PingChecker struct {
	dialer *net.Dialer
}

func NewPingChecker() *PingChecker {
	return &PingChecker{dialer: &net.Dialer{}}
}

func (p *PingChecker) Check(ctx context.Context, cfg *core.ServiceCheckConfig) Outcome {
	target := cfg.Target
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "80")
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOf(cfg))
	defer cancel()

	latencies := make([]int, 0, pingSamples)
	var lastErr error
	for i := 0; i < pingSamples; i++ {
		start := time.Now()
		conn, err := p.dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		latencies = append(latencies, int(time.Since(start).Milliseconds()))
	}

	if len(latencies) == 0 {
		return Outcome{
			Status: statusOf(lastErr),
			Error:  fmt.Sprintf("ping failed: %v", lastErr),
		}
	}

	sort.Ints(latencies)
	return Outcome{
		Status:         core.StatusUp,
		ResponseTimeMs: latencies[len(latencies)/2],
	}
}
