package checks

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
)

type TCPChecker struct {
	dialer *net.Dialer
}

func NewTCPChecker() *TCPChecker {
	return &TCPChecker{dialer: &net.Dialer{}}
}

// Check connects to host:port and reports the connect latency.
func (t *TCPChecker) Check(ctx context.Context, cfg *core.ServiceCheckConfig) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeoutOf(cfg))
	defer cancel()

	start := time.Now()
	conn, err := t.dialer.DialContext(ctx, "tcp", cfg.Target)
	elapsed := time.Since(start)

	if err != nil {
		return Outcome{
			Status:         statusOf(err),
			ResponseTimeMs: int(elapsed.Milliseconds()),
			Error:          fmt.Sprintf("connect failed: %v", err),
		}
	}
	conn.Close()

	return Outcome{Status: core.StatusUp, ResponseTimeMs: int(elapsed.Milliseconds())}
}
