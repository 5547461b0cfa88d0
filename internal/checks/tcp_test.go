package checks

import (
	"context"
	"net"
	"testing"

	"github.com/nestwatch/nestwatch/internal/core"
)

func TestTCPChecker_Up(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := &core.ServiceCheckConfig{
		ServiceID: "svc-1",
		Type:      core.CheckTCP,
		Target:    ln.Addr().String(),
		Timeout:   5,
	}
	out := NewTCPChecker().Check(context.Background(), cfg)
	if out.Status != core.StatusUp {
		t.Fatalf("status %q, error %q", out.Status, out.Error)
	}
}

func TestTCPChecker_RefusedIsDown(t *testing.T) {
	// Grab a free port and release it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	target := ln.Addr().String()
	ln.Close()

	cfg := &core.ServiceCheckConfig{
		ServiceID: "svc-1",
		Type:      core.CheckTCP,
		Target:    target,
		Timeout:   2,
	}
	out := NewTCPChecker().Check(context.Background(), cfg)
	if out.Status != core.StatusDown {
		t.Fatalf("status %q, want down", out.Status)
	}
	if out.Error == "" {
		t.Error("error detail missing")
	}
}
