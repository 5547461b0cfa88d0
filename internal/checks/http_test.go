package checks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nestwatch/nestwatch/internal/core"
)

func httpConfig(target string) *core.ServiceCheckConfig {
	return &core.ServiceCheckConfig{
		ServiceID: "svc-1",
		Type:      core.CheckHTTP,
		Target:    target,
		Timeout:   5,
	}
}

func TestHTTPChecker_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewHTTPChecker().Check(context.Background(), httpConfig(srv.URL))
	if out.Status != core.StatusUp {
		t.Fatalf("status %q, error %q", out.Status, out.Error)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("status code %d", out.StatusCode)
	}
}

func TestHTTPChecker_UnexpectedCodeIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := NewHTTPChecker().Check(context.Background(), httpConfig(srv.URL))
	if out.Status != core.StatusDown {
		t.Fatalf("status %q, want down", out.Status)
	}
	if out.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code %d", out.StatusCode)
	}
}

func TestHTTPChecker_ExpectedCodesOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	cfg := httpConfig(srv.URL)
	cfg.ExpectedStatusCodes = []int{http.StatusTeapot}
	out := NewHTTPChecker().Check(context.Background(), cfg)
	if out.Status != core.StatusUp {
		t.Fatalf("status %q, want up for an expected 418", out.Status)
	}
}

func TestHTTPChecker_SendsMethodAndHeaders(t *testing.T) {
	var gotMethod, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe")
	}))
	defer srv.Close()

	cfg := httpConfig(srv.URL)
	cfg.Method = http.MethodHead
	cfg.Headers = map[string]string{"X-Probe": "nestwatch"}
	NewHTTPChecker().Check(context.Background(), cfg)

	if gotMethod != http.MethodHead || gotHeader != "nestwatch" {
		t.Errorf("request was %s with header %q", gotMethod, gotHeader)
	}
}

func TestHTTPChecker_UnreachableIsDown(t *testing.T) {
	// Reserved TEST-NET address; nothing listens there.
	cfg := httpConfig("http://192.0.2.1:81/")
	cfg.Timeout = 1
	out := NewHTTPChecker().Check(context.Background(), cfg)
	if out.Status != core.StatusDown && out.Status != core.StatusTimeout {
		t.Fatalf("status %q, want down or timeout", out.Status)
	}
	if out.Error == "" {
		t.Error("error detail missing")
	}
}
