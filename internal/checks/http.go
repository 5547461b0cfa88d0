package checks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
)

type HTTPChecker struct {
	client *http.Client
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, cfg *core.ServiceCheckConfig) Outcome {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOf(cfg))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.Target, nil)
	if err != nil {
		return Outcome{Status: core.StatusError, Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		return Outcome{
			Status:         statusOf(err),
			ResponseTimeMs: int(elapsed.Milliseconds()),
			Error:          fmt.Sprintf("request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	out := Outcome{
		ResponseTimeMs: int(elapsed.Milliseconds()),
		StatusCode:     resp.StatusCode,
	}

	expected := cfg.ExpectedStatusCodes
	if len(expected) == 0 {
		expected = []int{http.StatusOK}
	}
	for _, code := range expected {
		if resp.StatusCode == code {
			out.Status = core.StatusUp
			return out
		}
	}

	out.Status = core.StatusDown
	out.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	return out
}
