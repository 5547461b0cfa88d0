package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/nestwatch/nestwatch/internal/core"
)

const defaultResolver = "8.8.8.8:53"

type DNSChecker struct {
	resolver string
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{resolver: defaultResolver}
}

func (d *DNSChecker) Check(ctx context.Context, cfg *core.ServiceCheckConfig) Outcome {
	recordType := cfg.RecordType
	if recordType == "" {
		recordType = "A"
	}
	qtype, ok := dns.StringToType[recordType]
	if !ok {
		return Outcome{Status: core.StatusError, Error: fmt.Sprintf("unsupported record type %q", recordType)}
	}

	c := new(dns.Client)
	c.Timeout = timeoutOf(cfg)

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(cfg.Target), qtype)

	start := time.Now()
	r, _, err := c.ExchangeContext(ctx, m, d.resolver)
	elapsed := time.Since(start)

	out := Outcome{ResponseTimeMs: int(elapsed.Milliseconds())}
	if err != nil {
		out.Status = statusOf(err)
		out.Error = fmt.Sprintf("dns query failed: %v", err)
		return out
	}
	if r.Rcode != dns.RcodeSuccess {
		out.Status = core.StatusDown
		out.Error = fmt.Sprintf("dns query failed with code: %s", dns.RcodeToString[r.Rcode])
		return out
	}
	if len(r.Answer) == 0 {
		out.Status = core.StatusDown
		out.Error = fmt.Sprintf("no %s records found", recordType)
		return out
	}

	out.Status = core.StatusUp
	return out
}
