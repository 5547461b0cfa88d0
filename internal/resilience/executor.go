// Package resilience wraps every external call (cache, queue, RPC) in
// a named circuit breaker plus a per-class retry policy, so a
// dependency outage degrades the caller instead of cascading.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/errs"
	"go.uber.org/zap"
)

// Metrics is the slice of the metrics collector the executor needs.
type Metrics interface {
	RecordBreakerState(name string, state string)
	RecordDegradedMode(dependency, operation string)
}

// AuditSink records manual breaker overrides (who/when/why).
type AuditSink interface {
	RecordAudit(ctx context.Context, action, actor, target, reason string) error
}

type Executor struct {
	logger  *zap.Logger
	metrics Metrics
	audit   AuditSink

	failureThreshold int
	resetTimeout     time.Duration
	policies         map[OperationClass]RetryPolicy

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewExecutor(cfg config.ResilienceConfig, logger *zap.Logger, metrics Metrics, audit AuditSink) *Executor {
	return &Executor{
		logger:           logger,
		metrics:          metrics,
		audit:            audit,
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		policies: map[OperationClass]RetryPolicy{
			ClassCache: policyFromConfig(cfg.Cache),
			ClassQueue: policyFromConfig(cfg.Queue),
			ClassRPC:   policyFromConfig(cfg.RPC),
		},
		breakers: make(map[string]*Breaker),
	}
}

// Breaker returns the breaker for a dependency, creating it on first
// use. One breaker per dependency name, shared by all its operations.
func (e *Executor) Breaker(dependency string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[dependency]
	if !ok {
		b = NewBreaker(dependency, e.failureThreshold, e.resetTimeout, e.logger)
		if e.metrics != nil {
			b.onStateChange = func(name string, state BreakerState) {
				e.metrics.RecordBreakerState(name, state.String())
			}
		}
		e.breakers[dependency] = b
	}
	return b
}

func (e *Executor) Snapshots() []BreakerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(e.breakers))
	for _, b := range e.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

// ForceBreaker applies an operational override and audits it.
func (e *Executor) ForceBreaker(ctx context.Context, dependency, state, actor, reason string) error {
	b := e.Breaker(dependency)
	var target BreakerState
	switch state {
	case "open":
		target = StateOpen
	case "closed":
		target = StateClosed
	case "half-open":
		target = StateHalfOpen
	default:
		return errs.Validation("unknown breaker state %q", state)
	}
	b.ForceState(target, time.Now())
	if e.audit != nil {
		if err := e.audit.RecordAudit(ctx, "breaker_force_state", actor, dependency, reason); err != nil {
			e.logger.Error("Failed to audit breaker override", zap.Error(err), zap.String("breaker", dependency))
		}
	}
	return nil
}

// ResetBreaker clears a breaker back to closed and audits it.
func (e *Executor) ResetBreaker(ctx context.Context, dependency, actor, reason string) error {
	e.Breaker(dependency).Reset(time.Now())
	if e.audit != nil {
		if err := e.audit.RecordAudit(ctx, "breaker_reset", actor, dependency, reason); err != nil {
			e.logger.Error("Failed to audit breaker reset", zap.Error(err), zap.String("breaker", dependency))
		}
	}
	return nil
}

// Do runs op through the dependency's breaker and the class retry
// policy. With the breaker open it fails fast without touching op.
func (e *Executor) Do(ctx context.Context, class OperationClass, dependency, operation string, op func(ctx context.Context) error) error {
	b := e.Breaker(dependency)

	if !b.Allow(time.Now()) {
		return errs.Transient(dependency, operation, errCircuitOpen)
	}

	policy, ok := e.policies[class]
	if !ok {
		policy = e.policies[ClassRPC]
	}

	err := policy.retry(ctx, op)
	if err != nil {
		if errs.IsTransient(err) {
			b.RecordFailure(time.Now())
		} else {
			// The dependency answered; a business error is not its
			// fault.
			b.RecordSuccess(time.Now())
		}
		return err
	}

	b.RecordSuccess(time.Now())
	return nil
}

// Execute is Do with a typed result and an optional fallback. When
// retries are exhausted and a fallback exists, the fallback value is
// returned and the degraded-mode metric recorded; without one the
// error propagates tagged with dependency and operation.
func Execute[T any](ctx context.Context, e *Executor, class OperationClass, dependency, operation string, op func(ctx context.Context) (T, error), fallback func() T) (T, error) {
	var result T
	err := e.Do(ctx, class, dependency, operation, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err == nil {
		return result, nil
	}

	if fallback != nil {
		e.logger.Warn("Operation degraded to fallback",
			zap.String("dependency", dependency),
			zap.String("operation", operation),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.RecordDegradedMode(dependency, operation)
		}
		return fallback(), nil
	}

	var zero T
	if errs.IsTransient(err) {
		return zero, errs.Transient(dependency, operation, err)
	}
	return zero, err
}

var errCircuitOpen = &circuitOpenError{}

type circuitOpenError struct{}

func (*circuitOpenError) Error() string { return "circuit open" }
