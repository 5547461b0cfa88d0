// Package ratelimit provides per-caller token buckets for the admin
// API. Buckets are created on first sight and swept after a TTL of
// inactivity so one-off callers do not accumulate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/nestwatch/nestwatch/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate   rate.Limit
	burst  int
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		ttl:     cfg.TTL,
		logger:  logger.With(zap.String("component", "ratelimit")),
		now:     time.Now,
	}
}

// Allow reports whether the caller may proceed right now.
func (l *Limiter) Allow(caller string) bool {
	l.mu.Lock()
	b, ok := l.buckets[caller]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[caller] = b
	}
	b.lastSeen = l.now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Start runs the sweep loop until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.ttl)
	l.mu.Lock()
	removed := 0
	for caller, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, caller)
			removed++
		}
	}
	size := len(l.buckets)
	l.mu.Unlock()

	if removed > 0 {
		l.logger.Debug("Swept idle rate-limit buckets", zap.Int("removed", removed), zap.Int("active", size))
	}
}
