package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/config"
	"ContentFactory/internal/ports"
)

// RedisBudgets shares call-rate windows across processes through Redis counters.
// In-flight caps stay per process.
type RedisBudgets struct {
	client redis.UniversalClient
	prefix string
	def    config.ProviderLimit
	limits map[string]config.ProviderLimit
	local  *Budgets
	clock  clock.Clock
}

var _ ports.Budgets = (*RedisBudgets)(nil)

// NewRedisBudgets wires a Redis client with the configured limits.
func NewRedisBudgets(client redis.UniversalClient, cfg config.RateLimitConfig, clk clock.Clock) *RedisBudgets {
	if clk == nil {
		clk = clock.Real{}
	}
	inFlightOnly := config.RateLimitConfig{
		Default:   config.ProviderLimit{MaxInFlight: cfg.Default.MaxInFlight},
		Providers: map[string]config.ProviderLimit{},
	}
	for name, l := range cfg.Providers {
		inFlightOnly.Providers[name] = config.ProviderLimit{MaxInFlight: l.MaxInFlight}
	}
	return &RedisBudgets{
		client: client,
		prefix: "contentfactory:budget",
		def:    cfg.Default,
		limits: cfg.Providers,
		local:  NewBudgets(inFlightOnly),
		clock:  clk,
	}
}

// For returns the limiter of one provider.
func (r *RedisBudgets) For(provider string) ports.Limiter {
	limit, ok := r.limits[provider]
	if !ok {
		limit = r.def
	}
	return &redisLimiter{parent: r, provider: provider, perWindow: callsPerWindow(limit)}
}

type redisLimiter struct {
	parent    *RedisBudgets
	provider  string
	perWindow int64
}

func (l *redisLimiter) Acquire(ctx context.Context) (func(), error) {
	release, err := l.parent.local.For(l.provider).Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if l.perWindow <= 0 {
		return release, nil
	}

	for {
		now := l.parent.clock.Now()
		key := windowKey(l.parent.prefix, l.provider, now)

		var incr *redis.IntCmd
		_, err := l.parent.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, 2*time.Second)
			return nil
		})
		if err != nil {
			release()
			return nil, fmt.Errorf("redis budget %s: %w", l.provider, err)
		}
		if incr.Val() <= l.perWindow {
			return release, nil
		}

		wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-l.parent.clock.After(wait):
		}
	}
}

// windowKey names the one-second counter a call lands in.
func windowKey(prefix, provider string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", prefix, provider, at.Unix())
}

func callsPerWindow(limit config.ProviderLimit) int64 {
	if limit.RatePerSecond <= 0 {
		return 0
	}
	return int64(math.Max(1, math.Floor(limit.RatePerSecond)))
}
