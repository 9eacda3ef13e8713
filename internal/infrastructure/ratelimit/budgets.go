package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"ContentFactory/internal/config"
	"ContentFactory/internal/ports"
)

// Budgets keeps one in-process Budget per provider name.
type Budgets struct {
	mu      sync.Mutex
	def     config.ProviderLimit
	limits  map[string]config.ProviderLimit
	budgets map[string]*Budget
}

var _ ports.Budgets = (*Budgets)(nil)

// NewBudgets builds budgets from configuration; providers without an entry use the default limit.
func NewBudgets(cfg config.RateLimitConfig) *Budgets {
	limits := make(map[string]config.ProviderLimit, len(cfg.Providers))
	for name, l := range cfg.Providers {
		limits[name] = l
	}
	return &Budgets{def: cfg.Default, limits: limits, budgets: map[string]*Budget{}}
}

// For returns the shared budget of a provider, creating it on first use.
func (b *Budgets) For(provider string) ports.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.budgets[provider]; ok {
		return existing
	}
	limit, ok := b.limits[provider]
	if !ok {
		limit = b.def
	}
	budget := NewBudget(limit)
	b.budgets[provider] = budget
	return budget
}

// Budget combines a call-rate limiter with an in-flight cap.
type Budget struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewBudget builds a budget; non-positive values disable the corresponding bound.
func NewBudget(limit config.ProviderLimit) *Budget {
	b := &Budget{}
	if limit.MaxInFlight > 0 {
		b.sem = semaphore.NewWeighted(int64(limit.MaxInFlight))
	}
	if limit.RatePerSecond > 0 {
		burst := limit.Burst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(limit.RatePerSecond), burst)
	}
	return b
}

// Acquire blocks until both bounds admit a call or ctx is done.
func (b *Budget) Acquire(ctx context.Context) (func(), error) {
	if b.sem != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			if b.sem != nil {
				b.sem.Release(1)
			}
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if b.sem != nil {
				b.sem.Release(1)
			}
		})
	}, nil
}

type unlimited struct{}

func (unlimited) For(string) ports.Limiter { return unlimited{} }

func (unlimited) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// Unlimited admits every call; used when no limits are configured and in tests.
func Unlimited() ports.Budgets {
	return unlimited{}
}
