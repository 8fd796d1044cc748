package resilience

import (
	"context"
	"errors"

	apperrors "github.com/kbukum/dockerkit/errors"
)

// PolicyConfig selects which primitives a Policy applies. Nil fields and a
// zero MaxConcurrent are skipped.
type PolicyConfig struct {
	Retry          *RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	RateLimit      *RateLimiterConfig    `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxConcurrent  int                   `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// Enabled reports whether the config turns on at least one primitive.
func (c PolicyConfig) Enabled() bool {
	return c.Retry != nil || c.CircuitBreaker != nil || c.RateLimit != nil || c.MaxConcurrent > 0
}

// Holder is implemented by results that keep using their bulkhead slot after
// the call returns, such as a process that is still running. The slot is
// freed when Released is closed.
type Holder interface {
	Released() <-chan struct{}
}

// Policy holds the stateful primitives built from a PolicyConfig. Breaker and
// limiter state persist across calls, so build one Policy and reuse it.
type Policy struct {
	retry    *RetryConfig
	breaker  *CircuitBreaker
	limiter  *RateLimiter
	bulkhead *Bulkhead
}

// NewPolicy builds a Policy.
func NewPolicy(cfg PolicyConfig) *Policy {
	p := &Policy{retry: cfg.Retry}
	if cfg.CircuitBreaker != nil {
		p.breaker = NewCircuitBreaker(*cfg.CircuitBreaker)
	}
	if cfg.RateLimit != nil {
		p.limiter = NewRateLimiter(*cfg.RateLimit)
	}
	if cfg.MaxConcurrent > 0 {
		p.bulkhead = NewBulkhead(BulkheadConfig{Name: "policy", MaxConcurrent: cfg.MaxConcurrent})
	}
	return p
}

// Breaker returns the policy's circuit breaker, or nil.
func (p *Policy) Breaker() *CircuitBreaker { return p.breaker }

// Do runs fn through the policy: bulkhead, then circuit breaker, then retry,
// then rate limiter. A nil policy calls fn directly. A rejection by the
// breaker or bulkhead is reported as SERVICE_UNAVAILABLE. A successful result
// that implements Holder keeps its bulkhead slot until it is released.
func Do[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}

	call := fn
	if p.limiter != nil {
		inner := call
		call = func(ctx context.Context) (T, error) {
			if err := p.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
			return inner(ctx)
		}
	}
	if p.retry != nil {
		inner := call
		cfg := *p.retry
		call = func(ctx context.Context) (T, error) {
			return Retry(ctx, cfg, inner)
		}
	}
	if p.breaker != nil {
		inner := call
		call = func(ctx context.Context) (T, error) {
			var v T
			err := p.breaker.Execute(func() error {
				var err error
				v, err = inner(ctx)
				return err
			})
			if errors.Is(err, ErrCircuitOpen) {
				return v, apperrors.ServiceUnavailable(p.breaker.config.Name).WithCause(err)
			}
			return v, err
		}
	}
	if p.bulkhead != nil {
		inner := call
		b := p.bulkhead
		call = func(ctx context.Context) (v T, err error) {
			if err := b.enter(ctx); err != nil {
				if errors.Is(err, ErrBulkheadFull) || errors.Is(err, ErrBulkheadTimeout) {
					err = apperrors.ServiceUnavailable(b.config.Name).WithCause(err)
				}
				return v, err
			}
			held := false
			defer func() {
				if !held {
					b.leave()
				}
			}()
			v, err = inner(ctx)
			if h, ok := any(v).(Holder); ok && err == nil {
				held = true
				go func() {
					<-h.Released()
					b.leave()
				}()
			}
			return v, err
		}
	}
	return call(ctx)
}
