// Package resilience provides the fault-tolerance primitives used around
// subprocess execution.
//
// This package includes:
//   - Retry: retries failed operations with exponential backoff and jitter
//   - CircuitBreaker: fails fast after repeated failures
//   - Bulkhead: limits concurrent work
//   - RateLimiter: token bucket that paces calls
//   - Policy: combines the above in a fixed order
//
// A Policy wraps a call as bulkhead → circuit breaker → retry → rate limiter:
//
//	p := resilience.NewPolicy(resilience.PolicyConfig{
//	    Retry:          &resilience.RetryConfig{MaxAttempts: 3},
//	    CircuitBreaker: &resilience.CircuitBreakerConfig{Name: "docker", MaxFailures: 5},
//	})
//	res, err := resilience.Do(ctx, p, func(ctx context.Context) (*Result, error) {
//	    return spawn(ctx)
//	})
package resilience
