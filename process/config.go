package process

import (
	"fmt"
	"time"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/resilience"
)

// Config configures a Runner.
type Config struct {
	// GracePeriod is the default SIGTERM to SIGKILL delay on cancellation.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	// Timeout bounds blocking runs. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Verbose echoes every chunk and lifecycle event to the logger.
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	// Resilience wraps each spawn. Only spawn failures are retried and only
	// spawn or wait failures count against the breaker, unless the config
	// sets its own RetryIf or IsFailure. MaxConcurrent counts live processes:
	// a streaming process keeps its slot until it exits.
	Resilience resilience.PolicyConfig `yaml:"resilience" mapstructure:"resilience"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.GracePeriod == 0 {
		c.GracePeriod = DefaultGracePeriod
	}
}

// Validate rejects negative durations.
func (c *Config) Validate() error {
	if c.GracePeriod < 0 {
		return fmt.Errorf("process.grace_period must not be negative (got: %s)", c.GracePeriod)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("process.timeout must not be negative (got: %s)", c.Timeout)
	}
	return nil
}

// policyConfig installs the runner's retry and breaker predicates where the
// config leaves them unset.
func policyConfig(cfg resilience.PolicyConfig) resilience.PolicyConfig {
	if cfg.Retry != nil && cfg.Retry.RetryIf == nil {
		retry := *cfg.Retry
		retry.RetryIf = isRetryableSpawnFailure
		cfg.Retry = &retry
	}
	if cfg.CircuitBreaker != nil && cfg.CircuitBreaker.IsFailure == nil {
		cb := *cfg.CircuitBreaker
		if cb.Name == "" {
			cb.Name = "process"
		}
		cb.IsFailure = isRunnerFailure
		cfg.CircuitBreaker = &cb
	}
	return cfg
}

// isRetryableSpawnFailure never retries a process that started.
func isRetryableSpawnFailure(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed) && apperrors.IsRetryable(err)
}

func isRunnerFailure(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed) ||
		apperrors.HasCode(err, apperrors.ErrCodeProcessFailed)
}
