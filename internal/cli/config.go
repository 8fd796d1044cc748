package cli

import (
	"fmt"
	"time"

	"github.com/kbukum/dockerkit/config"
	"github.com/kbukum/dockerkit/docker"
	"github.com/kbukum/dockerkit/observability"
	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/util"
	"github.com/kbukum/dockerkit/version"
)

// StatsConfig configures dockerkit stats --watch.
type StatsConfig struct {
	WatchInterval time.Duration `yaml:"watch_interval" mapstructure:"watch_interval"`
}

// AppConfig is the dockerkit configuration file. Every key can be set from
// the environment with the DOCKERKIT_ prefix (DOCKERKIT_DOCKER_HOST).
type AppConfig struct {
	config.ServiceConfig `mapstructure:",squash"`

	Docker  docker.Config              `yaml:"docker" mapstructure:"docker"`
	Process process.Config             `yaml:"process" mapstructure:"process"`
	Stats   StatsConfig                `yaml:"stats" mapstructure:"stats"`
	Tracing observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *AppConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Docker.ApplyDefaults()
	c.Process.ApplyDefaults()
	if c.Stats.WatchInterval <= 0 {
		c.Stats.WatchInterval = docker.DefaultWatchInterval
	}

	tracing := observability.DefaultTracerConfig(c.Name)
	tracing.Environment = c.Environment
	c.Tracing.ServiceName = util.Coalesce(c.Tracing.ServiceName, tracing.ServiceName)
	c.Tracing.Environment = util.Coalesce(c.Tracing.Environment, tracing.Environment)
	c.Tracing.Endpoint = util.Coalesce(c.Tracing.Endpoint, tracing.Endpoint)
	c.Tracing.ServiceVersion = util.Coalesce(c.Tracing.ServiceVersion, version.Get().Short())
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = tracing.SampleRate
	}

	metrics := observability.DefaultMeterConfig(c.Name)
	c.Metrics.ServiceName = util.Coalesce(c.Metrics.ServiceName, metrics.ServiceName)
	c.Metrics.Environment = util.Coalesce(c.Metrics.Environment, c.Environment)
	c.Metrics.Endpoint = util.Coalesce(c.Metrics.Endpoint, metrics.Endpoint)
	c.Metrics.ServiceVersion = util.Coalesce(c.Metrics.ServiceVersion, c.Tracing.ServiceVersion)
	if c.Metrics.Interval <= 0 {
		c.Metrics.Interval = metrics.Interval
	}
}

// Validate checks every section.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Docker.Validate(); err != nil {
		return err
	}
	if err := c.Process.Validate(); err != nil {
		return err
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("config.tracing.sample_rate must be between 0 and 1")
	}
	return nil
}
