package docker

import (
	"fmt"
	"strings"
)

// Config configures a Client.
type Config struct {
	// Binary is the docker executable. Defaults to "docker".
	Binary string `yaml:"binary" mapstructure:"binary"`
	// Host is exported as DOCKER_HOST to every invocation when set.
	Host string `yaml:"host" mapstructure:"host"`
	// Context selects a docker context with --context when set.
	Context string `yaml:"context" mapstructure:"context"`
	// Verbose echoes every invocation to the logger.
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = "docker"
	}
}

// Validate checks the docker configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return fmt.Errorf("docker: binary is required")
	}
	if c.Host != "" && c.Context != "" {
		return fmt.Errorf("docker: host and context are mutually exclusive")
	}
	return nil
}
