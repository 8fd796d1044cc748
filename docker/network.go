package docker

import (
	"context"

	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/validation"
)

// NetworkOptions describes docker network create.
type NetworkOptions struct {
	Name   string `yaml:"name" mapstructure:"name" validate:"required"`
	Driver string `yaml:"driver" mapstructure:"driver"`
}

// CreateNetwork runs docker network create and waits for it. An existing
// network is ALREADY_EXISTS.
func (c *Client) CreateNetwork(ctx context.Context, opts NetworkOptions, callOpts ...CallOption) (*process.Result, error) {
	if err := validation.Validate(opts); err != nil {
		return nil, err
	}
	args := []string{"network", "create"}
	if opts.Driver != "" {
		args = append(args, "--driver", opts.Driver)
	}
	return c.query(ctx, "network", opts.Name, append(args, opts.Name), callOpts...)
}
