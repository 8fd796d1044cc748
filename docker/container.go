package docker

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/docker/docker/api/types/container"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/util"
	"github.com/kbukum/dockerkit/validation"
)

// ContainerOptions describes a container for docker run.
type ContainerOptions struct {
	Name  string `yaml:"name" mapstructure:"name" validate:"required"`
	Image string `yaml:"image" mapstructure:"image" validate:"required,docker_image"`
	// Tag defaults to "latest" unless Image already carries a tag or digest.
	Tag        string `yaml:"tag" mapstructure:"tag"`
	AutoRemove bool   `yaml:"auto_remove" mapstructure:"auto_remove"`
	// Detach defaults to true.
	Detach  *bool    `yaml:"detach" mapstructure:"detach"`
	Network string   `yaml:"network" mapstructure:"network"`
	Publish []string `yaml:"publish" mapstructure:"publish" validate:"dive,port_spec"`
	// Environment is passed as -e flags in key order.
	Environment   map[string]string `yaml:"environment" mapstructure:"environment"`
	Volumes       []string          `yaml:"volumes" mapstructure:"volumes"`
	CPUPeriod     int64             `yaml:"cpu_period" mapstructure:"cpu_period" validate:"gte=0"`
	CPUQuota      int64             `yaml:"cpu_quota" mapstructure:"cpu_quota" validate:"gte=0"`
	CPUs          float64           `yaml:"cpus" mapstructure:"cpus" validate:"gte=0"`
	Memory        string            `yaml:"memory" mapstructure:"memory" validate:"omitempty,mem_size"`
	MemorySwap    string            `yaml:"memory_swap" mapstructure:"memory_swap" validate:"omitempty,mem_size"`
	RestartPolicy string            `yaml:"restart_policy" mapstructure:"restart_policy" validate:"omitempty,restart_policy"`
	// Args follow the image on the command line.
	Args []string `yaml:"args" mapstructure:"args"`
}

// Validate checks the options with their struct tags.
func (o ContainerOptions) Validate() error {
	return validation.Validate(o)
}

// RunArgs builds the docker run arguments.
func (o ContainerOptions) RunArgs() ([]string, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	ref, err := ImageRef(o.Image, o.Tag)
	if err != nil {
		return nil, err
	}

	args := []string{"run"}
	if o.RestartPolicy != "" {
		args = append(args, "--restart="+o.RestartPolicy)
	}
	if o.AutoRemove {
		args = append(args, "--rm")
	}
	if util.Deref(o.Detach, true) {
		args = append(args, "-d")
	}
	if o.Network != "" {
		args = append(args, "--network="+o.Network)
	}
	args = append(args, "--name", o.Name)
	for _, p := range o.Publish {
		args = append(args, "-p", p)
	}
	if o.CPUPeriod > 0 {
		args = append(args, "--cpu-period="+strconv.FormatInt(o.CPUPeriod, 10))
	}
	if o.CPUQuota > 0 {
		args = append(args, "--cpu-quota="+strconv.FormatInt(o.CPUQuota, 10))
	}
	if o.CPUs > 0 {
		args = append(args, "--cpus="+strconv.FormatFloat(o.CPUs, 'f', -1, 64))
	}
	if o.Memory != "" {
		args = append(args, "--memory="+o.Memory)
	}
	if o.MemorySwap != "" {
		args = append(args, "--memory-swap="+o.MemorySwap)
	}
	for _, k := range util.SortedKeys(o.Environment) {
		args = append(args, "-e", k+"="+o.Environment[k])
	}
	for _, v := range o.Volumes {
		args = append(args, "-v", v)
	}
	args = append(args, ref)
	return append(args, o.Args...), nil
}

// LogOptions controls docker logs.
type LogOptions struct {
	// Follow streams the logs: the call returns a handle instead of waiting.
	Follow     bool
	Since      string
	Until      string
	Tail       string
	Timestamps bool
	Details    bool
}

func (o LogOptions) args(name string) []string {
	args := []string{"logs"}
	if o.Follow {
		args = append(args, "--follow")
	}
	if o.Until != "" {
		args = append(args, "--until="+o.Until)
	}
	if o.Since != "" {
		args = append(args, "--since", o.Since)
	}
	if o.Tail != "" {
		args = append(args, "--tail", o.Tail)
	}
	if o.Timestamps {
		args = append(args, "--timestamps")
	}
	if o.Details {
		args = append(args, "--details")
	}
	return append(args, name)
}

// ExecOptions controls docker exec.
type ExecOptions struct {
	// Interactive keeps stdin open (-i) and makes the call stream.
	Interactive bool
	TTY         bool
	User        string
	Workdir     string
	Env         map[string]string
	Detach      bool
}

func (o ExecOptions) args(name string, command []string) []string {
	args := []string{"exec"}
	if o.Interactive {
		args = append(args, "-i")
	}
	if o.TTY {
		args = append(args, "-t")
	}
	if o.Detach {
		args = append(args, "-d")
	}
	if o.User != "" {
		args = append(args, "--user", o.User)
	}
	if o.Workdir != "" {
		args = append(args, "--workdir", o.Workdir)
	}
	for _, k := range util.SortedKeys(o.Env) {
		args = append(args, "-e", k+"="+o.Env[k])
	}
	args = append(args, name)
	return append(args, command...)
}

// Container runs lifecycle commands against one named container.
type Container struct {
	client *Client
	opts   ContainerOptions
	log    *logger.Logger
}

// Container returns a handle for the container described by opts. Only Run
// needs more than the name.
func (c *Client) Container(opts ContainerOptions) *Container {
	return &Container{
		client: c,
		opts:   opts,
		log:    c.log.WithFields(logger.Fields(logger.FieldContainerID, opts.Name)),
	}
}

// Name returns the container name.
func (ct *Container) Name() string { return ct.opts.Name }

// Options returns the options the container was created with.
func (ct *Container) Options() ContainerOptions { return ct.opts }

// Run creates the network when one is set, then runs the container. A
// network that cannot be created is logged and run proceeds.
func (ct *Container) Run(ctx context.Context, opts ...CallOption) (process.Outcome, error) {
	args, err := ct.opts.RunArgs()
	if err != nil {
		return nil, err
	}
	if ct.opts.Network != "" {
		if _, err := ct.client.CreateNetwork(ctx, NetworkOptions{Name: ct.opts.Network}); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists) {
				ct.log.Debug("network already exists", logger.Fields("network", ct.opts.Network))
			} else {
				ct.log.WithError(err).Warn("network create failed", logger.Fields("network", ct.opts.Network))
			}
		}
	}
	return ct.client.Execute(ctx, args, ct.target(opts)...)
}

// Start runs docker start.
func (ct *Container) Start(ctx context.Context, opts ...CallOption) (process.Outcome, error) {
	return ct.lifecycle(ctx, "start", opts)
}

// Stop runs docker stop.
func (ct *Container) Stop(ctx context.Context, opts ...CallOption) (process.Outcome, error) {
	return ct.lifecycle(ctx, "stop", opts)
}

// Kill runs docker kill.
func (ct *Container) Kill(ctx context.Context, opts ...CallOption) (process.Outcome, error) {
	return ct.lifecycle(ctx, "kill", opts)
}

// Restart runs docker restart.
func (ct *Container) Restart(ctx context.Context, opts ...CallOption) (process.Outcome, error) {
	return ct.lifecycle(ctx, "restart", opts)
}

// Remove runs docker rm, with -f when force is set.
func (ct *Container) Remove(ctx context.Context, force bool, opts ...CallOption) (process.Outcome, error) {
	if err := requireName("name", ct.opts.Name); err != nil {
		return nil, err
	}
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return ct.client.Execute(ctx, append(args, ct.opts.Name), ct.target(opts)...)
}

// Logs runs docker logs. With Follow the call streams and returns a handle.
func (ct *Container) Logs(ctx context.Context, lo LogOptions, opts ...CallOption) (process.Outcome, error) {
	if err := requireName("name", ct.opts.Name); err != nil {
		return nil, err
	}
	if lo.Follow {
		opts = append(opts[:len(opts):len(opts)], Streaming())
	}
	return ct.client.Execute(ctx, lo.args(ct.opts.Name), ct.target(opts)...)
}

// Exec runs command inside the container. Interactive execs stream so the
// caller can write to the returned handle.
func (ct *Container) Exec(ctx context.Context, command []string, eo ExecOptions, opts ...CallOption) (process.Outcome, error) {
	if err := requireName("name", ct.opts.Name); err != nil {
		return nil, err
	}
	if len(command) == 0 {
		return nil, apperrors.MissingField("command")
	}
	if eo.Interactive {
		opts = append(opts[:len(opts):len(opts)], Streaming())
	}
	return ct.client.Execute(ctx, eo.args(ct.opts.Name, command), ct.target(opts)...)
}

// Inspect decodes docker inspect output. A missing container is NOT_FOUND.
func (ct *Container) Inspect(ctx context.Context) (*container.InspectResponse, error) {
	if err := requireName("name", ct.opts.Name); err != nil {
		return nil, err
	}
	res, err := ct.client.query(ctx, "container", ct.opts.Name,
		[]string{"inspect", "--type", "container", ct.opts.Name})
	if err != nil {
		return nil, err
	}
	var out []container.InspectResponse
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		return nil, apperrors.ParseFailed("docker inspect", err)
	}
	if len(out) == 0 {
		return nil, apperrors.NotFound("container", ct.opts.Name)
	}
	return &out[0], nil
}

// Stats returns a single stats sample for the container.
func (ct *Container) Stats(ctx context.Context) (*ContainerStats, error) {
	if err := requireName("name", ct.opts.Name); err != nil {
		return nil, err
	}
	stats, err := ct.client.Stats(ctx, ct.opts.Name)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, apperrors.NotFound("container", ct.opts.Name)
	}
	return &stats[0], nil
}

func (ct *Container) lifecycle(ctx context.Context, verb string, opts []CallOption) (process.Outcome, error) {
	if err := requireName("name", ct.opts.Name); err != nil {
		return nil, err
	}
	return ct.client.Execute(ctx, []string{verb, ct.opts.Name}, ct.target(opts)...)
}

func (ct *Container) target(opts []CallOption) []CallOption {
	return append(opts[:len(opts):len(opts)], withTarget(ct.opts.Name))
}

// RunContainer runs a new container and returns it with the run outcome.
func (c *Client) RunContainer(ctx context.Context, opts ContainerOptions, callOpts ...CallOption) (*Container, process.Outcome, error) {
	ct := c.Container(opts)
	out, err := ct.Run(ctx, callOpts...)
	if err != nil {
		return nil, out, err
	}
	c.log.Debug("container run", logger.Fields(
		logger.FieldContainerID, opts.Name,
		logger.FieldImage, opts.Image,
	))
	return ct, out, nil
}
