package docker

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/component"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/observability"
	"github.com/kbukum/dockerkit/process"
)

// Client runs docker commands. It is safe for concurrent use.
type Client struct {
	cfg    Config
	runner *process.Runner
	log    *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunner sets the runner used for every invocation.
func WithRunner(r *process.Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Client. Without WithRunner it uses a runner with
// default config.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.ApplyDefaults()
	c := &Client{cfg: cfg, log: logger.Get("docker")}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = process.NewRunner(process.Config{}, process.WithLogger(c.log))
	}
	return c
}

// Config returns the client config with defaults applied.
func (c *Client) Config() Config { return c.cfg }

// Command builds the process command for a docker invocation. Global flags
// come first.
func (c *Client) Command(args ...string) process.Command {
	argv := make([]string, 0, len(args)+2)
	if c.cfg.Context != "" {
		argv = append(argv, "--context", c.cfg.Context)
	}
	argv = append(argv, args...)

	cmd := process.Command{Binary: c.cfg.Binary, Args: argv}
	if c.cfg.Host != "" {
		cmd.Env = []string{"DOCKER_HOST=" + c.cfg.Host}
	}
	return cmd
}

// CallOption adjusts a single invocation.
type CallOption func(*call)

type call struct {
	sink    process.Sink
	mode    process.Mode
	inputs  []string
	dir     string
	env     []string
	verbose bool
	target  string
}

// WithSink delivers output, errors and the exit code to sink.
func WithSink(sink process.Sink) CallOption {
	return func(c *call) { c.sink = sink }
}

// Streaming returns a process handle instead of waiting for exit.
func Streaming() CallOption {
	return func(c *call) { c.mode = process.ModeStreaming }
}

// WithInputs writes lines to stdin after spawn, then closes it.
func WithInputs(lines ...string) CallOption {
	return func(c *call) { c.inputs = append(c.inputs, lines...) }
}

// WithDir sets the working directory.
func WithDir(dir string) CallOption {
	return func(c *call) { c.dir = dir }
}

// WithEnv adds KEY=VALUE pairs to the environment.
func WithEnv(kv ...string) CallOption {
	return func(c *call) { c.env = append(c.env, kv...) }
}

// Verbose echoes the invocation to the logger.
func Verbose() CallOption {
	return func(c *call) { c.verbose = true }
}

func withTarget(target string) CallOption {
	return func(c *call) { c.target = target }
}

func newCall(opts []CallOption) call {
	var cl call
	for _, opt := range opts {
		opt(&cl)
	}
	return cl
}

// Execute runs docker with args. The docker.command span covers the whole
// process lifetime, also in streaming mode.
func (c *Client) Execute(ctx context.Context, args []string, opts ...CallOption) (process.Outcome, error) {
	cl := newCall(opts)
	cmd := c.Command(args...)
	cmd.Dir = cl.dir
	cmd.Env = append(cmd.Env, cl.env...)
	cmd.Inputs = cl.inputs

	attrs := []attribute.KeyValue{attribute.String(observability.AttrDockerOperation, operation(args))}
	if cl.target != "" {
		attrs = append(attrs, attribute.String(observability.AttrDockerTarget, cl.target))
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanDockerCommand, trace.WithAttributes(attrs...))
	out, err := c.runner.Execute(ctx, process.Request{
		Command: cmd,
		Sink:    cl.sink,
		Mode:    cl.mode,
		Verbose: cl.verbose || c.cfg.Verbose,
	})
	if s, ok := out.(process.Streaming); ok && err == nil {
		go endWhenDone(span, s.Handle)
		return out, nil
	}
	observability.EndSpan(span, err)
	return out, err
}

// endWhenDone ends the span of a streaming call once its process has exited.
func endWhenDone(span trace.Span, h *process.Handle) {
	<-h.Done()
	code, err := h.Wait(context.Background())
	span.SetAttributes(attribute.Int(observability.AttrProcessExitCode, code))
	observability.EndSpan(span, err)
}

// run executes args in blocking mode whatever the call options say.
func (c *Client) run(ctx context.Context, args []string, opts ...CallOption) (process.Command, *process.Result, error) {
	opts = append(opts[:len(opts):len(opts)], func(cl *call) { cl.mode = process.ModeBlocking })
	out, err := c.Execute(ctx, args, opts...)
	cmd := c.Command(args...)
	if done, ok := out.(process.Completed); ok {
		return cmd, done.Result, err
	}
	return cmd, nil, err
}

// query runs args, classifies a non-zero exit and returns the result.
func (c *Client) query(ctx context.Context, resource, id string, args []string, opts ...CallOption) (*process.Result, error) {
	cmd, res, err := c.run(ctx, args, append(opts[:len(opts):len(opts)], withTarget(id))...)
	if err != nil {
		return nil, err
	}
	if err := classify(cmd, res, resource, id); err != nil {
		return res, err
	}
	return res, nil
}

// Ping returns the daemon version. A daemon that does not answer is
// SERVICE_UNAVAILABLE.
func (c *Client) Ping(ctx context.Context) (string, error) {
	cmd, res, err := c.run(ctx, []string{"version", "--format", "{{.Server.Version}}"})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", apperrors.ServiceUnavailable("docker daemon").
			WithCause(apperrors.CommandFailed(cmd.String(), res.ExitCode, string(res.Stderr)))
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// operation names the docker subcommand for spans ("network create", "run").
func operation(args []string) string {
	var words []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") || len(words) == 2 {
			break
		}
		words = append(words, a)
	}
	if len(words) == 2 && !isGroup(words[0]) {
		words = words[:1]
	}
	return strings.Join(words, " ")
}

func isGroup(word string) bool {
	switch word {
	case "network", "image", "container", "volume", "context", "system":
		return true
	}
	return false
}

var _ component.Component = (*Client)(nil)

func (c *Client) Name() string { return "docker" }

// Start checks that the daemon answers.
func (c *Client) Start(ctx context.Context) error {
	version, err := c.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker start: %w", err)
	}
	c.log.Info("docker daemon reachable", logger.Fields("server_version", version, "binary", c.cfg.Binary))
	return nil
}

func (c *Client) Stop(_ context.Context) error { return nil }

func (c *Client) Health(ctx context.Context) component.Health {
	version, err := c.Ping(ctx)
	if err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("health check failed: %v", err),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "server " + version}
}
