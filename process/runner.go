package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/observability"
	"github.com/kbukum/dockerkit/resilience"
)

// Request is one invocation of the runner.
type Request struct {
	Command Command
	// Sink observes output, errors and the exit code. May be nil.
	Sink Sink
	Mode Mode
	// Verbose echoes this invocation to the logger, tagged with its pid.
	Verbose bool
}

// commandFunc matches exec.CommandContext.
type commandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Runner spawns processes and reports their output through a Sink. A Runner
// holds no per-invocation state and is safe for concurrent use.
type Runner struct {
	config  Config
	log     *logger.Logger
	policy  *resilience.Policy
	metrics *observability.ProcessMetrics
	tracer  trace.Tracer
	command commandFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for lifecycle and verbose output.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithPolicy replaces the policy built from Config.Resilience.
func WithPolicy(p *resilience.Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithMetrics records process instruments on m.
func WithMetrics(m *observability.ProcessMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer sets the tracer used for process.execute spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, opts ...Option) *Runner {
	cfg.ApplyDefaults()
	r := &Runner{
		config:  cfg,
		log:     logger.Get("process"),
		tracer:  observability.Tracer(),
		command: exec.CommandContext,
	}
	if cfg.Resilience.Enabled() {
		r.policy = resilience.NewPolicy(policyConfig(cfg.Resilience))
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs req.Command.
//
// In ModeBlocking it returns Completed once the process has exited and both
// streams are drained, whatever the exit code. In ModeStreaming it returns
// Streaming right after spawn, and exit or failure is reported only through
// the sink and the handle. A command without a program name fails with
// INVALID_COMMAND before anything is spawned. A spawn failure is delivered to
// the sink first and then returned as SPAWN_FAILED.
//
// ctx bounds the process lifetime in both modes: on cancellation the process
// group receives SIGTERM, then SIGKILL after the grace period. A cancelled
// blocking run returns the partial result together with CANCELED or TIMEOUT.
func (r *Runner) Execute(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Command.Validate(); err != nil {
		return nil, err
	}
	return resilience.Do(ctx, r.policy, func(ctx context.Context) (Outcome, error) {
		return r.execute(ctx, req)
	})
}

// Run executes cmd in blocking mode.
func (r *Runner) Run(ctx context.Context, cmd Command, sink Sink) (*Result, error) {
	out, err := r.Execute(ctx, Request{Command: cmd, Sink: sink, Mode: ModeBlocking})
	if c, ok := out.(Completed); ok {
		return c.Result, err
	}
	return nil, err
}

// Start executes cmd in streaming mode.
func (r *Runner) Start(ctx context.Context, cmd Command, sink Sink) (*Handle, error) {
	out, err := r.Execute(ctx, Request{Command: cmd, Sink: sink, Mode: ModeStreaming})
	if err != nil {
		return nil, err
	}
	return out.(Streaming).Handle, nil
}

func (r *Runner) execute(ctx context.Context, req Request) (Outcome, error) {
	c := req.Command
	if req.Mode == ModeBlocking && r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	ctx, span := r.tracer.Start(ctx, observability.SpanProcessExecute, trace.WithAttributes(
		attribute.String(observability.AttrProcessBinary, c.Binary),
		attribute.String(observability.AttrProcessMode, req.Mode.String()),
	))
	log := r.log.WithContext(ctx)
	out := &collector{sink: req.Sink, collect: req.Mode == ModeBlocking}

	cmd := r.command(ctx, c.Binary, c.Args...) //nolint:gosec // dynamic args are the purpose of this package
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(c.Env)
	cmd.Stdout = out.writer(EventStdout)
	cmd.Stderr = out.writer(EventStderr)

	// Use process group so we can kill the entire tree
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.gracePeriod(c)

	var stdin io.WriteCloser
	if len(c.Inputs) > 0 || req.Mode == ModeStreaming {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, r.spawnFailed(ctx, span, out, c, err)
		}
	}

	// Output goroutines block on the collector until the pid-tagged logger is set.
	out.mu.Lock()
	start := time.Now()
	if err := cmd.Start(); err != nil {
		out.mu.Unlock()
		return nil, r.spawnFailed(ctx, span, out, c, err)
	}
	pid := cmd.Process.Pid
	log = log.WithFields(logger.Fields(logger.FieldPID, pid, logger.FieldCommand, c.String()))
	if req.Verbose || r.config.Verbose {
		out.log = log
		log.Info("> " + c.String())
	} else {
		log.Debug("process started", logger.Fields(logger.FieldMode, req.Mode.String()))
	}
	out.mu.Unlock()

	span.SetAttributes(attribute.Int(observability.AttrProcessPID, pid))
	if r.metrics != nil {
		r.metrics.RecordStart(ctx, c.Binary, req.Mode.String())
	}

	if len(c.Inputs) > 0 {
		out.writeInputs(stdin, c)
		stdin = nil
	}

	if req.Mode == ModeStreaming {
		h := newHandle(cmd, stdin)
		go func() {
			code, err := r.wait(ctx, cmd, out, c)
			r.finish(ctx, span, log, c, code, time.Since(start), err)
			h.finish(code, err)
		}()
		return Streaming{Handle: h}, nil
	}

	code, err := r.wait(ctx, cmd, out, c)
	d := time.Since(start)
	r.finish(ctx, span, log, c, code, d, err)
	return Completed{Result: out.result(code, pid, d)}, err
}

// wait reaps the process and emits its terminal events. A non-zero exit is
// not an error.
func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd, out *collector, c Command) (int, error) {
	waitErr := cmd.Wait()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil || (errors.As(waitErr, &exitErr) && ctx.Err() == nil):
		out.emit(Event{Kind: EventExit, ExitCode: code})
		return code, nil
	case ctx.Err() != nil:
		err := apperrors.FromContext(c.String(), ctx.Err())
		out.emit(Event{Kind: EventError, Err: err})
		out.emit(Event{Kind: EventExit, ExitCode: code})
		return code, err
	default:
		err := apperrors.ProcessFailed(c.Binary, waitErr)
		out.emit(Event{Kind: EventError, Err: err})
		return code, err
	}
}

func (r *Runner) spawnFailed(ctx context.Context, span trace.Span, out *collector, c Command, cause error) error {
	var err *apperrors.AppError
	if ctx.Err() != nil {
		err = apperrors.FromContext(c.String(), ctx.Err())
	} else {
		err = apperrors.SpawnFailed(c.Binary, cause)
		if r.metrics != nil {
			r.metrics.RecordSpawnFailure(ctx, c.Binary)
		}
	}
	out.emit(Event{Kind: EventError, Err: err})
	r.log.WithContext(ctx).WithError(cause).Warn("process spawn failed",
		logger.Fields(logger.FieldCommand, c.String()))
	observability.EndSpan(span, err)
	return err
}

func (r *Runner) finish(ctx context.Context, span trace.Span, log *logger.Logger, c Command, code int, d time.Duration, err error) {
	span.SetAttributes(attribute.Int(observability.AttrProcessExitCode, code))
	observability.EndSpan(span, err)
	if r.metrics != nil {
		r.metrics.RecordExit(ctx, c.Binary, code, d)
	}
	log.Debug("process exited", logger.Fields(
		logger.FieldExitCode, code,
		logger.FieldDuration, d.Milliseconds(),
	))
}

func (r *Runner) gracePeriod(c Command) time.Duration {
	if c.GracePeriod > 0 {
		return c.GracePeriod
	}
	return r.config.GracePeriod
}

// collector serializes sink calls for one invocation and, in blocking mode,
// accumulates the output.
type collector struct {
	mu      sync.Mutex
	sink    Sink
	log     *logger.Logger
	collect bool

	output bytes.Buffer
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (c *collector) writer(kind EventKind) io.Writer {
	return &streamWriter{c: c, kind: kind}
}

func (c *collector) emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.echo(e)
	c.sink.emit(e)
}

func (c *collector) echo(e Event) {
	if c.log == nil {
		return
	}
	switch e.Kind {
	case EventStdout, EventStderr:
		c.log.Info(strings.TrimRight(string(e.Chunk), "\n"), logger.Fields(logger.FieldStream, e.Kind.String()))
	case EventError:
		c.log.WithError(e.Err).Error("process error")
	case EventExit:
		c.log.Info("process exited", logger.Fields(logger.FieldExitCode, e.ExitCode))
	}
}

// writeInputs writes each input as a line, then closes stdin. A write failure
// is reported to the sink only.
func (c *collector) writeInputs(stdin io.WriteCloser, cmd Command) {
	defer stdin.Close()
	for _, in := range cmd.Inputs {
		if _, err := io.WriteString(stdin, in+"\n"); err != nil {
			c.emit(Event{Kind: EventError, Err: apperrors.ProcessFailed(cmd.Binary, err).WithDetail("stage", "stdin")})
			return
		}
	}
}

func (c *collector) result(code, pid int, d time.Duration) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Result{
		Output:   c.output.Bytes(),
		Stdout:   c.stdout.Bytes(),
		Stderr:   c.stderr.Bytes(),
		ExitCode: code,
		PID:      pid,
		Duration: d,
	}
}

type streamWriter struct {
	c    *collector
	kind EventKind
}

func (w *streamWriter) Write(p []byte) (int, error) {
	chunk := bytes.Clone(p)
	c := w.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collect {
		c.output.Write(chunk)
		if w.kind == EventStdout {
			c.stdout.Write(chunk)
		} else {
			c.stderr.Write(chunk)
		}
	}
	e := Event{Kind: w.kind, Chunk: chunk}
	c.echo(e)
	c.sink.emit(e)
	return len(p), nil
}

var defaultRunner = sync.OnceValue(func() *Runner { return NewRunner(Config{}) })

// Execute runs req on a Runner with default config.
func Execute(ctx context.Context, req Request) (Outcome, error) {
	return defaultRunner().Execute(ctx, req)
}

// Run runs cmd in blocking mode on a Runner with default config.
func Run(ctx context.Context, cmd Command, sink Sink) (*Result, error) {
	return defaultRunner().Run(ctx, cmd, sink)
}
