package process_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/observability"
	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/resilience"
)

// recorder is a Sink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []process.Event
	at     []time.Time
}

func (r *recorder) sink(e process.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.at = append(r.at, time.Now())
}

func (r *recorder) snapshot() []process.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Event(nil), r.events...)
}

func (r *recorder) stream(kind process.EventKind) string {
	var b strings.Builder
	for _, e := range r.snapshot() {
		if e.Kind == kind {
			b.Write(e.Chunk)
		}
	}
	return b.String()
}

func (r *recorder) last() process.Event {
	events := r.snapshot()
	if len(events) == 0 {
		return process.Event{}
	}
	return events[len(events)-1]
}

func newRunner() *process.Runner {
	return process.NewRunner(process.Config{}, process.WithLogger(logger.Nop()))
}

func TestParse(t *testing.T) {
	tests := []struct {
		line   string
		binary string
		args   []string
	}{
		{"echo hello", "echo", []string{"hello"}},
		{"  docker   ps  -a ", "docker", []string{"ps", "-a"}},
		{"docker\tlogs\n web", "docker", []string{"logs", "web"}},
		{"true", "true", []string{}},
	}
	for _, tc := range tests {
		cmd, err := process.Parse(tc.line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.line, err)
		}
		if cmd.Binary != tc.binary {
			t.Errorf("Parse(%q): binary %q, want %q", tc.line, cmd.Binary, tc.binary)
		}
		if strings.Join(cmd.Args, ",") != strings.Join(tc.args, ",") {
			t.Errorf("Parse(%q): args %q, want %q", tc.line, cmd.Args, tc.args)
		}
	}
}

func TestFromArgs_DropsEmptyTokens(t *testing.T) {
	cmd, err := process.FromArgs([]string{" ", "docker", "", " stop ", "web"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.String() != "docker stop web" {
		t.Fatalf("expected 'docker stop web', got %q", cmd.String())
	}
	if _, err := process.FromArgs([]string{"", " "}); !apperrors.HasCode(err, apperrors.ErrCodeInvalidCommand) {
		t.Fatalf("expected INVALID_COMMAND, got %v", err)
	}
}

func TestRunEcho(t *testing.T) {
	var rec recorder
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "echo",
		Args:   []string{"hello"},
	}, rec.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text() != "hello\n" {
		t.Fatalf("expected 'hello\\n', got %q", result.Text())
	}
	if got := rec.stream(process.EventStdout); got != "hello\n" {
		t.Fatalf("expected sink to see 'hello\\n', got %q", got)
	}
	if last := rec.last(); last.Kind != process.EventExit || last.ExitCode != 0 {
		t.Fatalf("expected exit event with code 0 last, got %+v", last)
	}
	if result.PID <= 0 {
		t.Fatalf("expected a pid, got %d", result.PID)
	}
}

func TestRunBothStreams(t *testing.T) {
	var rec recorder
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out-line; echo err-line >&2"},
	}, rec.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.Text()
	if !strings.Contains(out, "out-line\n") || !strings.Contains(out, "err-line\n") {
		t.Fatalf("expected both streams in output, got %q", out)
	}
	if len(out) != len("out-line\nerr-line\n") {
		t.Fatalf("expected nothing else in output, got %q", out)
	}
	if string(result.Stdout) != "out-line\n" {
		t.Fatalf("expected stdout 'out-line\\n', got %q", result.Stdout)
	}
	if string(result.Stderr) != "err-line\n" {
		t.Fatalf("expected stderr 'err-line\\n', got %q", result.Stderr)
	}
	if rec.stream(process.EventStderr) != "err-line\n" {
		t.Fatalf("expected sink stderr chunk, got %q", rec.stream(process.EventStderr))
	}
}

func TestRunStreamOrder(t *testing.T) {
	var rec recorder
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "for i in 1 2 3 4 5; do echo $i; done"},
	}, rec.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.stream(process.EventStdout); got != "1\n2\n3\n4\n5\n" {
		t.Fatalf("expected chunks in writer order, got %q", got)
	}
	if string(result.Stdout) != "1\n2\n3\n4\n5\n" {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
}

func TestRunInputs(t *testing.T) {
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "cat",
		Inputs: []string{"a", "b"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Stdout) != "a\nb\n" {
		t.Fatalf("expected 'a\\nb\\n', got %q", result.Stdout)
	}
}

func TestRunNoInputsReadsEOF(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := newRunner().Run(context.Background(), process.Command{Binary: "cat"}, nil)
		if err != nil || len(result.Output) != 0 {
			t.Errorf("expected empty output, got %v, %v", result, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cat without inputs should see EOF on stdin")
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	var rec recorder
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo missing >&2; exit 42"},
	}, rec.sink)
	if err != nil {
		t.Fatalf("non-zero exit must not be an error, got %v", err)
	}
	if result.ExitCode != 42 || result.Success() {
		t.Fatalf("expected exit code 42, got %d", result.ExitCode)
	}
	if last := rec.last(); last.Kind != process.EventExit || last.ExitCode != 42 {
		t.Fatalf("expected exit event 42, got %+v", last)
	}
	for _, e := range rec.snapshot() {
		if e.Kind == process.EventError {
			t.Fatalf("unexpected error event %v", e.Err)
		}
	}
}

func TestRunSpawnFailure(t *testing.T) {
	var rec recorder
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "/nonexistent/binary/xyz",
	}, rec.sink)
	if !apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed) {
		t.Fatalf("expected SPAWN_FAILED, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}
	events := rec.snapshot()
	if len(events) != 1 || events[0].Kind != process.EventError {
		t.Fatalf("expected exactly one error event before return, got %+v", events)
	}
	if !apperrors.HasCode(events[0].Err, apperrors.ErrCodeSpawnFailed) {
		t.Fatalf("expected sink error to be SPAWN_FAILED, got %v", events[0].Err)
	}
	if apperrors.IsRetryable(err) {
		t.Fatal("a missing binary should not be retryable")
	}
}

func TestRunEnvAndDir(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	result, err := newRunner().Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo $DOCKERKIT_TEST_VAR; pwd"},
		Env:    []string{"DOCKERKIT_TEST_VAR=from-env"},
		Dir:    dir,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "from-env\n" + dir + "\n"; string(result.Stdout) != want {
		t.Fatalf("expected %q, got %q", want, result.Stdout)
	}
}

func TestRunContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var rec recorder
	start := time.Now()
	result, err := newRunner().Run(ctx, process.Command{
		Binary:      "sleep",
		Args:        []string{"10"},
		GracePeriod: time.Second,
	}, rec.sink)
	if !apperrors.HasCode(err, apperrors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("process should have been terminated on timeout")
	}
	if result == nil || result.ExitCode != -1 {
		t.Fatalf("expected partial result with exit -1, got %+v", result)
	}
	if last := rec.last(); last.Kind != process.EventExit {
		t.Fatalf("expected exit event last, got %+v", last)
	}
}

func TestRunnerTimeoutConfig(t *testing.T) {
	r := process.NewRunner(process.Config{Timeout: 100 * time.Millisecond}, process.WithLogger(logger.Nop()))
	_, err := r.Run(context.Background(), process.Command{Binary: "sleep", Args: []string{"10"}}, nil)
	if !apperrors.HasCode(err, apperrors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT from runner config, got %v", err)
	}
}

func TestStreamingReturnsImmediately(t *testing.T) {
	var rec recorder
	start := time.Now()
	out, err := newRunner().Execute(context.Background(), process.Request{
		Command: process.Command{Binary: "sleep", Args: []string{"1"}},
		Sink:    rec.sink,
		Mode:    process.ModeStreaming,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("streaming mode blocked for %v", elapsed)
	}
	s, ok := out.(process.Streaming)
	if !ok {
		t.Fatalf("expected Streaming outcome, got %T", out)
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("expected no events yet, got %+v", rec.snapshot())
	}

	code, err := s.Handle.Wait(context.Background())
	if err != nil || code != 0 {
		t.Fatalf("expected clean exit, got %d, %v", code, err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].Kind != process.EventExit {
		t.Fatalf("expected a single exit event, got %+v", rec.events)
	}
	if d := rec.at[0].Sub(start); d < 900*time.Millisecond {
		t.Fatalf("exit event arrived after %v, before the sleep elapsed", d)
	}
}

func TestStreamingHandleStdin(t *testing.T) {
	var rec recorder
	h, err := newRunner().Start(context.Background(), process.Command{Binary: "cat"}, rec.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.PID() <= 0 {
		t.Fatalf("expected a pid, got %d", h.PID())
	}
	if err := h.WriteLine("ping"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := h.CloseInput(); err != nil {
		t.Fatalf("CloseInput: %v", err)
	}
	if err := h.CloseInput(); err != nil {
		t.Fatalf("second CloseInput should be a no-op, got %v", err)
	}
	if _, err := h.Write([]byte("late")); err != process.ErrInputClosed {
		t.Fatalf("expected ErrInputClosed, got %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cat did not exit after stdin was closed")
	}
	if got := rec.stream(process.EventStdout); got != "ping\n" {
		t.Fatalf("expected 'ping\\n', got %q", got)
	}
}

func TestStreamingInputsCloseStdin(t *testing.T) {
	var rec recorder
	h, err := newRunner().Start(context.Background(), process.Command{
		Binary: "cat",
		Inputs: []string{"x"},
	}, rec.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		t.Fatalf("expected cat to exit after scripted inputs, got %v", err)
	}
	if got := rec.stream(process.EventStdout); got != "x\n" {
		t.Fatalf("expected 'x\\n', got %q", got)
	}
}

func TestStreamingKill(t *testing.T) {
	var rec recorder
	h, err := newRunner().Start(context.Background(), process.Command{Binary: "sleep", Args: []string{"30"}}, rec.sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("a killed process is an exit, not an error: %v", err)
	}
	if code != -1 {
		t.Fatalf("expected -1 for a signalled process, got %d", code)
	}
	if err := h.Signal(os.Interrupt); err != os.ErrProcessDone {
		t.Fatalf("expected ErrProcessDone after exit, got %v", err)
	}
	if last := rec.last(); last.Kind != process.EventExit || last.ExitCode != -1 {
		t.Fatalf("expected exit event -1, got %+v", last)
	}
}

func TestStreamingSpawnFailure(t *testing.T) {
	var rec recorder
	out, err := newRunner().Execute(context.Background(), process.Request{
		Command: process.Command{Binary: "/nonexistent/binary/xyz"},
		Sink:    rec.sink,
		Mode:    process.ModeStreaming,
	})
	if !apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed) || out != nil {
		t.Fatalf("expected SPAWN_FAILED and no outcome, got %v, %v", out, err)
	}
	if events := rec.snapshot(); len(events) != 1 || events[0].Kind != process.EventError {
		t.Fatalf("expected one error event, got %+v", events)
	}
}

func TestVerboseLogsWithPID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "info", Format: "json"}, "dockerkit", &buf)
	r := process.NewRunner(process.Config{}, process.WithLogger(log))

	out, err := r.Execute(context.Background(), process.Request{
		Command: process.Command{Binary: "echo", Args: []string{"verbose-chunk"}},
		Verbose: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pid := out.(process.Completed).Result.PID

	var sawChunk, sawCommand bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if m[logger.FieldPID] != float64(pid) {
			t.Errorf("expected pid %d on every line, got %v", pid, m[logger.FieldPID])
		}
		switch m["message"] {
		case "verbose-chunk":
			sawChunk = m[logger.FieldStream] == "stdout"
		case "> echo verbose-chunk":
			sawCommand = true
		}
	}
	if !sawChunk || !sawCommand {
		t.Fatalf("expected command and chunk lines, got %q", buf.String())
	}
}

func TestQuietRunnerLogsNothingAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "info", Format: "json"}, "dockerkit", &buf)
	r := process.NewRunner(process.Config{}, process.WithLogger(log))
	if _, err := r.Run(context.Background(), process.Command{Binary: "echo", Args: []string{"x"}}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no info output without verbose, got %q", buf.String())
	}
}

func TestPolicy_BreakerTripsOnSpawnFailures(t *testing.T) {
	r := process.NewRunner(process.Config{
		Resilience: resilience.PolicyConfig{
			CircuitBreaker: &resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute},
		},
	}, process.WithLogger(logger.Nop()))

	missing := process.Command{Binary: "/nonexistent/binary/xyz"}
	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), missing, nil); !apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed) {
			t.Fatalf("attempt %d: expected SPAWN_FAILED, got %v", i, err)
		}
	}

	spawned := false
	_, err := r.Run(context.Background(), process.Command{Binary: "true"}, func(process.Event) { spawned = true })
	if !apperrors.HasCode(err, apperrors.ErrCodeServiceUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE once the breaker is open, got %v", err)
	}
	if spawned {
		t.Fatal("expected nothing to run while the breaker is open")
	}
}

func TestPolicy_NonZeroExitNeverTrips(t *testing.T) {
	r := process.NewRunner(process.Config{
		Resilience: resilience.PolicyConfig{
			CircuitBreaker: &resilience.CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute},
		},
	}, process.WithLogger(logger.Nop()))
	for i := 0; i < 3; i++ {
		result, err := r.Run(context.Background(), process.Command{Binary: "false"}, nil)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if result.ExitCode != 1 {
			t.Fatalf("expected exit 1, got %d", result.ExitCode)
		}
	}
}

func TestPolicy_MissingBinaryIsNotRetried(t *testing.T) {
	r := process.NewRunner(process.Config{
		Resilience: resilience.PolicyConfig{
			Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
		},
	}, process.WithLogger(logger.Nop()))

	var rec recorder
	_, err := r.Run(context.Background(), process.Command{Binary: "/nonexistent/binary/xyz"}, rec.sink)
	if !apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed) {
		t.Fatalf("expected SPAWN_FAILED, got %v", err)
	}
	if n := len(rec.snapshot()); n != 1 {
		t.Fatalf("expected a single attempt, got %d error events", n)
	}
}

func TestPolicy_MaxConcurrentCountsLiveProcesses(t *testing.T) {
	r := process.NewRunner(process.Config{
		Resilience: resilience.PolicyConfig{MaxConcurrent: 1},
	}, process.WithLogger(logger.Nop()))
	sleep := process.Command{Binary: "sleep", Args: []string{"0.3"}}

	h, err := r.Start(context.Background(), sleep, nil)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := r.Start(context.Background(), sleep, nil); !apperrors.HasCode(err, apperrors.ErrCodeServiceUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE while the first process runs, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	// the slot is handed back right after the exit event
	deadline := time.Now().Add(time.Second)
	for {
		_, err = r.Run(context.Background(), process.Command{Binary: "true"}, nil)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("expected the slot to be free after exit, got %v", err)
	}
}

func TestTracingAndMetrics(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewProcessMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewProcessMetrics: %v", err)
	}

	r := process.NewRunner(process.Config{},
		process.WithLogger(logger.Nop()),
		process.WithTracer(tp.Tracer("test")),
		process.WithMetrics(metrics),
	)
	if _, err := r.Run(context.Background(), process.Command{Binary: "sh", Args: []string{"-c", "exit 3"}}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != observability.SpanProcessExecute {
		t.Fatalf("expected one %s span, got %d", observability.SpanProcessExecute, len(spans))
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[observability.AttrProcessExitCode].AsInt64() != 3 {
		t.Errorf("expected exit code attribute 3, got %v", attrs[observability.AttrProcessExitCode])
	}
	if attrs[observability.AttrProcessBinary].AsString() != "sh" {
		t.Errorf("expected binary attribute sh, got %v", attrs[observability.AttrProcessBinary])
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
		}
	}
	for _, name := range []string{"process.started", "process.exited", "process.duration"} {
		if !found[name] {
			t.Errorf("expected metric %s to be recorded", name)
		}
	}
}

func TestConcurrentRuns(t *testing.T) {
	r := newRunner()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := strings.Repeat("x", i+1)
			result, err := r.Run(context.Background(), process.Command{Binary: "echo", Args: []string{want}}, nil)
			if err != nil {
				t.Errorf("run %d: %v", i, err)
				return
			}
			if string(result.Stdout) != want+"\n" {
				t.Errorf("run %d: got %q", i, result.Stdout)
			}
		}(i)
	}
	wg.Wait()
}

func TestPackageLevelRun(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{Binary: "echo", Args: []string{"hi"}}, nil)
	if err != nil || result.Text() != "hi\n" {
		t.Fatalf("expected 'hi\\n', got %v, %v", result, err)
	}
}

func TestConfig(t *testing.T) {
	cfg := process.Config{}
	cfg.ApplyDefaults()
	if cfg.GracePeriod != process.DefaultGracePeriod {
		t.Errorf("expected default grace period, got %v", cfg.GracePeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	cfg.Timeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected negative timeout to be rejected")
	}
}
