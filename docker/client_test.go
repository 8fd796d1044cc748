package docker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/dockerkit/component"
	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/observability"
	"github.com/kbukum/dockerkit/process"
)

const statsJSON = `{"BlockIO":"0B / 4kB","CPUPerc":"0.15%","Container":"3f2a","ID":"3f2a","MemPerc":"0.05%","MemUsage":"3.5MiB / 7.5GiB","Name":"web","NetIO":"1.5kB / 648B","PIDs":"2"}`

func completed(t *testing.T, out process.Outcome) *process.Result {
	t.Helper()
	done, ok := out.(process.Completed)
	require.True(t, ok, "expected a completed outcome, got %T", out)
	return done.Result
}

type events struct {
	mu  sync.Mutex
	out strings.Builder
}

func (e *events) sink(ev process.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.Kind == process.EventStdout {
		e.out.Write(ev.Chunk)
	}
}

func (e *events) stdout() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.String()
}

func TestContainer_RunCreatesNetworkFirst(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond("3f2a9c\n", "", 0)
	c := fake.client(Config{})

	ct, out, err := c.RunContainer(context.Background(), ContainerOptions{Name: "web", Image: "nginx", Network: "net1"})
	require.NoError(t, err)
	assert.Equal(t, "web", ct.Name())
	res := completed(t, out)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "3f2a9c\n", string(res.Stdout))

	want := []string{
		"network create net1",
		"run -d --network=net1 --name web nginx:latest",
	}
	if diff := cmp.Diff(want, fake.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_RunWithExistingNetwork(t *testing.T) {
	fake := newFakeDocker(t)
	fake.FailNetworkCreate("Error response from daemon: network with name net1 already exists", 1)
	c := fake.client(Config{})

	out, err := c.Container(ContainerOptions{Name: "web", Image: "nginx", Network: "net1"}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, completed(t, out).ExitCode)
	assert.Len(t, fake.Calls(), 2)
}

func TestContainer_InvalidOptionsSpawnNothing(t *testing.T) {
	fake := newFakeDocker(t)
	c := fake.client(Config{})

	_, err := c.Container(ContainerOptions{Name: "web"}).Run(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	_, err = c.Container(ContainerOptions{}).Stop(context.Background())
	assert.Error(t, err)

	_, err = c.Container(ContainerOptions{Name: "web"}).Exec(context.Background(), nil, ExecOptions{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))

	assert.Empty(t, fake.Calls())
}

func TestContainer_Lifecycle(t *testing.T) {
	fake := newFakeDocker(t)
	c := fake.client(Config{})
	ct := c.Container(ContainerOptions{Name: "web"})
	ctx := context.Background()

	ops := []func(context.Context, ...CallOption) (process.Outcome, error){ct.Start, ct.Stop, ct.Kill, ct.Restart}
	for _, op := range ops {
		out, err := op(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, completed(t, out).ExitCode)
	}
	_, err := ct.Remove(ctx, true)
	require.NoError(t, err)

	want := []string{"start web", "stop web", "kill web", "restart web", "rm -f web"}
	if diff := cmp.Diff(want, fake.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_NonZeroExitIsNotAnError(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond("", "Error response from daemon: No such container: web\n", 1)
	c := fake.client(Config{})

	out, err := c.Container(ContainerOptions{Name: "web"}).Stop(context.Background())
	require.NoError(t, err)
	res := completed(t, out)
	assert.Equal(t, 1, res.ExitCode)
	assert.False(t, res.Success())
	assert.Contains(t, string(res.Stderr), "No such container")
}

func TestContainer_FollowLogsStreams(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond("first\nsecond\n", "", 0)
	c := fake.client(Config{})
	rec := &events{}

	out, err := c.Container(ContainerOptions{Name: "web"}).Logs(context.Background(), LogOptions{Follow: true, Tail: "10"}, WithSink(rec.sink))
	require.NoError(t, err)
	stream, ok := out.(process.Streaming)
	require.True(t, ok, "expected a streaming outcome, got %T", out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := stream.Handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "first\nsecond\n", rec.stdout())
	assert.Equal(t, []string{"logs --follow --tail 10 web"}, fake.Calls())
}

func TestClient_StreamingSpanCoversProcess(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	defer otel.SetTracerProvider(prev)

	fake := newFakeDocker(t)
	fake.Respond("line\n", "", 2)
	fake.Delay(200 * time.Millisecond)
	c := fake.client(Config{})

	ended := func() []sdktrace.ReadOnlySpan {
		var out []sdktrace.ReadOnlySpan
		for _, s := range sr.Ended() {
			if s.Name() == observability.SpanDockerCommand {
				out = append(out, s)
			}
		}
		return out
	}

	out, err := c.Container(ContainerOptions{Name: "web"}).Logs(context.Background(), LogOptions{Follow: true})
	require.NoError(t, err)
	assert.Empty(t, ended(), "span must stay open while docker runs")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := out.(process.Streaming).Handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, code)

	require.Eventually(t, func() bool { return len(ended()) == 1 }, 2*time.Second, 10*time.Millisecond)
	span := ended()[0]
	assert.GreaterOrEqual(t, span.EndTime().Sub(span.StartTime()), 200*time.Millisecond)
	var exit attribute.Value
	for _, kv := range span.Attributes() {
		if kv.Key == observability.AttrProcessExitCode {
			exit = kv.Value
		}
	}
	assert.Equal(t, int64(2), exit.AsInt64())
}

func TestContainer_Inspect(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond(`[{"Id":"3f2a9c","Name":"/web","State":{"Status":"running","Running":true,"Pid":42}}]`, "", 0)
	c := fake.client(Config{})

	info, err := c.Container(ContainerOptions{Name: "web"}).Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c", info.ID)
	require.NotNil(t, info.State)
	assert.True(t, info.State.Running)
	assert.Equal(t, []string{"inspect --type container web"}, fake.Calls())
}

func TestContainer_InspectNotFound(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond("[]\n", "Error: No such container: ghost\n", 1)
	c := fake.client(Config{})

	_, err := c.Container(ContainerOptions{Name: "ghost"}).Inspect(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound), "got %v", err)
	appErr, _ := apperrors.AsAppError(err)
	assert.Equal(t, "ghost", appErr.Details["id"])
}

func TestClient_Stats(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond(statsJSON+"\n", "", 0)
	c := fake.client(Config{})

	stats, err := c.Stats(context.Background(), "web")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "web", stats[0].Name)
	assert.Equal(t, int64(3670016), stats[0].MemUsage)
	assert.Equal(t, []string{"stats --no-stream --format {{json .}} web"}, fake.Calls())

	single, err := c.Container(ContainerOptions{Name: "web"}).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3f2a", single.ID)
}

func TestClient_List(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond(`{"ID":"3f2a","Names":"web","Image":"nginx:latest","State":"running","Status":"Up 2 minutes","Labels":"tier=web"}`+"\n", "", 0)
	c := fake.client(Config{})

	rows, err := c.List(context.Background(), ListOptions{All: true, Filters: map[string]string{"status": "running", "label": "tier=web"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "web", rows[0].Names)
	assert.Equal(t, map[string]string{"tier": "web"}, rows[0].Labels)
	assert.Equal(t, []string{"ps --no-trunc --format {{json .}} -a --filter label=tier=web --filter status=running"}, fake.Calls())
}

func TestClient_CreateNetworkAlreadyExists(t *testing.T) {
	fake := newFakeDocker(t)
	fake.FailNetworkCreate("Error response from daemon: network with name net1 already exists", 1)
	c := fake.client(Config{})

	res, err := c.CreateNetwork(context.Background(), NetworkOptions{Name: "net1", Driver: "bridge"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists), "got %v", err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, []string{"network create --driver bridge net1"}, fake.Calls())
}

func TestClient_LoginSendsPasswordOnStdin(t *testing.T) {
	fake := newFakeDocker(t)
	fake.CaptureStdin()
	c := fake.client(Config{})

	out, err := c.Login(context.Background(), LoginOptions{Username: "ci", Password: "s3cret", Registry: "ghcr.io"})
	require.NoError(t, err)
	assert.Equal(t, 0, completed(t, out).ExitCode)

	calls := fake.Calls()
	assert.Equal(t, []string{"login -u ci --password-stdin ghcr.io"}, calls)
	assert.NotContains(t, calls[0], "s3cret")
	assert.Equal(t, "s3cret\n", fake.Stdin())

	_, err = c.Login(context.Background(), LoginOptions{Username: "ci"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestClient_BuildImageRunsInDir(t *testing.T) {
	fake := newFakeDocker(t)
	c := fake.client(Config{})
	dir := t.TempDir()

	out, err := c.BuildImage(context.Background(), ImageOptions{Image: "team/app", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, 0, completed(t, out).ExitCode)
	assert.Equal(t, []string{"build -t team/app:latest ."}, fake.Calls())
	assert.Equal(t, dir, fake.Dir())
}

func TestClient_ImageCommands(t *testing.T) {
	fake := newFakeDocker(t)
	c := fake.client(Config{})
	ctx := context.Background()

	_, err := c.PullImage(ctx, "nginx:1.25")
	require.NoError(t, err)
	_, err = c.PushImage(ctx, "team/app:v1")
	require.NoError(t, err)
	_, err = c.SaveImage(ctx, "team/app:v1", "/tmp/app.tar")
	require.NoError(t, err)
	_, err = c.LoadImage(ctx, "/tmp/app.tar")
	require.NoError(t, err)

	_, err = c.PullImage(ctx, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))
	_, err = c.PushImage(ctx, "Bad Image")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	want := []string{
		"pull nginx:1.25",
		"push team/app:v1",
		"save -o /tmp/app.tar team/app:v1",
		"load -i /tmp/app.tar",
	}
	if diff := cmp.Diff(want, fake.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_GlobalFlags(t *testing.T) {
	fake := newFakeDocker(t)
	c := fake.client(Config{Context: "remote"})
	_, err := c.Container(ContainerOptions{Name: "web"}).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"--context remote start web"}, fake.Calls())
	assert.Equal(t, "", fake.Host())

	fake = newFakeDocker(t)
	c = fake.client(Config{Host: "tcp://10.0.0.5:2375"})
	_, err = c.Container(ContainerOptions{Name: "web"}).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.5:2375", fake.Host())
}

func TestClient_PingAndHealth(t *testing.T) {
	fake := newFakeDocker(t)
	fake.Respond("28.5.2\n", "", 0)
	c := fake.client(Config{})

	version, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "28.5.2", version)
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, component.StatusHealthy, c.Health(context.Background()).Status)

	fake.Respond("", "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?\n", 1)
	_, err = c.Ping(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavailable), "got %v", err)
	assert.Error(t, c.Start(context.Background()))
	assert.Equal(t, component.StatusUnhealthy, c.Health(context.Background()).Status)
}

func TestClient_MissingBinary(t *testing.T) {
	c := NewClient(Config{Binary: "/nonexistent/docker"}, WithLogger(logger.Nop()))
	_, err := c.Ping(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSpawnFailed), "got %v", err)
}

func TestClassify(t *testing.T) {
	cmd := process.Command{Binary: "docker", Args: []string{"stop", "web"}}
	tests := []struct {
		name   string
		exit   int
		stderr string
		code   apperrors.ErrorCode
	}{
		{"daemon down", 1, "Cannot connect to the Docker daemon at unix:///var/run/docker.sock", apperrors.ErrCodeServiceUnavailable},
		{"no such container", 1, "Error response from daemon: No such container: web", apperrors.ErrCodeNotFound},
		{"network missing", 1, "Error response from daemon: network net9 not found", apperrors.ErrCodeNotFound},
		{"name in use", 125, `Conflict. The container name "/web" is already in use`, apperrors.ErrCodeAlreadyExists},
		{"other", 2, "something odd", apperrors.ErrCodeCommandFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(cmd, &process.Result{ExitCode: tc.exit, Stderr: []byte(tc.stderr)}, "container", "web")
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	assert.NoError(t, classify(cmd, &process.Result{}, "container", "web"))
}

func TestConfig(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "docker", cfg.Binary)
	assert.NoError(t, cfg.Validate())

	both := Config{Binary: "docker", Host: "tcp://x:2375", Context: "remote"}
	assert.Error(t, both.Validate())
	empty := Config{}
	assert.Error(t, empty.Validate())
}
