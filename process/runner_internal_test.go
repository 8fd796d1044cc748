package process

import (
	"context"
	"os/exec"
	"testing"

	apperrors "github.com/kbukum/dockerkit/errors"
)

func TestExecute_InvalidCommandSpawnsNothing(t *testing.T) {
	for _, line := range []string{"", "   ", "\t \n"} {
		spawned := 0
		r := NewRunner(Config{})
		r.command = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
			spawned++
			return exec.CommandContext(ctx, name, arg...)
		}

		cmd, err := Parse(line)
		if !apperrors.HasCode(err, apperrors.ErrCodeInvalidCommand) {
			t.Fatalf("Parse(%q): expected INVALID_COMMAND, got %v", line, err)
		}

		events := 0
		out, err := r.Execute(context.Background(), Request{
			Command: cmd,
			Sink:    func(Event) { events++ },
		})
		if !apperrors.HasCode(err, apperrors.ErrCodeInvalidCommand) {
			t.Fatalf("Execute(%q): expected INVALID_COMMAND, got %v", line, err)
		}
		if out != nil {
			t.Fatalf("expected no outcome, got %#v", out)
		}
		if spawned != 0 {
			t.Fatalf("expected no process to be created, got %d", spawned)
		}
		if events != 0 {
			t.Fatalf("expected no sink events, got %d", events)
		}
	}
}

func TestPolicyConfig_InstallsPredicates(t *testing.T) {
	cfg := policyConfig(Config{}.Resilience)
	if cfg.Retry != nil || cfg.CircuitBreaker != nil {
		t.Fatal("expected empty policy to stay empty")
	}

	spawnRetryable := apperrors.SpawnFailed("docker", context.DeadlineExceeded)
	spawnMissing := apperrors.SpawnFailed("docker", exec.ErrNotFound)
	processFailed := apperrors.ProcessFailed("docker", nil)

	if !isRetryableSpawnFailure(spawnRetryable) {
		t.Error("expected retryable spawn failure to be retried")
	}
	if isRetryableSpawnFailure(spawnMissing) {
		t.Error("expected missing binary not to be retried")
	}
	if isRetryableSpawnFailure(processFailed) {
		t.Error("expected a started process never to be retried")
	}
	if !isRunnerFailure(spawnMissing) || !isRunnerFailure(processFailed) {
		t.Error("expected spawn and wait failures to count against the breaker")
	}
	if isRunnerFailure(apperrors.FromContext("x", context.Canceled)) {
		t.Error("expected cancellation not to count against the breaker")
	}
}
