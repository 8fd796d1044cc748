package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/dockerkit/internal/testutil"
)

type fakeDocker struct {
	*testutil.FakeDocker
	t *testing.T
}

func newFakeDocker(t *testing.T) *fakeDocker {
	t.Helper()
	t.Setenv("DOCKERKIT_LOGGING_LEVEL", "error")
	return &fakeDocker{FakeDocker: testutil.NewFakeDocker(t), t: t}
}

type result struct {
	stdout string
	stderr string
	code   int
}

// run executes dockerkit against the fake binary.
func (f *fakeDocker) run(stdin string, args ...string) result {
	f.t.Helper()
	return runCLI(f.t, stdin, append([]string{"--docker", f.Binary()}, args...)...)
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &app{}
	root := newRootCommand(a)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	a.close()
	code := exitCode(&stderr, err, a.flags.jsonOutput)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}
