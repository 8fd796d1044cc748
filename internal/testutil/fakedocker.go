package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// script logs its argv, working directory and DOCKER_HOST next to the call
// log, then answers from the FAKE_* variables. "network create" has its own
// exit code and stderr so a container run can be tested past it. With
// FAKE_DELAY set each call sleeps, and a call that starts while another is
// sleeping is recorded as an overlap.
const script = `#!/bin/sh
printf '%s\n' "$*" >> "$FAKE_LOG"
printf '%s' "${DOCKER_HOST:-}" > "$FAKE_LOG.host"
pwd > "$FAKE_LOG.pwd"
if [ -n "$FAKE_DELAY" ]; then
	if [ -e "$FAKE_LOG.busy" ]; then
		echo overlap >> "$FAKE_LOG.overlap"
	fi
	: > "$FAKE_LOG.busy"
	sleep "$FAKE_DELAY"
	rm -f "$FAKE_LOG.busy"
fi
case "$*" in
*"network create"*)
	printf '%s' "$FAKE_NETWORK_STDERR" >&2
	exit "${FAKE_NETWORK_EXIT:-0}"
	;;
esac
if [ -n "$FAKE_READ_STDIN" ]; then
	cat > "$FAKE_LOG.stdin"
fi
printf '%s' "$FAKE_STDOUT"
printf '%s' "$FAKE_STDERR" >&2
exit "${FAKE_EXIT:-0}"
`

var fakeVars = []string{
	"FAKE_STDOUT", "FAKE_STDERR", "FAKE_EXIT", "FAKE_READ_STDIN", "FAKE_DELAY",
	"FAKE_NETWORK_EXIT", "FAKE_NETWORK_STDERR",
}

// FakeDocker is a docker binary written to a temp dir for one test.
type FakeDocker struct {
	t   testing.TB
	bin string
	log string
}

// NewFakeDocker writes the fake binary and resets its responses: every call
// exits 0 with no output until Respond says otherwise.
func NewFakeDocker(t testing.TB) *FakeDocker {
	t.Helper()
	dir := t.TempDir()
	f := &FakeDocker{t: t, bin: filepath.Join(dir, "docker"), log: filepath.Join(dir, "calls.log")}
	if err := os.WriteFile(f.bin, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake docker: %v", err)
	}
	t.Setenv("FAKE_LOG", f.log)
	t.Setenv("DOCKER_HOST", "")
	for _, k := range fakeVars {
		t.Setenv(k, "")
	}
	return f
}

// Binary returns the path of the fake docker executable.
func (f *FakeDocker) Binary() string { return f.bin }

// Respond sets what every following call prints and its exit code.
func (f *FakeDocker) Respond(stdout, stderr string, exit int) {
	f.t.Setenv("FAKE_STDOUT", stdout)
	f.t.Setenv("FAKE_STDERR", stderr)
	f.t.Setenv("FAKE_EXIT", strconv.Itoa(exit))
}

// FailNetworkCreate makes "network create" exit with code and stderr.
func (f *FakeDocker) FailNetworkCreate(stderr string, exit int) {
	f.t.Setenv("FAKE_NETWORK_STDERR", stderr)
	f.t.Setenv("FAKE_NETWORK_EXIT", strconv.Itoa(exit))
}

// CaptureStdin makes calls save their stdin, read back with Stdin.
func (f *FakeDocker) CaptureStdin() {
	f.t.Setenv("FAKE_READ_STDIN", "1")
}

// Delay makes every following call sleep for d before answering.
func (f *FakeDocker) Delay(d time.Duration) {
	f.t.Setenv("FAKE_DELAY", strconv.FormatFloat(d.Seconds(), 'f', 3, 64))
}

// Overlaps counts the delayed calls that started while another was running.
func (f *FakeDocker) Overlaps() int {
	data, err := os.ReadFile(f.log + ".overlap")
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		f.t.Fatalf("reading fake docker overlaps: %v", err)
	}
	return strings.Count(string(data), "\n")
}

// Calls returns the argv of every call so far, one space-joined line each.
func (f *FakeDocker) Calls() []string {
	data, err := os.ReadFile(f.log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		f.t.Fatalf("reading fake docker log: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// Reset forgets the calls made so far.
func (f *FakeDocker) Reset() {
	if err := os.Remove(f.log); err != nil && !os.IsNotExist(err) {
		f.t.Fatalf("resetting fake docker log: %v", err)
	}
}

// Stdin returns what the last capturing call read from stdin.
func (f *FakeDocker) Stdin() string { return f.read(".stdin") }

// Dir returns the working directory of the last call.
func (f *FakeDocker) Dir() string { return strings.TrimSpace(f.read(".pwd")) }

// Host returns the DOCKER_HOST the last call saw.
func (f *FakeDocker) Host() string { return f.read(".host") }

func (f *FakeDocker) read(suffix string) string {
	data, err := os.ReadFile(f.log + suffix)
	if err != nil {
		f.t.Fatalf("reading fake docker output: %v", err)
	}
	return string(data)
}
