package docker

import (
	"testing"

	"github.com/kbukum/dockerkit/internal/testutil"
	"github.com/kbukum/dockerkit/logger"
)

type fakeDocker struct {
	*testutil.FakeDocker
}

func newFakeDocker(t *testing.T) *fakeDocker {
	t.Helper()
	return &fakeDocker{testutil.NewFakeDocker(t)}
}

// client returns a quiet Client running the fake binary.
func (f *fakeDocker) client(cfg Config) *Client {
	cfg.Binary = f.Binary()
	return NewClient(cfg, WithLogger(logger.Nop()))
}
