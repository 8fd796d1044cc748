// Command dockerkit drives the docker CLI with validated options and
// structured output. See internal/cli for the command tree.
//
// Build information is injected with ldflags:
//
//	go build -ldflags "-X github.com/kbukum/dockerkit/version.Version=v1.2.0" ./cmd/dockerkit
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kbukum/dockerkit/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
