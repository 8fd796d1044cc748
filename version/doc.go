// Package version exposes dockerkit build information.
//
// Version, commit, branch and build time are set at compile time via
// -ldflags and completed from the Go build info when left empty:
//
//	go build -ldflags "-X github.com/kbukum/dockerkit/version.Version=1.0.0" ./cmd/dockerkit
package version
