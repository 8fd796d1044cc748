package docker

import (
	"regexp"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/process"
)

var (
	notFoundRe          = regexp.MustCompile(`(?i)no such (container|object|image|network)|network \S+ not found`)
	alreadyExistsRe     = regexp.MustCompile(`(?i)already exists|is already in use`)
	daemonUnavailableRe = regexp.MustCompile(`(?i)cannot connect to the docker daemon|is the docker daemon running|error during connect`)
)

// classify maps a non-zero docker exit onto an AppError using its stderr.
// resource and id describe what the command addressed.
func classify(cmd process.Command, res *process.Result, resource, id string) error {
	if res.ExitCode == 0 {
		return nil
	}
	failed := apperrors.CommandFailed(cmd.String(), res.ExitCode, string(res.Stderr))
	stderr := res.Stderr
	switch {
	case daemonUnavailableRe.Match(stderr):
		return apperrors.ServiceUnavailable("docker daemon").WithCause(failed)
	case notFoundRe.Match(stderr):
		return apperrors.NotFound(resource, id).WithCause(failed)
	case alreadyExistsRe.Match(stderr):
		return apperrors.AlreadyExists(resource, id).WithCause(failed)
	default:
		return failed
	}
}
