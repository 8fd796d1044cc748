package process

import (
	"os"
	"strings"
	"time"

	apperrors "github.com/kbukum/dockerkit/errors"
)

// DefaultGracePeriod is the SIGTERM to SIGKILL delay used when neither the
// command nor the runner sets one.
const DefaultGracePeriod = 5 * time.Second

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// Inputs are written to stdin one line each, right after spawn, and stdin
	// is then closed.
	Inputs []string
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Falls back to the runner's grace period, then DefaultGracePeriod.
	GracePeriod time.Duration
}

// Parse splits a shell-style command line on whitespace. Quotes are not
// interpreted. A line with no tokens is an INVALID_COMMAND error.
func Parse(line string) (Command, error) {
	return FromArgs(strings.Fields(line))
}

// FromArgs builds a Command from an already tokenized argument vector.
// Tokens are trimmed and empty ones dropped.
func FromArgs(argv []string) (Command, error) {
	tokens := make([]string, 0, len(argv))
	for _, a := range argv {
		if a = strings.TrimSpace(a); a != "" {
			tokens = append(tokens, a)
		}
	}
	if len(tokens) == 0 {
		return Command{}, apperrors.InvalidCommand(strings.Join(argv, " "))
	}
	return Command{Binary: tokens[0], Args: tokens[1:]}, nil
}

// Validate reports INVALID_COMMAND when the command has no program name.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return apperrors.InvalidCommand(c.String())
	}
	return nil
}

// String renders the command line. Inputs are never included.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// mergeEnv merges additional env vars with the current environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent env
	}
	env := os.Environ()
	return append(env, extra...)
}
