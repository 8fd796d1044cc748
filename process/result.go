package process

import "time"

// Result holds the output and status of a process run in blocking mode.
type Result struct {
	// Output is every stdout and stderr chunk in arrival order.
	Output []byte
	// Stdout is the captured standard output.
	Stdout []byte
	// Stderr is the captured standard error.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed by a signal.
	ExitCode int
	// PID is the OS process id.
	PID int
	// Duration is how long the process ran.
	Duration time.Duration
}

// Text returns Output as a string.
func (r *Result) Text() string { return string(r.Output) }

// Success reports a zero exit code.
func (r *Result) Success() bool { return r.ExitCode == 0 }
