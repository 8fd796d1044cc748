package process

// EventKind discriminates the payload of an Event.
type EventKind int

const (
	// EventStdout carries a chunk read from standard output.
	EventStdout EventKind = iota + 1
	// EventStderr carries a chunk read from standard error.
	EventStderr
	// EventError carries a spawn, stdin or wait failure.
	EventError
	// EventExit carries the exit code once both streams are drained.
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventError:
		return "error"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is one observation of a running process. Only the field matching
// Kind is set.
type Event struct {
	Kind     EventKind
	Chunk    []byte
	Err      error
	ExitCode int
}

// Sink receives the events of one invocation. Calls are never concurrent and
// arrive in the order the runner observed them. Chunks are owned by the sink.
// A nil Sink discards everything.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
