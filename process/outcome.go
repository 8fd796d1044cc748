package process

// Mode selects how Execute terminates.
type Mode int

const (
	// ModeBlocking waits for the process to exit and returns Completed.
	ModeBlocking Mode = iota
	// ModeStreaming returns Streaming right after spawn.
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "blocking"
}

// Outcome is what Execute returns: Completed or Streaming.
//
//	switch o := out.(type) {
//	case process.Completed:
//		fmt.Print(o.Result.Text())
//	case process.Streaming:
//		defer o.Handle.Terminate()
//	}
type Outcome interface {
	isOutcome()
}

// Completed is the outcome of a blocking run.
type Completed struct {
	Result *Result
}

// Streaming is the outcome of a streaming run. The caller owns the handle.
type Streaming struct {
	Handle *Handle
}

func (Completed) isOutcome() {}
func (Streaming) isOutcome() {}

// Released closes when the process has exited. A runner bulkhead slot is
// held until then.
func (s Streaming) Released() <-chan struct{} { return s.Handle.Done() }
