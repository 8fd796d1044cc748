// Package process runs external commands and reports their output as it
// arrives.
//
// A Runner executes a Command in one of two modes. ModeBlocking waits for the
// process to exit and returns Completed with the accumulated output.
// ModeStreaming returns Streaming with a live Handle the caller drives.
// Both modes deliver every stdout chunk, stderr chunk, error and exit code to
// an optional Sink, one event per call:
//
//	out, err := runner.Execute(ctx, process.Request{
//		Command: process.Command{Binary: "docker", Args: []string{"ps"}},
//		Sink: func(e process.Event) {
//			if e.Kind == process.EventStdout {
//				os.Stdout.Write(e.Chunk)
//			}
//		},
//	})
//
// A non-zero exit code is not an error at this layer. Use CheckExit, or an
// Operation, to turn one into COMMAND_FAILED.
package process
