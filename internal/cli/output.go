package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/process"
)

// ExitError reports a docker command that exited non-zero. Its output has
// already been relayed, so Execute exits with Code and prints nothing more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("docker exited with code %d", e.Code)
}

// relay returns a sink that copies docker's stdout and stderr to the
// command's writers as chunks arrive.
func relay(cmd *cobra.Command) process.Sink {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	return func(e process.Event) {
		switch e.Kind {
		case process.EventStdout:
			_, _ = stdout.Write(e.Chunk)
		case process.EventStderr:
			_, _ = stderr.Write(e.Chunk)
		}
	}
}

// finish waits for a streaming outcome and turns a non-zero exit into an
// ExitError. A process killed by a signal exits 1.
func finish(ctx context.Context, out process.Outcome, err error) error {
	if err != nil {
		return err
	}
	code := 0
	switch o := out.(type) {
	case process.Completed:
		code = o.Result.ExitCode
	case process.Streaming:
		if code, err = o.Handle.Wait(ctx); err != nil {
			return err
		}
	}
	switch {
	case code < 0:
		// killed by a signal, no exit status to pass on
		return &ExitError{Code: 1}
	case code != 0:
		return &ExitError{Code: code}
	}
	return nil
}

// parseKeyValues turns repeated KEY=VALUE flags into a map.
func parseKeyValues(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, apperrors.InvalidInput(flag, fmt.Sprintf("%q is not KEY=VALUE", kv))
		}
		m[k] = v
	}
	return m, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-separated rows aligned like docker's own tables.
func table(w io.Writer, header string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
