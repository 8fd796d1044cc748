package process

import (
	"context"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/observability"
)

// Operation turns a typed request into a blocking subprocess run and parses
// the result. Non-zero exits are checked before parsing.
type Operation[I, O any] struct {
	name     string
	runner   *Runner
	buildCmd func(I) (Command, error)
	parseOut func(*Result) (O, error)
	check    func(Command, *Result) error
}

// NewOperation creates an Operation. A nil runner uses the default runner.
func NewOperation[I, O any](
	name string,
	runner *Runner,
	buildCmd func(I) (Command, error),
	parseOut func(*Result) (O, error),
) *Operation[I, O] {
	if runner == nil {
		runner = defaultRunner()
	}
	return &Operation[I, O]{
		name:     name,
		runner:   runner,
		buildCmd: buildCmd,
		parseOut: parseOut,
		check:    CheckExit,
	}
}

// WithCheck replaces the exit check. The default is CheckExit.
func (o *Operation[I, O]) WithCheck(fn func(Command, *Result) error) *Operation[I, O] {
	o.check = fn
	return o
}

// Name is also the name of the span wrapping each Execute.
func (o *Operation[I, O]) Name() string { return o.name }

// Execute builds the command for input, runs it and parses the result. The
// run is wrapped in a span named after the operation.
func (o *Operation[I, O]) Execute(ctx context.Context, input I) (out O, err error) {
	cmd, err := o.buildCmd(input)
	if err != nil {
		return out, err
	}
	ctx, span := o.runner.tracer.Start(ctx, o.name)
	defer func() { observability.EndSpan(span, err) }()

	res, err := o.runner.Run(ctx, cmd, nil)
	if err != nil {
		return out, err
	}
	if o.check != nil {
		if err = o.check(cmd, res); err != nil {
			return out, err
		}
	}
	return o.parseOut(res)
}

// CheckExit reports a non-zero exit as COMMAND_FAILED carrying stderr.
func CheckExit(cmd Command, res *Result) error {
	if res.ExitCode == 0 {
		return nil
	}
	return apperrors.CommandFailed(cmd.String(), res.ExitCode, string(res.Stderr))
}
