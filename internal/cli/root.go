// Package cli implements the dockerkit command line.
//
// Each command group lives in its own file. This file defines the root
// command, which loads configuration, initialises logging and telemetry and
// builds the docker client every subcommand shares.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/dockerkit/component"
	"github.com/kbukum/dockerkit/config"
	"github.com/kbukum/dockerkit/docker"
	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/observability"
	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/util"
	"github.com/kbukum/dockerkit/version"
)

const shutdownTimeout = 5 * time.Second

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configFile string
	envFile    string
	binary     string
	verbose    bool
	jsonOutput bool
}

// app is the state built once per invocation by the root command.
type app struct {
	flags    rootFlags
	cfg      AppConfig
	client   *docker.Client
	registry *component.Registry
	log      *logger.Logger
	closers  []func(context.Context) error
}

// NewRootCommand creates the dockerkit command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dockerkit",
		Short: "Run docker commands with validated options and structured output",
		Long: `dockerkit drives the docker CLI. Options are validated before anything is
spawned, docker output is relayed as it arrives, and docker's exit code
becomes dockerkit's exit code.

Configuration is read from --config, ./config.yml or the user config
directory, and from DOCKERKIT_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Get().Short(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logger.ContextWithInvocationID(cmd.Context(), util.NewID())
			cmd.SetContext(ctx)
			return a.setup(ctx)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default: ./config.yml, then the user config dir)")
	pf.StringVar(&a.flags.envFile, "env-file", "", ".env file to load before reading the environment")
	pf.StringVar(&a.flags.binary, "docker", "", "docker binary (overrides docker.binary)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "echo every docker invocation and its output")
	pf.BoolVar(&a.flags.jsonOutput, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newRunCommand(a),
		newLifecycleCommand(a, "start", "Start stopped containers", (*docker.Container).Start),
		newLifecycleCommand(a, "stop", "Stop running containers", (*docker.Container).Stop),
		newLifecycleCommand(a, "kill", "Kill running containers", (*docker.Container).Kill),
		newLifecycleCommand(a, "restart", "Restart containers", (*docker.Container).Restart),
		newRemoveCommand(a),
		newLogsCommand(a),
		newExecCommand(a),
		newInspectCommand(a),
		newStatsCommand(a),
		newPsCommand(a),
		newBuildCommand(a),
		newImageCommand(a, "pull", "Pull an image", (*docker.Client).PullImage),
		newImageCommand(a, "push", "Push an image", (*docker.Client).PushImage),
		newLoginCommand(a),
		newNetworkCommand(a),
		newHealthCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the CLI with args and returns the exit code: docker's own
// code when a docker command exits non-zero, 1 for any other error.
func Execute(ctx context.Context, args []string) int {
	a := &app{}
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.close()
	return exitCode(root.ErrOrStderr(), err, a.flags.jsonOutput)
}

func (a *app) setup(ctx context.Context) error {
	var opts []config.LoaderOption
	if a.flags.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.flags.configFile))
	}
	if a.flags.envFile != "" {
		opts = append(opts, config.WithEnvFile(a.flags.envFile))
	}
	if err := config.LoadConfig("dockerkit", &a.cfg, opts...); err != nil {
		return err
	}
	if a.flags.binary != "" {
		a.cfg.Docker.Binary = a.flags.binary
	}
	if a.flags.verbose {
		a.cfg.Docker.Verbose = true
	}
	a.cfg.ApplyDefaults()
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger.Init(a.cfg.Logging, a.cfg.Name)
	logger.RegisterDefaults()
	a.log = logger.Get("cli")

	runnerOpts := []process.Option{process.WithLogger(logger.Get("process"))}
	if a.cfg.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, a.cfg.Tracing)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, tp.Shutdown)
	}
	if a.cfg.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, a.cfg.Metrics)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, mp.Shutdown)
		metrics, err := observability.NewProcessMetrics(observability.Meter())
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, process.WithMetrics(metrics))
	}

	runner := process.NewRunner(a.cfg.Process, runnerOpts...)
	a.client = docker.NewClient(a.cfg.Docker, docker.WithRunner(runner), docker.WithLogger(logger.Get("docker")))
	a.registry = component.NewRegistry()
	return a.registry.Register(a.client)
}

// close flushes telemetry providers in reverse order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.log != nil {
			a.log.WithError(err).Warn("telemetry shutdown failed")
		}
	}
	a.closers = nil
}

func exitCode(w io.Writer, err error, asJSON bool) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	printError(w, err, asJSON)
	return 1
}

// printError writes err to w. In JSON mode AppErrors keep their code and
// details.
func printError(w io.Writer, err error, asJSON bool) {
	if !asJSON {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	var body any = map[string]string{"message": err.Error()}
	if appErr, ok := apperrors.AsAppError(err); ok {
		body = appErr
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"error": body})
}
