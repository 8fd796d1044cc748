package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/kbukum/dockerkit/docker"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/process"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		opts   docker.ContainerOptions
		detach bool
		env    []string
	)
	cmd := &cobra.Command{
		Use:   "run [flags] IMAGE [ARG...]",
		Short: "Run a container",
		Long: `Run a container. The network is created first when --network is set.

Examples:
  dockerkit run --name web -p 8080:80 nginx:1.25
  dockerkit run --name job --rm --detach=false alpine echo hello`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Image, opts.Args = args[0], args[1:]
			opts.Detach = &detach
			environment, err := parseKeyValues("env", env)
			if err != nil {
				return err
			}
			opts.Environment = environment
			_, out, err := a.client.RunContainer(cmd.Context(), opts, docker.WithSink(relay(cmd)))
			return finish(cmd.Context(), out, err)
		},
	}
	f := cmd.Flags()
	f.SetInterspersed(false)
	f.StringVar(&opts.Name, "name", "", "container name (required)")
	f.StringVar(&opts.Tag, "tag", "", "image tag (default latest unless IMAGE has one)")
	f.BoolVar(&opts.AutoRemove, "rm", false, "remove the container when it exits")
	f.BoolVarP(&detach, "detach", "d", true, "run in the background")
	f.StringVar(&opts.Network, "network", "", "network to join, created if missing")
	f.StringArrayVarP(&opts.Publish, "publish", "p", nil, "publish a port ([ip:]host:container[/proto])")
	f.StringArrayVarP(&env, "env", "e", nil, "set an environment variable (KEY=VALUE)")
	f.StringArrayVar(&opts.Volumes, "volume", nil, "bind mount a volume")
	f.Float64Var(&opts.CPUs, "cpus", 0, "number of CPUs")
	f.Int64Var(&opts.CPUPeriod, "cpu-period", 0, "CPU CFS period")
	f.Int64Var(&opts.CPUQuota, "cpu-quota", 0, "CPU CFS quota")
	f.StringVarP(&opts.Memory, "memory", "m", "", "memory limit (512m, 1g)")
	f.StringVar(&opts.MemorySwap, "memory-swap", "", "memory plus swap limit, -1 for unlimited")
	f.StringVar(&opts.RestartPolicy, "restart", "", "restart policy (no, always, unless-stopped, on-failure[:N])")
	return cmd
}

type lifecycleFunc func(*docker.Container, context.Context, ...docker.CallOption) (process.Outcome, error)

func newLifecycleCommand(a *app, verb, short string, op lifecycleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " NAME...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, names []string) error {
			for _, name := range names {
				ct := a.client.Container(docker.ContainerOptions{Name: name})
				out, err := op(ct, cmd.Context(), docker.WithSink(relay(cmd)))
				if err := finish(cmd.Context(), out, err); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, names []string) error {
			for _, name := range names {
				ct := a.client.Container(docker.ContainerOptions{Name: name})
				out, err := ct.Remove(cmd.Context(), force, docker.WithSink(relay(cmd)))
				if err := finish(cmd.Context(), out, err); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "kill and remove running containers")
	return cmd
}

func newLogsCommand(a *app) *cobra.Command {
	var lo docker.LogOptions
	cmd := &cobra.Command{
		Use:   "logs NAME",
		Short: "Print container logs",
		Long: `Print container logs. With --follow the logs stream until the container
stops or dockerkit is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct := a.client.Container(docker.ContainerOptions{Name: args[0]})
			out, err := ct.Logs(cmd.Context(), lo, docker.WithSink(relay(cmd)))
			return finish(cmd.Context(), out, err)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&lo.Follow, "follow", "f", false, "follow log output")
	f.StringVar(&lo.Tail, "tail", "", "number of lines from the end")
	f.StringVar(&lo.Since, "since", "", "show logs since a timestamp or duration (10m)")
	f.StringVar(&lo.Until, "until", "", "show logs before a timestamp or duration")
	f.BoolVarP(&lo.Timestamps, "timestamps", "t", false, "show timestamps")
	f.BoolVar(&lo.Details, "details", false, "show extra details")
	return cmd
}

func newExecCommand(a *app) *cobra.Command {
	var (
		eo  docker.ExecOptions
		env []string
	)
	cmd := &cobra.Command{
		Use:   "exec [flags] NAME COMMAND [ARG...]",
		Short: "Run a command in a running container",
		Long: `Run a command in a running container. With --interactive dockerkit's
stdin is forwarded to the command until it reaches EOF.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			environment, err := parseKeyValues("env", env)
			if err != nil {
				return err
			}
			eo.Env = environment
			ct := a.client.Container(docker.ContainerOptions{Name: args[0]})
			out, err := ct.Exec(cmd.Context(), args[1:], eo, docker.WithSink(relay(cmd)))
			if err != nil {
				return err
			}
			if s, ok := out.(process.Streaming); ok {
				go forwardInput(cmd.InOrStdin(), s.Handle, a.log)
			}
			return finish(cmd.Context(), out, nil)
		},
	}
	f := cmd.Flags()
	f.SetInterspersed(false)
	f.BoolVarP(&eo.Interactive, "interactive", "i", false, "forward stdin to the command")
	f.BoolVarP(&eo.TTY, "tty", "t", false, "allocate a pseudo-TTY")
	f.BoolVarP(&eo.Detach, "detach", "d", false, "run the command in the background")
	f.StringVarP(&eo.User, "user", "u", "", "user to run as")
	f.StringVarP(&eo.Workdir, "workdir", "w", "", "working directory inside the container")
	f.StringArrayVarP(&env, "env", "e", nil, "set an environment variable (KEY=VALUE)")
	return cmd
}

// forwardInput copies in to the process stdin and closes it at EOF.
func forwardInput(in io.Reader, h *process.Handle, log *logger.Logger) {
	if _, err := io.Copy(h, in); err != nil {
		log.Debug("stdin forwarding stopped", logger.Fields(logger.FieldError, err.Error()))
	}
	_ = h.CloseInput()
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect NAME",
		Short: "Show container details as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.client.Container(docker.ContainerOptions{Name: args[0]}).Inspect(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}
