package cli

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/dockerkit/docker"
)

func newNetworkCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage networks",
	}
	cmd.AddCommand(newNetworkCreateCommand(a))
	return cmd
}

func newNetworkCreateCommand(a *app) *cobra.Command {
	var opts docker.NetworkOptions
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			_, err := a.client.CreateNetwork(cmd.Context(), opts, docker.WithSink(relay(cmd)))
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "network driver (default bridge)")
	return cmd
}
