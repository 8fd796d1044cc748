package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/dockerkit/component"
	"github.com/kbukum/dockerkit/version"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if a.flags.jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
}

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the docker daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := a.registry.HealthAll(cmd.Context())
			if a.flags.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(report))
				for _, h := range report {
					rows = append(rows, []string{h.Name, string(h.Status), h.Message})
				}
				if err := table(cmd.OutOrStdout(), "COMPONENT\tSTATUS\tMESSAGE", rows); err != nil {
					return err
				}
			}
			var failing []string
			for _, h := range report {
				if h.Status == component.StatusUnhealthy {
					failing = append(failing, h.Name)
				}
			}
			if len(failing) > 0 {
				return fmt.Errorf("unhealthy: %s", strings.Join(failing, ", "))
			}
			return nil
		},
	}
}
