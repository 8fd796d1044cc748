package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/kbukum/dockerkit/docker"
	"github.com/kbukum/dockerkit/logger"
)

func newStatsCommand(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "stats [NAME...]",
		Short: "Show container resource usage",
		Long: `Show one resource usage sample, of the named containers or of every
running container. With --watch a sample is printed every interval until
dockerkit is interrupted or --count samples have been printed.`,
		RunE: func(cmd *cobra.Command, ids []string) error {
			if !watch {
				stats, err := a.client.Stats(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				return a.printStats(cmd.OutOrStdout(), stats)
			}
			if interval <= 0 {
				interval = a.cfg.Stats.WatchInterval
			}
			return a.watchStats(cmd, ids, interval, count)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&watch, "watch", "w", false, "keep polling")
	f.DurationVar(&interval, "interval", 0, "poll interval with --watch (default stats.watch_interval)")
	f.IntVar(&count, "count", 0, "stop after this many samples with --watch (0 means no limit)")
	return cmd
}

// watchStats runs a StatsWatcher alongside the docker client in the component
// registry until ctx is done or count samples are printed.
func (a *app) watchStats(cmd *cobra.Command, ids []string, interval time.Duration, count int) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		mu      sync.Mutex
		printed int
	)
	out := cmd.OutOrStdout()
	w := a.client.WatchStats(ids, interval, func(stats []docker.ContainerStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			a.log.WithError(err).Warn("stats poll failed")
			return
		}
		if count > 0 && printed >= count {
			return
		}
		if err := a.printStats(out, stats); err != nil {
			a.log.WithError(err).Warn("writing stats failed")
		}
		printed++
		if count > 0 && printed >= count {
			cancel()
		}
	})
	if err := a.registry.Register(w); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := a.registry.StartAll(ctx); err != nil {
		_ = a.registry.StopAll(stopCtx)
		return err
	}
	a.log.Debug("watching stats", logger.Fields("interval", interval.String(), "containers", ids))
	<-ctx.Done()
	return a.registry.StopAll(stopCtx)
}

func (a *app) printStats(w io.Writer, stats []docker.ContainerStats) error {
	if a.flags.jsonOutput {
		return printJSON(w, stats)
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			shortID(s.ID),
			s.Name,
			fmt.Sprintf("%.2f%%", s.CPUPercent),
			units.BytesSize(float64(s.MemUsage)) + " / " + units.BytesSize(float64(s.MemLimit)),
			fmt.Sprintf("%.2f%%", s.MemPercent),
			units.HumanSize(float64(s.NetRx)) + " / " + units.HumanSize(float64(s.NetTx)),
			units.HumanSize(float64(s.BlockRead)) + " / " + units.HumanSize(float64(s.BlockWrite)),
			strconv.Itoa(s.PIDs),
		})
	}
	return table(w, "CONTAINER ID\tNAME\tCPU %\tMEM USAGE / LIMIT\tMEM %\tNET I/O\tBLOCK I/O\tPIDS", rows)
}

func newPsCommand(a *app) *cobra.Command {
	var (
		lo      docker.ListOptions
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseKeyValues("filter", filters)
			if err != nil {
				return err
			}
			lo.Filters = f
			rows, err := a.client.List(cmd.Context(), lo)
			if err != nil {
				return err
			}
			if a.flags.jsonOutput {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{shortID(r.ID), r.Image, r.Status, r.Ports, r.Names})
			}
			return table(cmd.OutOrStdout(), "CONTAINER ID\tIMAGE\tSTATUS\tPORTS\tNAMES", out)
		},
	}
	cmd.Flags().BoolVarP(&lo.All, "all", "a", false, "include stopped containers")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "filter output (KEY=VALUE, repeatable)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
