package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/util"
)

// jsonFormat makes docker print one JSON object per line.
const jsonFormat = "{{json .}}"

// ContainerStats is one sample of docker stats. Sizes are in bytes.
type ContainerStats struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemUsage   int64   `json:"mem_usage"`
	MemLimit   int64   `json:"mem_limit"`
	MemPercent float64 `json:"mem_percent"`
	NetRx      int64   `json:"net_rx"`
	NetTx      int64   `json:"net_tx"`
	BlockRead  int64   `json:"block_read"`
	BlockWrite int64   `json:"block_write"`
	PIDs       int     `json:"pids"`
}

// statsLine is the raw shape of docker stats --format '{{json .}}'.
type statsLine struct {
	BlockIO   string `json:"BlockIO"`
	CPUPerc   string `json:"CPUPerc"`
	Container string `json:"Container"`
	ID        string `json:"ID"`
	MemPerc   string `json:"MemPerc"`
	MemUsage  string `json:"MemUsage"`
	Name      string `json:"Name"`
	NetIO     string `json:"NetIO"`
	PIDs      string `json:"PIDs"`
}

// ParseStats parses the JSON lines of docker stats. Values docker prints as
// "--" (stopped containers) parse as zero.
func ParseStats(output string) ([]ContainerStats, error) {
	lines := util.NonEmptyLines(output)
	stats := make([]ContainerStats, 0, len(lines))
	for _, line := range lines {
		var raw statsLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, apperrors.ParseFailed("docker stats", err)
		}
		s, err := raw.convert()
		if err != nil {
			return nil, apperrors.ParseFailed("docker stats", err).WithDetail("line", line)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (l statsLine) convert() (ContainerStats, error) {
	s := ContainerStats{ID: util.Coalesce(l.ID, l.Container), Name: l.Name}
	var err error
	if s.CPUPercent, err = parsePercent(l.CPUPerc); err != nil {
		return s, fmt.Errorf("CPUPerc: %w", err)
	}
	if s.MemPercent, err = parsePercent(l.MemPerc); err != nil {
		return s, fmt.Errorf("MemPerc: %w", err)
	}
	// memory is reported in binary units, network and block I/O in decimal ones
	if s.MemUsage, s.MemLimit, err = parsePair(l.MemUsage, units.RAMInBytes); err != nil {
		return s, fmt.Errorf("MemUsage: %w", err)
	}
	if s.NetRx, s.NetTx, err = parsePair(l.NetIO, units.FromHumanSize); err != nil {
		return s, fmt.Errorf("NetIO: %w", err)
	}
	if s.BlockRead, s.BlockWrite, err = parsePair(l.BlockIO, units.FromHumanSize); err != nil {
		return s, fmt.Errorf("BlockIO: %w", err)
	}
	if p := strings.TrimSpace(l.PIDs); p != "" && p != "--" {
		if s.PIDs, err = strconv.Atoi(p); err != nil {
			return s, fmt.Errorf("PIDs: %w", err)
		}
	}
	return s, nil
}

func parsePercent(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || s == "--" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// parsePair parses "1.5MiB / 7.7GiB".
func parsePair(s string, size func(string) (int64, error)) (int64, int64, error) {
	left, right, ok := strings.Cut(s, "/")
	if !ok {
		if strings.TrimSpace(s) == "" || strings.TrimSpace(s) == "--" {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("expected \"a / b\", got %q", s)
	}
	a, err := parseSize(left, size)
	if err != nil {
		return 0, 0, err
	}
	b, err := parseSize(right, size)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseSize(s string, size func(string) (int64, error)) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" {
		return 0, nil
	}
	return size(s)
}

// newQuery wraps a read-only docker command in an Operation. Non-zero exits
// are classified against resource and id.
func newQuery[I, O any](c *Client, name, resource, id string, args func(I) []string, parse func(string) (O, error)) *process.Operation[I, O] {
	return process.NewOperation(name, c.runner,
		func(in I) (process.Command, error) { return c.Command(args(in)...), nil },
		func(res *process.Result) (O, error) { return parse(string(res.Stdout)) },
	).WithCheck(func(cmd process.Command, res *process.Result) error {
		return classify(cmd, res, resource, id)
	})
}

// Stats takes one docker stats sample of ids, or of every running container
// when ids is empty.
func (c *Client) Stats(ctx context.Context, ids ...string) ([]ContainerStats, error) {
	op := newQuery(c, "docker stats", "container", strings.Join(ids, ","),
		func(ids []string) []string {
			return append([]string{"stats", "--no-stream", "--format", jsonFormat}, ids...)
		}, ParseStats)
	return op.Execute(ctx, ids)
}

// ContainerSummary is one row of docker ps.
type ContainerSummary struct {
	ID         string            `json:"ID"`
	Names      string            `json:"Names"`
	Image      string            `json:"Image"`
	Command    string            `json:"Command"`
	CreatedAt  string            `json:"CreatedAt"`
	RunningFor string            `json:"RunningFor"`
	State      string            `json:"State"`
	Status     string            `json:"Status"`
	Ports      string            `json:"Ports"`
	Networks   string            `json:"Networks"`
	Labels     map[string]string `json:"-"`
}

// ParseContainers parses the JSON lines of docker ps.
func ParseContainers(output string) ([]ContainerSummary, error) {
	lines := util.NonEmptyLines(output)
	out := make([]ContainerSummary, 0, len(lines))
	for _, line := range lines {
		var row struct {
			ContainerSummary
			Labels string `json:"Labels"`
		}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, apperrors.ParseFailed("docker ps", err)
		}
		summary := row.ContainerSummary
		if records := ParseRecords(row.Labels, ","); len(records) > 0 {
			summary.Labels = records[0]
		}
		out = append(out, summary)
	}
	return out, nil
}

// ParseRecords parses line-oriented key=value records: one record per
// non-empty line, fields separated by sep. A field without "=" maps to "".
//
//	ParseRecords("name=web;state=running\nname=db;state=exited", ";")
func ParseRecords(output, sep string) []map[string]string {
	var records []map[string]string
	for _, line := range util.NonEmptyLines(output) {
		rec := map[string]string{}
		for _, field := range strings.Split(line, sep) {
			k, v, _ := strings.Cut(field, "=")
			if k = strings.TrimSpace(k); k != "" {
				rec[k] = strings.TrimSpace(v)
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records
}

// ListOptions filters docker ps.
type ListOptions struct {
	// All includes stopped containers.
	All bool
	// Filters become --filter key=value flags in key order.
	Filters map[string]string
}

func (o ListOptions) args() []string {
	args := []string{"ps", "--no-trunc", "--format", jsonFormat}
	if o.All {
		args = append(args, "-a")
	}
	for _, k := range util.SortedKeys(o.Filters) {
		args = append(args, "--filter", k+"="+o.Filters[k])
	}
	return args
}

// List runs docker ps.
func (c *Client) List(ctx context.Context, lo ListOptions) ([]ContainerSummary, error) {
	return newQuery(c, "docker ps", "container", "", ListOptions.args, ParseContainers).Execute(ctx, lo)
}
