// Package slurm wraps the Slurm command line tools (scontrol, sinfo, srun)
// behind a small client so that the rest of the codebase never shells out
// directly.
package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external command and returns its standard output. It
// exists so tests can substitute canned output for the Slurm CLI tools.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf(
				"running %s: %w: %s",
				name,
				err,
				bytes.TrimSpace(exitErr.Stderr),
			)
		}
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return out, nil
}

// NodeStatus is one node's name and scheduling state as reported by sinfo.
type NodeStatus struct {
	Name  string
	State NodeState
}

type Client struct {
	Runner Runner
	Logger *slog.Logger
}

// ClusterName returns the ClusterName value from `scontrol show config`. The
// cluster name identifies this cluster in every CloudVision payload, so a
// missing value is an error the caller should treat as fatal.
func (c *Client) ClusterName(ctx context.Context) (string, error) {
	out, err := c.Runner.Output(ctx, "scontrol", "show", "config")
	if err != nil {
		return "", fmt.Errorf("getting cluster name: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(key) != "ClusterName" {
			continue
		}
		if name := strings.TrimSpace(value); name != "" {
			c.Logger.Debug("found cluster name from scontrol", "name", name)
			return name, nil
		}
	}
	return "", errors.New(
		"ClusterName not found in `scontrol show config` output; make sure " +
			"ClusterName is set in slurm.conf",
	)
}

// Nodes returns the name and state of every node known to sinfo. A node that
// belongs to multiple partitions appears once per partition; callers that
// need a set must de-duplicate.
func (c *Client) Nodes(ctx context.Context) ([]NodeStatus, error) {
	out, err := c.Runner.Output(ctx, "sinfo", "-h", "-N", "-o", "%n %T")
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	var nodes []NodeStatus
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		nodes = append(nodes, NodeStatus{
			Name:  fields[0],
			State: ParseNodeState(fields[1]),
		})
	}
	return nodes, nil
}

// RunDiscovery runs the given worker command on every listed node in
// parallel via srun and returns the raw output lines, one per node. srun
// handles the fan-out; the call blocks until every task has finished.
func (c *Client) RunDiscovery(
	ctx context.Context,
	jobName string,
	nodes []string,
	worker []string,
) ([][]byte, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	args := []string{
		"--job-name", jobName,
		"--nodes", strconv.Itoa(len(nodes)),
		"--ntasks", strconv.Itoa(len(nodes)),
		"--ntasks-per-node", "1",
		"--nodelist", strings.Join(nodes, ","),
		"--oversubscribe",
		"--immediate",
	}
	args = append(args, worker...)

	out, err := c.Runner.Output(ctx, "srun", args...)
	if err != nil {
		return nil, fmt.Errorf("dispatching discovery job: %w", err)
	}

	var lines [][]byte
	for _, line := range bytes.Split(bytes.TrimSpace(out), []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
