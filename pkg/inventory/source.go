package inventory

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/weberc2/cvslurm/pkg/discovery"
	"github.com/weberc2/cvslurm/pkg/slurm"
)

// SlurmSource produces snapshots from sinfo via a slurm client.
type SlurmSource struct {
	Client *slurm.Client
	Logger *slog.Logger
}

func (s *SlurmSource) Snapshot(ctx context.Context) (Snapshot, error) {
	nodes, err := s.Client.Nodes(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		All:       make(map[string]struct{}, len(nodes)),
		Available: make(map[string]struct{}, len(nodes)),
	}
	for _, node := range nodes {
		snap.All[node.Name] = struct{}{}
		if node.State.Available() {
			snap.Available[node.Name] = struct{}{}
		} else {
			s.Logger.Debug(
				"node is unavailable",
				"node", node.Name,
				"state", node.State.String(),
			)
		}
	}
	return snap, nil
}

// SlurmDiscoverer collects interface data by dispatching the discovery
// worker to the target nodes via srun. Each node writes one JSON line;
// malformed lines are skipped with a warning rather than failing the batch.
type SlurmDiscoverer struct {
	Client *slurm.Client
	// JobName is the srun job name for discovery runs. The job hook's
	// default name filter excludes it so discovery jobs don't report
	// themselves.
	JobName string
	// Command is the worker invocation executed on every node.
	Command []string
	Logger  *slog.Logger
}

func (d *SlurmDiscoverer) Discover(
	ctx context.Context,
	nodes []string,
) ([]discovery.NodeData, error) {
	lines, err := d.Client.RunDiscovery(ctx, d.JobName, nodes, d.Command)
	if err != nil {
		return nil, err
	}

	var results []discovery.NodeData
	for _, line := range lines {
		var node discovery.NodeData
		if err := json.Unmarshal(line, &node); err != nil {
			d.Logger.Warn(
				"skipping malformed discovery output",
				"err", err.Error(),
				"line", string(line),
			)
			continue
		}
		results = append(results, node)
	}
	return results, nil
}
