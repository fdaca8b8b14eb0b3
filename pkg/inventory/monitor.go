// Package inventory keeps CloudVision's NodeConfig inventory in sync with
// the Slurm cluster: it polls node membership and availability, diffs
// consecutive snapshots, refreshes the interface inventory of nodes that
// appeared or became available, and deletes nodes that left the cluster.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/weberc2/cvslurm/pkg/cvapi"
	"github.com/weberc2/cvslurm/pkg/discovery"
)

// NodeSource produces snapshots of cluster node state.
type NodeSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Discoverer collects interface data from the given nodes.
type Discoverer interface {
	Discover(
		ctx context.Context,
		nodes []string,
	) ([]discovery.NodeData, error)
}

// Inventory is the CloudVision NodeConfig API surface the monitor needs.
type Inventory interface {
	SendNodeConfig(ctx context.Context, node *cvapi.NodeConfig) error
	DeleteNodeConfig(ctx context.Context, nodeName string) error
}

// Monitor drives the poll/diff/dispatch loop. Per-node API failures are
// counted but never retried: the snapshot is replaced every tick regardless
// of outcome, so a failed upsert is only reattempted when the node's
// membership or availability changes again.
type Monitor struct {
	Source    NodeSource
	Discovery Discoverer
	Inventory Inventory
	// Location identifies this cluster in CloudVision payloads; used when a
	// discovery result doesn't carry its own.
	Location string
	Logger   *slog.Logger
	// Status, when set, records a summary of each tick for the HTTP status
	// listener.
	Status *Status

	previous Snapshot
}

// Run seeds the monitor with an initial full inventory and then ticks at
// the given interval until the context is canceled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	m.Logger.Info("starting node monitor", "interval", interval.String())
	m.seed(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				if errors.Is(err, context.Canceled) ||
					errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				m.Logger.Error("running monitor tick", "err", err.Error())
			}
		}
	}
}

// seed takes the initial snapshot and uploads the inventory of every
// available node so that the first tick diffs against real state.
func (m *Monitor) seed(ctx context.Context) {
	m.previous = m.snapshot(ctx)
	if len(m.previous.All) == 0 {
		m.Logger.Warn("no nodes found in initial scan")
		return
	}
	m.Logger.Info(
		"initial node scan",
		"nodes", len(m.previous.All),
		"available", len(m.previous.Available),
	)

	available := sortedKeys(m.previous.Available)
	if len(available) == 0 {
		return
	}
	succeeded, failed := m.refresh(ctx, available)
	m.Logger.Info(
		"initial inventory complete",
		"succeeded", succeeded,
		"failed", failed,
	)
}

// Tick performs one poll/diff/dispatch cycle.
func (m *Monitor) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cur := m.snapshot(ctx)
	changes := Diff(m.previous, cur)
	m.previous = cur

	summary := TickSummary{
		Time:           time.Now().UTC(),
		Nodes:          len(cur.All),
		AvailableNodes: len(cur.Available),
		Added:          len(changes.Added),
		Removed:        len(changes.Removed),
		NewlyAvailable: len(changes.NewlyAvailable),
	}
	defer func() { m.Status.record(summary) }()

	if changes.Empty() {
		m.Logger.Debug("no node or state changes detected")
		return nil
	}

	if len(changes.Added) > 0 {
		m.Logger.Info("detected new nodes", "nodes", sortedKeys(changes.Added))
	}
	if len(changes.NewlyAvailable) > 0 {
		m.Logger.Info(
			"detected nodes that became available",
			"nodes", sortedKeys(changes.NewlyAvailable),
		)
	}

	if len(changes.ToRefresh) > 0 {
		succeeded, failed := m.refresh(ctx, sortedKeys(changes.ToRefresh))
		summary.Refreshed = succeeded
		summary.RefreshFailed = failed
		m.Logger.Info(
			"updated nodes",
			"succeeded", succeeded,
			"failed", failed,
		)
	}

	if len(changes.Removed) > 0 {
		removed := sortedKeys(changes.Removed)
		m.Logger.Info("detected removed nodes", "nodes", removed)
		var succeeded, failed int
		for _, node := range removed {
			if err := m.Inventory.DeleteNodeConfig(ctx, node); err != nil {
				m.Logger.Error(
					"deleting node config",
					"node", node,
					"err", err.Error(),
				)
				failed++
				continue
			}
			succeeded++
		}
		summary.Deleted = succeeded
		summary.DeleteFailed = failed
		m.Logger.Info(
			"deleted nodes",
			"succeeded", succeeded,
			"failed", failed,
		)
	}

	return ctx.Err()
}

// RunOnce collects and uploads the inventory of every available node, then
// returns. It only fails when every node failed.
func (m *Monitor) RunOnce(ctx context.Context) error {
	m.Logger.Info("running one-time node inventory collection")

	snap := m.snapshot(ctx)
	if unavailable := len(snap.All) - len(snap.Available); unavailable > 0 {
		m.Logger.Info("skipping unavailable nodes", "count", unavailable)
	}

	available := sortedKeys(snap.Available)
	if len(available) == 0 {
		m.Logger.Warn("no available nodes found")
		return nil
	}

	succeeded, failed := m.refresh(ctx, available)
	m.Logger.Info(
		"inventory complete",
		"succeeded", succeeded,
		"failed", failed,
	)
	if succeeded == 0 && failed > 0 {
		return fmt.Errorf("all %d node inventory updates failed", failed)
	}
	return nil
}

// snapshot polls the node source. A poll failure is logged and degrades to
// an empty snapshot rather than aborting the tick.
func (m *Monitor) snapshot(ctx context.Context) Snapshot {
	snap, err := m.Source.Snapshot(ctx)
	if err != nil {
		m.Logger.Error("polling node status", "err", err.Error())
		return Snapshot{
			All:       map[string]struct{}{},
			Available: map[string]struct{}{},
		}
	}
	return snap
}

// refresh collects interface data from the given nodes and upserts a
// NodeConfig per result, returning per-node success/failure counts.
func (m *Monitor) refresh(
	ctx context.Context,
	nodes []string,
) (succeeded, failed int) {
	m.Logger.Info("collecting interface data", "nodes", len(nodes))
	results, err := m.Discovery.Discover(ctx, nodes)
	if err != nil {
		m.Logger.Error("collecting interface data", "err", err.Error())
		return 0, 0
	}
	m.Logger.Info("collected interface data", "results", len(results))

	for i := range results {
		node := &results[i]
		if node.NodeName == "" {
			m.Logger.Error("discovery result missing node name")
			failed++
			continue
		}
		if err := m.Inventory.SendNodeConfig(
			ctx,
			m.nodeConfig(node),
		); err != nil {
			m.Logger.Error(
				"sending node config",
				"node", node.NodeName,
				"err", err.Error(),
			)
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

func (m *Monitor) nodeConfig(node *discovery.NodeData) *cvapi.NodeConfig {
	location := node.Location
	if location == "" {
		location = m.Location
	}
	interfaces := make([]cvapi.DataInterface, len(node.Interfaces))
	for i, iface := range node.Interfaces {
		ips := iface.IPAddresses
		if ips == nil {
			ips = []string{}
		}
		interfaces[i] = cvapi.DataInterface{
			Name:        iface.Name,
			MACAddress:  iface.MACAddress,
			IPAddresses: cvapi.Values[string]{Values: ips},
		}
	}
	return &cvapi.NodeConfig{
		Key:      cvapi.Key{ID: node.NodeName},
		Location: location,
		Hostname: node.NodeName,
		DataInterfaces: cvapi.Values[cvapi.DataInterface]{
			Values: interfaces,
		},
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
