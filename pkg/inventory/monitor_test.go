package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/weberc2/cvslurm/pkg/cvapi"
	"github.com/weberc2/cvslurm/pkg/discovery"
)

type nodeSourceMock struct {
	snapshot func() (Snapshot, error)
}

func (nsm *nodeSourceMock) Snapshot(ctx context.Context) (Snapshot, error) {
	if nsm.snapshot == nil {
		panic("nodeSourceMock: missing `snapshot` hook")
	}
	return nsm.snapshot()
}

type discovererMock struct {
	discover func(nodes []string) ([]discovery.NodeData, error)
}

func (dm *discovererMock) Discover(
	ctx context.Context,
	nodes []string,
) ([]discovery.NodeData, error) {
	if dm.discover == nil {
		panic("discovererMock: missing `discover` hook")
	}
	return dm.discover(nodes)
}

type inventoryMock struct {
	sendNodeConfig   func(node *cvapi.NodeConfig) error
	deleteNodeConfig func(nodeName string) error
}

func (im *inventoryMock) SendNodeConfig(
	ctx context.Context,
	node *cvapi.NodeConfig,
) error {
	if im.sendNodeConfig == nil {
		panic("inventoryMock: missing `sendNodeConfig` hook")
	}
	return im.sendNodeConfig(node)
}

func (im *inventoryMock) DeleteNodeConfig(
	ctx context.Context,
	nodeName string,
) error {
	if im.deleteNodeConfig == nil {
		panic("inventoryMock: missing `deleteNodeConfig` hook")
	}
	return im.deleteNodeConfig(nodeName)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nodeData(nodes ...string) []discovery.NodeData {
	var data []discovery.NodeData
	for _, node := range nodes {
		data = append(data, discovery.NodeData{
			NodeName: node,
			Hostname: node,
			Location: "hpc-east",
			Interfaces: []discovery.Interface{{
				Name:        "eth0",
				MACAddress:  "aa:bb:cc:dd:ee:ff",
				IPAddresses: []string{"10.0.0.1"},
			}},
		})
	}
	return data
}

func TestTickNoChanges(t *testing.T) {
	monitor := Monitor{
		Source: &nodeSourceMock{
			snapshot: func() (Snapshot, error) {
				return Snapshot{
					All:       set("a", "b"),
					Available: set("a"),
				}, nil
			},
		},
		Discovery: &discovererMock{
			discover: func(nodes []string) ([]discovery.NodeData, error) {
				t.Fatal("unexpected discovery dispatch")
				return nil, nil
			},
		},
		Inventory: &inventoryMock{
			sendNodeConfig: func(node *cvapi.NodeConfig) error {
				t.Fatal("unexpected node config upsert")
				return nil
			},
			deleteNodeConfig: func(nodeName string) error {
				t.Fatal("unexpected node config delete")
				return nil
			},
		},
		Location: "hpc-east",
		Logger:   discardLogger(),
	}
	monitor.previous = Snapshot{All: set("a", "b"), Available: set("a")}

	if err := monitor.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestTickDispatchesRefreshAndDelete(t *testing.T) {
	var (
		discovered []string
		upserted   []string
		deleted    []string
	)
	monitor := Monitor{
		Source: &nodeSourceMock{
			snapshot: func() (Snapshot, error) {
				return Snapshot{
					All:       set("b", "c", "d"),
					Available: set("b", "c"),
				}, nil
			},
		},
		Discovery: &discovererMock{
			discover: func(nodes []string) ([]discovery.NodeData, error) {
				discovered = nodes
				return nodeData(nodes...), nil
			},
		},
		Inventory: &inventoryMock{
			sendNodeConfig: func(node *cvapi.NodeConfig) error {
				upserted = append(upserted, node.Key.ID)
				return nil
			},
			deleteNodeConfig: func(nodeName string) error {
				deleted = append(deleted, nodeName)
				return nil
			},
		},
		Location: "hpc-east",
		Logger:   discardLogger(),
		Status:   &Status{},
	}
	monitor.previous = Snapshot{
		All:       set("a", "b", "c"),
		Available: set("a", "b"),
	}

	if err := monitor.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// added={d}, removed={a}, newly available={c}; d isn't available yet,
	// so refresh {c}, delete {a}
	if wanted := []string{"c"}; !reflect.DeepEqual(wanted, discovered) {
		t.Fatalf("wanted discovery on `%v`; found `%v`", wanted, discovered)
	}
	if wanted := []string{"c"}; !reflect.DeepEqual(wanted, upserted) {
		t.Fatalf("wanted upserts for `%v`; found `%v`", wanted, upserted)
	}
	if wanted := []string{"a"}; !reflect.DeepEqual(wanted, deleted) {
		t.Fatalf("wanted deletes for `%v`; found `%v`", wanted, deleted)
	}

	summary, ticked := monitor.Status.Last()
	if !ticked {
		t.Fatal("wanted a recorded tick summary; found none")
	}
	if summary.Refreshed != 1 || summary.Deleted != 1 {
		t.Fatalf(
			"wanted refreshed=1 deleted=1; found refreshed=%d deleted=%d",
			summary.Refreshed,
			summary.Deleted,
		)
	}
}

func TestTickReplacesSnapshotDespiteFailures(t *testing.T) {
	ticks := 0
	monitor := Monitor{
		Source: &nodeSourceMock{
			snapshot: func() (Snapshot, error) {
				return Snapshot{
					All:       set("a", "b"),
					Available: set("a", "b"),
				}, nil
			},
		},
		Discovery: &discovererMock{
			discover: func(nodes []string) ([]discovery.NodeData, error) {
				ticks++
				return nodeData(nodes...), nil
			},
		},
		Inventory: &inventoryMock{
			sendNodeConfig: func(node *cvapi.NodeConfig) error {
				return fmt.Errorf("api unavailable")
			},
		},
		Location: "hpc-east",
		Logger:   discardLogger(),
	}
	monitor.previous = Snapshot{All: set("a"), Available: set("a")}

	// first tick sees the new node and fails to upsert it
	if err := monitor.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ticks != 1 {
		t.Fatalf("wanted `1` discovery dispatch; found `%d`", ticks)
	}

	// the failed upsert is not retried on the next tick: the snapshot was
	// replaced, so the node no longer counts as added
	if err := monitor.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ticks != 1 {
		t.Fatalf("wanted `1` discovery dispatch; found `%d`", ticks)
	}
}

func TestTickPollFailureDegradesToEmptySnapshot(t *testing.T) {
	var deleted []string
	monitor := Monitor{
		Source: &nodeSourceMock{
			snapshot: func() (Snapshot, error) {
				return Snapshot{}, fmt.Errorf("sinfo failed")
			},
		},
		Discovery: &discovererMock{},
		Inventory: &inventoryMock{
			deleteNodeConfig: func(nodeName string) error {
				deleted = append(deleted, nodeName)
				return nil
			},
		},
		Location: "hpc-east",
		Logger:   discardLogger(),
	}
	monitor.previous = Snapshot{All: set("a"), Available: set("a")}

	if err := monitor.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if wanted := []string{"a"}; !reflect.DeepEqual(wanted, deleted) {
		t.Fatalf("wanted deletes for `%v`; found `%v`", wanted, deleted)
	}
}

func TestRunOnce(t *testing.T) {
	for _, testCase := range []struct {
		name       string
		sendErrors map[string]bool
		wantErr    bool
	}{
		{
			name:       "all succeed",
			sendErrors: map[string]bool{},
		},
		{
			name:       "partial failure is not fatal",
			sendErrors: map[string]bool{"a": true},
		},
		{
			name:       "total failure is fatal",
			sendErrors: map[string]bool{"a": true, "b": true},
			wantErr:    true,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			monitor := Monitor{
				Source: &nodeSourceMock{
					snapshot: func() (Snapshot, error) {
						return Snapshot{
							All:       set("a", "b", "c"),
							Available: set("a", "b"),
						}, nil
					},
				},
				Discovery: &discovererMock{
					discover: func(
						nodes []string,
					) ([]discovery.NodeData, error) {
						return nodeData(nodes...), nil
					},
				},
				Inventory: &inventoryMock{
					sendNodeConfig: func(node *cvapi.NodeConfig) error {
						if testCase.sendErrors[node.Key.ID] {
							return fmt.Errorf("api unavailable")
						}
						return nil
					},
				},
				Location: "hpc-east",
				Logger:   discardLogger(),
			}

			err := monitor.RunOnce(context.Background())
			if testCase.wantErr && err == nil {
				t.Fatal("wanted error; found `nil`")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestRunOnceNoAvailableNodes(t *testing.T) {
	monitor := Monitor{
		Source: &nodeSourceMock{
			snapshot: func() (Snapshot, error) {
				return Snapshot{All: set("a"), Available: set()}, nil
			},
		},
		Discovery: &discovererMock{
			discover: func(nodes []string) ([]discovery.NodeData, error) {
				t.Fatal("unexpected discovery dispatch")
				return nil, nil
			},
		},
		Inventory: &inventoryMock{},
		Location:  "hpc-east",
		Logger:    discardLogger(),
	}

	if err := monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestNodeConfigConversion(t *testing.T) {
	monitor := Monitor{Location: "fallback", Logger: discardLogger()}

	found := monitor.nodeConfig(&discovery.NodeData{
		NodeName: "node1",
		Hostname: "node1",
		Interfaces: []discovery.Interface{{
			Name:       "eth0",
			MACAddress: "aa:bb:cc:dd:ee:ff",
		}},
	})

	wanted := &cvapi.NodeConfig{
		Key:      cvapi.Key{ID: "node1"},
		Location: "fallback",
		Hostname: "node1",
		DataInterfaces: cvapi.Values[cvapi.DataInterface]{
			Values: []cvapi.DataInterface{{
				Name:       "eth0",
				MACAddress: "aa:bb:cc:dd:ee:ff",
				IPAddresses: cvapi.Values[string]{
					Values: []string{},
				},
			}},
		},
	}
	if !reflect.DeepEqual(wanted, found) {
		t.Fatalf("wanted `%+v`; found `%+v`", wanted, found)
	}
}
