package discovery

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
)

// fakeSysfs builds a /sys/class/net lookalike in a temp dir. Interfaces
// with physical=true get a `device` symlink the way real NICs do.
type fakeIface struct {
	name      string
	mac       string
	operstate string
	physical  bool
}

func fakeSysfs(t *testing.T, ifaces []fakeIface) string {
	t.Helper()
	root := t.TempDir()

	// physical `device` symlinks point at a PCI device directory
	deviceTarget := filepath.Join(root, "pci0000:00")
	if err := os.Mkdir(deviceTarget, 0755); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for _, iface := range ifaces {
		dir := filepath.Join(root, iface.name)
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if iface.mac != "" {
			if err := os.WriteFile(
				filepath.Join(dir, "address"),
				[]byte(iface.mac+"\n"),
				0644,
			); err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		}
		if iface.operstate != "" {
			if err := os.WriteFile(
				filepath.Join(dir, "operstate"),
				[]byte(iface.operstate+"\n"),
				0644,
			); err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		}
		if iface.physical {
			if err := os.Symlink(
				deviceTarget,
				filepath.Join(dir, "device"),
			); err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		}
	}
	return root
}

func fakeAddrs(addrs map[string][]string) func(string) ([]net.Addr, error) {
	return func(name string) ([]net.Addr, error) {
		var result []net.Addr
		for _, cidr := range addrs[name] {
			ip, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, err
			}
			ipNet.IP = ip
			result = append(result, ipNet)
		}
		return result, nil
	}
}

func TestCollect(t *testing.T) {
	sysfs := fakeSysfs(t, []fakeIface{
		{name: "eth1", mac: "AA:BB:CC:DD:EE:02", operstate: "up", physical: true},
		{name: "eth0", mac: "aa:bb:cc:dd:ee:01", operstate: "up", physical: true},
		{name: "eno1", mac: "aa:bb:cc:dd:ee:03", operstate: "down", physical: true},
		// virtual interfaces: no device symlink
		{name: "br0", mac: "aa:bb:cc:dd:ee:04", operstate: "up"},
		// always-skipped names
		{name: "lo", mac: "00:00:00:00:00:00", operstate: "up"},
		{name: "docker0", mac: "aa:bb:cc:dd:ee:05", operstate: "up"},
		{name: "veth12ab", mac: "aa:bb:cc:dd:ee:06", operstate: "up", physical: true},
		// physical but outside the name filter
		{name: "wlan0", mac: "aa:bb:cc:dd:ee:07", operstate: "up", physical: true},
		// physical but no usable MAC
		{name: "eth9", mac: "00:00:00:00:00:00", operstate: "up", physical: true},
	})

	collector := Collector{
		SysfsPath: sysfs,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Addrs: fakeAddrs(map[string][]string{
			"eth0": {"10.0.0.1/24"},
			"eth1": {"10.0.1.1/24", "127.0.0.1/8"},
			"eno1": {"10.0.2.1/24"},
		}),
	}

	found, err := collector.Collect()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	wanted := []Interface{
		// eno1 is down, so its addresses aren't reported
		{Name: "eno1", MACAddress: "aa:bb:cc:dd:ee:03"},
		{
			Name:        "eth0",
			MACAddress:  "aa:bb:cc:dd:ee:01",
			IPAddresses: []string{"10.0.0.1"},
		},
		{
			// MACs are normalized to lowercase; loopback addresses dropped
			Name:        "eth1",
			MACAddress:  "aa:bb:cc:dd:ee:02",
			IPAddresses: []string{"10.0.1.1"},
		},
	}
	if !reflect.DeepEqual(wanted, found) {
		t.Fatalf("wanted `%+v`; found `%+v`", wanted, found)
	}
}

func TestCollectCustomNameFilter(t *testing.T) {
	sysfs := fakeSysfs(t, []fakeIface{
		{name: "ib0", mac: "aa:bb:cc:dd:ee:01", operstate: "up", physical: true},
		{name: "eth0", mac: "aa:bb:cc:dd:ee:02", operstate: "up", physical: true},
	})

	collector := Collector{
		SysfsPath:  sysfs,
		NameFilter: regexp.MustCompile(`^ib`),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Addrs:      fakeAddrs(nil),
	}

	found, err := collector.Collect()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(found) != 1 || found[0].Name != "ib0" {
		t.Fatalf("wanted only `ib0`; found `%+v`", found)
	}
}

func TestCollectMissingSysfs(t *testing.T) {
	collector := Collector{
		SysfsPath: filepath.Join(t.TempDir(), "does-not-exist"),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if _, err := collector.Collect(); err == nil {
		t.Fatal("wanted error; found `nil`")
	}
}
