// Package discovery collects physical network interface data on a compute
// node from sysfs. It is the worker half of the node inventory: the monitor
// dispatches the cv-interface-discovery binary to each node via srun and
// this package produces the JSON line the monitor reads back.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultSysfsPath is where the kernel exposes network interfaces.
const DefaultSysfsPath = "/sys/class/net"

// DefaultNameFilter matches common physical interface naming schemes.
var DefaultNameFilter = regexp.MustCompile(`^(eth|eno|ens|enp|em)`)

// Interface is one discovered physical interface.
type Interface struct {
	Name        string   `json:"name"`
	MACAddress  string   `json:"mac_address"`
	IPAddresses []string `json:"ip_addresses"`
}

// NodeData is the per-node discovery result, written as a single JSON line
// on the worker's stdout.
type NodeData struct {
	NodeName   string      `json:"node_name"`
	Hostname   string      `json:"hostname"`
	Location   string      `json:"location"`
	Interfaces []Interface `json:"interfaces"`
}

// Collector walks sysfs and reports the node's physical interfaces.
type Collector struct {
	SysfsPath  string         // defaults to DefaultSysfsPath
	NameFilter *regexp.Regexp // defaults to DefaultNameFilter
	Logger     *slog.Logger
	// Addrs returns the addresses assigned to the named interface. Defaults
	// to net.InterfaceByName; tests substitute a fake.
	Addrs func(name string) ([]net.Addr, error)
}

// Collect returns the node's physical interfaces sorted by name. Virtual
// interfaces (no `device` symlink), interfaces outside the name filter, and
// interfaces without a usable MAC address are skipped. IP addresses are only
// reported for interfaces whose operstate is "up".
func (c *Collector) Collect() ([]Interface, error) {
	sysfs := c.SysfsPath
	if sysfs == "" {
		sysfs = DefaultSysfsPath
	}
	nameFilter := c.NameFilter
	if nameFilter == nil {
		nameFilter = DefaultNameFilter
	}

	entries, err := os.ReadDir(sysfs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", sysfs, err)
	}

	var interfaces []Interface
	for _, entry := range entries {
		name := entry.Name()
		if name == "lo" || name == "docker0" || name == "cni0" ||
			strings.HasPrefix(name, "veth") {
			continue
		}
		if !c.isPhysical(sysfs, name) {
			c.Logger.Debug("skipping non-physical interface", "iface", name)
			continue
		}
		if !nameFilter.MatchString(name) {
			c.Logger.Debug(
				"skipping interface outside name filter",
				"iface", name,
			)
			continue
		}

		mac := c.macAddress(sysfs, name)
		if mac == "" {
			c.Logger.Debug("skipping interface with no MAC", "iface", name)
			continue
		}

		ips := c.ipAddresses(sysfs, name)
		interfaces = append(interfaces, Interface{
			Name:        name,
			MACAddress:  mac,
			IPAddresses: ips,
		})
		c.Logger.Debug(
			"discovered interface",
			"iface", name,
			"mac", mac,
			"ips", strings.Join(ips, ","),
		)
	}

	sort.Slice(interfaces, func(i, j int) bool {
		return interfaces[i].Name < interfaces[j].Name
	})
	return interfaces, nil
}

// isPhysical reports whether the interface has a `device` symlink, which
// only physical NICs (as opposed to veth pairs, bridges, etc.) carry.
func (c *Collector) isPhysical(sysfs, name string) bool {
	info, err := os.Lstat(filepath.Join(sysfs, name, "device"))
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

func (c *Collector) macAddress(sysfs, name string) string {
	data, err := os.ReadFile(filepath.Join(sysfs, name, "address"))
	if err != nil {
		c.Logger.Debug("reading MAC", "iface", name, "err", err.Error())
		return ""
	}
	mac := strings.ToLower(strings.TrimSpace(string(data)))
	if mac == "00:00:00:00:00:00" {
		return ""
	}
	return mac
}

func (c *Collector) ipAddresses(sysfs, name string) []string {
	data, err := os.ReadFile(filepath.Join(sysfs, name, "operstate"))
	if err == nil && strings.TrimSpace(string(data)) != "up" {
		c.Logger.Debug(
			"interface is not up",
			"iface", name,
			"state", strings.TrimSpace(string(data)),
		)
		return nil
	}

	addrsFunc := c.Addrs
	if addrsFunc == nil {
		addrsFunc = interfaceAddrs
	}
	addrs, err := addrsFunc(name)
	if err != nil {
		c.Logger.Debug("listing addresses", "iface", name, "err", err.Error())
		return nil
	}

	var ips []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		ips = append(ips, ip.String())
	}
	return ips
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.Addrs()
}
