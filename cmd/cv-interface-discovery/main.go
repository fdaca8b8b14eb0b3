// Command cv-interface-discovery is the worker half of the node inventory.
// The monitor dispatches it to each compute node via srun; it collects the
// node's physical interface data from sysfs and writes a single JSON line
// on stdout. Logs go to stderr so stdout stays machine-readable.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/weberc2/cvslurm/pkg/discovery"
)

func main() {
	app := cli.App{
		Name:  "cv-interface-discovery",
		Usage: "collect physical network interface data on a Slurm compute node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cluster",
				Usage: "cluster name reported as the node's location",
			},
			&cli.StringFlag{
				Name:  "iface-regex",
				Usage: "regular expression matching physical interface names",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: level},
	))

	// slurmd sets SLURMD_NODENAME on every task it launches; without it we
	// can't attribute the result to a node.
	nodeName := os.Getenv("SLURMD_NODENAME")
	if nodeName == "" {
		return errors.New("missing node name (SLURMD_NODENAME not set)")
	}

	cluster := c.String("cluster")
	if cluster == "" {
		cluster = os.Getenv("SLURM_CLUSTER_NAME")
	}
	if cluster == "" {
		cluster = "slurm"
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("getting hostname: %w", err)
	}
	hostname, _, _ = strings.Cut(hostname, ".")

	logger.Info(
		"collecting interface data",
		"node", nodeName,
		"cluster", cluster,
	)

	var nameFilter *regexp.Regexp
	if pattern := c.String("iface-regex"); pattern != "" {
		if nameFilter, err = regexp.Compile(pattern); err != nil {
			logger.Warn(
				"invalid interface name regex; using default",
				"regex", pattern,
				"err", err.Error(),
			)
			nameFilter = nil
		}
	}

	collector := discovery.Collector{NameFilter: nameFilter, Logger: logger}
	interfaces, err := collector.Collect()
	if err != nil {
		return fmt.Errorf("collecting interfaces: %w", err)
	}
	if len(interfaces) == 0 {
		logger.Warn("no usable interfaces found", "node", nodeName)
		interfaces = []discovery.Interface{}
	}
	for _, iface := range interfaces {
		logger.Info(
			"discovered interface",
			"name", iface.Name,
			"mac", iface.MACAddress,
			"ips", strings.Join(iface.IPAddresses, ","),
		)
	}

	data, err := json.Marshal(&discovery.NodeData{
		NodeName:   nodeName,
		Hostname:   hostname,
		Location:   cluster,
		Interfaces: interfaces,
	})
	if err != nil {
		return fmt.Errorf("marshaling node data: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
