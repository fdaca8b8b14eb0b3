// Command cv-node-inventory keeps CloudVision's NodeConfig inventory in
// sync with a Slurm cluster. One-shot mode (the default) collects interface
// data from every available node and upserts a NodeConfig per node; monitor
// mode polls sinfo and reacts to node additions, removals, and availability
// changes.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	pz "github.com/weberc2/httpeasy"
	"golang.org/x/sync/errgroup"

	"github.com/weberc2/cvslurm/pkg/cvapi"
	"github.com/weberc2/cvslurm/pkg/discovery"
	"github.com/weberc2/cvslurm/pkg/inventory"
	"github.com/weberc2/cvslurm/pkg/slurm"
)

func main() {
	app := cli.App{
		Name:  "cv-node-inventory",
		Usage: "collect Slurm node inventory and update CloudVision NodeConfig",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name: "monitor",
				Usage: "run in continuous monitoring mode (reacts to node " +
					"add/delete and availability events)",
			},
			&cli.IntFlag{
				Name:  "poll-interval",
				Value: 60,
				Usage: "seconds between node checks in monitor mode",
			},
			&cli.StringFlag{
				Name: "status-addr",
				Usage: "optional listen address for the HTTP health/status " +
					"endpoint (monitor mode only)",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(
		os.Stdout,
		&slog.HandlerOptions{Level: level},
	))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	slurmClient := &slurm.Client{
		Runner: slurm.ExecRunner{},
		Logger: logger.With("component", "SLURM"),
	}
	clusterName, err := slurmClient.ClusterName(ctx)
	if err != nil {
		return err
	}
	logger.Info("cluster name", "name", clusterName)

	ifaceRegex := cfg.IfaceNameRegex
	if _, err := regexp.Compile(ifaceRegex); err != nil {
		logger.Warn(
			"invalid interface name regex; using default",
			"regex", ifaceRegex,
			"err", err.Error(),
		)
		ifaceRegex = discovery.DefaultNameFilter.String()
	}
	worker := []string{
		cfg.DiscoveryCommand,
		"--cluster", clusterName,
		"--iface-regex", ifaceRegex,
	}
	if c.Bool("debug") {
		worker = append(worker, "--debug")
	}

	monitor := inventory.Monitor{
		Source: &inventory.SlurmSource{
			Client: slurmClient,
			Logger: logger.With("component", "NODE-SOURCE"),
		},
		Discovery: &inventory.SlurmDiscoverer{
			Client:  slurmClient,
			JobName: cfg.DiscoveryJobName,
			Command: worker,
			Logger:  logger.With("component", "DISCOVERY"),
		},
		Inventory: &cvapi.Client{
			Server: cfg.APIServer,
			Token:  cfg.APIToken,
			Logger: logger.With("component", "CV-API"),
		},
		Location: clusterName,
		Logger:   logger.With("component", "NODE-MONITOR"),
	}

	if !c.Bool("monitor") {
		return monitor.RunOnce(ctx)
	}

	status := &inventory.Status{}
	monitor.Status = status
	interval := time.Duration(c.Int("poll-interval")) * time.Second

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := monitor.Run(ctx, interval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if addr := c.String("status-addr"); addr != "" {
		srv := &http.Server{
			Addr:         addr,
			Handler:      pz.Register(pz.JSONLog(os.Stderr), status.Routes()...),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting status listener", "addr", addr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				5*time.Second,
			)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
