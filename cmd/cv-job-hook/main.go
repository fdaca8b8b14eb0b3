// Command cv-job-hook reports Slurm job lifecycle events to CloudVision. It
// is intended to run as both PrologSlurmctld and EpilogSlurmctld. Every
// failure is logged and swallowed: the hook always exits zero so that
// monitoring never blocks job execution.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/weberc2/cvslurm/pkg/cvapi"
	"github.com/weberc2/cvslurm/pkg/jobhook"
)

func main() {
	cfg, cfgErr := LoadConfig()
	logger := newLogger(&cfg)

	if cfgErr != nil {
		logger.Error("loading config", "err", cfgErr.Error())
		return
	}

	logger.Debug("slurm environment", "env", slurmEnviron())

	if !cfg.Configured() {
		logger.Warn(
			"CloudVision API is not configured " +
				"(CV_API_SERVER or CV_API_TOKEN empty)",
		)
		return
	}

	var exclude *regexp.Regexp
	if cfg.JobNameExclude != "" {
		var err error
		if exclude, err = regexp.Compile(cfg.JobNameExclude); err != nil {
			logger.Error(
				"invalid job name exclude pattern; proceeding unfiltered",
				"pattern", cfg.JobNameExclude,
				"err", err.Error(),
			)
		}
	}

	hook := jobhook.Hook{
		API: &cvapi.Client{
			Server: cfg.APIServer,
			Token:  cfg.APIToken,
			Logger: logger.With("component", "CV-API"),
		},
		JobNameExclude: exclude,
		Partitions:     cfg.Partitions,
		Logger:         logger,
	}

	if err := hook.Report(context.Background(), jobhook.EnvFromOS()); err != nil {
		logger.Error("reporting job", "err", err.Error())
	}
}

// newLogger logs to both the configured log file and stdout. If the log
// file can't be opened the hook degrades to stdout only.
func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	w := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(
			cfg.LogFile,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			0644,
		)
		if err == nil {
			w = io.MultiWriter(f, os.Stdout)
		}
	}

	logger := slog.New(slog.NewTextHandler(
		w,
		&slog.HandlerOptions{Level: level},
	))
	slog.SetDefault(logger)
	return logger
}

func slurmEnviron() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "SLURM_") {
			env = append(env, kv)
		}
	}
	return env
}
