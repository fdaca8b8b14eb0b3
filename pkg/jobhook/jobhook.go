// Package jobhook reports Slurm job lifecycle events to CloudVision. It is
// driven entirely by the SLURM_* environment variables that slurmctld
// provides to PrologSlurmctld and EpilogSlurmctld hooks.
package jobhook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/weberc2/cvslurm/pkg/cvapi"
	"github.com/weberc2/cvslurm/pkg/slurm"
)

const (
	contextProlog = "prolog_slurmctld"
	contextEpilog = "epilog_slurmctld"
)

// Env captures the SLURM_* variables provided to hook invocations.
type Env struct {
	JobID       string
	JobName     string
	ClusterName string
	Partition   string
	StartTime   string
	EndTime     string
	NodeList    string
	Context     string
	ExitCode    string
	ExitCode2   string
}

// EnvFromOS reads the hook environment from the process environment.
func EnvFromOS() Env {
	return Env{
		JobID:       os.Getenv("SLURM_JOB_ID"),
		JobName:     os.Getenv("SLURM_JOB_NAME"),
		ClusterName: os.Getenv("SLURM_CLUSTER_NAME"),
		Partition:   os.Getenv("SLURM_JOB_PARTITION"),
		StartTime:   os.Getenv("SLURM_JOB_START_TIME"),
		EndTime:     os.Getenv("SLURM_JOB_END_TIME"),
		NodeList:    os.Getenv("SLURM_JOB_NODELIST"),
		Context:     os.Getenv("SLURM_SCRIPT_CONTEXT"),
		ExitCode:    os.Getenv("SLURM_JOB_EXIT_CODE"),
		ExitCode2:   os.Getenv("SLURM_JOB_EXIT_CODE2"),
	}
}

// State derives the CloudVision job state from the hook context and the
// Slurm exit-code variables. A prolog invocation is always RUNNING. In
// epilog context, SLURM_JOB_EXIT_CODE2 ("code:signal") takes precedence
// over SLURM_JOB_EXIT_CODE: a zero exit code with a nonzero signal means
// the job was cancelled, a nonzero exit code means it failed, and anything
// else means it completed.
func (env Env) State() cvapi.JobState {
	switch env.Context {
	case contextProlog:
		return cvapi.JobStateRunning
	case contextEpilog:
	default:
		return cvapi.JobStateUnknown
	}

	exitCode, signal := env.exitStatus()
	state := cvapi.JobStateCompleted
	switch {
	case exitCode != nil && *exitCode == 0 && signal != nil && *signal != 0:
		state = cvapi.JobStateCancelled
	case exitCode != nil && *exitCode != 0:
		state = cvapi.JobStateFailed
	}
	return state
}

func (env Env) exitStatus() (exitCode, signal *int) {
	if code, sig, found := strings.Cut(env.ExitCode2, ":"); found {
		if v, err := strconv.Atoi(code); err == nil {
			exitCode = &v
		}
		if v, err := strconv.Atoi(sig); err == nil {
			signal = &v
		}
		return
	}
	if env.ExitCode != "" {
		if v, err := strconv.Atoi(env.ExitCode); err == nil {
			exitCode = &v
		}
	}
	return
}

// FormatTimestamp converts a Unix timestamp string from the Slurm
// environment to RFC3339 UTC. Returns "" if the value is missing or
// malformed.
func FormatTimestamp(s string) string {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ""
	}
	return time.Unix(secs, 0).UTC().Format(time.RFC3339)
}

// JobSender sends JobConfig resources to CloudVision.
type JobSender interface {
	SendJobConfig(ctx context.Context, job *cvapi.JobConfig) error
}

// Hook builds a JobConfig from the hook environment and sends it. Failures
// are reported as errors so the caller can log them, but the hook binary
// always exits zero: monitoring must never block job execution.
type Hook struct {
	API JobSender
	// JobNameExclude filters out jobs whose name matches; by default this
	// excludes this system's own "cv-" discovery jobs.
	JobNameExclude *regexp.Regexp
	// Partitions, when non-empty, restricts reporting to jobs in the listed
	// partitions.
	Partitions []string
	Logger     *slog.Logger
}

// Report validates the hook environment, applies the filters, and sends a
// JobConfig update to CloudVision. A filtered job returns nil without
// calling the API.
func (h *Hook) Report(ctx context.Context, env Env) error {
	startTime := FormatTimestamp(env.StartTime)
	state := env.State()
	nodes := slurm.ExpandNodeList(env.NodeList)

	var missing []string
	if env.JobID == "" {
		missing = append(missing, "job_id")
	}
	if env.ClusterName == "" {
		missing = append(missing, "location")
	}
	if env.JobName == "" {
		missing = append(missing, "job_name")
	}
	if startTime == "" {
		missing = append(missing, "start_time")
	}
	if len(nodes) == 0 {
		missing = append(missing, "nodes")
	}
	if state == cvapi.JobStateUnknown {
		missing = append(missing, "state (invalid context)")
	}
	if len(missing) > 0 {
		return fmt.Errorf(
			"job %q (%q): missing or invalid required fields: %s",
			env.JobID,
			env.JobName,
			strings.Join(missing, ", "),
		)
	}

	if h.JobNameExclude != nil && h.JobNameExclude.MatchString(env.JobName) {
		h.Logger.Info(
			"job filtered out by name",
			"jobID", env.JobID,
			"jobName", env.JobName,
		)
		return nil
	}
	if len(h.Partitions) > 0 &&
		env.Partition != "" &&
		!slices.Contains(h.Partitions, env.Partition) {
		h.Logger.Info(
			"job filtered out by partition",
			"jobID", env.JobID,
			"jobName", env.JobName,
			"partition", env.Partition,
		)
		return nil
	}

	endTime := FormatTimestamp(env.EndTime)
	if state.Terminal() && endTime == "" {
		// The epilog's SLURM_JOB_END_TIME is the only end-time source; don't
		// attempt the API call without it.
		return fmt.Errorf(
			"job %q (%q): missing end time for terminal state %s",
			env.JobID,
			env.JobName,
			state,
		)
	}
	if !state.Terminal() {
		// A non-terminal job's SLURM_JOB_END_TIME is its expiration time,
		// not an actual end time.
		endTime = ""
	}

	name := env.JobName
	if env.Partition != "" {
		name = env.JobName + "@" + env.Partition
	}

	job := cvapi.JobConfig{
		// Job IDs are only unique within a cluster; qualify with the
		// location to keep clusters from clobbering each other.
		Key:       cvapi.Key{ID: env.JobID + "@" + env.ClusterName},
		Name:      name,
		State:     state,
		StartTime: startTime,
		EndTime:   endTime,
		Location:  env.ClusterName,
		// Slurm allocates whole nodes to jobs, so report in node mode.
		Nodes: &cvapi.Values[string]{Values: nodes},
	}

	if err := h.API.SendJobConfig(ctx, &job); err != nil {
		return fmt.Errorf(
			"reporting job %q (%q): %w",
			env.JobID,
			env.JobName,
			err,
		)
	}
	return nil
}
