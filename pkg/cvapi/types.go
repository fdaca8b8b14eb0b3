package cvapi

import (
	"errors"
	"fmt"
)

// JobState is the CloudVision JobConfig state enum.
type JobState string

const (
	JobStateRunning   JobState = "JOB_STATE_RUNNING"
	JobStateCompleted JobState = "JOB_STATE_COMPLETED"
	JobStateFailed    JobState = "JOB_STATE_FAILED"
	JobStateCancelled JobState = "JOB_STATE_CANCELLED"
	JobStateUnknown   JobState = "JOB_STATE_UNKNOWN"
)

// Terminal reports whether the state marks the end of a job's lifecycle.
// Terminal JobConfigs must carry an end time.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// JobTypeTenant marks jobs submitted by a tenant scheduler.
const JobTypeTenant = "JOB_TYPE_TENANT"

// Values wraps a list the way the CloudVision resource API represents
// repeated fields (`{"values": [...]}`).
type Values[T any] struct {
	Values []T `json:"values"`
}

// Key identifies a JobConfig or NodeConfig resource.
type Key struct {
	ID string `json:"id"`
}

// JobConfig is the payload for the JobConfig resource. Exactly one of Nodes
// or Interfaces should be set: Nodes when whole nodes are exclusively
// allocated to the job, Interfaces when only some of a node's interfaces
// are.
type JobConfig struct {
	Key        Key             `json:"key"`
	Name       string          `json:"name"`
	State      JobState        `json:"state"`
	StartTime  string          `json:"start_time"`
	Location   string          `json:"location"`
	EndTime    string          `json:"end_time,omitempty"`
	Type       string          `json:"type,omitempty"`
	Nodes      *Values[string] `json:"nodes,omitempty"`
	Interfaces *Values[string] `json:"interfaces,omitempty"`
}

// Validate checks the invariants the API enforces so that bad payloads are
// rejected before a request is ever attempted.
func (job *JobConfig) Validate() error {
	if job.Key.ID == "" {
		return errors.New("missing job id")
	}
	if job.StartTime == "" {
		return fmt.Errorf("job %s: missing start time", job.Key.ID)
	}
	if job.State.Terminal() && job.EndTime == "" {
		return fmt.Errorf(
			"job %s: missing end time for terminal state %s",
			job.Key.ID,
			job.State,
		)
	}
	if job.Nodes == nil && job.Interfaces == nil {
		return fmt.Errorf("job %s: no nodes or interfaces", job.Key.ID)
	}
	if job.Nodes != nil && len(job.Nodes.Values) == 0 {
		return fmt.Errorf("job %s: empty node list", job.Key.ID)
	}
	if job.Interfaces != nil && len(job.Interfaces.Values) == 0 {
		return fmt.Errorf("job %s: empty interface list", job.Key.ID)
	}
	return nil
}

// DataInterface is one physical interface record in a NodeConfig.
type DataInterface struct {
	Name        string         `json:"name"`
	MACAddress  string         `json:"mac_address"`
	IPAddresses Values[string] `json:"ip_addresses"`
}

// NodeConfig is the payload for the NodeConfig resource.
type NodeConfig struct {
	Key            Key                   `json:"key"`
	Location       string                `json:"location"`
	Hostname       string                `json:"hostname"`
	DataInterfaces Values[DataInterface] `json:"data_interfaces"`
}
