package slurm

import "strings"

// NodeState classifies the scheduling state of a node as reported by sinfo.
// Only the states in which a node can run jobs are distinguished; everything
// else (down, drained, draining, maint, unknown, ...) collapses into
// StateUnavailable.
type NodeState int

const (
	StateUnavailable NodeState = iota
	StateIdle
	StateAllocated
	StateMixed
	StateCompleting
)

// ParseNodeState maps a raw sinfo state string onto a NodeState. Matching is
// case-insensitive and exact; suffixed states such as "idle*" (unreachable)
// are deliberately treated as unavailable.
func ParseNodeState(s string) NodeState {
	switch strings.ToLower(s) {
	case "idle":
		return StateIdle
	case "allocated":
		return StateAllocated
	case "mixed":
		return StateMixed
	case "completing":
		return StateCompleting
	default:
		return StateUnavailable
	}
}

// Available reports whether a node in this state can run jobs.
func (s NodeState) Available() bool {
	return s != StateUnavailable
}

func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAllocated:
		return "allocated"
	case StateMixed:
		return "mixed"
	case StateCompleting:
		return "completing"
	default:
		return "unavailable"
	}
}
