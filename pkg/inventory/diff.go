package inventory

// Snapshot is one poll of cluster membership: every node known to the
// scheduler and the subset currently able to run jobs.
type Snapshot struct {
	All       map[string]struct{}
	Available map[string]struct{}
}

// Changes classifies the node-set differences between two consecutive
// snapshots.
type Changes struct {
	Added          map[string]struct{}
	Removed        map[string]struct{}
	NewlyAvailable map[string]struct{}
	// ToRefresh is the set of nodes whose interface inventory must be
	// re-collected: added nodes that are available plus nodes that just
	// became available.
	ToRefresh map[string]struct{}
}

// Diff compares two consecutive snapshots. It is a pure function: the
// monitor holds no history beyond the previous snapshot, so a node that is
// added and removed within one poll interval is invisible.
func Diff(prev, cur Snapshot) Changes {
	changes := Changes{
		Added:          subtract(cur.All, prev.All),
		Removed:        subtract(prev.All, cur.All),
		NewlyAvailable: subtract(cur.Available, prev.Available),
		ToRefresh:      make(map[string]struct{}),
	}
	for node := range changes.Added {
		if _, ok := cur.Available[node]; ok {
			changes.ToRefresh[node] = struct{}{}
		}
	}
	for node := range changes.NewlyAvailable {
		changes.ToRefresh[node] = struct{}{}
	}
	return changes
}

// Empty reports whether the tick requires no action.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 &&
		len(c.Removed) == 0 &&
		len(c.NewlyAvailable) == 0
}

func subtract(a, b map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{})
	for key := range a {
		if _, ok := b[key]; !ok {
			result[key] = struct{}{}
		}
	}
	return result
}
