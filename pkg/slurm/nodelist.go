package slurm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nodeListPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+)\[([A-Za-z\d,-]+)\]`)

// ExpandNodeList expands a compact Slurm nodelist expression into the full
// list of node names, e.g. "node[1-3,5]" -> node1, node2, node3, node5.
// Output order follows the input expression and duplicates are preserved.
// Range tokens that don't parse as integers degrade to a literal
// prefix+token concatenation rather than failing; this matches the behavior
// existing deployments depend on for unconventional node names.
func ExpandNodeList(nodelist string) []string {
	if nodelist == "" {
		return nil
	}
	if !strings.Contains(nodelist, "[") {
		return []string{nodelist}
	}
	m := nodeListPattern.FindStringSubmatch(nodelist)
	if m == nil {
		return []string{nodelist}
	}
	prefix, ranges := m[1], m[2]

	var nodes []string
	for _, token := range strings.Split(ranges, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		low, high, isRange := strings.Cut(token, "-")
		if !isRange {
			nodes = append(nodes, prefix+token)
			continue
		}
		start, startErr := strconv.Atoi(low)
		end, endErr := strconv.Atoi(high)
		if startErr != nil || endErr != nil {
			nodes = append(nodes, prefix+token)
			continue
		}
		for i := start; i <= end; i++ {
			nodes = append(nodes, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	return nodes
}
