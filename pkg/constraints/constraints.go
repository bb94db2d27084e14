// Package constraints builds and serves the placement-constraints table:
// for each processor, the set of sibling ids (its active plus all of its
// standbys) that must never share a host with it.
package constraints

import (
	"sort"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// Table is a read-only, built-once mapping from a processor id to the set
// of ids it may not co-locate with. Built once at startup from the job
// model; safe for concurrent reads thereafter without synchronization
// since it is never mutated after Build returns.
type Table struct {
	families map[clustertypes.ProcessorId][]clustertypes.ProcessorId
}

// Build partitions containerIds into active+standby families (an active
// "3" and its standbys "3-0", "3-1", ... form one family) and returns a
// Table mapping every member to the sorted list of its other family
// members.
func Build(containerIds []clustertypes.ProcessorId) *Table {
	byActive := make(map[clustertypes.ProcessorId][]clustertypes.ProcessorId)
	for _, id := range containerIds {
		active := id
		if clustertypes.IsStandby(id) {
			active = clustertypes.ActiveOf(id)
		}
		byActive[active] = append(byActive[active], id)
	}

	families := make(map[clustertypes.ProcessorId][]clustertypes.ProcessorId, len(containerIds))
	for _, members := range byActive {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		for _, member := range members {
			siblings := make([]clustertypes.ProcessorId, 0, len(members)-1)
			for _, other := range members {
				if other != member {
					siblings = append(siblings, other)
				}
			}
			families[member] = siblings
		}
	}
	return &Table{families: families}
}

// Siblings returns the deterministically ordered set of ids that may not
// share a host with id. Returns nil for an id outside the job model.
func (t *Table) Siblings(id clustertypes.ProcessorId) []clustertypes.ProcessorId {
	return t.families[id]
}

// Contains reports whether sibling is a constraint partner of id.
func (t *Table) Contains(id, sibling clustertypes.ProcessorId) bool {
	for _, s := range t.families[id] {
		if s == sibling {
			return true
		}
	}
	return false
}
