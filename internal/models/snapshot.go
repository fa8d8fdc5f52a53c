package models

// Snapshot is the complete state of all groups as observed by the store at
// one version. The change feed always delivers full snapshots, never diffs:
// this trades bandwidth for eliminating client-side merge logic for the
// group list.
//
// Receivers must treat a Snapshot as read-only.
type Snapshot struct {
	// Version is a store-assigned marker, strictly increasing with every
	// committed mutation. Consumers use it to discard stale deliveries.
	Version int64 `json:"version"`

	// Groups is the full current list of groups with their full current
	// debtee collections.
	Groups []DebtGroup `json:"groups"`
}

// Group returns the group with the given ID, if present in the snapshot.
func (s Snapshot) Group(id string) (DebtGroup, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return DebtGroup{}, false
}
