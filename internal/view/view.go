// Package view holds the purely derived selection state. No I/O happens
// here; every input is a read-only snapshot.
package view

import (
	"sort"

	"github.com/duesync/duesync/internal/models"
)

// Selection tracks which group is currently focused locally. It is
// reconciled against every delivered snapshot: a selection pointing at a
// group that disappeared is cleared.
type Selection struct {
	groupID string
}

// Select focuses the given group.
func (s *Selection) Select(groupID string) {
	s.groupID = groupID
}

// Clear drops the current focus.
func (s *Selection) Clear() {
	s.groupID = ""
}

// GroupID returns the focused group ID, or "" when nothing is selected.
func (s *Selection) GroupID() string {
	return s.groupID
}

// Apply reconciles the selection against a new snapshot, clearing it if the
// selected group is no longer present. Returns true if the selection was
// evicted.
func (s *Selection) Apply(snap models.Snapshot) bool {
	if s.groupID == "" {
		return false
	}
	if _, ok := snap.Group(s.groupID); !ok {
		s.groupID = ""
		return true
	}
	return false
}

// CurrentGroup resolves the selected group against a snapshot.
func CurrentGroup(snap models.Snapshot, selectedID string) (models.DebtGroup, bool) {
	if selectedID == "" {
		return models.DebtGroup{}, false
	}
	return snap.Group(selectedID)
}

// SortDebtees returns the debtees ordered for display: all unpaid entries
// before paid entries, original insertion order preserved within each
// partition. The input slice is not modified.
func SortDebtees(debtees []models.Debtee) []models.Debtee {
	out := make([]models.Debtee, len(debtees))
	copy(out, debtees)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Paid && out[j].Paid
	})
	return out
}
