package view

import (
	"testing"

	"github.com/duesync/duesync/internal/models"
)

func snapshotWith(groups ...models.DebtGroup) models.Snapshot {
	return models.Snapshot{Version: 1, Groups: groups}
}

func TestSelectionApply(t *testing.T) {
	var sel Selection
	sel.Select("g1")

	evicted := sel.Apply(snapshotWith(models.DebtGroup{ID: "g1", Name: "Trip"}))
	if evicted {
		t.Error("Selection evicted although group is present")
	}
	if sel.GroupID() != "g1" {
		t.Errorf("Expected selection g1, got %q", sel.GroupID())
	}

	evicted = sel.Apply(snapshotWith())
	if !evicted {
		t.Error("Expected eviction when selected group disappears")
	}
	if sel.GroupID() != "" {
		t.Errorf("Expected cleared selection, got %q", sel.GroupID())
	}
}

func TestSelectionApply_NoSelection(t *testing.T) {
	var sel Selection
	if evicted := sel.Apply(snapshotWith()); evicted {
		t.Error("Empty selection must never report eviction")
	}
}

func TestCurrentGroup(t *testing.T) {
	snap := snapshotWith(
		models.DebtGroup{ID: "g1", Name: "Trip"},
		models.DebtGroup{ID: "g2", Name: "Rent"},
	)

	g, ok := CurrentGroup(snap, "g2")
	if !ok || g.Name != "Rent" {
		t.Errorf("Expected Rent, got %+v ok=%v", g, ok)
	}

	if _, ok := CurrentGroup(snap, "g3"); ok {
		t.Error("Expected absent group to resolve to not-ok")
	}
	if _, ok := CurrentGroup(snap, ""); ok {
		t.Error("Expected empty selection to resolve to not-ok")
	}
}

func TestSortDebtees(t *testing.T) {
	tests := []struct {
		name string
		in   []string // a trailing '*' marks the debtee paid
		want []string
	}{
		{
			name: "unpaid before paid, stable within partitions",
			in:   []string{"Alice*", "Bob", "Carol*", "Dave", "Eve"},
			want: []string{"Bob", "Dave", "Eve", "Alice*", "Carol*"},
		},
		{
			name: "all unpaid keeps insertion order",
			in:   []string{"Alice", "Bob", "Carol"},
			want: []string{"Alice", "Bob", "Carol"},
		},
		{
			name: "all paid keeps insertion order",
			in:   []string{"Alice*", "Bob*"},
			want: []string{"Alice*", "Bob*"},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decodeDebtees(tt.in)
			got := SortDebtees(in)

			if len(got) != len(tt.want) {
				t.Fatalf("Length mismatch: got %d, want %d", len(got), len(tt.want))
			}
			for i, w := range decodeDebtees(tt.want) {
				if got[i].Name != w.Name || got[i].Paid != w.Paid {
					t.Errorf("Position %d: got %s(paid=%v), want %s(paid=%v)",
						i, got[i].Name, got[i].Paid, w.Name, w.Paid)
				}
			}

			// Input must be untouched.
			for i, w := range decodeDebtees(tt.in) {
				if in[i].Name != w.Name || in[i].Paid != w.Paid {
					t.Errorf("Input mutated at %d: %+v", i, in[i])
				}
			}
		})
	}
}

func decodeDebtees(encoded []string) []models.Debtee {
	var out []models.Debtee
	for _, e := range encoded {
		d := models.Debtee{Name: e}
		if n := len(e); n > 0 && e[n-1] == '*' {
			d.Name = e[:n-1]
			d.Paid = true
		}
		out = append(out, d)
	}
	return out
}
