package models

// DebtGroup represents one shared debt record. Several clients edit the same
// group concurrently; the debtee collection is only ever modified through the
// store's per-entry primitives, never rewritten wholesale.
type DebtGroup struct {
	// ID is the unique identifier for the group, assigned by the store on
	// creation (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g. "Trip", "Rent").
	Name string `json:"name"`

	// CreatorID is the identity of the client that created the group.
	CreatorID string `json:"creator_id"`

	// Debtees is the ordered collection of people owing money in this
	// group. Debtee IDs are unique within the group.
	Debtees []Debtee `json:"debtees"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`
}

// Debtee represents one person owing money within a group.
type Debtee struct {
	// ID is unique within the parent group, generated client-side at add
	// time (ULID format, so IDs sort by add time).
	ID string `json:"id"`

	// Name is the display name of the debtee.
	Name string `json:"name"`

	// Paid reports whether the debt has been settled.
	Paid bool `json:"paid"`

	// AddedBy is the identity of the client that added this debtee.
	AddedBy string `json:"added_by"`

	// Timestamp is the Unix timestamp when the debtee was added.
	Timestamp int64 `json:"timestamp"`
}

// Debtee returns the debtee with the given ID, if present.
func (g DebtGroup) Debtee(id string) (Debtee, bool) {
	for _, d := range g.Debtees {
		if d.ID == id {
			return d, true
		}
	}
	return Debtee{}, false
}

// Clone returns a deep copy of the group. Used by the store when building
// snapshots so shared state never leaks out by reference.
func (g DebtGroup) Clone() DebtGroup {
	out := g
	out.Debtees = make([]Debtee, len(g.Debtees))
	copy(out.Debtees, g.Debtees)
	return out
}
